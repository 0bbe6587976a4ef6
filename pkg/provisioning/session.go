// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package provisioning holds provisioning sessions: their content hosting
// configuration, kept as an opaque JSON document, and their server
// certificates.
//
// The package hands the sync controller what it uploads to application
// servers: certificate keys, configuration documents with AS-unique
// certificate ids, and certificate bytes.
package provisioning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

var (
	// ErrSessionNotFound is returned for unknown provisioning-session ids.
	ErrSessionNotFound = errors.New("provisioning session not found")

	// ErrCertificateNotFound is returned for unknown certificate ids.
	ErrCertificateNotFound = errors.New("certificate not found")

	// ErrNoConfiguration is returned when a session has no content hosting configuration.
	ErrNoConfiguration = errors.New("content hosting configuration not found")
)

// Session types.
const (
	TypeDownlink = "DOWNLINK"
	TypeUplink   = "UPLINK"
)

// InvalidParamError rejects a request field.
type InvalidParamError struct {
	Param  string
	Reason string
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Reason)
}

// Metadata is what the M1 API needs for conditional and cacheable responses.
type Metadata struct {
	Received time.Time
	Hash     string
}

// Session is a snapshot of one provisioning session.
type Session struct {
	ID    string
	Type  string
	ASPID string
	AppID string

	Metadata Metadata

	// Certificates maps certificate id to PEM file path.
	Certificates map[string]string

	// Configuration is the content hosting configuration, nil until set.
	Configuration         json.RawMessage
	ConfigurationMetadata Metadata
}

// CertificateIDs returns the session's certificate ids, sorted.
func (s *Session) CertificateIDs() []string {
	ids := make([]string, 0, len(s.Certificates))
	for id := range s.Certificates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarshalJSON encodes the session as an M1 ProvisioningSession resource.
func (s *Session) MarshalJSON() ([]byte, error) {
	type resource struct {
		ProvisioningSessionID   string   `json:"provisioningSessionId"`
		ProvisioningSessionType string   `json:"provisioningSessionType"`
		ASPID                   string   `json:"aspId,omitempty"`
		AppID                   string   `json:"appId"`
		ServerCertificateIDs    []string `json:"serverCertificateIds,omitempty"`
	}
	return json.Marshal(resource{
		ProvisioningSessionID:   s.ID,
		ProvisioningSessionType: s.Type,
		ASPID:                   s.ASPID,
		AppID:                   s.AppID,
		ServerCertificateIDs:    s.CertificateIDs(),
	})
}

// SessionRequest is the client-supplied part of a new session.
type SessionRequest struct {
	Type  string
	ASPID string
	AppID string
}

// ParseSessionRequest validates an M1 ProvisioningSession creation body.
// Field errors are returned as *InvalidParamError.
func ParseSessionRequest(body []byte) (SessionRequest, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return SessionRequest{}, &InvalidParamError{Param: "body", Reason: "not a JSON object"}
	}
	doc := gjson.ParseBytes(body)

	var req SessionRequest

	sessionType := doc.Get("provisioningSessionType")
	switch {
	case !sessionType.Exists():
		return req, &InvalidParamError{Param: "provisioningSessionType", Reason: "required field not found"}
	case sessionType.Type != gjson.String:
		return req, &InvalidParamError{Param: "provisioningSessionType", Reason: "not an enumeration string"}
	case sessionType.String() != TypeDownlink && sessionType.String() != TypeUplink:
		return req, &InvalidParamError{Param: "provisioningSessionType", Reason: "enumerated value not recognised"}
	}
	req.Type = sessionType.String()

	aspID := doc.Get("aspId")
	if aspID.Exists() {
		if aspID.Type != gjson.String && aspID.Type != gjson.Null {
			return req, &InvalidParamError{Param: "aspId", Reason: "not a string or null"}
		}
		req.ASPID = aspID.String()
	}

	appID := doc.Get("appId")
	switch {
	case !appID.Exists():
		return req, &InvalidParamError{Param: "appId", Reason: "required field not found"}
	case appID.Type != gjson.String:
		return req, &InvalidParamError{Param: "appId", Reason: "not a string"}
	}
	req.AppID = appID.String()

	return req, nil
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
