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

package appserver

import (
	"net/http"

	"msaf/pkg/m3"
)

// ActionKind enumerates what the sync loop can do next for a server.
// Constants are declared in selection priority order.
type ActionKind int

const (
	ActionDiscoverCertificates ActionKind = iota + 1
	ActionDiscoverConfigurations
	ActionUploadCertificate
	ActionUploadConfiguration
	ActionDeleteConfiguration
	ActionDeleteCertificate
	ActionPurgeCache
	ActionIdle
)

var actionKindNames = map[ActionKind]string{
	ActionDiscoverCertificates:   "discover_certificates",
	ActionDiscoverConfigurations: "discover_configurations",
	ActionUploadCertificate:      "upload_certificate",
	ActionUploadConfiguration:    "upload_configuration",
	ActionDeleteConfiguration:    "delete_configuration",
	ActionDeleteCertificate:      "delete_certificate",
	ActionPurgeCache:             "purge_cache",
	ActionIdle:                   "idle",
}

func (k ActionKind) String() string {
	if name, ok := actionKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// M3 collection paths.
const (
	CertificatesPath   = "certificates"
	ConfigurationsPath = "content-hosting-configurations"
)

// Action is the single next step for one application server.
type Action struct {
	Kind ActionKind

	// Certificate is set for certificate uploads and deletions.
	Certificate CertificateKey

	// ResourceID is the configuration id for configuration and purge actions.
	ResourceID string

	// Purge is set for ActionPurgeCache.
	Purge PurgeEntry

	// Update selects PUT over POST for uploads: the server already has the resource.
	Update bool
}

// SelectAction picks the next action for s. Rules are tried in priority
// order and the first that applies wins. SelectAction neither mutates s nor
// takes InFlight or retry state into account.
func SelectAction(s *State) Action {
	if s.ObservedCertificates == nil {
		return Action{Kind: ActionDiscoverCertificates}
	}
	if s.ObservedConfigurations == nil {
		return Action{Kind: ActionDiscoverConfigurations}
	}
	if key, ok := s.PendingUploadCertificates.Head(); ok {
		return Action{
			Kind:        ActionUploadCertificate,
			Certificate: key,
			Update:      s.ObservedCertificates.Contains(key.String()),
		}
	}
	if id, ok := s.PendingUploadConfigurations.Head(); ok {
		return Action{
			Kind:       ActionUploadConfiguration,
			ResourceID: id,
			Update:     s.ObservedConfigurations.Contains(id),
		}
	}
	if id, ok := s.PendingDeleteConfigurations.Head(); ok {
		return Action{Kind: ActionDeleteConfiguration, ResourceID: id}
	}
	if key, ok := s.PendingDeleteCertificates.Head(); ok {
		return Action{Kind: ActionDeleteCertificate, Certificate: key}
	}
	if entry, ok := s.PendingPurges.Head(); ok {
		return Action{Kind: ActionPurgeCache, ResourceID: entry.ResourceID, Purge: entry}
	}
	return Action{Kind: ActionIdle}
}

// Method returns the HTTP method, or "" for Idle.
func (a Action) Method() string {
	switch a.Kind {
	case ActionDiscoverCertificates, ActionDiscoverConfigurations:
		return http.MethodGet
	case ActionUploadCertificate, ActionUploadConfiguration:
		if a.Update {
			return http.MethodPut
		}
		return http.MethodPost
	case ActionDeleteConfiguration, ActionDeleteCertificate:
		return http.MethodDelete
	case ActionPurgeCache:
		return http.MethodPost
	default:
		return ""
	}
}

// Path returns the M3 path relative to m3.PathRoot, or "" for Idle.
func (a Action) Path() string {
	switch a.Kind {
	case ActionDiscoverCertificates:
		return CertificatesPath
	case ActionDiscoverConfigurations:
		return ConfigurationsPath
	case ActionUploadCertificate, ActionDeleteCertificate:
		return CertificatesPath + "/" + a.Certificate.String()
	case ActionUploadConfiguration, ActionDeleteConfiguration:
		return ConfigurationsPath + "/" + a.ResourceID
	case ActionPurgeCache:
		return ConfigurationsPath + "/" + a.ResourceID + "/purge"
	default:
		return ""
	}
}

// ContentType returns the request content type, or "" when no body is sent.
func (a Action) ContentType() string {
	switch a.Kind {
	case ActionUploadCertificate:
		return m3.ContentTypePEM
	case ActionUploadConfiguration:
		return m3.ContentTypeJSON
	case ActionPurgeCache:
		return m3.ContentTypeForm
	default:
		return ""
	}
}

// Request builds the M3 request for a with the given body.
func (a Action) Request(body []byte) m3.Request {
	return m3.Request{
		Method:      a.Method(),
		Path:        a.Path(),
		ContentType: a.ContentType(),
		Body:        body,
	}
}
