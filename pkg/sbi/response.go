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

// Package sbi builds the HTTP responses of the function's own service
// interfaces: success envelopes with the standard caching headers and
// problem-details error documents.
package sbi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ProductPrefix starts every Server header.
const ProductPrefix = "5GMSdAF"

// APIRelease is the 3GPP release the interfaces implement.
const APIRelease = "17"

// Interface tags recognized by ServerHeader.
const (
	InterfaceProvisioningSession         = "m1 provisioningSession"
	InterfaceContentHostingConfiguration = "m1 contentHostingConfiguration"
	InterfaceServiceAccessInformation    = "m5"
)

// APIInfo is the info block of an interface's OpenAPI document.
type APIInfo struct {
	Title   string
	Version string
}

var interfaceInfo = map[string]APIInfo{
	InterfaceProvisioningSession:         {Title: "M1_ProvisioningSessions", Version: "2.0.0"},
	InterfaceContentHostingConfiguration: {Title: "M1_ContentHostingProvisioning", Version: "2.0.0"},
	InterfaceServiceAccessInformation:    {Title: "M5_ServiceAccessInformation", Version: "2.0.0"},
}

// Service identifies one of the function's service interfaces.
type Service struct {
	// Name and APIVersion form the problem type, e.g. "/3gpp-m1/v2".
	Name       string
	APIVersion string

	// ServerName is the operator-chosen product token.
	ServerName string

	// Component and Version name this implementation in the Server header.
	Component string
	Version   string
}

// ServerHeader returns the Server header value. Known interface tags embed
// their API info; unknown or empty tags give the plain banner.
func (s Service) ServerHeader(interfaceTag string) string {
	product := fmt.Sprintf("%s-%s/%s", ProductPrefix, s.ServerName, APIRelease)
	implementation := s.Component + "/" + s.Version

	if info, ok := interfaceInfo[interfaceTag]; ok {
		return fmt.Sprintf("%s (info.title=%s; info.version=%s) %s", product, info.Title, info.Version, implementation)
	}
	return product + " " + implementation
}

// ResponseOptions selects the optional headers of a response. Zero values
// are omitted.
type ResponseOptions struct {
	Location           string
	ContentType        string
	LastModified       time.Time
	ETag               string
	CacheControlMaxAge int
	Interface          string
}

// Response is a status, headers and body ready to be written.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse builds a response carrying the headers selected by opts. The
// Server header is always set. Status defaults to 200.
func (s Service) NewResponse(opts ResponseOptions) *Response {
	h := make(http.Header)

	if opts.ContentType != "" {
		h.Set("Content-Type", opts.ContentType)
	}
	if opts.Location != "" {
		h.Set("Location", opts.Location)
	}
	if !opts.LastModified.IsZero() {
		h.Set("Last-Modified", opts.LastModified.UTC().Format(http.TimeFormat))
	}
	if opts.ETag != "" {
		h.Set("ETag", opts.ETag)
	}
	if opts.CacheControlMaxAge > 0 {
		h.Set("Cache-Control", "max-age="+strconv.Itoa(opts.CacheControlMaxAge))
	}
	h.Set("Server", s.ServerHeader(opts.Interface))

	return &Response{Status: http.StatusOK, Header: h}
}

// WithBody sets the status and body and returns r.
func (r *Response) WithBody(status int, body []byte) *Response {
	r.Status = status
	r.Body = body
	return r
}

// Write sends r on w.
func (r *Response) Write(w http.ResponseWriter) error {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if len(r.Body) > 0 {
		w.Header().Set("Content-Length", strconv.Itoa(len(r.Body)))
	}
	w.WriteHeader(r.Status)

	if len(r.Body) == 0 {
		return nil
	}
	if _, err := w.Write(r.Body); err != nil {
		return fmt.Errorf("failed to write response body: %w", err)
	}
	return nil
}
