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

package sbi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testService = Service{
	Name:       "3gpp-m1",
	APIVersion: "v2",
	ServerName: "testMSAF",
	Component:  "msaf",
	Version:    "1.2.3",
}

func TestServerHeader(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"", "5GMSdAF-testMSAF/17 msaf/1.2.3"},
		{"unknown", "5GMSdAF-testMSAF/17 msaf/1.2.3"},
		{InterfaceProvisioningSession, "5GMSdAF-testMSAF/17 (info.title=M1_ProvisioningSessions; info.version=2.0.0) msaf/1.2.3"},
		{InterfaceContentHostingConfiguration, "5GMSdAF-testMSAF/17 (info.title=M1_ContentHostingProvisioning; info.version=2.0.0) msaf/1.2.3"},
		{InterfaceServiceAccessInformation, "5GMSdAF-testMSAF/17 (info.title=M5_ServiceAccessInformation; info.version=2.0.0) msaf/1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, testService.ServerHeader(tt.tag))
		})
	}
}

func TestNewResponse_OnlyRequestedHeaders(t *testing.T) {
	resp := testService.NewResponse(ResponseOptions{})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Len(t, resp.Header, 1)
	assert.NotEmpty(t, resp.Header.Get("Server"))
}

func TestNewResponse_AllHeaders(t *testing.T) {
	modified := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	resp := testService.NewResponse(ResponseOptions{
		Location:           "/3gpp-m1/v2/provisioning-sessions/P1",
		ContentType:        "application/json",
		LastModified:       modified,
		ETag:               "abc123",
		CacheControlMaxAge: 60,
		Interface:          InterfaceContentHostingConfiguration,
	})

	assert.Equal(t, "/3gpp-m1/v2/provisioning-sessions/P1", resp.Header.Get("Location"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Tue, 04 Mar 2025 05:06:07 GMT", resp.Header.Get("Last-Modified"))
	assert.Equal(t, "abc123", resp.Header.Get("ETag"))
	assert.Equal(t, "max-age=60", resp.Header.Get("Cache-Control"))
	assert.Contains(t, resp.Header.Get("Server"), "M1_ContentHostingProvisioning")
}

func TestResponse_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	err := testService.NewResponse(ResponseOptions{ContentType: "application/json"}).
		WithBody(http.StatusCreated, []byte(`{"a":1}`)).
		Write(rec)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"a":1}`, rec.Body.String())
	assert.Equal(t, "7", rec.Header().Get("Content-Length"))
	assert.NotEmpty(t, rec.Header().Get("Server"))
}

func TestNewProblem_TypeAndInstance(t *testing.T) {
	p := testService.NewProblem(http.StatusNotFound, []string{"sa", "P1"}, "Not Found", "no such session", nil)

	assert.Equal(t, "/3gpp-m1/v2", p.Type)
	assert.Equal(t, "/sa/P1", p.Instance)
	assert.Equal(t, 404, p.Status)
	assert.Equal(t, "Not Found", p.Title)
	assert.Equal(t, "no such session", p.Detail)
	assert.Nil(t, p.InvalidParams)
}

func TestSendProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	params := InvalidParams(InvalidParam{Param: "entryPoint", Reason: "missing"})

	err := testService.SendProblem(rec, http.StatusBadRequest,
		[]string{"provisioning-sessions", "P1", "content-hosting-configuration"},
		"Bad Request", "invalid document", params)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ContentTypeProblem, rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "/3gpp-m1/v2", got["type"])
	assert.Equal(t, "/provisioning-sessions/P1/content-hosting-configuration", got["instance"])
	assert.EqualValues(t, 400, got["status"])
	assert.Equal(t, []any{map[string]any{"param": "entryPoint", "reason": "missing"}}, got["invalidParams"])
}

func TestExtractInvalidParams(t *testing.T) {
	wrapped := json.RawMessage(`{"invalidParams":[{"param":"x"}],"title":"ignored"}`)
	assert.JSONEq(t, `[{"param":"x"}]`, string(extractInvalidParams(wrapped)))

	assert.JSONEq(t, `[{"param":"y"}]`, string(extractInvalidParams(json.RawMessage(`[{"param":"y"}]`))))
	assert.Nil(t, extractInvalidParams(json.RawMessage(`{"other":1}`)))
	assert.Nil(t, extractInvalidParams(json.RawMessage(`[]`)))
	assert.Nil(t, extractInvalidParams(json.RawMessage(`not json`)))
}
