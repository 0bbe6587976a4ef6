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

package m3

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	addrs []string
	err   error
}

func (f fakeResolver) LookupHost(context.Context, string) ([]string, error) {
	return f.addrs, f.err
}

func serverHostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestNew_BuildsM3URL(t *testing.T) {
	c, err := New(context.Background(), Config{
		Hostname: "as.example.com",
		Port:     7777,
		Resolver: fakeResolver{addrs: []string{"192.0.2.10"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "http://as.example.com:7777/3gpp-m3/v1/certificates", c.URL("certificates"))
	assert.Equal(t, "http://as.example.com:7777/3gpp-m3/v1/content-hosting-configurations/P1/purge",
		c.URL("/content-hosting-configurations/P1/purge"))
	assert.Equal(t, []string{"192.0.2.10"}, c.Addresses())
}

func TestNew_AddressResolutionFailure(t *testing.T) {
	_, err := New(context.Background(), Config{
		Hostname: "nowhere.invalid",
		Port:     7777,
		Resolver: fakeResolver{},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAddressResolution))

	_, err = New(context.Background(), Config{
		Hostname: "nowhere.invalid",
		Port:     7777,
		Resolver: fakeResolver{err: errors.New("no such host")},
	})
	assert.ErrorIs(t, err, ErrAddressResolution)
}

func TestNew_InvalidArguments(t *testing.T) {
	_, err := New(context.Background(), Config{Port: 80})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Hostname: "as", Port: 0})
	assert.Error(t, err)
}

func TestClient_Do(t *testing.T) {
	var gotMethod, gotPath, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	host, port := serverHostPort(t, srv)
	c, err := New(context.Background(), Config{Hostname: host, Port: port})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Do(context.Background(), Request{
		Method:      http.MethodPost,
		Path:        "certificates/P1:C1",
		ContentType: ContentTypePEM,
		Body:        []byte("-----BEGIN CERTIFICATE-----"),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/3gpp-m3/v1/certificates/P1:C1", gotPath)
	assert.Equal(t, ContentTypePEM, gotType)
	assert.Equal(t, "-----BEGIN CERTIFICATE-----", gotBody)
}

func TestClient_DialsResolvedAddresses(t *testing.T) {
	var gotHost string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	addr, port := serverHostPort(t, srv)
	c, err := New(context.Background(), Config{
		Hostname: "as1.invalid",
		Port:     port,
		Resolver: fakeResolver{addrs: []string{addr}},
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "certificates"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "as1.invalid:"+strconv.Itoa(port), gotHost)
}

func TestClient_DoWithoutContentType(t *testing.T) {
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	host, port := serverHostPort(t, srv)
	c, err := New(context.Background(), Config{Hostname: host, Port: port})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{Method: http.MethodDelete, Path: "certificates/P1:C1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Empty(t, gotType)
}

func TestClient_DoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host, port := serverHostPort(t, srv)
	srv.Close()

	c, err := New(context.Background(), Config{Hostname: host, Port: port})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "certificates"})
	assert.Error(t, err)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Request: Request{Method: "PUT", Path: "certificates/a:b"}, Status: 500}
	assert.Equal(t, "PUT certificates/a:b: 500 Internal Server Error", err.Error())

	err.Detail = "disk full"
	assert.Contains(t, err.Error(), "disk full")
}

func TestNewStatusError_Detail(t *testing.T) {
	req := Request{Method: "POST", Path: "content-hosting-configurations/P1"}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"problem detail", `{"title":"Conflict","detail":"already exists"}`, "already exists"},
		{"problem title only", `{"title":"Conflict"}`, "Conflict"},
		{"json without text", `{"status":409}`, ""},
		{"plain text", "  busy \n", "busy"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStatusError(req, &Response{Status: 409, Body: []byte(tt.body)})
			assert.Equal(t, 409, err.Status)
			assert.Equal(t, tt.want, err.Detail)
		})
	}
}
