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

// Package m3 is the HTTP client for the M3 management interface exposed by
// each application server.
//
// A Client is bound to one server. It resolves the server's address once, at
// construction, dials those addresses for every later request and reuses its
// connection pool.
// Interpreting response statuses is left to the caller.
package m3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PathRoot prefixes every M3 resource path.
const PathRoot = "/3gpp-m3/v1/"

// Content types sent on M3 requests.
const (
	ContentTypePEM  = "application/x-pem-file"
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// DefaultTimeout bounds a single request when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// maxResponseBody caps how much of a response body is read.
const maxResponseBody = 4 << 20

// ErrAddressResolution is returned by New when the server's hostname
// resolves to no address.
var ErrAddressResolution = errors.New("address resolution failed")

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Config configures a Client.
type Config struct {
	Hostname string
	Port     int

	// Timeout bounds each request, including reading the body.
	Timeout time.Duration

	// Resolver defaults to net.DefaultResolver.
	Resolver Resolver

	// HTTPClient overrides the client built from Timeout (useful for testing).
	// Its transport dials on its own; the resolved addresses are not used.
	HTTPClient *http.Client
}

// Request is one M3 operation.
type Request struct {
	Method string

	// Path is relative to PathRoot, e.g. "certificates/P1:C1".
	Path string

	// ContentType is sent only when non-empty.
	ContentType string

	Body []byte
}

// String returns "METHOD path" for logging.
func (r Request) String() string {
	return r.Method + " " + r.Path
}

// Response is what the application server answered.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client sends M3 requests to a single application server.
type Client struct {
	hostname string
	port     int
	baseURL  string
	addrs    []string
	http     *http.Client
}

// New resolves cfg.Hostname and returns a client that connects to the
// resolved addresses, tried in order. Requests still name the hostname.
// Resolution failure yields an error wrapping ErrAddressResolution.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Hostname == "" {
		return nil, fmt.Errorf("hostname is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupHost(ctx, cfg.Hostname)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAddressResolution, cfg.Hostname, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s: no addresses", ErrAddressResolution, cfg.Hostname)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = nil
		transport.DialContext = dialResolved(addrs, cfg.Port)
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}

	hostPort := net.JoinHostPort(cfg.Hostname, strconv.Itoa(cfg.Port))

	return &Client{
		hostname: cfg.Hostname,
		port:     cfg.Port,
		baseURL:  "http://" + hostPort + PathRoot,
		addrs:    addrs,
		http:     httpClient,
	}, nil
}

// dialResolved ignores the address the transport asks for and dials the
// resolved addresses instead.
func dialResolved(addrs []string, port int) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	p := strconv.Itoa(port)
	return func(ctx context.Context, network, _ string) (net.Conn, error) {
		var errs []error
		for _, addr := range addrs {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(addr, p))
			if err == nil {
				return conn, nil
			}
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	}
}

// URL returns the absolute URL for an M3 path.
func (c *Client) URL(path string) string {
	return c.baseURL + strings.TrimPrefix(path, "/")
}

// Addresses returns the addresses the hostname resolved to.
func (c *Client) Addresses() []string {
	return append([]string(nil), c.addrs...)
}

// Do sends req and returns the response whatever its status. An error is
// returned only when no response was received.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.URL(req.Path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", req, err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s to %s failed: %w", req, c.hostname, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response to %s from %s: %w", req, c.hostname, err)
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   data,
	}, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
