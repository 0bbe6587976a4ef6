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

package appserversync

import (
	"time"

	"msaf/pkg/appserver"
	"msaf/pkg/controller/events"
	"msaf/pkg/m3"
)

// completion is the result of one M3 request, posted back onto the loop.
type completion struct {
	hostname   string
	generation uint64
	action     appserver.Action
	request    m3.Request

	// transport is set when the request created the server's client.
	transport *m3.Client

	response *m3.Response
	err      error
	duration time.Duration
}

// nextAction selects and dispatches the next request for a server. It does
// nothing while a request is outstanding or a retry is pending.
func (c *Component) nextAction(entry *appserver.Entry) {
	state := entry.State
	if state.Busy() || state.Stalled() || c.ctx.Err() != nil {
		return
	}

	action := appserver.SelectAction(state)
	if action.Kind == appserver.ActionIdle {
		return
	}

	var body []byte
	switch action.Kind {
	case appserver.ActionUploadCertificate:
		pem, err := c.certificates.Read(action.Certificate)
		if err != nil {
			// Sent anyway; the server rejects the empty upload.
			c.logger.Error("failed to read certificate",
				"hostname", entry.Server.CanonicalHostname,
				"certificate", action.Certificate.String(),
				"error", err)
		}
		body = pem

	case appserver.ActionUploadConfiguration:
		doc, err := c.sessions.ConfigurationForAS(action.ResourceID)
		if err != nil {
			c.logger.Error("failed to build content hosting configuration",
				"hostname", entry.Server.CanonicalHostname,
				"session", action.ResourceID,
				"error", err)
		}
		body = doc

	case appserver.ActionPurgeCache:
		body = action.Purge.Body()
	}

	c.sendManagementRequest(entry, action, action.Request(body))
}

// sendManagementRequest marks the state busy and sends req in the
// background. The client for the server is created on first use.
func (c *Component) sendManagementRequest(entry *appserver.Entry, action appserver.Action, req m3.Request) {
	state := entry.State
	state.InFlight = &appserver.InFlight{
		Action:     action,
		Request:    req,
		Dispatched: time.Now(),
	}

	server := entry.Server
	result := completion{
		hostname:   server.CanonicalHostname,
		generation: entry.Generation,
		action:     action,
		request:    req,
	}
	transport := state.Transport
	ctx := c.ctx

	c.logger.Debug("sending M3 request",
		"hostname", server.CanonicalHostname,
		"action", action.Kind.String(),
		"request", req.String())
	c.eventBus.Publish(events.NewM3RequestDispatchedEvent(
		server.CanonicalHostname, action.Kind.String(), req.Method, req.Path, state.PendingCount()))

	c.requests.Add(1)
	go func() {
		defer c.requests.Done()
		start := time.Now()

		if transport == nil {
			client, err := m3.New(ctx, m3.Config{
				Hostname:   server.CanonicalHostname,
				Port:       server.M3Port,
				Timeout:    c.config.RequestTimeout,
				Resolver:   c.config.Resolver,
				HTTPClient: c.config.HTTPClient,
			})
			if err != nil {
				c.logger.Error("failed to create M3 client",
					"hostname", server.CanonicalHostname,
					"error", err)
				result.err = err
				result.duration = time.Since(start)
				c.post(func() { c.handleCompletion(result) })
				return
			}
			transport = client
			result.transport = client
		}

		result.response, result.err = transport.Do(ctx, req)
		result.duration = time.Since(start)
		c.post(func() { c.handleCompletion(result) })
	}()
}
