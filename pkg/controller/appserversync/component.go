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

// Package appserversync implements the component that keeps every
// registered application server converged with the provisioning state.
//
// All reconciliation state is owned by a single loop goroutine. Public
// methods post closures onto an unbounded FIFO that the loop drains in
// order; M3 responses are posted back onto the same FIFO. At most one M3
// request is outstanding per application server at any time.
package appserversync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"msaf/pkg/appserver"
	"msaf/pkg/controller/events"
	busevents "msaf/pkg/events"
	"msaf/pkg/m3"
)

const (
	// EventBufferSize is the size of the event subscription buffer.
	EventBufferSize = 200

	// PolicyFirst assigns new sessions to the first registered server only.
	PolicyFirst = "first"

	// PolicyAll assigns new sessions to every registered server.
	PolicyAll = "all"
)

// errSessionRemoved answers purges dropped together with their session.
var errSessionRemoved = errors.New("provisioning session removed")

// SessionSource provides provisioning data for uploads.
type SessionSource interface {
	// CertificatesForUpload returns the certificates a session's
	// configuration references. Empty when any of them is unknown.
	CertificatesForUpload(sessionID string) []appserver.CertificateKey

	// ConfigurationForAS returns the session's configuration document with
	// AS-unique certificate ids.
	ConfigurationForAS(sessionID string) ([]byte, error)
}

// CertificateSource reads certificate PEM data.
type CertificateSource interface {
	Read(key appserver.CertificateKey) ([]byte, error)
}

// Config configures the component.
type Config struct {
	// AssignmentPolicy is PolicyFirst or PolicyAll. Empty means PolicyFirst.
	AssignmentPolicy string

	// RequestTimeout bounds each M3 request.
	RequestTimeout time.Duration

	// RetryInitialInterval and RetryMaxInterval shape the back-off applied
	// to a server after a failed request.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// PurgeTimeout bounds how long PurgeCache waits for all servers.
	PurgeTimeout time.Duration

	// Resolver and HTTPClient are passed to every M3 client.
	Resolver   m3.Resolver
	HTTPClient *http.Client
}

// Component synchronizes application servers over M3.
//
// Event subscriptions:
//   - PurgeCacheRequest: queue a purge on every server hosting the session
//   - ResyncTriggeredEvent: rediscover idle servers
//   - CertificateFileChangedEvent: re-upload the certificate where hosted
//
// The component publishes M3 request and registry events for observability.
type Component struct {
	eventBus     *busevents.EventBus
	eventChan    <-chan busevents.Event
	store        *appserver.Store
	sessions     SessionSource
	certificates CertificateSource
	config       Config
	logger       *slog.Logger

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	// Owned by the loop.
	ctx      context.Context
	backoffs map[uint64]*backoff.ExponentialBackOff
	requests sync.WaitGroup
}

// New creates the component with an empty application server store.
func New(eventBus *busevents.EventBus, sessions SessionSource, certificates CertificateSource, config Config, logger *slog.Logger) *Component {
	if config.AssignmentPolicy == "" {
		config.AssignmentPolicy = PolicyFirst
	}
	return &Component{
		eventBus:     eventBus,
		eventChan:    eventBus.Subscribe(EventBufferSize),
		store:        appserver.NewStore(),
		sessions:     sessions,
		certificates: certificates,
		config:       config,
		logger:       logger.With("component", "appserver-sync"),
		wake:         make(chan struct{}, 1),
		ctx:          context.Background(),
		backoffs:     make(map[uint64]*backoff.ExponentialBackOff),
	}
}

// Start runs the loop until ctx is cancelled. Work posted before Start is
// processed once it runs.
func (c *Component) Start(ctx context.Context) error {
	c.logger.Info("Application server sync starting",
		"assignment_policy", c.config.AssignmentPolicy)

	// Work posted before Start runs below, after ctx is in place.
	c.ctx = ctx

	for {
		select {
		case <-c.wake:
			c.drain()

		case event := <-c.eventChan:
			// Events queue behind work posted before them.
			c.post(func() { c.handleEvent(event) })

		case <-ctx.Done():
			c.logger.Info("Application server sync shutting down", "reason", ctx.Err())
			c.requests.Wait()
			c.drain()
			for _, entry := range c.store.RemoveAll() {
				c.failPurges(entry, "application function shutting down")
			}
			return nil
		}
	}
}

// post appends fn to the FIFO. It never blocks.
func (c *Component) post(fn func()) {
	c.mu.Lock()
	c.queue = append(c.queue, fn)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Component) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		fn := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		fn()
	}
}

// call runs fn on the loop and waits for its result.
func call[T any](ctx context.Context, c *Component, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	reply := make(chan result, 1)
	c.post(func() {
		v, err := fn()
		reply <- result{v, err}
	})

	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Component) handleEvent(event busevents.Event) {
	switch e := event.(type) {
	case *events.PurgeCacheRequest:
		c.handlePurgeRequest(e)
	case *events.ResyncTriggeredEvent:
		c.handleResync(e)
	case *events.CertificateFileChangedEvent:
		c.handleCertificateChanged(e)
	}
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// RegisterApplicationServer adds a server with an empty state and starts
// discovering it.
func (c *Component) RegisterApplicationServer(ctx context.Context, server appserver.ApplicationServer) error {
	_, err := call(ctx, c, func() (struct{}, error) {
		entry, err := c.store.Register(server.CanonicalHostname, server.URLPathPrefixFormat, server.M3Port)
		if err != nil {
			return struct{}{}, err
		}
		c.logger.Info("application server registered",
			"hostname", server.CanonicalHostname,
			"m3_port", server.M3Port)
		c.eventBus.Publish(events.NewApplicationServerRegisteredEvent(server.CanonicalHostname, server.M3Port))
		c.nextAction(entry)
		return struct{}{}, nil
	})
	return err
}

// RemoveApplicationServer unregisters a server. A response to a request that
// is still in flight is discarded when it arrives.
func (c *Component) RemoveApplicationServer(ctx context.Context, hostname string) error {
	_, err := call(ctx, c, func() (struct{}, error) {
		entry, err := c.store.Remove(hostname)
		if err != nil {
			return struct{}{}, err
		}
		c.forget(entry)
		c.failPurges(entry, "application server removed")
		c.logger.Info("application server removed",
			"hostname", hostname,
			"in_flight", entry.State.Busy())
		c.eventBus.Publish(events.NewApplicationServerRemovedEvent(hostname, entry.State.Busy()))
		return struct{}{}, nil
	})
	return err
}

// ServerSnapshot describes one registered server.
type ServerSnapshot struct {
	Server     appserver.ApplicationServer `json:"server"`
	Generation uint64                      `json:"generation"`
	State      appserver.Snapshot          `json:"state"`
}

// ApplicationServers lists the registered servers in registration order.
func (c *Component) ApplicationServers(ctx context.Context) ([]ServerSnapshot, error) {
	return call(ctx, c, func() ([]ServerSnapshot, error) {
		entries := c.store.List()
		out := make([]ServerSnapshot, 0, len(entries))
		for _, entry := range entries {
			out = append(out, ServerSnapshot{
				Server:     entry.Server,
				Generation: entry.Generation,
				State:      entry.State.Snapshot(),
			})
		}
		return out, nil
	})
}

// PrimaryServer returns the server new sessions are laid out for: the first
// registered one.
func (c *Component) PrimaryServer(ctx context.Context) (appserver.ApplicationServer, error) {
	return call(ctx, c, func() (appserver.ApplicationServer, error) {
		entry, ok := c.store.First()
		if !ok {
			return appserver.ApplicationServer{}, appserver.ErrUnknownServer
		}
		return entry.Server, nil
	})
}

// HostingServers returns the hostnames that have sessionID assigned.
func (c *Component) HostingServers(ctx context.Context, sessionID string) ([]string, error) {
	return call(ctx, c, func() ([]string, error) {
		return c.hosting(sessionID), nil
	})
}

func (c *Component) hosting(sessionID string) []string {
	var hosts []string
	for _, entry := range c.store.List() {
		if entry.State.HostsSession(sessionID) {
			hosts = append(hosts, entry.Server.CanonicalHostname)
		}
	}
	return hosts
}

// -----------------------------------------------------------------------------
// Session assignment
// -----------------------------------------------------------------------------

// AssignNewSession queues the session's certificates and configuration on
// the servers selected by the assignment policy.
func (c *Component) AssignNewSession(sessionID string) {
	c.post(func() {
		var targets []*appserver.Entry
		switch c.config.AssignmentPolicy {
		case PolicyAll:
			targets = c.store.List()
		default:
			if first, ok := c.store.First(); ok {
				targets = []*appserver.Entry{first}
			}
		}

		if len(targets) == 0 {
			c.logger.Warn("no application server to assign session to", "session", sessionID)
			return
		}

		certificates := c.sessions.CertificatesForUpload(sessionID)
		hosts := make([]string, 0, len(targets))
		for _, entry := range targets {
			c.setAssignment(entry, sessionID, certificates)
			hosts = append(hosts, entry.Server.CanonicalHostname)
		}

		c.logger.Info("session assigned",
			"session", sessionID,
			"servers", hosts,
			"certificates", len(certificates))
		c.eventBus.Publish(events.NewSessionAssignedEvent(sessionID, hosts, len(certificates)))
	})
}

// SetAssignment assigns a session to one named server.
func (c *Component) SetAssignment(ctx context.Context, hostname, sessionID string) error {
	_, err := call(ctx, c, func() (struct{}, error) {
		entry, ok := c.store.Lookup(hostname)
		if !ok {
			return struct{}{}, fmt.Errorf("%w: %s", appserver.ErrUnknownServer, hostname)
		}
		certificates := c.sessions.CertificatesForUpload(sessionID)
		c.setAssignment(entry, sessionID, certificates)
		c.eventBus.Publish(events.NewSessionAssignedEvent(sessionID, []string{hostname}, len(certificates)))
		return struct{}{}, nil
	})
	return err
}

// setAssignment queues uploads for a session on one server. Duplicate
// certificate keys are kept and uploaded again. A queued delete of an item
// being uploaded again is cancelled.
func (c *Component) setAssignment(entry *appserver.Entry, sessionID string, certificates []appserver.CertificateKey) {
	state := entry.State
	for _, key := range certificates {
		state.PendingDeleteCertificates.Remove(key)
		state.PendingUploadCertificates.Append(key)
	}
	state.PendingDeleteConfigurations.Remove(sessionID)
	state.PendingUploadConfigurations.Append(sessionID)
	withdrawInFlight(state, func(a appserver.Action) bool {
		switch a.Kind {
		case appserver.ActionDeleteConfiguration:
			return a.ResourceID == sessionID
		case appserver.ActionDeleteCertificate:
			return slices.Contains(certificates, a.Certificate)
		}
		return false
	})
	state.AssignedSessions.AppendUnique(sessionID)
	c.kick(entry)
}

// UpdateAssignedSession queues the session's configuration again on every
// server hosting it.
func (c *Component) UpdateAssignedSession(sessionID string) {
	c.post(func() {
		var hosts []string
		for _, entry := range c.store.List() {
			if !entry.State.HostsSession(sessionID) {
				continue
			}
			entry.State.PendingUploadConfigurations.Append(sessionID)
			hosts = append(hosts, entry.Server.CanonicalHostname)
			c.kick(entry)
		}

		if len(hosts) == 0 {
			c.logger.Debug("updated session not hosted anywhere", "session", sessionID)
			return
		}
		c.eventBus.Publish(events.NewSessionUpdatedEvent(sessionID, hosts))
	})
}

// RemoveSession queues deletion of everything the session put on any server.
func (c *Component) RemoveSession(sessionID string) {
	c.post(func() {
		var hosts []string
		for _, entry := range c.store.List() {
			if c.removeSession(entry, sessionID) {
				hosts = append(hosts, entry.Server.CanonicalHostname)
			}
		}
		c.logger.Info("session removed", "session", sessionID, "servers", hosts)
		c.eventBus.Publish(events.NewSessionRemovedEvent(sessionID, hosts))
	})
}

// removeSession reports whether the server held anything of the session.
func (c *Component) removeSession(entry *appserver.Entry, sessionID string) bool {
	state := entry.State
	touched := state.AssignedSessions.Remove(sessionID)

	if state.ObservedCertificates != nil {
		for _, id := range state.ObservedCertificates.Items() {
			key, err := appserver.ParseCertificateKey(id)
			if err != nil || key.SessionID != sessionID {
				continue
			}
			if !state.PendingDeleteCertificates.Contains(key) {
				state.PendingDeleteCertificates.Append(key)
			}
			touched = true
		}
	}

	moved := state.PendingUploadCertificates.RemoveFunc(func(key appserver.CertificateKey) bool {
		return key.SessionID == sessionID
	})
	for _, key := range moved {
		if !state.PendingDeleteCertificates.Contains(key) {
			state.PendingDeleteCertificates.Append(key)
		}
		touched = true
	}

	observed := state.ObservedConfigurations.Contains(sessionID)
	queued := state.PendingUploadConfigurations.RemoveFunc(func(id string) bool { return id == sessionID })
	if observed || len(queued) > 0 {
		state.PendingDeleteConfigurations.AppendUnique(sessionID)
		touched = true
	}

	for _, purge := range state.PendingPurges.RemoveResource(sessionID) {
		if purge.RequestID != "" {
			c.respondPurge(purge, entry.Server.CanonicalHostname, 0, 0, errSessionRemoved)
		}
		touched = true
	}

	withdrawInFlight(state, func(a appserver.Action) bool {
		switch a.Kind {
		case appserver.ActionUploadCertificate:
			return a.Certificate.SessionID == sessionID
		case appserver.ActionUploadConfiguration, appserver.ActionPurgeCache:
			return a.ResourceID == sessionID
		}
		return false
	})

	if touched {
		c.kick(entry)
	}
	return touched
}

// withdrawInFlight marks the outstanding request as withdrawn when match
// says its queued item was just removed.
func withdrawInFlight(state *appserver.State, match func(appserver.Action) bool) {
	if state.InFlight != nil && match(state.InFlight.Action) {
		state.InFlight.Withdrawn = true
	}
}

// -----------------------------------------------------------------------------
// Triggers
// -----------------------------------------------------------------------------

func (c *Component) handleResync(event *events.ResyncTriggeredEvent) {
	for _, entry := range c.store.List() {
		state := entry.State
		if state.Busy() || state.PendingCount() > 0 {
			continue
		}
		c.logger.Debug("rediscovering application server",
			"hostname", entry.Server.CanonicalHostname,
			"reason", event.Reason)
		state.ForgetObserved()
		c.kick(entry)
	}
}

func (c *Component) handleCertificateChanged(event *events.CertificateFileChangedEvent) {
	for _, entry := range c.store.List() {
		if !entry.State.HostsSession(event.Key.SessionID) {
			continue
		}
		c.logger.Info("certificate changed, uploading again",
			"hostname", entry.Server.CanonicalHostname,
			"certificate", event.Key.String())
		entry.State.PendingUploadCertificates.Append(event.Key)
		c.kick(entry)
	}
}

// kick clears a pending retry and runs the selector. Used for external
// mutations, which retry a stalled server right away.
func (c *Component) kick(entry *appserver.Entry) {
	entry.State.RetryAt = time.Time{}
	c.nextAction(entry)
}

// forget drops per-server bookkeeping kept outside the state.
func (c *Component) forget(entry *appserver.Entry) {
	delete(c.backoffs, entry.Generation)
}
