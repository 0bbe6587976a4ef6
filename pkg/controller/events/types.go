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

// Package events defines the domain events exchanged over the event bus.
//
// Events are facts about what happened. They are immutable once published:
// constructors copy slices, and consumers must not modify fields
// (checked by tools/linters/eventimmutability).
//
// Categories:
//   - Lifecycle: startup and shutdown
//   - Registry: application servers registered and removed
//   - Assignment: provisioning sessions assigned, updated, removed
//   - M3: requests dispatched to application servers and their outcome
//   - Purge: scatter-gather cache purge across application servers
//   - Triggers: resync and certificate file changes
package events

import (
	"time"

	"msaf/pkg/appserver"
)

const (
	// Lifecycle event types.
	EventTypeControllerStarted  = "controller.started"
	EventTypeControllerShutdown = "controller.shutdown"

	// Registry event types.
	EventTypeApplicationServerRegistered = "appserver.registered"
	EventTypeApplicationServerRemoved    = "appserver.removed"

	// Assignment event types.
	EventTypeSessionAssigned = "session.assigned"
	EventTypeSessionUpdated  = "session.updated"
	EventTypeSessionRemoved  = "session.removed"

	// M3 event types.
	EventTypeM3RequestDispatched           = "m3.request.dispatched"
	EventTypeM3RequestCompleted            = "m3.request.completed"
	EventTypeM3RequestFailed               = "m3.request.failed"
	EventTypeM3CompletionDiscarded         = "m3.completion.discarded"
	EventTypeApplicationServerSynchronized = "appserver.synchronized"

	// Purge event types.
	EventTypePurgeCacheRequest  = "purge.request"
	EventTypePurgeCacheResponse = "purge.response"

	// Trigger event types.
	EventTypeResyncTriggered        = "resync.triggered"
	EventTypeCertificateFileChanged = "certificate.file.changed"
)

// -----------------------------------------------------------------------------
// Lifecycle Events
// -----------------------------------------------------------------------------

// ControllerStartedEvent is published once every component is running.
type ControllerStartedEvent struct {
	ApplicationServers int
	timestamp          time.Time
}

// NewControllerStartedEvent creates a new ControllerStartedEvent.
func NewControllerStartedEvent(applicationServers int) *ControllerStartedEvent {
	return &ControllerStartedEvent{
		ApplicationServers: applicationServers,
		timestamp:          time.Now(),
	}
}

func (e *ControllerStartedEvent) EventType() string    { return EventTypeControllerStarted }
func (e *ControllerStartedEvent) Timestamp() time.Time { return e.timestamp }

// ControllerShutdownEvent is published when shutdown begins.
type ControllerShutdownEvent struct {
	Reason    string
	timestamp time.Time
}

// NewControllerShutdownEvent creates a new ControllerShutdownEvent.
func NewControllerShutdownEvent(reason string) *ControllerShutdownEvent {
	return &ControllerShutdownEvent{
		Reason:    reason,
		timestamp: time.Now(),
	}
}

func (e *ControllerShutdownEvent) EventType() string    { return EventTypeControllerShutdown }
func (e *ControllerShutdownEvent) Timestamp() time.Time { return e.timestamp }

// -----------------------------------------------------------------------------
// Registry Events
// -----------------------------------------------------------------------------

// ApplicationServerRegisteredEvent is published when a server joins the store.
type ApplicationServerRegisteredEvent struct {
	Hostname  string
	M3Port    int
	timestamp time.Time
}

// NewApplicationServerRegisteredEvent creates a new ApplicationServerRegisteredEvent.
func NewApplicationServerRegisteredEvent(hostname string, m3Port int) *ApplicationServerRegisteredEvent {
	return &ApplicationServerRegisteredEvent{
		Hostname:  hostname,
		M3Port:    m3Port,
		timestamp: time.Now(),
	}
}

func (e *ApplicationServerRegisteredEvent) EventType() string {
	return EventTypeApplicationServerRegistered
}
func (e *ApplicationServerRegisteredEvent) Timestamp() time.Time { return e.timestamp }

// ApplicationServerRemovedEvent is published when a server leaves the store.
// InFlight tells whether a request was outstanding; its response will be discarded.
type ApplicationServerRemovedEvent struct {
	Hostname  string
	InFlight  bool
	timestamp time.Time
}

// NewApplicationServerRemovedEvent creates a new ApplicationServerRemovedEvent.
func NewApplicationServerRemovedEvent(hostname string, inFlight bool) *ApplicationServerRemovedEvent {
	return &ApplicationServerRemovedEvent{
		Hostname:  hostname,
		InFlight:  inFlight,
		timestamp: time.Now(),
	}
}

func (e *ApplicationServerRemovedEvent) EventType() string    { return EventTypeApplicationServerRemoved }
func (e *ApplicationServerRemovedEvent) Timestamp() time.Time { return e.timestamp }

// -----------------------------------------------------------------------------
// Assignment Events
// -----------------------------------------------------------------------------

// SessionAssignedEvent is published when a new session is queued for upload.
type SessionAssignedEvent struct {
	SessionID    string
	Hostnames    []string
	Certificates int
	timestamp    time.Time
}

// NewSessionAssignedEvent creates a new SessionAssignedEvent.
func NewSessionAssignedEvent(sessionID string, hostnames []string, certificates int) *SessionAssignedEvent {
	return &SessionAssignedEvent{
		SessionID:    sessionID,
		Hostnames:    copyStrings(hostnames),
		Certificates: certificates,
		timestamp:    time.Now(),
	}
}

func (e *SessionAssignedEvent) EventType() string    { return EventTypeSessionAssigned }
func (e *SessionAssignedEvent) Timestamp() time.Time { return e.timestamp }

// SessionUpdatedEvent is published when an assigned session's configuration is re-queued.
type SessionUpdatedEvent struct {
	SessionID string
	Hostnames []string
	timestamp time.Time
}

// NewSessionUpdatedEvent creates a new SessionUpdatedEvent.
func NewSessionUpdatedEvent(sessionID string, hostnames []string) *SessionUpdatedEvent {
	return &SessionUpdatedEvent{
		SessionID: sessionID,
		Hostnames: copyStrings(hostnames),
		timestamp: time.Now(),
	}
}

func (e *SessionUpdatedEvent) EventType() string    { return EventTypeSessionUpdated }
func (e *SessionUpdatedEvent) Timestamp() time.Time { return e.timestamp }

// SessionRemovedEvent is published when a session's resources are queued for deletion.
type SessionRemovedEvent struct {
	SessionID string
	Hostnames []string
	timestamp time.Time
}

// NewSessionRemovedEvent creates a new SessionRemovedEvent.
func NewSessionRemovedEvent(sessionID string, hostnames []string) *SessionRemovedEvent {
	return &SessionRemovedEvent{
		SessionID: sessionID,
		Hostnames: copyStrings(hostnames),
		timestamp: time.Now(),
	}
}

func (e *SessionRemovedEvent) EventType() string    { return EventTypeSessionRemoved }
func (e *SessionRemovedEvent) Timestamp() time.Time { return e.timestamp }

// -----------------------------------------------------------------------------
// M3 Events
// -----------------------------------------------------------------------------

// M3RequestDispatchedEvent is published when a request is sent to a server.
// Pending counts the server's queued changes, including this request's.
type M3RequestDispatchedEvent struct {
	Hostname  string
	Action    string
	Method    string
	Path      string
	Pending   int
	timestamp time.Time
}

// NewM3RequestDispatchedEvent creates a new M3RequestDispatchedEvent.
func NewM3RequestDispatchedEvent(hostname, action, method, path string, pending int) *M3RequestDispatchedEvent {
	return &M3RequestDispatchedEvent{
		Hostname:  hostname,
		Action:    action,
		Method:    method,
		Path:      path,
		Pending:   pending,
		timestamp: time.Now(),
	}
}

func (e *M3RequestDispatchedEvent) EventType() string    { return EventTypeM3RequestDispatched }
func (e *M3RequestDispatchedEvent) Timestamp() time.Time { return e.timestamp }

// M3RequestCompletedEvent is published when a server confirmed a request.
type M3RequestCompletedEvent struct {
	Hostname   string
	Action     string
	Method     string
	Path       string
	Status     int
	DurationMs int64
	timestamp  time.Time
}

// NewM3RequestCompletedEvent creates a new M3RequestCompletedEvent.
func NewM3RequestCompletedEvent(hostname, action, method, path string, status int, durationMs int64) *M3RequestCompletedEvent {
	return &M3RequestCompletedEvent{
		Hostname:   hostname,
		Action:     action,
		Method:     method,
		Path:       path,
		Status:     status,
		DurationMs: durationMs,
		timestamp:  time.Now(),
	}
}

func (e *M3RequestCompletedEvent) EventType() string    { return EventTypeM3RequestCompleted }
func (e *M3RequestCompletedEvent) Timestamp() time.Time { return e.timestamp }

// M3RequestFailedEvent is published when a request failed. Status is 0 for
// transport errors. RetryIn is zero when no retry is scheduled.
type M3RequestFailedEvent struct {
	Hostname   string
	Action     string
	Method     string
	Path       string
	Status     int
	Error      string
	DurationMs int64
	RetryIn    time.Duration
	timestamp  time.Time
}

// NewM3RequestFailedEvent creates a new M3RequestFailedEvent.
func NewM3RequestFailedEvent(hostname, action, method, path string, status int, err string, durationMs int64, retryIn time.Duration) *M3RequestFailedEvent {
	return &M3RequestFailedEvent{
		Hostname:   hostname,
		Action:     action,
		Method:     method,
		Path:       path,
		Status:     status,
		Error:      err,
		DurationMs: durationMs,
		RetryIn:    retryIn,
		timestamp:  time.Now(),
	}
}

func (e *M3RequestFailedEvent) EventType() string    { return EventTypeM3RequestFailed }
func (e *M3RequestFailedEvent) Timestamp() time.Time { return e.timestamp }

// M3CompletionDiscardedEvent is published when a response arrives for a
// server that was removed while the request was in flight.
type M3CompletionDiscardedEvent struct {
	Hostname   string
	Generation uint64
	timestamp  time.Time
}

// NewM3CompletionDiscardedEvent creates a new M3CompletionDiscardedEvent.
func NewM3CompletionDiscardedEvent(hostname string, generation uint64) *M3CompletionDiscardedEvent {
	return &M3CompletionDiscardedEvent{
		Hostname:   hostname,
		Generation: generation,
		timestamp:  time.Now(),
	}
}

func (e *M3CompletionDiscardedEvent) EventType() string    { return EventTypeM3CompletionDiscarded }
func (e *M3CompletionDiscardedEvent) Timestamp() time.Time { return e.timestamp }

// ApplicationServerSynchronizedEvent is published when a server's state
// becomes idle after at least one request.
type ApplicationServerSynchronizedEvent struct {
	Hostname  string
	timestamp time.Time
}

// NewApplicationServerSynchronizedEvent creates a new ApplicationServerSynchronizedEvent.
func NewApplicationServerSynchronizedEvent(hostname string) *ApplicationServerSynchronizedEvent {
	return &ApplicationServerSynchronizedEvent{
		Hostname:  hostname,
		timestamp: time.Now(),
	}
}

func (e *ApplicationServerSynchronizedEvent) EventType() string {
	return EventTypeApplicationServerSynchronized
}
func (e *ApplicationServerSynchronizedEvent) Timestamp() time.Time { return e.timestamp }

// -----------------------------------------------------------------------------
// Purge Events
// -----------------------------------------------------------------------------

// PurgeCacheRequest asks every server hosting a session to purge its cache.
// Each server answers with one PurgeCacheResponse.
type PurgeCacheRequest struct {
	ID        string
	SessionID string
	Pattern   *string
	timestamp time.Time
}

// NewPurgeCacheRequest creates a new PurgeCacheRequest.
func NewPurgeCacheRequest(id, sessionID string, pattern *string) *PurgeCacheRequest {
	var p *string
	if pattern != nil {
		v := *pattern
		p = &v
	}
	return &PurgeCacheRequest{
		ID:        id,
		SessionID: sessionID,
		Pattern:   p,
		timestamp: time.Now(),
	}
}

func (e *PurgeCacheRequest) EventType() string    { return EventTypePurgeCacheRequest }
func (e *PurgeCacheRequest) Timestamp() time.Time { return e.timestamp }
func (e *PurgeCacheRequest) RequestID() string    { return e.ID }

// PurgeCacheResponse reports one server's purge result. Status is the M3
// status, 0 when no response was received. Error is empty on success.
type PurgeCacheResponse struct {
	ReqID     string
	Hostname  string
	Purged    int
	Status    int
	Error     string
	timestamp time.Time
}

// NewPurgeCacheResponse creates a new PurgeCacheResponse.
func NewPurgeCacheResponse(requestID, hostname string, purged, status int, err string) *PurgeCacheResponse {
	return &PurgeCacheResponse{
		ReqID:     requestID,
		Hostname:  hostname,
		Purged:    purged,
		Status:    status,
		Error:     err,
		timestamp: time.Now(),
	}
}

func (e *PurgeCacheResponse) EventType() string    { return EventTypePurgeCacheResponse }
func (e *PurgeCacheResponse) Timestamp() time.Time { return e.timestamp }
func (e *PurgeCacheResponse) RequestID() string    { return e.ReqID }
func (e *PurgeCacheResponse) Responder() string    { return e.Hostname }

// -----------------------------------------------------------------------------
// Trigger Events
// -----------------------------------------------------------------------------

// ResyncTriggeredEvent asks the sync loop to rediscover idle servers.
type ResyncTriggeredEvent struct {
	Reason    string
	timestamp time.Time
}

// NewResyncTriggeredEvent creates a new ResyncTriggeredEvent.
func NewResyncTriggeredEvent(reason string) *ResyncTriggeredEvent {
	return &ResyncTriggeredEvent{
		Reason:    reason,
		timestamp: time.Now(),
	}
}

func (e *ResyncTriggeredEvent) EventType() string    { return EventTypeResyncTriggered }
func (e *ResyncTriggeredEvent) Timestamp() time.Time { return e.timestamp }

// CertificateFileChangedEvent is published when a stored certificate file is
// written outside the M1 API.
type CertificateFileChangedEvent struct {
	Key       appserver.CertificateKey
	Path      string
	timestamp time.Time
}

// NewCertificateFileChangedEvent creates a new CertificateFileChangedEvent.
func NewCertificateFileChangedEvent(key appserver.CertificateKey, path string) *CertificateFileChangedEvent {
	return &CertificateFileChangedEvent{
		Key:       key,
		Path:      path,
		timestamp: time.Now(),
	}
}

func (e *CertificateFileChangedEvent) EventType() string    { return EventTypeCertificateFileChanged }
func (e *CertificateFileChangedEvent) Timestamp() time.Time { return e.timestamp }

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
