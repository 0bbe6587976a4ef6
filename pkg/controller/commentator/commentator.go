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


// Package commentator turns bus events into log lines.
//
// Components publish facts and stay quiet; the commentator decides how loud
// each fact is and adds context it can derive from recent history, such as
// how many attempts a request needed or how long a server took to converge
// after a session change.
package commentator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"msaf/pkg/controller/events"
	busevents "msaf/pkg/events"
	"msaf/pkg/events/ringbuffer"
)

// DefaultBufferSize is the correlation window used by the controller.
const DefaultBufferSize = 1000

// EventCommentator subscribes to the bus and logs every event with domain context.
type EventCommentator struct {
	bus        *busevents.EventBus
	eventCh    <-chan busevents.Event
	logger     *slog.Logger
	ringBuffer *ringbuffer.RingBuffer[busevents.Event]
	stopCh     chan struct{}
}

// NewEventCommentator creates a commentator remembering the last bufferSize
// events. It subscribes immediately so events replayed by bus.Start are seen.
func NewEventCommentator(bus *busevents.EventBus, logger *slog.Logger, bufferSize int) *EventCommentator {
	return &EventCommentator{
		bus:        bus,
		eventCh:    bus.Subscribe(200),
		logger:     logger.With("component", "commentator"),
		ringBuffer: ringbuffer.New[busevents.Event](bufferSize),
		stopCh:     make(chan struct{}),
	}
}

// Start processes events until ctx is cancelled or Stop is called.
func (ec *EventCommentator) Start(ctx context.Context) error {
	defer ec.bus.Unsubscribe(ec.eventCh)

	ec.logger.Debug("event commentator started", "buffer_capacity", ec.ringBuffer.Cap())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ec.stopCh:
			return nil
		case event := <-ec.eventCh:
			ec.processEvent(event)
		}
	}
}

// Stop ends Start. It must be called at most once.
func (ec *EventCommentator) Stop() {
	close(ec.stopCh)
}

func (ec *EventCommentator) processEvent(event busevents.Event) {
	ec.ringBuffer.Add(event)

	message, attrs := ec.generateInsight(event)
	ec.logger.Log(context.Background(), ec.determineLogLevel(event.EventType()), message, attrs...)
}

func (ec *EventCommentator) determineLogLevel(eventType string) slog.Level {
	switch eventType {
	case events.EventTypeM3RequestFailed:
		return slog.LevelWarn

	case events.EventTypeControllerStarted,
		events.EventTypeControllerShutdown,
		events.EventTypeApplicationServerRegistered,
		events.EventTypeApplicationServerRemoved,
		events.EventTypeSessionAssigned,
		events.EventTypeSessionUpdated,
		events.EventTypeSessionRemoved,
		events.EventTypeApplicationServerSynchronized,
		events.EventTypeResyncTriggered:
		return slog.LevelInfo

	default:
		return slog.LevelDebug
	}
}

func (ec *EventCommentator) generateInsight(event busevents.Event) (string, []any) {
	attrs := []any{"event_type", event.EventType()}

	switch e := event.(type) {
	case *events.ControllerStartedEvent:
		return "Application function started",
			append(attrs, "application_servers", e.ApplicationServers)

	case *events.ControllerShutdownEvent:
		return "Application function shutting down", append(attrs, "reason", e.Reason)

	case *events.ApplicationServerRegisteredEvent:
		return fmt.Sprintf("Application server %s registered", e.Hostname),
			append(attrs, "hostname", e.Hostname, "m3_port", e.M3Port)

	case *events.ApplicationServerRemovedEvent:
		msg := fmt.Sprintf("Application server %s removed", e.Hostname)
		if e.InFlight {
			msg += ", its outstanding response will be discarded"
		}
		return msg, append(attrs, "hostname", e.Hostname, "in_flight", e.InFlight)

	case *events.SessionAssignedEvent:
		return fmt.Sprintf("Provisioning session %s assigned to %d application server(s)", e.SessionID, len(e.Hostnames)),
			append(attrs, "session_id", e.SessionID, "hostnames", e.Hostnames, "certificates", e.Certificates)

	case *events.SessionUpdatedEvent:
		return fmt.Sprintf("Provisioning session %s configuration re-queued", e.SessionID),
			append(attrs, "session_id", e.SessionID, "hostnames", e.Hostnames)

	case *events.SessionRemovedEvent:
		return fmt.Sprintf("Provisioning session %s queued for removal", e.SessionID),
			append(attrs, "session_id", e.SessionID, "hostnames", e.Hostnames)

	case *events.M3RequestDispatchedEvent:
		return fmt.Sprintf("%s %s sent to %s", e.Method, e.Path, e.Hostname),
			append(attrs, "hostname", e.Hostname, "action", e.Action)

	case *events.M3RequestCompletedEvent:
		attrs = append(attrs, "hostname", e.Hostname, "action", e.Action,
			"status", e.Status, "duration_ms", e.DurationMs)
		if failures := ec.failuresBefore(e); failures > 0 {
			return fmt.Sprintf("%s %s accepted by %s after %d failed attempt(s)", e.Method, e.Path, e.Hostname, failures),
				append(attrs, "previous_failures", failures)
		}
		return fmt.Sprintf("%s %s accepted by %s", e.Method, e.Path, e.Hostname), attrs

	case *events.M3RequestFailedEvent:
		attrs = append(attrs, "hostname", e.Hostname, "action", e.Action,
			"status", e.Status, "error", e.Error, "duration_ms", e.DurationMs)
		if e.RetryIn > 0 {
			return fmt.Sprintf("%s %s failed on %s, retrying in %s", e.Method, e.Path, e.Hostname, e.RetryIn),
				append(attrs, "retry_in", e.RetryIn.String())
		}
		return fmt.Sprintf("%s %s failed on %s, not retried", e.Method, e.Path, e.Hostname), attrs

	case *events.M3CompletionDiscardedEvent:
		return fmt.Sprintf("Discarded response from removed application server %s", e.Hostname),
			append(attrs, "hostname", e.Hostname, "generation", e.Generation)

	case *events.ApplicationServerSynchronizedEvent:
		attrs = append(attrs, "hostname", e.Hostname)
		if change, ok := ec.lastSessionChange(e.Hostname); ok {
			took := e.Timestamp().Sub(change.Timestamp())
			msg := fmt.Sprintf("Application server %s synchronized %s after %s",
				e.Hostname, took.Round(time.Millisecond), change.EventType())
			return msg, append(attrs, "converged_ms", took.Milliseconds())
		}
		return fmt.Sprintf("Application server %s synchronized", e.Hostname), attrs

	case *events.PurgeCacheRequest:
		return fmt.Sprintf("Cache purge requested for provisioning session %s", e.SessionID),
			append(attrs, "request_id", e.ID, "session_id", e.SessionID, "has_pattern", e.Pattern != nil)

	case *events.PurgeCacheResponse:
		attrs = append(attrs, "request_id", e.ReqID, "hostname", e.Hostname, "status", e.Status)
		if e.Error != "" {
			return fmt.Sprintf("Cache purge on %s failed", e.Hostname), append(attrs, "error", e.Error)
		}
		return fmt.Sprintf("Cache purge on %s removed %d entries", e.Hostname, e.Purged), attrs

	case *events.ResyncTriggeredEvent:
		return "Resynchronizing idle application servers", append(attrs, "reason", e.Reason)

	case *events.CertificateFileChangedEvent:
		return fmt.Sprintf("Certificate %s changed on disk", e.Key),
			append(attrs, "path", e.Path)
	}

	return event.EventType(), attrs
}

// failuresBefore counts failed attempts of the same request since the
// previous completion on the same server.
func (ec *EventCommentator) failuresBefore(done *events.M3RequestCompletedEvent) int {
	recent := ec.ringBuffer.GetAll()
	failures := 0
	for i := len(recent) - 1; i >= 0; i-- {
		switch e := recent[i].(type) {
		case *events.M3RequestCompletedEvent:
			if e != done && e.Hostname == done.Hostname {
				return failures
			}
		case *events.M3RequestFailedEvent:
			if e.Hostname == done.Hostname && e.Method == done.Method && e.Path == done.Path {
				failures++
			}
		}
	}
	return failures
}

// lastSessionChange finds the most recent assignment, update or removal that
// involved hostname.
func (ec *EventCommentator) lastSessionChange(hostname string) (busevents.Event, bool) {
	return ec.ringBuffer.FindLast(func(event busevents.Event) bool {
		switch e := event.(type) {
		case *events.SessionAssignedEvent:
			return slices.Contains(e.Hostnames, hostname)
		case *events.SessionUpdatedEvent:
			return slices.Contains(e.Hostnames, hostname)
		case *events.SessionRemovedEvent:
			return slices.Contains(e.Hostnames, hostname)
		}
		return false
	})
}
