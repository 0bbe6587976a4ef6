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


package debug

import (
	"context"
	"fmt"
	"time"

	"msaf/pkg/controller/events"
	busevents "msaf/pkg/events"
	"msaf/pkg/events/ringbuffer"
)

// Event is the debug view of a bus event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Summary   string    `json:"summary"`
}

// EventBuffer keeps the most recent events for the debug server. It has its
// own subscription so debug output does not depend on the commentator.
type EventBuffer struct {
	buffer    *ringbuffer.RingBuffer[Event]
	bus       *busevents.EventBus
	eventChan <-chan busevents.Event
}

// NewEventBuffer creates a buffer holding the last size events and
// subscribes it to bus, so it also sees events replayed by bus.Start.
func NewEventBuffer(size int, bus *busevents.EventBus) *EventBuffer {
	return &EventBuffer{
		buffer:    ringbuffer.New[Event](size),
		bus:       bus,
		eventChan: bus.Subscribe(1000),
	}
}

// Start records events until ctx is cancelled.
func (eb *EventBuffer) Start(ctx context.Context) error {
	defer eb.bus.Unsubscribe(eb.eventChan)
	for {
		select {
		case event := <-eb.eventChan:
			eb.buffer.Add(Event{
				Timestamp: event.Timestamp(),
				Type:      event.EventType(),
				Summary:   summarizeEvent(event),
			})
		case <-ctx.Done():
			return nil
		}
	}
}

// GetLast returns up to n recent events, oldest first.
func (eb *EventBuffer) GetLast(n int) []Event {
	return eb.buffer.GetLast(n)
}

// Len returns the number of buffered events.
func (eb *EventBuffer) Len() int {
	return eb.buffer.Len()
}

func summarizeEvent(event busevents.Event) string {
	switch e := event.(type) {
	case *events.ApplicationServerRegisteredEvent:
		return fmt.Sprintf("%s:%d", e.Hostname, e.M3Port)
	case *events.ApplicationServerRemovedEvent:
		return e.Hostname
	case *events.SessionAssignedEvent:
		return fmt.Sprintf("%s -> %v", e.SessionID, e.Hostnames)
	case *events.SessionUpdatedEvent:
		return fmt.Sprintf("%s -> %v", e.SessionID, e.Hostnames)
	case *events.SessionRemovedEvent:
		return fmt.Sprintf("%s -> %v", e.SessionID, e.Hostnames)
	case *events.M3RequestDispatchedEvent:
		return fmt.Sprintf("%s %s %s", e.Hostname, e.Method, e.Path)
	case *events.M3RequestCompletedEvent:
		return fmt.Sprintf("%s %s %s %d", e.Hostname, e.Method, e.Path, e.Status)
	case *events.M3RequestFailedEvent:
		return fmt.Sprintf("%s %s %s %d: %s", e.Hostname, e.Method, e.Path, e.Status, e.Error)
	case *events.M3CompletionDiscardedEvent:
		return fmt.Sprintf("%s generation %d", e.Hostname, e.Generation)
	case *events.ApplicationServerSynchronizedEvent:
		return e.Hostname
	case *events.PurgeCacheRequest:
		return e.SessionID
	case *events.PurgeCacheResponse:
		if e.Error != "" {
			return fmt.Sprintf("%s: %s", e.Hostname, e.Error)
		}
		return fmt.Sprintf("%s purged %d", e.Hostname, e.Purged)
	case *events.ResyncTriggeredEvent:
		return e.Reason
	case *events.CertificateFileChangedEvent:
		return e.Key.String()
	case *events.ControllerShutdownEvent:
		return e.Reason
	}
	return event.EventType()
}
