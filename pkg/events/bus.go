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

// Package events provides the event bus that connects the application
// function's components.
//
// Two communication patterns are supported:
//  1. Async pub/sub: fire-and-forget notifications (M3 request dispatched,
//     application server synchronized, ...). Consumed by metrics, the
//     commentator and the debug event buffer.
//  2. Sync request-response: scatter-gather, used when a caller needs one
//     answer per application server (cache purge totals).
//
// The bus is an observation channel. Work that must never be lost (session
// assignments, M3 completions) is not routed through it; the sync component
// keeps its own unbounded queue for that.
package events

import (
	"context"
	"sync"
	"time"
)

// Event is the base interface for all events in the system.
type Event interface {
	// EventType returns a dot-notation identifier such as "m3.request.dispatched".
	EventType() string

	// Timestamp returns when this event occurred.
	Timestamp() time.Time
}

// EventBus fans events out to subscriber channels.
//
// Events published before Start() are buffered and replayed on Start(), so
// components can subscribe in any order during startup without missing
// anything. After Start(), Publish never blocks: a subscriber whose channel
// is full misses the event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan Event

	startMu        sync.Mutex
	started        bool
	preStartBuffer []Event
}

// NewEventBus creates a bus in buffering mode. capacity is the initial size of
// the pre-start buffer.
func NewEventBus(capacity int) *EventBus {
	return &EventBus{
		subscribers:    make([]chan Event, 0),
		preStartBuffer: make([]Event, 0, capacity),
	}
}

// Publish sends an event to all subscribers and returns how many received it.
// Returns 0 when the event was buffered because the bus has not started yet.
func (b *EventBus) Publish(event Event) int {
	b.startMu.Lock()
	if !b.started {
		b.preStartBuffer = append(b.preStartBuffer, event)
		b.startMu.Unlock()
		return 0
	}
	b.startMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()

	return deliver(b.subscribers, event)
}

// Subscribe registers a new subscriber channel with the given buffer size.
//
// The channel is never closed by the bus. Long-lived components keep their
// subscription for the lifetime of the bus; short-lived listeners must call
// Unsubscribe when done.
func (b *EventBus) Subscribe(bufferSize int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes a channel returned by Subscribe. Unknown channels are ignored.
func (b *EventBus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, ch := range b.subscribers {
		if (<-chan Event)(ch) == sub {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Start replays buffered events in publish order and switches the bus to
// direct delivery. Calling Start more than once has no effect.
func (b *EventBus) Start() {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if b.started {
		return
	}
	b.started = true

	if len(b.preStartBuffer) == 0 {
		return
	}

	b.mu.RLock()
	subscribers := b.subscribers
	b.mu.RUnlock()

	for _, event := range b.preStartBuffer {
		deliver(subscribers, event)
	}
	b.preStartBuffer = nil
}

// Request publishes a request and gathers the matching responses.
// See RequestOptions for completion and timeout semantics.
func (b *EventBus) Request(ctx context.Context, request Request, opts RequestOptions) (*RequestResult, error) {
	return executeRequest(ctx, b, request, opts)
}

func deliver(subscribers []chan Event, event Event) int {
	sent := 0
	for _, ch := range subscribers {
		select {
		case ch <- event:
			sent++
		default:
			// lagging subscriber
		}
	}
	return sent
}
