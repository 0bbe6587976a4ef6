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

// Package resync triggers a rediscovery of application servers when M3
// traffic has been quiet for a while, so that changes made on a server
// behind the application function's back are corrected.
package resync

import (
	"context"
	"log/slog"
	"time"

	"msaf/pkg/controller/events"
	busevents "msaf/pkg/events"
)

const (
	// EventBufferSize is the size of the event subscription buffer.
	EventBufferSize = 50
)

// Monitor publishes ResyncTriggeredEvent when no M3 request completed within
// the interval. A zero interval disables it.
//
// Event subscriptions:
//   - M3RequestCompletedEvent: restart the quiet period
type Monitor struct {
	eventBus  *busevents.EventBus
	eventChan <-chan busevents.Event
	logger    *slog.Logger
	interval  time.Duration

	// Owned by Start.
	timer        *time.Timer
	lastActivity time.Time
}

// New creates a resync monitor.
func New(eventBus *busevents.EventBus, logger *slog.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		eventBus:  eventBus,
		eventChan: eventBus.Subscribe(EventBufferSize),
		logger:    logger.With("component", "resync-monitor"),
		interval:  interval,
	}
}

// Start runs the monitor until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	if m.interval <= 0 {
		m.logger.Info("Resync monitor disabled")
		m.eventBus.Unsubscribe(m.eventChan)
		<-ctx.Done()
		return nil
	}

	m.logger.Info("Resync monitor starting", "interval", m.interval)
	m.reset()
	defer m.timer.Stop()

	for {
		select {
		case event := <-m.eventChan:
			if _, ok := event.(*events.M3RequestCompletedEvent); ok {
				m.reset()
			}

		case <-m.timer.C:
			m.trigger()

		case <-ctx.Done():
			m.logger.Info("Resync monitor shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

func (m *Monitor) trigger() {
	quiet := time.Since(m.lastActivity)
	m.logger.Info("no M3 activity, triggering resync", "quiet_for", quiet)
	m.eventBus.Publish(events.NewResyncTriggeredEvent("no M3 activity for " + quiet.Round(time.Second).String()))

	// Keep firing while the servers stay quiet.
	m.reset()
}

func (m *Monitor) reset() {
	m.lastActivity = time.Now()
	if m.timer == nil {
		m.timer = time.NewTimer(m.interval)
		return
	}
	m.timer.Reset(m.interval)
}
