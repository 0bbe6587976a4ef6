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


package metrics

import (
	"context"

	"msaf/pkg/controller/events"
	pkgevents "msaf/pkg/events"
)

// Session operation labels.
const (
	OperationAssign = "assign"
	OperationUpdate = "update"
	OperationRemove = "remove"
)

// Component updates Metrics from bus events.
//
// Lifecycle: NewComponent, Start (before eventBus.Start so replayed startup
// events are counted), then Run in a goroutine.
type Component struct {
	metrics   *Metrics
	eventBus  *pkgevents.EventBus
	eventChan <-chan pkgevents.Event
	servers   map[string]struct{}
}

// NewComponent creates a metrics component.
func NewComponent(metrics *Metrics, eventBus *pkgevents.EventBus) *Component {
	return &Component{
		metrics:  metrics,
		eventBus: eventBus,
		servers:  make(map[string]struct{}),
	}
}

// Start subscribes to the event bus.
func (c *Component) Start() {
	c.eventChan = c.eventBus.Subscribe(200)
}

// Run processes events until ctx is cancelled. Start must be called first.
func (c *Component) Run(ctx context.Context) error {
	if c.eventChan == nil {
		panic("Component.Start() must be called before Run()")
	}

	for {
		select {
		case event := <-c.eventChan:
			c.handleEvent(event)
		case <-ctx.Done():
			c.eventBus.Unsubscribe(c.eventChan)
			return nil
		}
	}
}

// Metrics returns the metrics the component updates.
func (c *Component) Metrics() *Metrics {
	return c.metrics
}

func (c *Component) handleEvent(event pkgevents.Event) {
	c.metrics.RecordEvent()
	c.metrics.SetEventSubscribers(c.eventBus.SubscriberCount())

	switch e := event.(type) {
	case *events.ApplicationServerRegisteredEvent:
		c.servers[e.Hostname] = struct{}{}
		c.metrics.ApplicationServers.Set(float64(len(c.servers)))
		c.metrics.SetInFlight(e.Hostname, false)

	case *events.ApplicationServerRemovedEvent:
		delete(c.servers, e.Hostname)
		c.metrics.ForgetServer(e.Hostname)
		c.metrics.ApplicationServers.Set(float64(len(c.servers)))

	case *events.M3RequestDispatchedEvent:
		c.metrics.SetInFlight(e.Hostname, true)
		c.metrics.PendingChanges.WithLabelValues(e.Hostname).Set(float64(e.Pending))

	case *events.M3RequestCompletedEvent:
		c.metrics.SetInFlight(e.Hostname, false)
		c.metrics.RecordM3Request(e.Action, OutcomeCompleted, float64(e.DurationMs)/1000.0)

	case *events.M3RequestFailedEvent:
		c.metrics.SetInFlight(e.Hostname, false)
		c.metrics.RecordM3Request(e.Action, OutcomeFailed, float64(e.DurationMs)/1000.0)

	case *events.M3CompletionDiscardedEvent:
		c.metrics.RecordM3Request("unknown", OutcomeDiscarded, 0)

	case *events.ApplicationServerSynchronizedEvent:
		c.metrics.ApplicationServerSyncs.WithLabelValues(e.Hostname).Inc()
		c.metrics.PendingChanges.WithLabelValues(e.Hostname).Set(0)

	case *events.SessionAssignedEvent:
		c.metrics.RecordSessionOperation(OperationAssign)
	case *events.SessionUpdatedEvent:
		c.metrics.RecordSessionOperation(OperationUpdate)
	case *events.SessionRemovedEvent:
		c.metrics.RecordSessionOperation(OperationRemove)

	case *events.PurgeCacheResponse:
		c.metrics.RecordPurge(e.Purged, e.Error != "")

	case *events.ResyncTriggeredEvent:
		c.metrics.ResyncsTotal.Inc()

	case *events.CertificateFileChangedEvent:
		c.metrics.CertificateFileChanges.Inc()
	}
}
