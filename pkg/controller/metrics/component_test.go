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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msaf/pkg/appserver"
	"msaf/pkg/controller/events"
	pkgevents "msaf/pkg/events"
)

// runComponent starts a component on a started bus and returns its metrics.
func runComponent(t *testing.T) (*Metrics, *pkgevents.EventBus) {
	t.Helper()

	m := New(prometheus.NewRegistry())
	bus := pkgevents.NewEventBus(100)
	component := NewComponent(m, bus)
	component.Start()
	bus.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- component.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return m, bus
}

func TestComponent_RunRequiresStart(t *testing.T) {
	component := NewComponent(New(prometheus.NewRegistry()), pkgevents.NewEventBus(10))
	assert.Panics(t, func() { _ = component.Run(context.Background()) })
}

func TestComponent_ApplicationServerLifecycle(t *testing.T) {
	m, bus := runComponent(t)

	bus.Publish(events.NewApplicationServerRegisteredEvent("as1", 7777))
	bus.Publish(events.NewApplicationServerRegisteredEvent("as2", 7777))
	bus.Publish(events.NewM3RequestDispatchedEvent("as1", "discover-certificates", "GET", "/c", 0))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.M3InFlight.WithLabelValues("as1")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ApplicationServers), 0)

	bus.Publish(events.NewApplicationServerRemovedEvent("as1", true))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ApplicationServers) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.M3InFlight))
}

func TestComponent_M3Requests(t *testing.T) {
	m, bus := runComponent(t)

	bus.Publish(events.NewM3RequestDispatchedEvent("as1", "upload-configuration", "POST", "/chc/s1", 1))
	bus.Publish(events.NewM3RequestFailedEvent("as1", "upload-configuration", "POST", "/chc/s1", 500, "boom", 20, time.Second))
	bus.Publish(events.NewM3RequestDispatchedEvent("as1", "upload-configuration", "POST", "/chc/s1", 1))
	bus.Publish(events.NewM3RequestCompletedEvent("as1", "upload-configuration", "POST", "/chc/s1", 201, 30))
	bus.Publish(events.NewM3CompletionDiscardedEvent("as2", 4))
	bus.Publish(events.NewApplicationServerSynchronizedEvent("as1"))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ApplicationServerSyncs.WithLabelValues("as1")) == 1
	}, time.Second, 5*time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.M3Requests.WithLabelValues("upload-configuration", OutcomeCompleted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.M3Requests.WithLabelValues("upload-configuration", OutcomeFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.M3Requests.WithLabelValues("unknown", OutcomeDiscarded)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.M3InFlight.WithLabelValues("as1")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.PendingChanges.WithLabelValues("as1")), 0)
	assert.InDelta(t, 6, testutil.ToFloat64(m.EventsPublished), 0)
}

func TestComponent_SessionsPurgeAndTriggers(t *testing.T) {
	m, bus := runComponent(t)

	bus.Publish(events.NewSessionAssignedEvent("s1", []string{"as1"}, 2))
	bus.Publish(events.NewSessionUpdatedEvent("s1", []string{"as1"}))
	bus.Publish(events.NewSessionRemovedEvent("s1", []string{"as1"}))
	bus.Publish(events.NewPurgeCacheResponse("r1", "as1", 3, 200, ""))
	bus.Publish(events.NewPurgeCacheResponse("r1", "as2", 0, 0, "removed"))
	bus.Publish(events.NewResyncTriggeredEvent("idle"))
	bus.Publish(events.NewCertificateFileChangedEvent(appserver.CertificateKey{SessionID: "s1", CertificateID: "c1"}, "/tmp/s1/c1.pem"))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.CertificateFileChanges) == 1
	}, time.Second, 5*time.Millisecond)

	for _, op := range []string{OperationAssign, OperationUpdate, OperationRemove} {
		assert.InDelta(t, 1, testutil.ToFloat64(m.SessionOperations.WithLabelValues(op)), 0, op)
	}
	assert.InDelta(t, 3, testutil.ToFloat64(m.PurgedEntries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PurgeFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ResyncsTotal), 0)
}
