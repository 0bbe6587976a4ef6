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


package commentator

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msaf/pkg/appserver"
	"msaf/pkg/controller/events"
	busevents "msaf/pkg/events"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestCommentator(t *testing.T) *EventCommentator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEventCommentator(busevents.NewEventBus(10), logger, 100)
}

func TestNewEventCommentator(t *testing.T) {
	ec := newTestCommentator(t)

	require.NotNil(t, ec)
	assert.Equal(t, 100, ec.ringBuffer.Cap())
	assert.NotNil(t, ec.stopCh)
}

func TestEventCommentator_DetermineLogLevel(t *testing.T) {
	ec := newTestCommentator(t)

	tests := []struct {
		eventType string
		want      slog.Level
	}{
		{events.EventTypeM3RequestFailed, slog.LevelWarn},
		{events.EventTypeControllerStarted, slog.LevelInfo},
		{events.EventTypeControllerShutdown, slog.LevelInfo},
		{events.EventTypeApplicationServerRegistered, slog.LevelInfo},
		{events.EventTypeApplicationServerRemoved, slog.LevelInfo},
		{events.EventTypeSessionAssigned, slog.LevelInfo},
		{events.EventTypeSessionUpdated, slog.LevelInfo},
		{events.EventTypeSessionRemoved, slog.LevelInfo},
		{events.EventTypeApplicationServerSynchronized, slog.LevelInfo},
		{events.EventTypeResyncTriggered, slog.LevelInfo},
		{events.EventTypeM3RequestDispatched, slog.LevelDebug},
		{events.EventTypeM3RequestCompleted, slog.LevelDebug},
		{events.EventTypeM3CompletionDiscarded, slog.LevelDebug},
		{events.EventTypePurgeCacheRequest, slog.LevelDebug},
		{events.EventTypePurgeCacheResponse, slog.LevelDebug},
		{events.EventTypeCertificateFileChanged, slog.LevelDebug},
		{"unknown.event", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.want, ec.determineLogLevel(tt.eventType))
		})
	}
}

func TestEventCommentator_GenerateInsight(t *testing.T) {
	ec := newTestCommentator(t)
	pattern := "^/a/.*$"

	tests := []struct {
		name  string
		event busevents.Event
		want  string
	}{
		{"started", events.NewControllerStartedEvent(2), "Application function started"},
		{"registered", events.NewApplicationServerRegisteredEvent("as1", 7777), "Application server as1 registered"},
		{"removed idle", events.NewApplicationServerRemovedEvent("as1", false), "Application server as1 removed"},
		{"removed in flight", events.NewApplicationServerRemovedEvent("as1", true),
			"Application server as1 removed, its outstanding response will be discarded"},
		{"assigned", events.NewSessionAssignedEvent("s1", []string{"as1", "as2"}, 1),
			"Provisioning session s1 assigned to 2 application server(s)"},
		{"dispatched", events.NewM3RequestDispatchedEvent("as1", "upload-configuration", "POST", "/3gpp-m3/v1/content-hosting-configurations/s1", 1),
			"POST /3gpp-m3/v1/content-hosting-configurations/s1 sent to as1"},
		{"failed with retry", events.NewM3RequestFailedEvent("as1", "delete-certificate", "DELETE", "/c/x", 500, "boom", 3, time.Second),
			"DELETE /c/x failed on as1, retrying in 1s"},
		{"failed without retry", events.NewM3RequestFailedEvent("as1", "purge", "POST", "/p", 500, "boom", 3, 0),
			"POST /p failed on as1, not retried"},
		{"purge request", events.NewPurgeCacheRequest("r1", "s1", &pattern), "Cache purge requested for provisioning session s1"},
		{"purge ok", events.NewPurgeCacheResponse("r1", "as1", 4, 200, ""), "Cache purge on as1 removed 4 entries"},
		{"purge failed", events.NewPurgeCacheResponse("r1", "as1", 0, 503, "unavailable"), "Cache purge on as1 failed"},
		{"cert changed", events.NewCertificateFileChangedEvent(appserver.CertificateKey{SessionID: "s1", CertificateID: "c1"}, "/x/s1/c1.pem"),
			"Certificate s1:c1 changed on disk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, attrs := ec.generateInsight(tt.event)
			assert.Equal(t, tt.want, msg)
			require.GreaterOrEqual(t, len(attrs), 2)
			assert.Equal(t, "event_type", attrs[0])
			assert.Equal(t, tt.event.EventType(), attrs[1])
		})
	}
}

func TestEventCommentator_CompletedAfterFailures(t *testing.T) {
	ec := newTestCommentator(t)

	ec.ringBuffer.Add(events.NewM3RequestCompletedEvent("as1", "discover-certificates", "GET", "/c", 200, 1))
	ec.ringBuffer.Add(events.NewM3RequestFailedEvent("as1", "upload-certificate", "POST", "/c/s1:c1", 500, "x", 1, time.Second))
	ec.ringBuffer.Add(events.NewM3RequestFailedEvent("as2", "upload-certificate", "POST", "/c/s1:c1", 500, "x", 1, time.Second))
	ec.ringBuffer.Add(events.NewM3RequestFailedEvent("as1", "upload-certificate", "POST", "/c/s1:c1", 0, "refused", 1, time.Second))

	done := events.NewM3RequestCompletedEvent("as1", "upload-certificate", "POST", "/c/s1:c1", 201, 2)
	ec.ringBuffer.Add(done)

	msg, attrs := ec.generateInsight(done)
	assert.Equal(t, "POST /c/s1:c1 accepted by as1 after 2 failed attempt(s)", msg)
	assert.Contains(t, attrs, "previous_failures")

	next := events.NewM3RequestCompletedEvent("as1", "upload-configuration", "POST", "/chc/s1", 201, 2)
	ec.ringBuffer.Add(next)
	msg, _ = ec.generateInsight(next)
	assert.Equal(t, "POST /chc/s1 accepted by as1", msg)
}

func TestEventCommentator_SynchronizedCorrelatesSessionChange(t *testing.T) {
	ec := newTestCommentator(t)

	ec.ringBuffer.Add(events.NewSessionAssignedEvent("s1", []string{"as2"}, 0))
	ec.ringBuffer.Add(events.NewSessionRemovedEvent("s0", []string{"as1"}))
	synced := events.NewApplicationServerSynchronizedEvent("as1")
	ec.ringBuffer.Add(synced)

	msg, attrs := ec.generateInsight(synced)
	assert.Contains(t, msg, "Application server as1 synchronized")
	assert.Contains(t, msg, "after "+events.EventTypeSessionRemoved)
	assert.Contains(t, attrs, "converged_ms")

	other := events.NewApplicationServerSynchronizedEvent("as3")
	msg, _ = ec.generateInsight(other)
	assert.Equal(t, "Application server as3 synchronized", msg)
}

func TestEventCommentator_StartLogsEvents(t *testing.T) {
	out := &syncBuffer{}
	bus := busevents.NewEventBus(10)
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ec := NewEventCommentator(bus, logger, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ec.Start(ctx) }()

	assert.Equal(t, 1, bus.SubscriberCount())
	bus.Start()
	bus.Publish(events.NewApplicationServerRegisteredEvent("as1", 7777))

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Application server as1 registered"))
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "level=INFO")
	assert.Contains(t, out.String(), "component=commentator")

	ec.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("commentator did not stop")
	}
	assert.Equal(t, 0, bus.SubscriberCount())
}
