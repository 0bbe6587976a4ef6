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

package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	message string
}

func (e testEvent) EventType() string    { return "test.event" }
func (e testEvent) Timestamp() time.Time { return time.Now() }

type testRequest struct {
	id string
}

func (e testRequest) EventType() string    { return "test.request" }
func (e testRequest) RequestID() string    { return e.id }
func (e testRequest) Timestamp() time.Time { return time.Now() }

type testResponse struct {
	reqID     string
	responder string
	count     int
}

func (e testResponse) EventType() string    { return "test.response" }
func (e testResponse) RequestID() string    { return e.reqID }
func (e testResponse) Responder() string    { return e.responder }
func (e testResponse) Timestamp() time.Time { return time.Now() }

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	sub := bus.Subscribe(10)
	bus.Start()

	assert.Equal(t, 1, bus.Publish(testEvent{message: "hello"}))

	ev := receive(t, sub)
	require.IsType(t, testEvent{}, ev)
	assert.Equal(t, "hello", ev.(testEvent).message)
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	subs := []<-chan Event{bus.Subscribe(1), bus.Subscribe(1), bus.Subscribe(1)}
	bus.Start()

	assert.Equal(t, 3, bus.Publish(testEvent{message: "fanout"}))
	for _, sub := range subs {
		assert.Equal(t, "fanout", receive(t, sub).(testEvent).message)
	}
}

func TestEventBus_FullSubscriberMissesEvent(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	sub := bus.Subscribe(1)
	bus.Start()

	assert.Equal(t, 1, bus.Publish(testEvent{message: "first"}))
	assert.Equal(t, 0, bus.Publish(testEvent{message: "second"}))

	assert.Equal(t, "first", receive(t, sub).(testEvent).message)
	select {
	case ev := <-sub:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestEventBus_BuffersUntilStart(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	sub := bus.Subscribe(10)

	assert.Equal(t, 0, bus.Publish(testEvent{message: "a"}))
	assert.Equal(t, 0, bus.Publish(testEvent{message: "b"}))

	select {
	case <-sub:
		t.Fatal("event delivered before Start")
	default:
	}

	bus.Start()
	bus.Start()

	assert.Equal(t, "a", receive(t, sub).(testEvent).message)
	assert.Equal(t, "b", receive(t, sub).(testEvent).message)
	assert.Len(t, sub, 0)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	keep := bus.Subscribe(1)
	drop := bus.Subscribe(1)
	bus.Start()

	require.Equal(t, 2, bus.SubscriberCount())
	bus.Unsubscribe(drop)
	bus.Unsubscribe(drop)
	assert.Equal(t, 1, bus.SubscriberCount())

	assert.Equal(t, 1, bus.Publish(testEvent{message: "x"}))
	assert.Equal(t, "x", receive(t, keep).(testEvent).message)
	assert.Len(t, drop, 0)
}

func TestEventBus_ConcurrentPublish(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	sub := bus.Subscribe(1000)
	bus.Start()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				bus.Publish(testEvent{message: fmt.Sprintf("%d-%d", p, i)})
			}
		}(p)
	}
	wg.Wait()

	assert.Len(t, sub, 500)
}

// respond answers every testRequest on the bus with one response per responder.
func respond(bus *EventBus, responders ...string) {
	sub := bus.Subscribe(10)
	go func() {
		for ev := range sub {
			req, ok := ev.(testRequest)
			if !ok {
				continue
			}
			for i, r := range responders {
				bus.Publish(testResponse{reqID: req.id, responder: r, count: i + 1})
			}
		}
	}()
}

func TestRequest_GathersAllResponders(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	respond(bus, "as1.example.com", "as2.example.com")
	bus.Start()

	result, err := bus.Request(context.Background(), testRequest{id: "r1"}, RequestOptions{
		Timeout:            time.Second,
		ExpectedResponders: []string{"as1.example.com", "as2.example.com"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Responses, 2)
	assert.Empty(t, result.Errors)
}

func TestRequest_IgnoresDuplicateResponder(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	respond(bus, "as1", "as1", "as2")
	bus.Start()

	result, err := bus.Request(context.Background(), testRequest{id: "r2"}, RequestOptions{
		Timeout:            time.Second,
		ExpectedResponders: []string{"as1", "as2"},
	})
	require.NoError(t, err)
	require.Len(t, result.Responses, 2)
	assert.Equal(t, 1, result.Responses[0].(testResponse).count)
}

func TestRequest_TimeoutReportsMissingResponders(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	respond(bus, "as1")
	bus.Start()

	result, err := bus.Request(context.Background(), testRequest{id: "r3"}, RequestOptions{
		Timeout:            100 * time.Millisecond,
		ExpectedResponders: []string{"as1", "as2"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	require.NotNil(t, result)
	assert.Len(t, result.Responses, 1)
	assert.Equal(t, []string{"no response from as2"}, result.Errors)
}

func TestRequest_MinResponses(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	respond(bus, "as1")
	bus.Start()

	result, err := bus.Request(context.Background(), testRequest{id: "r4"}, RequestOptions{
		Timeout:            time.Second,
		ExpectedResponders: []string{"as1", "as2"},
		MinResponses:       1,
	})
	require.NoError(t, err)
	assert.Len(t, result.Responses, 1)
}

func TestRequest_InvalidOptions(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	bus.Start()

	_, err := bus.Request(context.Background(), testRequest{id: "r5"}, RequestOptions{})
	assert.Error(t, err)

	_, err = bus.Request(context.Background(), testRequest{id: "r6"}, RequestOptions{
		ExpectedResponders: []string{"as1"},
		MinResponses:       2,
	})
	assert.Error(t, err)
}

func TestRequest_ContextCancelled(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	bus.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bus.Request(ctx, testRequest{id: "r7"}, RequestOptions{
		Timeout:            time.Second,
		ExpectedResponders: []string{"as1"},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequest_ReleasesSubscription(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(10)
	respond(bus, "as1")
	bus.Start()
	before := bus.SubscriberCount()

	_, err := bus.Request(context.Background(), testRequest{id: "r8"}, RequestOptions{
		Timeout:            time.Second,
		ExpectedResponders: []string{"as1"},
	})
	require.NoError(t, err)
	assert.Equal(t, before, bus.SubscriberCount())
}
