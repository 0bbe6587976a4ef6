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
	"time"
)

// DefaultRequestTimeout applies when RequestOptions.Timeout is zero.
const DefaultRequestTimeout = 10 * time.Second

// Request is an event that expects correlated Response events.
type Request interface {
	Event
	// RequestID correlates responses with this request.
	RequestID() string
}

// Response answers a Request.
type Response interface {
	Event
	// RequestID returns the ID of the request being answered.
	RequestID() string
	// Responder names the answering party. Each responder is counted once.
	Responder() string
}

// RequestOptions configures a scatter-gather request.
type RequestOptions struct {
	// Timeout bounds the gather phase. Zero means DefaultRequestTimeout.
	Timeout time.Duration

	// ExpectedResponders lists who must answer. Must not be empty.
	ExpectedResponders []string

	// MinResponses completes the request early once this many responders
	// answered. Zero means all ExpectedResponders.
	MinResponses int
}

// RequestResult holds what was gathered.
type RequestResult struct {
	// Responses in arrival order, at most one per responder.
	Responses []Response

	// Errors names expected responders that did not answer.
	Errors []string
}

func executeRequest(ctx context.Context, bus *EventBus, request Request, opts RequestOptions) (*RequestResult, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultRequestTimeout
	}

	minResponses := opts.MinResponses
	if minResponses == 0 {
		minResponses = len(opts.ExpectedResponders)
	}

	if len(opts.ExpectedResponders) == 0 {
		return nil, fmt.Errorf("ExpectedResponders cannot be empty")
	}
	if minResponses > len(opts.ExpectedResponders) {
		return nil, fmt.Errorf("MinResponses (%d) cannot exceed ExpectedResponders (%d)", minResponses, len(opts.ExpectedResponders))
	}

	collector := &responseCollector{
		requestID:          request.RequestID(),
		expectedResponders: opts.ExpectedResponders,
		minResponses:       minResponses,
		responses:          make([]Response, 0, minResponses),
		responders:         make(map[string]bool, len(opts.ExpectedResponders)),
		done:               make(chan struct{}),
	}

	// Subscribe before publishing so a fast responder cannot be missed.
	responseChan := bus.Subscribe(100)
	defer bus.Unsubscribe(responseChan)

	listenerCtx, cancelListener := context.WithCancel(ctx)
	defer cancelListener()

	go collector.listen(listenerCtx, responseChan)

	bus.Publish(request)

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, opts.Timeout)
	defer cancelTimeout()

	select {
	case <-collector.done:
		return collector.result(), nil

	case <-timeoutCtx.Done():
		result := collector.result()
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("request timeout after %v", opts.Timeout)
	}
}

type responseCollector struct {
	requestID          string
	expectedResponders []string
	minResponses       int

	mu         sync.Mutex
	responses  []Response
	responders map[string]bool
	done       chan struct{}
	completed  bool
}

func (c *responseCollector) listen(ctx context.Context, events <-chan Event) {
	for {
		select {
		case event := <-events:
			if resp, ok := event.(Response); ok && resp.RequestID() == c.requestID {
				c.addResponse(resp)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (c *responseCollector) addResponse(resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.completed {
		return
	}

	responder := resp.Responder()
	if !c.responders[responder] {
		c.responders[responder] = true
		c.responses = append(c.responses, resp)
	}

	if len(c.responses) >= c.minResponses {
		c.completed = true
		close(c.done)
	}
}

func (c *responseCollector) result() *RequestResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := &RequestResult{
		Responses: append([]Response(nil), c.responses...),
		Errors:    []string{},
	}

	for _, expected := range c.expectedResponders {
		if !c.responders[expected] {
			result.Errors = append(result.Errors, fmt.Sprintf("no response from %s", expected))
		}
	}

	return result
}
