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

// Package ringbuffer keeps the most recent N items of any type.
//
// It backs the commentator's correlation window and the debug server's
// recent-events listing.
package ringbuffer

import "sync"

// RingBuffer is a fixed-capacity, thread-safe circular buffer. Adding to a
// full buffer overwrites the oldest item.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	next  int
	count int
}

// New creates a buffer holding at most size items. A size below 1 is treated as 1.
func New[T any](size int) *RingBuffer[T] {
	if size < 1 {
		size = 1
	}
	return &RingBuffer[T]{items: make([]T, size)}
}

// Add stores item, evicting the oldest one when full.
func (rb *RingBuffer[T]) Add(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.items[rb.next] = item
	rb.next = (rb.next + 1) % len(rb.items)
	if rb.count < len(rb.items) {
		rb.count++
	}
}

// GetLast returns up to n of the newest items, oldest first.
func (rb *RingBuffer[T]) GetLast(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.lastLocked(n)
}

// GetAll returns every stored item, oldest first.
func (rb *RingBuffer[T]) GetAll() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.lastLocked(rb.count)
}

// FindLast walks from newest to oldest and returns the first item matching pred.
func (rb *RingBuffer[T]) FindLast(pred func(T) bool) (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	size := len(rb.items)
	for i := 1; i <= rb.count; i++ {
		item := rb.items[(rb.next-i+size)%size]
		if pred(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Len returns the number of stored items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Cap returns the capacity given to New.
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.items)
}

// Clear empties the buffer.
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.next = 0
	rb.count = 0
}

func (rb *RingBuffer[T]) lastLocked(n int) []T {
	if n > rb.count {
		n = rb.count
	}
	if n <= 0 {
		return []T{}
	}

	size := len(rb.items)
	start := (rb.next - n + size) % size
	out := make([]T, n)
	for i := range out {
		out[i] = rb.items[(start+i)%size]
	}
	return out
}
