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

package ringbuffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBuffer_Empty(t *testing.T) {
	rb := New[string](3)

	assert.Equal(t, 0, rb.Len())
	assert.Equal(t, 3, rb.Cap())
	assert.Empty(t, rb.GetAll())
	assert.Empty(t, rb.GetLast(2))
}

func TestRingBuffer_WrapsAround(t *testing.T) {
	rb := New[int](3)
	for i := 1; i <= 5; i++ {
		rb.Add(i)
	}

	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, []int{3, 4, 5}, rb.GetAll())
	assert.Equal(t, []int{4, 5}, rb.GetLast(2))
	assert.Equal(t, []int{3, 4, 5}, rb.GetLast(10))
}

func TestRingBuffer_FindLast(t *testing.T) {
	rb := New[string](4)
	for _, s := range []string{"upload a", "delete b", "upload c"} {
		rb.Add(s)
	}

	got, ok := rb.FindLast(func(s string) bool { return s[:6] == "upload" })
	assert.True(t, ok)
	assert.Equal(t, "upload c", got)

	_, ok = rb.FindLast(func(s string) bool { return s == "purge" })
	assert.False(t, ok)
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := New[int](2)
	rb.Add(1)
	rb.Add(2)
	rb.Clear()

	assert.Equal(t, 0, rb.Len())
	rb.Add(7)
	assert.Equal(t, []int{7}, rb.GetAll())
}

func TestRingBuffer_ZeroSizeClamped(t *testing.T) {
	rb := New[int](0)
	rb.Add(1)
	rb.Add(2)
	assert.Equal(t, []int{2}, rb.GetAll())
}

func TestRingBuffer_ConcurrentAdd(t *testing.T) {
	rb := New[int](50)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rb.Add(i)
				_ = rb.GetLast(5)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, rb.Len())
}
