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

package appserver

// List is an ordered list of comparable ids. It serves both as a FIFO of
// pending work (Head, Remove) and as a snapshot of what an application
// server reported (Contains, Remove). Duplicates are allowed.
//
// The zero value is an empty list.
type List[T comparable] struct {
	items []T
}

// ResourceIDList holds opaque resource ids such as provisioning-session ids.
type ResourceIDList = List[string]

// CertificateKeyList holds certificate keys.
type CertificateKeyList = List[CertificateKey]

// NewList returns a list holding ids in order.
func NewList[T comparable](ids ...T) *List[T] {
	return &List[T]{items: append([]T(nil), ids...)}
}

// Append adds id at the tail.
func (l *List[T]) Append(id T) {
	l.items = append(l.items, id)
}

// AppendUnique adds id at the tail unless already present. Reports whether it was added.
func (l *List[T]) AppendUnique(id T) bool {
	if l.Contains(id) {
		return false
	}
	l.items = append(l.items, id)
	return true
}

// Head returns the first id without removing it.
func (l *List[T]) Head() (T, bool) {
	if len(l.items) == 0 {
		var zero T
		return zero, false
	}
	return l.items[0], true
}

// Contains reports whether id is in the list.
func (l *List[T]) Contains(id T) bool {
	if l == nil {
		return false
	}
	for _, item := range l.items {
		if item == id {
			return true
		}
	}
	return false
}

// Remove deletes the first occurrence of id. Reports whether one was found.
func (l *List[T]) Remove(id T) bool {
	for i, item := range l.items {
		if item == id {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveFunc deletes every id matching pred and returns them in order.
func (l *List[T]) RemoveFunc(pred func(T) bool) []T {
	var removed []T
	kept := l.items[:0:0]
	for _, item := range l.items {
		if pred(item) {
			removed = append(removed, item)
		} else {
			kept = append(kept, item)
		}
	}
	l.items = kept
	return removed
}

// Len returns the number of ids. A nil list has length 0.
func (l *List[T]) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// Items returns a copy of the ids in order.
func (l *List[T]) Items() []T {
	if l == nil {
		return nil
	}
	return append(make([]T, 0, len(l.items)), l.items...)
}
