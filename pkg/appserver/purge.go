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

import "net/url"

// PurgeEntry is one outstanding cache purge.
type PurgeEntry struct {
	// ResourceID is the content hosting configuration to purge, which is the
	// provisioning-session id.
	ResourceID string `json:"resourceId"`

	// Pattern restricts the purge to matching entries. Nil purges everything.
	Pattern *string `json:"pattern,omitempty"`

	// RequestID correlates the result with whoever asked for the purge. May be empty.
	RequestID string `json:"requestId,omitempty"`
}

// Body returns the form-encoded request body carrying the pattern as the
// regex field, or nothing.
func (e PurgeEntry) Body() []byte {
	if e.Pattern == nil {
		return nil
	}
	return []byte(url.Values{"regex": {*e.Pattern}}.Encode())
}

// PurgeList is a FIFO of purge entries. The zero value is empty.
type PurgeList struct {
	entries []PurgeEntry
}

// Append queues e at the tail.
func (p *PurgeList) Append(e PurgeEntry) {
	p.entries = append(p.entries, e)
}

// Head returns the oldest entry without removing it.
func (p *PurgeList) Head() (PurgeEntry, bool) {
	if len(p.entries) == 0 {
		return PurgeEntry{}, false
	}
	return p.entries[0], true
}

// PopHead removes and returns the oldest entry.
func (p *PurgeList) PopHead() (PurgeEntry, bool) {
	head, ok := p.Head()
	if ok {
		p.entries[0] = PurgeEntry{}
		p.entries = p.entries[1:]
	}
	return head, ok
}

// Remove drops the first entry equal to e. It reports whether one was found.
func (p *PurgeList) Remove(e PurgeEntry) bool {
	for i, cur := range p.entries {
		if cur == e {
			p.entries = append(p.entries[:i:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveResource drops every entry for resourceID and returns them.
func (p *PurgeList) RemoveResource(resourceID string) []PurgeEntry {
	var removed []PurgeEntry
	kept := p.entries[:0:0]
	for _, e := range p.entries {
		if e.ResourceID == resourceID {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	p.entries = kept
	return removed
}

// Len returns the number of queued entries.
func (p *PurgeList) Len() int {
	return len(p.entries)
}

// Entries returns a copy of the queue in order.
func (p *PurgeList) Entries() []PurgeEntry {
	return append([]PurgeEntry(nil), p.entries...)
}
