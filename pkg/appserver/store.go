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

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateServer is returned when registering a hostname twice.
	ErrDuplicateServer = errors.New("application server already registered")

	// ErrUnknownServer is returned for operations on an unregistered hostname.
	ErrUnknownServer = errors.New("application server not registered")
)

// PathPrefixMacro is replaced by the provisioning-session id in an
// application server's URL path prefix format.
const PathPrefixMacro = "{provisioningSessionId}"

// ApplicationServer identifies a managed application server. Immutable.
type ApplicationServer struct {
	CanonicalHostname   string `json:"canonicalHostname"`
	URLPathPrefixFormat string `json:"urlPathPrefixFormat"`
	M3Port              int    `json:"m3Port"`
}

// PathPrefix expands the URL path prefix format for a session. The result
// always ends in '/'.
func (a ApplicationServer) PathPrefix(sessionID string) string {
	prefix := strings.ReplaceAll(a.URLPathPrefixFormat, PathPrefixMacro, sessionID)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// Entry pairs a server with its reconciliation state.
//
// Generation is unique across the store's lifetime, so a hostname that is
// removed and registered again gets a new generation.
type Entry struct {
	Server     ApplicationServer
	State      *State
	Generation uint64
}

// Store holds the registered application servers in registration order.
//
// Store is not safe for concurrent use. It is owned by the sync loop.
type Store struct {
	entries        []*Entry
	byHost         map[string]*Entry
	lastGeneration uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byHost: make(map[string]*Entry)}
}

// Register adds a server with an empty reconciliation state.
func (s *Store) Register(hostname, pathPrefixFormat string, port int) (*Entry, error) {
	if hostname == "" {
		return nil, fmt.Errorf("hostname cannot be empty")
	}
	if _, exists := s.byHost[hostname]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateServer, hostname)
	}

	s.lastGeneration++
	entry := &Entry{
		Server: ApplicationServer{
			CanonicalHostname:   hostname,
			URLPathPrefixFormat: pathPrefixFormat,
			M3Port:              port,
		},
		State:      NewState(),
		Generation: s.lastGeneration,
	}

	s.entries = append(s.entries, entry)
	s.byHost[hostname] = entry
	return entry, nil
}

// Lookup returns the entry for hostname.
func (s *Store) Lookup(hostname string) (*Entry, bool) {
	entry, ok := s.byHost[hostname]
	return entry, ok
}

// Live returns the entry for hostname only if it still has the given
// generation. Completions use it to discard responses for removed servers.
func (s *Store) Live(hostname string, generation uint64) (*Entry, bool) {
	entry, ok := s.byHost[hostname]
	if !ok || entry.Generation != generation {
		return nil, false
	}
	return entry, true
}

// First returns the earliest registered server still in the store.
func (s *Store) First() (*Entry, bool) {
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[0], true
}

// Remove unregisters hostname, closes its transport and returns the removed entry.
func (s *Store) Remove(hostname string) (*Entry, error) {
	entry, ok := s.byHost[hostname]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, hostname)
	}

	delete(s.byHost, hostname)
	for i, e := range s.entries {
		if e == entry {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			break
		}
	}

	release(entry)
	return entry, nil
}

// RemoveAll unregisters every server and returns them in registration order.
func (s *Store) RemoveAll() []*Entry {
	removed := s.entries
	for _, entry := range removed {
		release(entry)
	}
	s.entries = nil
	s.byHost = make(map[string]*Entry)
	return removed
}

// List returns the entries in registration order.
func (s *Store) List() []*Entry {
	return append([]*Entry(nil), s.entries...)
}

// Len returns the number of registered servers.
func (s *Store) Len() int {
	return len(s.entries)
}

func release(entry *Entry) {
	if entry.State.Transport != nil {
		entry.State.Transport.Close()
		entry.State.Transport = nil
	}
}
