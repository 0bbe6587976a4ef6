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
	"time"

	"msaf/pkg/m3"
)

// State is the reconciliation state kept for one application server: what it
// was last seen to hold, what still has to be sent to it, and which
// provisioning sessions it hosts.
//
// State is not safe for concurrent use. It is owned by the sync loop.
type State struct {
	// Transport is created on first dispatch and closed on removal.
	Transport *m3.Client

	// Observed snapshots. Nil means not fetched yet, which differs from
	// fetched and empty.
	ObservedCertificates   *ResourceIDList
	ObservedConfigurations *ResourceIDList

	PendingUploadCertificates   CertificateKeyList
	PendingUploadConfigurations ResourceIDList
	PendingDeleteConfigurations ResourceIDList
	PendingDeleteCertificates   CertificateKeyList
	PendingPurges               PurgeList

	AssignedSessions ResourceIDList

	// InFlight is set while a request is outstanding.
	InFlight *InFlight

	// ConsecutiveFailures counts failed requests since the last success.
	ConsecutiveFailures int

	// RetryAt is when a stalled state is next retried. Zero when not stalled.
	RetryAt time.Time
}

// InFlight describes the outstanding request of a state.
type InFlight struct {
	Action     Action
	Request    m3.Request
	Dispatched time.Time

	// Withdrawn is set when the queued item the request serves was removed
	// while it was outstanding. Its completion leaves the queues alone.
	Withdrawn bool
}

// NewState returns an empty state: nothing pending, nothing observed.
func NewState() *State {
	return &State{}
}

// Busy reports whether a request is outstanding.
func (s *State) Busy() bool {
	return s.InFlight != nil
}

// Stalled reports whether the state waits for a retry after a failure.
func (s *State) Stalled() bool {
	return !s.RetryAt.IsZero()
}

// Synchronized reports whether the selector would choose Idle.
func (s *State) Synchronized() bool {
	return SelectAction(s).Kind == ActionIdle
}

// PendingCount returns the number of queued changes across all lists.
func (s *State) PendingCount() int {
	return s.PendingUploadCertificates.Len() +
		s.PendingUploadConfigurations.Len() +
		s.PendingDeleteConfigurations.Len() +
		s.PendingDeleteCertificates.Len() +
		s.PendingPurges.Len()
}

// HostsSession reports whether sessionID is assigned to this server.
func (s *State) HostsSession(sessionID string) bool {
	return s.AssignedSessions.Contains(sessionID)
}

// ForgetObserved drops both snapshots so the next selection rediscovers the server.
func (s *State) ForgetObserved() {
	s.ObservedCertificates = nil
	s.ObservedConfigurations = nil
}

// Snapshot is a JSON-friendly copy of a State.
type Snapshot struct {
	ObservedCertificates        []string     `json:"observedCertificates"`
	ObservedConfigurations      []string     `json:"observedConfigurations"`
	PendingUploadCertificates   []string     `json:"pendingUploadCertificates"`
	PendingUploadConfigurations []string     `json:"pendingUploadConfigurations"`
	PendingDeleteConfigurations []string     `json:"pendingDeleteConfigurations"`
	PendingDeleteCertificates   []string     `json:"pendingDeleteCertificates"`
	PendingPurges               []PurgeEntry `json:"pendingPurges"`
	AssignedSessions            []string     `json:"assignedSessions"`
	InFlight                    string       `json:"inFlight,omitempty"`
	ConsecutiveFailures         int          `json:"consecutiveFailures"`
	RetryAt                     *time.Time   `json:"retryAt,omitempty"`
}

// Snapshot copies s. Nil observed lists stay nil.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		ObservedCertificates:        s.ObservedCertificates.Items(),
		ObservedConfigurations:      s.ObservedConfigurations.Items(),
		PendingUploadCertificates:   keyStrings(s.PendingUploadCertificates.Items()),
		PendingUploadConfigurations: s.PendingUploadConfigurations.Items(),
		PendingDeleteConfigurations: s.PendingDeleteConfigurations.Items(),
		PendingDeleteCertificates:   keyStrings(s.PendingDeleteCertificates.Items()),
		PendingPurges:               s.PendingPurges.Entries(),
		AssignedSessions:            s.AssignedSessions.Items(),
		ConsecutiveFailures:         s.ConsecutiveFailures,
	}
	if s.InFlight != nil {
		snap.InFlight = s.InFlight.Request.String()
	}
	if s.Stalled() {
		retryAt := s.RetryAt
		snap.RetryAt = &retryAt
	}
	return snap
}

func keyStrings(keys []CertificateKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
