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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msaf/pkg/m3"
)

func ptr[T any](v T) *T { return &v }

func removeHead[T comparable](l *List[T]) {
	if head, ok := l.Head(); ok {
		l.Remove(head)
	}
}

// pendingState fills every list so each rule applies.
func pendingState() *State {
	s := NewState()
	s.ObservedCertificates = NewList("P1:C1")
	s.ObservedConfigurations = NewList("P1")
	s.PendingUploadCertificates.Append(CertificateKey{"P1", "C1"})
	s.PendingUploadConfigurations.Append("P2")
	s.PendingDeleteConfigurations.Append("P3")
	s.PendingDeleteCertificates.Append(CertificateKey{"P3", "C9"})
	s.PendingPurges.Append(PurgeEntry{ResourceID: "P1"})
	return s
}

func TestSelectAction_PriorityOrder(t *testing.T) {
	s := pendingState()
	s.ObservedCertificates = nil
	s.ObservedConfigurations = nil

	// Peel off one rule at a time and check the next one takes over.
	steps := []struct {
		want  ActionKind
		clear func(*State)
	}{
		{ActionDiscoverCertificates, func(s *State) { s.ObservedCertificates = NewList("P1:C1") }},
		{ActionDiscoverConfigurations, func(s *State) { s.ObservedConfigurations = NewList[string]() }},
		{ActionUploadCertificate, func(s *State) { removeHead(&s.PendingUploadCertificates) }},
		{ActionUploadConfiguration, func(s *State) { removeHead(&s.PendingUploadConfigurations) }},
		{ActionDeleteConfiguration, func(s *State) { removeHead(&s.PendingDeleteConfigurations) }},
		{ActionDeleteCertificate, func(s *State) { removeHead(&s.PendingDeleteCertificates) }},
		{ActionPurgeCache, func(s *State) { s.PendingPurges.PopHead() }},
		{ActionIdle, nil},
	}

	for _, step := range steps {
		assert.Equal(t, step.want, SelectAction(s).Kind)
		if step.clear != nil {
			step.clear(s)
		}
	}
}

func TestSelectAction_AllCombinations(t *testing.T) {
	// 2 snapshot flags + 5 pending flags.
	for mask := 0; mask < 1<<7; mask++ {
		s := NewState()
		if mask&1 == 0 {
			s.ObservedCertificates = NewList[string]()
		}
		if mask&2 == 0 {
			s.ObservedConfigurations = NewList[string]()
		}
		if mask&4 != 0 {
			s.PendingUploadCertificates.Append(CertificateKey{"P", "C"})
		}
		if mask&8 != 0 {
			s.PendingUploadConfigurations.Append("P")
		}
		if mask&16 != 0 {
			s.PendingDeleteConfigurations.Append("P")
		}
		if mask&32 != 0 {
			s.PendingDeleteCertificates.Append(CertificateKey{"P", "C"})
		}
		if mask&64 != 0 {
			s.PendingPurges.Append(PurgeEntry{ResourceID: "P"})
		}

		want := ActionIdle
		for bit := 0; bit < 7; bit++ {
			if mask&(1<<bit) != 0 {
				want = ActionKind(bit + 1)
				break
			}
		}

		assert.Equal(t, want, SelectAction(s).Kind, "mask %07b", mask)
	}
}

func TestSelectAction_IdleDoesNotMutate(t *testing.T) {
	s := NewState()
	s.ObservedCertificates = NewList("P1:C1")
	s.ObservedConfigurations = NewList("P1")
	s.AssignedSessions.Append("P1")
	before := s.Snapshot()

	for i := 0; i < 3; i++ {
		assert.Equal(t, ActionIdle, SelectAction(s).Kind)
	}
	assert.Equal(t, before, s.Snapshot())
	assert.True(t, s.Synchronized())
}

func TestSelectAction_HeadStaysQueued(t *testing.T) {
	s := pendingState()

	a := SelectAction(s)
	b := SelectAction(s)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, s.PendingUploadCertificates.Len())
}

func TestSelectAction_UploadMethod(t *testing.T) {
	s := NewState()
	s.ObservedCertificates = NewList("P1:C1")
	s.ObservedConfigurations = NewList("P1")

	s.PendingUploadCertificates.Append(CertificateKey{"P1", "C1"})
	s.PendingUploadCertificates.Append(CertificateKey{"P1", "C2"})

	a := SelectAction(s)
	assert.Equal(t, "PUT", a.Method())
	assert.Equal(t, "certificates/P1:C1", a.Path())
	assert.Equal(t, m3.ContentTypePEM, a.ContentType())

	removeHead(&s.PendingUploadCertificates)
	a = SelectAction(s)
	assert.Equal(t, "POST", a.Method())
	assert.Equal(t, "certificates/P1:C2", a.Path())

	removeHead(&s.PendingUploadCertificates)
	s.PendingUploadConfigurations.Append("P1")
	a = SelectAction(s)
	assert.Equal(t, "PUT", a.Method())
	assert.Equal(t, "content-hosting-configurations/P1", a.Path())
	assert.Equal(t, m3.ContentTypeJSON, a.ContentType())

	removeHead(&s.PendingUploadConfigurations)
	s.PendingUploadConfigurations.Append("P2")
	assert.Equal(t, "POST", SelectAction(s).Method())
}

func TestAction_Requests(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		method string
		path   string
		ctype  string
	}{
		{"discover certificates", Action{Kind: ActionDiscoverCertificates}, "GET", "certificates", ""},
		{"discover configurations", Action{Kind: ActionDiscoverConfigurations}, "GET", "content-hosting-configurations", ""},
		{"delete configuration", Action{Kind: ActionDeleteConfiguration, ResourceID: "P1"}, "DELETE", "content-hosting-configurations/P1", ""},
		{"delete certificate", Action{Kind: ActionDeleteCertificate, Certificate: CertificateKey{"P1", "C1"}}, "DELETE", "certificates/P1:C1", ""},
		{"purge", Action{Kind: ActionPurgeCache, ResourceID: "P1"}, "POST", "content-hosting-configurations/P1/purge", m3.ContentTypeForm},
		{"idle", Action{Kind: ActionIdle}, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.action.Request(nil)
			assert.Equal(t, tt.method, req.Method)
			assert.Equal(t, tt.path, req.Path)
			assert.Equal(t, tt.ctype, req.ContentType)
		})
	}
}

func TestAction_PurgeBody(t *testing.T) {
	s := NewState()
	s.ObservedCertificates = NewList[string]()
	s.ObservedConfigurations = NewList[string]()
	s.PendingPurges.Append(PurgeEntry{ResourceID: "P1", Pattern: ptr("*.mp4")})
	s.PendingPurges.Append(PurgeEntry{ResourceID: "P1"})

	a := SelectAction(s)
	require.Equal(t, ActionPurgeCache, a.Kind)
	req := a.Request(a.Purge.Body())
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "content-hosting-configurations/P1/purge", req.Path)
	assert.Equal(t, m3.ContentTypeForm, req.ContentType)
	assert.Equal(t, "regex=%2A.mp4", string(req.Body))

	s.PendingPurges.PopHead()
	a = SelectAction(s)
	assert.Empty(t, a.Purge.Body())
}

func TestActionKind_String(t *testing.T) {
	assert.Equal(t, "upload_certificate", ActionUploadCertificate.String())
	assert.Equal(t, "idle", ActionIdle.String())
	assert.Equal(t, "unknown", ActionKind(0).String())
}
