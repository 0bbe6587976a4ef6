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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msaf/pkg/m3"
)

type staticResolver struct{}

func (staticResolver) LookupHost(context.Context, string) ([]string, error) {
	return []string{"192.0.2.1"}, nil
}

func TestStore_RegisterCreatesEmptyState(t *testing.T) {
	store := NewStore()

	entry, err := store.Register("as1.example.com", "/m4d/{provisioningSessionId}", 7777)
	require.NoError(t, err)

	assert.Equal(t, "as1.example.com", entry.Server.CanonicalHostname)
	assert.Equal(t, 7777, entry.Server.M3Port)
	assert.Nil(t, entry.State.ObservedCertificates)
	assert.Nil(t, entry.State.ObservedConfigurations)
	assert.Zero(t, entry.State.PendingCount())
	assert.Zero(t, entry.State.AssignedSessions.Len())
	assert.False(t, entry.State.Busy())
}

func TestStore_RegisterDuplicate(t *testing.T) {
	store := NewStore()
	_, err := store.Register("as1", "/", 1)
	require.NoError(t, err)

	_, err = store.Register("as1", "/", 2)
	assert.ErrorIs(t, err, ErrDuplicateServer)

	_, err = store.Register("", "/", 2)
	assert.Error(t, err)
}

func TestStore_ListKeepsRegistrationOrder(t *testing.T) {
	store := NewStore()
	for _, h := range []string{"c", "a", "b"} {
		_, err := store.Register(h, "/", 1)
		require.NoError(t, err)
	}

	var hosts []string
	for _, e := range store.List() {
		hosts = append(hosts, e.Server.CanonicalHostname)
	}
	assert.Equal(t, []string{"c", "a", "b"}, hosts)

	first, ok := store.First()
	require.True(t, ok)
	assert.Equal(t, "c", first.Server.CanonicalHostname)
}

func TestStore_RemoveReleasesTransport(t *testing.T) {
	store := NewStore()
	entry, err := store.Register("as1", "/", 7777)
	require.NoError(t, err)

	client, err := m3.New(context.Background(), m3.Config{Hostname: "as1", Port: 7777, Resolver: staticResolver{}})
	require.NoError(t, err)
	entry.State.Transport = client

	removed, err := store.Remove("as1")
	require.NoError(t, err)
	assert.Same(t, entry, removed)
	assert.Nil(t, removed.State.Transport)
	assert.Zero(t, store.Len())

	_, err = store.Remove("as1")
	assert.ErrorIs(t, err, ErrUnknownServer)
}

func TestStore_LiveRejectsStaleGeneration(t *testing.T) {
	store := NewStore()
	old, err := store.Register("as1", "/", 1)
	require.NoError(t, err)

	_, ok := store.Live("as1", old.Generation)
	assert.True(t, ok)

	_, err = store.Remove("as1")
	require.NoError(t, err)
	_, ok = store.Live("as1", old.Generation)
	assert.False(t, ok)

	renewed, err := store.Register("as1", "/", 1)
	require.NoError(t, err)
	assert.NotEqual(t, old.Generation, renewed.Generation)

	_, ok = store.Live("as1", old.Generation)
	assert.False(t, ok)
	_, ok = store.Live("as1", renewed.Generation)
	assert.True(t, ok)
}

func TestStore_RemoveAll(t *testing.T) {
	store := NewStore()
	_, _ = store.Register("a", "/", 1)
	_, _ = store.Register("b", "/", 1)

	removed := store.RemoveAll()
	assert.Len(t, removed, 2)
	assert.Zero(t, store.Len())
	assert.Empty(t, store.List())
	_, ok := store.First()
	assert.False(t, ok)
}

func TestApplicationServer_PathPrefix(t *testing.T) {
	as := ApplicationServer{URLPathPrefixFormat: "/m4d/provisioning-session-{provisioningSessionId}"}
	assert.Equal(t, "/m4d/provisioning-session-P1/", as.PathPrefix("P1"))

	as.URLPathPrefixFormat = "/static/"
	assert.Equal(t, "/static/", as.PathPrefix("P1"))
}
