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

package provisioning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"msaf/pkg/appserver"
)

// Store holds provisioning sessions by id. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewStore returns an empty store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "provisioning"),
		now:      time.Now,
	}
}

// Create adds a session with a fresh id.
func (s *Store) Create(req SessionRequest) (*Session, error) {
	session := &Session{
		ID:           uuid.NewString(),
		Type:         req.Type,
		ASPID:        req.ASPID,
		AppID:        req.AppID,
		Certificates: make(map[string]string),
	}

	body, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	session.Metadata = Metadata{Received: s.now(), Hash: hashOf(body)}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("provisioning session created", "session", session.ID, "type", session.Type)
	return cloneSession(session), nil
}

// Get returns a copy of the session.
func (s *Store) Get(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return cloneSession(session), nil
}

// Delete removes the session and returns its last state.
func (s *Store) Delete(sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(s.sessions, sessionID)
	return session, nil
}

// List returns copies of all sessions, ordered by id.
func (s *Store) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, cloneSession(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddCertificate records a certificate file for the session. Adding an
// existing id replaces its path.
func (s *Store) AddCertificate(sessionID, certificateID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	session.Certificates[certificateID] = path
	return nil
}

// RemoveCertificate forgets a certificate of the session.
func (s *Store) RemoveCertificate(sessionID, certificateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if _, ok := session.Certificates[certificateID]; !ok {
		return fmt.Errorf("%w: %s", ErrCertificateNotFound, appserver.CertificateKey{SessionID: sessionID, CertificateID: certificateID})
	}
	delete(session.Certificates, certificateID)
	return nil
}

// SetContentHostingConfiguration validates doc, points it at server and
// stores it as the session's configuration. Reports whether the session
// had no configuration before.
func (s *Store) SetContentHostingConfiguration(sessionID string, doc []byte, server appserver.ApplicationServer) (bool, error) {
	if err := validateConfiguration(doc); err != nil {
		return false, err
	}

	distributed, err := distribute(bytes.Clone(doc), sessionID, server)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	created := session.Configuration == nil
	session.Configuration = distributed
	session.ConfigurationMetadata = Metadata{Received: s.now(), Hash: hashOf(distributed)}
	return created, nil
}

// DeleteContentHostingConfiguration drops the session's configuration.
func (s *Store) DeleteContentHostingConfiguration(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if session.Configuration == nil {
		return fmt.Errorf("%w: %s", ErrNoConfiguration, sessionID)
	}
	session.Configuration = nil
	session.ConfigurationMetadata = Metadata{}
	return nil
}

// CertificatesForUpload returns the keys of every certificate the session's
// configuration references. If any referenced certificate is unknown the
// result is empty.
func (s *Store) CertificatesForUpload(sessionID string) []appserver.CertificateKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.Configuration == nil {
		return nil
	}

	var keys []appserver.CertificateKey
	for _, certID := range referencedCertificateIDs(session.Configuration) {
		if _, ok := session.Certificates[certID]; !ok {
			s.logger.Warn("certificate referenced by content hosting configuration not found",
				"session", sessionID,
				"certificate", certID)
			return nil
		}
		keys = append(keys, appserver.CertificateKey{SessionID: sessionID, CertificateID: certID})
	}
	return keys
}

// ConfigurationForAS returns the session's configuration with certificate
// ids rewritten to their AS-unique form.
func (s *Store) ConfigurationForAS(sessionID string) ([]byte, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	var doc []byte
	if ok {
		doc = bytes.Clone(session.Configuration)
	}
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoConfiguration, sessionID)
	}

	return withASUniqueCertificateIDs(doc, sessionID)
}

func cloneSession(s *Session) *Session {
	c := *s
	c.Certificates = maps.Clone(s.Certificates)
	c.Configuration = bytes.Clone(s.Configuration)
	return &c
}
