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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"msaf/pkg/appserver"
)

// CertificateExtension is the file suffix of stored certificates.
const CertificateExtension = ".pem"

// ContentTypePEM is the media type of certificate uploads.
const ContentTypePEM = "application/x-pem-file"

// CertificateStore keeps PEM files as <dir>/<sessionId>/<certId>.pem.
type CertificateStore struct {
	dir string
}

// NewCertificateStore returns a store rooted at dir. The directory is
// created on first write.
func NewCertificateStore(dir string) *CertificateStore {
	return &CertificateStore{dir: dir}
}

// Dir returns the root directory.
func (c *CertificateStore) Dir() string {
	return c.dir
}

// Path returns the file path for key.
func (c *CertificateStore) Path(key appserver.CertificateKey) (string, error) {
	if err := checkPathElement(key.SessionID); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	if err := checkPathElement(key.CertificateID); err != nil {
		return "", fmt.Errorf("certificate id: %w", err)
	}
	return filepath.Join(c.dir, key.SessionID, key.CertificateID+CertificateExtension), nil
}

// Read returns the PEM bytes stored for key.
func (c *CertificateStore) Read(key appserver.CertificateKey) ([]byte, error) {
	path, err := c.Path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCertificateNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %s: %w", key, err)
	}
	return data, nil
}

// Write stores pem for key and returns the file path.
func (c *CertificateStore) Write(key appserver.CertificateKey, pem []byte) (string, error) {
	path, err := c.Path(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create certificate directory: %w", err)
	}

	// Write to a temporary file first so watchers never see a partial certificate.
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+key.CertificateID+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary certificate file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pem); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write certificate %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write certificate %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store certificate %s: %w", key, err)
	}

	return path, nil
}

// Remove deletes the file for key. Missing files are not an error.
func (c *CertificateStore) Remove(key appserver.CertificateKey) error {
	path, err := c.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove certificate %s: %w", key, err)
	}
	return nil
}

// RemoveSession deletes every certificate of a session.
func (c *CertificateStore) RemoveSession(sessionID string) error {
	if err := checkPathElement(sessionID); err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(c.dir, sessionID)); err != nil {
		return fmt.Errorf("failed to remove certificates of %s: %w", sessionID, err)
	}
	return nil
}

// KeyForPath maps a file below the store root back to its certificate key.
// Temporary and non-PEM files are rejected.
func (c *CertificateStore) KeyForPath(path string) (appserver.CertificateKey, bool) {
	rel, err := filepath.Rel(c.dir, path)
	if err != nil {
		return appserver.CertificateKey{}, false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return appserver.CertificateKey{}, false
	}
	name := parts[1]
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, CertificateExtension) {
		return appserver.CertificateKey{}, false
	}

	key := appserver.CertificateKey{
		SessionID:     parts[0],
		CertificateID: strings.TrimSuffix(name, CertificateExtension),
	}
	if checkPathElement(key.SessionID) != nil || checkPathElement(key.CertificateID) != nil {
		return appserver.CertificateKey{}, false
	}
	return key, true
}

func checkPathElement(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid path element %q", s)
	}
	return nil
}
