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
	"fmt"
	"strings"
)

// CertificateKey identifies a certificate uniquely across provisioning
// sessions. Certificate ids are only unique within their session, so the
// application server sees the pair encoded as "<sessionId>:<certId>".
type CertificateKey struct {
	SessionID     string
	CertificateID string
}

// String returns the M3 wire form "<sessionId>:<certId>".
func (k CertificateKey) String() string {
	return k.SessionID + ":" + k.CertificateID
}

// ParseCertificateKey decodes the M3 wire form. The session id is everything
// before the first ':'.
func ParseCertificateKey(s string) (CertificateKey, error) {
	sessionID, certID, ok := strings.Cut(s, ":")
	if !ok || sessionID == "" || certID == "" {
		return CertificateKey{}, fmt.Errorf("invalid certificate key %q: want <sessionId>:<certId>", s)
	}
	return CertificateKey{SessionID: sessionID, CertificateID: certID}, nil
}
