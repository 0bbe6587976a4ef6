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
	"fmt"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"msaf/pkg/appserver"
)

const distributionConfigurations = "distributionConfigurations"

var relativePathPattern = regexp.MustCompile(`^[^/#?:]+(/[^#?/]+)*(\?[^#]*)?(#.*)?$`)

// validateConfiguration checks the parts of a content hosting configuration
// this function relies on. Everything else is passed through untouched.
func validateConfiguration(doc []byte) error {
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return &InvalidParamError{Param: "body", Reason: "not a JSON object"}
	}

	dists := gjson.GetBytes(doc, distributionConfigurations)
	if dists.Exists() && !dists.IsArray() {
		return &InvalidParamError{Param: distributionConfigurations, Reason: "not an array"}
	}

	for i, dist := range dists.Array() {
		param := distributionConfigurations + "[" + strconv.Itoa(i) + "]"
		if !dist.IsObject() {
			return &InvalidParamError{Param: param, Reason: "not an object"}
		}

		if certID := dist.Get("certificateId"); certID.Exists() && certID.Type != gjson.String {
			return &InvalidParamError{Param: param + ".certificateId", Reason: "not a string"}
		}

		entryPoint := dist.Get("entryPoint")
		if !entryPoint.Exists() {
			continue
		}
		if relPath := entryPoint.Get("relativePath"); !relativePathPattern.MatchString(relPath.String()) {
			return &InvalidParamError{Param: param + ".entryPoint.relativePath", Reason: "malformed"}
		}
		if profiles := entryPoint.Get("profiles"); profiles.Exists() && len(profiles.Array()) == 0 {
			return &InvalidParamError{Param: param + ".entryPoint.profiles", Reason: "present but empty"}
		}
	}

	return nil
}

// distribute points every distribution configuration at server: the
// canonical domain name becomes the server's hostname and the base URL is
// derived from the domain name alias (or canonical name), the server's
// expanded path prefix and the presence of a certificate.
func distribute(doc []byte, sessionID string, server appserver.ApplicationServer) ([]byte, error) {
	prefix := server.PathPrefix(sessionID)

	var err error
	for i, dist := range gjson.GetBytes(doc, distributionConfigurations).Array() {
		base := distributionConfigurations + "." + strconv.Itoa(i)

		if doc, err = sjson.SetBytes(doc, base+".canonicalDomainName", server.CanonicalHostname); err != nil {
			return nil, fmt.Errorf("failed to set canonicalDomainName: %w", err)
		}

		protocol := "http"
		if dist.Get("certificateId").Exists() {
			protocol = "https"
		}

		domain := server.CanonicalHostname
		if alias := dist.Get("domainNameAlias"); alias.Type == gjson.String && alias.String() != "" {
			domain = alias.String()
		}

		if doc, err = sjson.SetBytes(doc, base+".baseURL", protocol+"://"+domain+prefix); err != nil {
			return nil, fmt.Errorf("failed to set baseURL: %w", err)
		}
	}

	return doc, nil
}

// referencedCertificateIDs lists certificateId values in document order.
func referencedCertificateIDs(doc []byte) []string {
	var ids []string
	for _, dist := range gjson.GetBytes(doc, distributionConfigurations).Array() {
		if certID := dist.Get("certificateId"); certID.Type == gjson.String {
			ids = append(ids, certID.String())
		}
	}
	return ids
}

// withASUniqueCertificateIDs rewrites every certificateId to the form the
// application server knows it by.
func withASUniqueCertificateIDs(doc []byte, sessionID string) ([]byte, error) {
	var err error
	for i, dist := range gjson.GetBytes(doc, distributionConfigurations).Array() {
		certID := dist.Get("certificateId")
		if certID.Type != gjson.String {
			continue
		}
		key := appserver.CertificateKey{SessionID: sessionID, CertificateID: certID.String()}
		path := distributionConfigurations + "." + strconv.Itoa(i) + ".certificateId"
		if doc, err = sjson.SetBytes(doc, path, key.String()); err != nil {
			return nil, fmt.Errorf("failed to rewrite %s: %w", path, err)
		}
	}
	return doc, nil
}
