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

package m1api

import (
	"net/http"
	"net/url"
	"strings"
)

// components splits the request path below the API root into the problem
// instance components.
func components(r *http.Request) []string {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, PathRoot), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// purgePattern reads the filter of a purge request. Nil means purge all.
func purgePattern(body []byte) *string {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return nil
	}
	if form, err := url.ParseQuery(raw); err == nil && form.Has("regex") {
		pattern := form.Get("regex")
		if pattern == "" {
			return nil
		}
		return &pattern
	}
	return &raw
}
