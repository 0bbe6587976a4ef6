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

package m3

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxDetail caps how much of a non-JSON error body is kept.
const maxDetail = 200

// StatusError reports an M3 response whose status the caller did not accept.
type StatusError struct {
	Request Request
	Status  int
	Detail  string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Request, e.Status, http.StatusText(e.Status), e.Detail)
	}
	return fmt.Sprintf("%s: %d %s", e.Request, e.Status, http.StatusText(e.Status))
}

// NewStatusError builds a StatusError for resp. The detail is taken from a
// problem document when the body is one, else from the start of the body.
func NewStatusError(req Request, resp *Response) *StatusError {
	return &StatusError{
		Request: req,
		Status:  resp.Status,
		Detail:  detailOf(resp.Body),
	}
}

func detailOf(body []byte) string {
	if gjson.ValidBytes(body) {
		doc := gjson.ParseBytes(body)
		for _, field := range []string{"detail", "title"} {
			if v := doc.Get(field); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
		return ""
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxDetail {
		detail = detail[:maxDetail]
	}
	return detail
}
