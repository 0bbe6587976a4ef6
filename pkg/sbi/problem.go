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

package sbi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ContentTypeProblem is the media type of problem documents.
const ContentTypeProblem = "application/problem+json"

// ProblemDetails is the error document returned by every inbound API.
type ProblemDetails struct {
	Type          string          `json:"type,omitempty"`
	Title         string          `json:"title,omitempty"`
	Status        int             `json:"status,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	Instance      string          `json:"instance,omitempty"`
	InvalidParams json.RawMessage `json:"invalidParams,omitempty"`
}

// InvalidParam names one rejected request parameter.
type InvalidParam struct {
	Param  string `json:"param"`
	Reason string `json:"reason,omitempty"`
}

// InvalidParams encodes params as a fragment accepted by SendProblem.
func InvalidParams(params ...InvalidParam) json.RawMessage {
	data, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	return data
}

// NewProblem builds a problem document. instance is "/" followed by the path
// components joined with "/". invalidParams is either a JSON array of
// invalid parameters or an object carrying one under "invalidParams"; other
// fragments are ignored.
func (s Service) NewProblem(status int, components []string, title, detail string, invalidParams json.RawMessage) ProblemDetails {
	return ProblemDetails{
		Type:          "/" + s.Name + "/" + s.APIVersion,
		Title:         title,
		Status:        status,
		Detail:        detail,
		Instance:      "/" + strings.Join(components, "/"),
		InvalidParams: extractInvalidParams(invalidParams),
	}
}

// SendProblem writes a problem document as the response on w.
func (s Service) SendProblem(w http.ResponseWriter, status int, components []string, title, detail string, invalidParams json.RawMessage) error {
	problem := s.NewProblem(status, components, title, detail, invalidParams)

	body, err := json.Marshal(problem)
	if err != nil {
		return err
	}

	return s.NewResponse(ResponseOptions{ContentType: ContentTypeProblem}).
		WithBody(status, body).
		Write(w)
}

func extractInvalidParams(fragment json.RawMessage) json.RawMessage {
	if len(fragment) == 0 || !gjson.ValidBytes(fragment) {
		return nil
	}

	result := gjson.ParseBytes(fragment)
	if result.IsObject() {
		result = result.Get("invalidParams")
	}
	if !result.IsArray() || len(result.Array()) == 0 {
		return nil
	}
	return json.RawMessage(result.Raw)
}
