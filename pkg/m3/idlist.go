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
	"strings"

	"github.com/tidwall/gjson"
)

// ParseIDList reads the body of a GET on a collection. The application server
// answers with a JSON array of strings that are either bare ids or resource
// paths; only the last path segment is kept.
func ParseIDList(body []byte) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("id list is not valid JSON")
	}

	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return nil, fmt.Errorf("id list is not a JSON array")
	}

	ids := make([]string, 0, len(result.Array()))
	for i, item := range result.Array() {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("id list entry %d is not a string", i)
		}
		id := strings.TrimRight(item.String(), "/")
		if idx := strings.LastIndexByte(id, '/'); idx >= 0 {
			id = id[idx+1:]
		}
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// ParsePurgeCount reads the body of a 200 purge response: a JSON number of
// purged entries. An empty body counts as zero.
func ParsePurgeCount(body []byte) (int, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return 0, nil
	}

	result := gjson.ParseBytes(body)
	if result.Type != gjson.Number {
		return 0, fmt.Errorf("purge result %q is not a number", body)
	}
	return int(result.Int()), nil
}
