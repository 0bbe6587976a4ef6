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


// Package introspection serves named debug variables over HTTP.
//
// It works like expvar with three differences: registries are instances
// rather than process globals, variables are computed on demand, and a
// kubectl-style JSONPath in the "field" query parameter selects part of a
// value:
//
//	GET /debug/vars                               list variable paths
//	GET /debug/vars/all                           every variable
//	GET /debug/vars/appservers                    one variable
//	GET /debug/vars/appservers?field={[0].server.hostname}
package introspection

// Var is a debug variable. Get is called once per HTTP request, possibly
// concurrently, and must return a JSON-serializable value.
type Var interface {
	Get() (any, error)
}

// Func adapts a function to Var.
type Func func() (any, error)

// Get calls f.
func (f Func) Get() (any, error) {
	return f()
}
