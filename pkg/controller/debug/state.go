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


// Package debug publishes the application function's state as
// introspection variables.
package debug

import (
	"context"

	"msaf/pkg/controller/appserversync"
	"msaf/pkg/core/config"
	"msaf/pkg/provisioning"
)

// StateProvider gives read access to live state. Implementations must be
// safe for concurrent use; every call happens on an HTTP handler goroutine.
type StateProvider interface {
	// Config returns the configuration the process started with.
	Config() *config.Config

	// ApplicationServers snapshots every registered server.
	ApplicationServers(ctx context.Context) ([]appserversync.ServerSnapshot, error)

	// Sessions returns copies of all provisioning sessions.
	Sessions() []*provisioning.Session
}
