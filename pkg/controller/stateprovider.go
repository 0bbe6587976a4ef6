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

package controller

import (
	"context"

	"msaf/pkg/controller/appserversync"
	"msaf/pkg/controller/debug"
	coreconfig "msaf/pkg/core/config"
	"msaf/pkg/provisioning"
)

// stateProvider reads live state straight from the owning components.
type stateProvider struct {
	cfg      *coreconfig.Config
	sync     *appserversync.Component
	sessions *provisioning.Store
}

var _ debug.StateProvider = (*stateProvider)(nil)

func (p *stateProvider) Config() *coreconfig.Config {
	return p.cfg
}

func (p *stateProvider) ApplicationServers(ctx context.Context) ([]appserversync.ServerSnapshot, error) {
	return p.sync.ApplicationServers(ctx)
}

func (p *stateProvider) Sessions() []*provisioning.Session {
	return p.sessions.List()
}
