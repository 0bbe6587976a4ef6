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


package debug

import (
	"time"

	"msaf/pkg/introspection"
)

// RegisterVariables publishes:
//
//	config       loaded configuration
//	appservers   per-server sync state
//	sessions     provisioning sessions
//	events       last 100 bus events
//	state        all of the above in one document
//	uptime       time since registration
func RegisterVariables(registry *introspection.Registry, provider StateProvider, eventBuffer *EventBuffer) {
	registry.Publish("config", &ConfigVar{provider: provider})
	registry.Publish("appservers", &ApplicationServersVar{provider: provider})
	registry.Publish("sessions", &SessionsVar{provider: provider})
	registry.Publish("events", introspection.Func(func() (any, error) {
		return eventBuffer.GetLast(100), nil
	}))
	registry.Publish("state", &FullStateVar{provider: provider, eventBuffer: eventBuffer})

	startTime := time.Now()
	registry.Publish("uptime", introspection.Func(func() (any, error) {
		uptime := time.Since(startTime)
		return map[string]any{
			"started":        startTime,
			"uptime_seconds": uptime.Seconds(),
			"uptime_string":  uptime.String(),
		}, nil
	}))
}
