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
	"context"
	"time"

	"msaf/pkg/provisioning"
)

// snapshotTimeout bounds how long a debug request waits for the sync loop.
const snapshotTimeout = 2 * time.Second

// ConfigVar exposes the loaded configuration.
type ConfigVar struct {
	provider StateProvider
}

// Get implements introspection.Var.
func (v *ConfigVar) Get() (any, error) {
	return v.provider.Config(), nil
}

// ApplicationServersVar exposes every server's sync state: observed and
// pending resources, the in-flight request and retry deadline.
type ApplicationServersVar struct {
	provider StateProvider
}

// Get implements introspection.Var.
func (v *ApplicationServersVar) Get() (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	return v.provider.ApplicationServers(ctx)
}

// SessionSummary is the debug view of a provisioning session.
type SessionSummary struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	AppID            string    `json:"appId"`
	ASPID            string    `json:"aspId,omitempty"`
	Created          time.Time `json:"created"`
	Certificates     []string  `json:"certificates"`
	HasConfiguration bool      `json:"hasConfiguration"`
	ConfigurationAt  time.Time `json:"configurationReceived,omitzero"`
}

// SessionsVar lists the provisioning sessions.
type SessionsVar struct {
	provider StateProvider
}

// Get implements introspection.Var.
func (v *SessionsVar) Get() (any, error) {
	return summarize(v.provider.Sessions()), nil
}

func summarize(sessions []*provisioning.Session) []SessionSummary {
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summary := SessionSummary{
			ID:               s.ID,
			Type:             s.Type,
			AppID:            s.AppID,
			ASPID:            s.ASPID,
			Created:          s.Metadata.Received,
			Certificates:     s.CertificateIDs(),
			HasConfiguration: s.Configuration != nil,
		}
		if summary.HasConfiguration {
			summary.ConfigurationAt = s.ConfigurationMetadata.Received
		}
		out = append(out, summary)
	}
	return out
}

// FullStateVar dumps everything at once. Parts that fail are left out.
type FullStateVar struct {
	provider    StateProvider
	eventBuffer *EventBuffer
}

// Get implements introspection.Var.
func (v *FullStateVar) Get() (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	state := map[string]any{
		"config":        v.provider.Config(),
		"sessions":      summarize(v.provider.Sessions()),
		"snapshot_time": time.Now(),
	}
	if servers, err := v.provider.ApplicationServers(ctx); err == nil {
		state["appservers"] = servers
	}
	if v.eventBuffer != nil {
		state["recent_events"] = v.eventBuffer.GetLast(100)
	}
	return state, nil
}
