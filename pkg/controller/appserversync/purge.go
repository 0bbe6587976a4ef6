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

package appserversync

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"msaf/pkg/appserver"
	"msaf/pkg/controller/events"
	busevents "msaf/pkg/events"
)

// PurgeResult is the outcome of a cache purge across servers.
type PurgeResult struct {
	// Servers lists the hostnames the purge was sent to. Empty when no
	// server hosts the session.
	Servers []string

	// Purged is the total number of entries the servers reported.
	Purged int
}

// PurgeError reports servers that did not purge.
type PurgeError struct {
	// Status is the first M3 status among the failures, 0 when none was received.
	Status int

	Failures []string
}

func (e *PurgeError) Error() string {
	return "cache purge failed: " + strings.Join(e.Failures, "; ")
}

// PurgeCache purges cached content of a session on every server hosting it
// and waits for all of them. pattern restricts the purge; nil purges all.
func (c *Component) PurgeCache(ctx context.Context, sessionID string, pattern *string) (PurgeResult, error) {
	hosts, err := c.HostingServers(ctx, sessionID)
	if err != nil {
		return PurgeResult{}, err
	}
	if len(hosts) == 0 {
		return PurgeResult{}, nil
	}

	request := events.NewPurgeCacheRequest(uuid.NewString(), sessionID, pattern)
	result, err := c.eventBus.Request(ctx, request, busevents.RequestOptions{
		Timeout:            c.config.PurgeTimeout,
		ExpectedResponders: hosts,
	})

	out := PurgeResult{Servers: hosts}
	purgeErr := &PurgeError{}
	if result != nil {
		for _, resp := range result.Responses {
			r, ok := resp.(*events.PurgeCacheResponse)
			if !ok {
				continue
			}
			if r.Error != "" {
				if purgeErr.Status == 0 {
					purgeErr.Status = r.Status
				}
				purgeErr.Failures = append(purgeErr.Failures, fmt.Sprintf("%s: %s", r.Hostname, r.Error))
				continue
			}
			out.Purged += r.Purged
		}
		purgeErr.Failures = append(purgeErr.Failures, result.Errors...)
	}

	if err != nil {
		return out, fmt.Errorf("purge of session %s: %w", sessionID, err)
	}
	if len(purgeErr.Failures) > 0 {
		return out, purgeErr
	}
	return out, nil
}

// handlePurgeRequest queues the purge on every server hosting the session.
func (c *Component) handlePurgeRequest(req *events.PurgeCacheRequest) {
	for _, entry := range c.store.List() {
		if !entry.State.HostsSession(req.SessionID) {
			continue
		}
		entry.State.PendingPurges.Append(appserver.PurgeEntry{
			ResourceID: req.SessionID,
			Pattern:    req.Pattern,
			RequestID:  req.ID,
		})
		c.kick(entry)
	}
}
