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
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"msaf/pkg/appserver"
	"msaf/pkg/controller/events"
	"msaf/pkg/m3"
)

// outcome says what a completion did to the pending item it answered.
type outcome int

const (
	// applied: the state advanced.
	applied outcome = iota
	// dropped: the item was removed without effect and the failure reported.
	dropped
	// retry: the item stays queued and the server is retried after a back-off.
	retry
)

// handleCompletion applies an M3 result to the server's state and runs the
// selector again. Results for servers removed since dispatch are discarded.
func (c *Component) handleCompletion(r completion) {
	entry, ok := c.store.Live(r.hostname, r.generation)
	if !ok {
		if r.transport != nil {
			r.transport.Close()
		}
		c.logger.Debug("discarding response for removed application server",
			"hostname", r.hostname,
			"request", r.request.String())
		c.eventBus.Publish(events.NewM3CompletionDiscardedEvent(r.hostname, r.generation))
		return
	}

	state := entry.State
	withdrawn := state.InFlight != nil && state.InFlight.Withdrawn
	state.InFlight = nil
	if r.transport != nil {
		state.Transport = r.transport
	}

	result, err := c.apply(entry, r, withdrawn)
	if withdrawn && result == retry {
		// Nothing is queued to retry.
		result = dropped
	}
	switch result {
	case applied:
		c.succeeded(entry, r)
	case dropped:
		c.reportFailure(entry, r, err, 0)
	case retry:
		c.stall(entry, r, err)
		return
	}

	c.nextAction(entry)
	if !state.Busy() && !state.Stalled() {
		c.logger.Debug("application server synchronized", "hostname", r.hostname)
		c.eventBus.Publish(events.NewApplicationServerSynchronizedEvent(r.hostname))
	}
}

// apply interprets a result for the action that was in flight. A withdrawn
// action still updates what is observed on the server but no longer
// confirms a queued item.
func (c *Component) apply(entry *appserver.Entry, r completion, withdrawn bool) (outcome, error) {
	state := entry.State
	action := r.action
	confirm := func(remove func()) func() {
		if withdrawn {
			return func() {}
		}
		return remove
	}

	if r.err != nil {
		if action.Kind == appserver.ActionPurgeCache {
			c.finishPurge(entry, action.Purge, 0, 0, r.err)
			return dropped, r.err
		}
		return retry, r.err
	}

	status := r.response.Status
	body := r.response.Body
	statusErr := m3.NewStatusError(r.request, r.response)

	switch action.Kind {
	case appserver.ActionDiscoverCertificates:
		if status != http.StatusOK {
			return retry, statusErr
		}
		ids, err := m3.ParseIDList(body)
		if err != nil {
			return retry, err
		}
		state.ObservedCertificates = appserver.NewList(ids...)

	case appserver.ActionDiscoverConfigurations:
		if status != http.StatusOK {
			return retry, statusErr
		}
		ids, err := m3.ParseIDList(body)
		if err != nil {
			return retry, err
		}
		state.ObservedConfigurations = appserver.NewList(ids...)

	case appserver.ActionUploadCertificate:
		return applyUpload(action, status, statusErr,
			confirm(func() { state.PendingUploadCertificates.Remove(action.Certificate) }),
			observe(&state.ObservedCertificates, action.Certificate.String()))

	case appserver.ActionUploadConfiguration:
		return applyUpload(action, status, statusErr,
			confirm(func() { state.PendingUploadConfigurations.Remove(action.ResourceID) }),
			observe(&state.ObservedConfigurations, action.ResourceID))

	case appserver.ActionDeleteConfiguration:
		if status != http.StatusNoContent && status != http.StatusNotFound {
			return retry, statusErr
		}
		if !withdrawn {
			state.PendingDeleteConfigurations.Remove(action.ResourceID)
		}
		if state.ObservedConfigurations != nil {
			state.ObservedConfigurations.Remove(action.ResourceID)
		}

	case appserver.ActionDeleteCertificate:
		if status != http.StatusNoContent && status != http.StatusNotFound {
			return retry, statusErr
		}
		if !withdrawn {
			state.PendingDeleteCertificates.Remove(action.Certificate)
		}
		if state.ObservedCertificates != nil {
			state.ObservedCertificates.Remove(action.Certificate.String())
		}

	case appserver.ActionPurgeCache:
		switch status {
		case http.StatusOK:
			purged, err := m3.ParsePurgeCount(body)
			if err != nil {
				c.finishPurge(entry, action.Purge, 0, status, err)
				return dropped, err
			}
			c.finishPurge(entry, action.Purge, purged, status, nil)
		case http.StatusNoContent:
			c.finishPurge(entry, action.Purge, 0, status, nil)
		default:
			c.finishPurge(entry, action.Purge, 0, status, statusErr)
			return dropped, statusErr
		}
	}

	return applied, nil
}

// applyUpload handles POST and PUT answers. A POST rejected because the
// resource exists records it as observed so that the next attempt is a PUT.
// confirm removes the uploaded item from its queue by id, since the queue
// may have been edited while the request was in flight.
func applyUpload(action appserver.Action, status int, statusErr error, confirm, observed func()) (outcome, error) {
	if action.Update {
		if status == http.StatusOK || status == http.StatusNoContent {
			confirm()
			return applied, nil
		}
		return retry, statusErr
	}

	switch status {
	case http.StatusCreated:
		confirm()
		observed()
		return applied, nil
	case http.StatusMethodNotAllowed, http.StatusConflict:
		observed()
		return applied, nil
	default:
		return retry, statusErr
	}
}

// observe returns a function adding id to an observed list. A list that was
// reset for rediscovery in the meantime is left alone.
func observe(list **appserver.ResourceIDList, id string) func() {
	return func() {
		if *list != nil {
			(*list).AppendUnique(id)
		}
	}
}

// finishPurge removes the answered purge from the queue and reports its
// result to whoever is waiting on it. A purge already withdrawn, because its
// session was removed, has been answered and is not reported again.
func (c *Component) finishPurge(entry *appserver.Entry, purge appserver.PurgeEntry, purged, status int, err error) {
	if !entry.State.PendingPurges.Remove(purge) || purge.RequestID == "" {
		return
	}
	c.respondPurge(purge, entry.Server.CanonicalHostname, purged, status, err)
}

func (c *Component) respondPurge(entry appserver.PurgeEntry, hostname string, purged, status int, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.eventBus.Publish(events.NewPurgeCacheResponse(entry.RequestID, hostname, purged, status, msg))
}

// failPurges answers every queued purge of a server that is going away.
func (c *Component) failPurges(entry *appserver.Entry, reason string) {
	for {
		purge, ok := entry.State.PendingPurges.PopHead()
		if !ok {
			return
		}
		if purge.RequestID != "" {
			c.respondPurge(purge, entry.Server.CanonicalHostname, 0, 0, errors.New(reason))
		}
	}
}

func (c *Component) succeeded(entry *appserver.Entry, r completion) {
	entry.State.ConsecutiveFailures = 0
	if b, ok := c.backoffs[entry.Generation]; ok {
		b.Reset()
	}

	status := 0
	if r.response != nil {
		status = r.response.Status
	}
	c.logger.Debug("M3 request completed",
		"hostname", r.hostname,
		"request", r.request.String(),
		"status", status,
		"duration_ms", r.duration.Milliseconds())
	c.eventBus.Publish(events.NewM3RequestCompletedEvent(
		r.hostname, r.action.Kind.String(), r.request.Method, r.request.Path,
		status, r.duration.Milliseconds()))
}

// stall keeps the failed item queued and schedules the selector after a
// back-off. An external mutation of the state retries earlier.
func (c *Component) stall(entry *appserver.Entry, r completion, err error) {
	state := entry.State
	state.ConsecutiveFailures++

	b := c.backoffFor(entry.Generation)
	delay := b.NextBackOff()
	if delay == backoff.Stop {
		delay = b.MaxInterval
	}
	retryAt := time.Now().Add(delay)
	state.RetryAt = retryAt

	c.reportFailure(entry, r, err, delay)

	hostname, generation := entry.Server.CanonicalHostname, entry.Generation
	time.AfterFunc(delay, func() {
		c.post(func() {
			live, ok := c.store.Live(hostname, generation)
			if !ok || !live.State.RetryAt.Equal(retryAt) {
				return
			}
			live.State.RetryAt = time.Time{}
			c.nextAction(live)
		})
	})
}

func (c *Component) reportFailure(entry *appserver.Entry, r completion, err error, retryIn time.Duration) {
	status := 0
	if r.response != nil {
		status = r.response.Status
	}

	c.logger.Warn("M3 request failed",
		"hostname", r.hostname,
		"request", r.request.String(),
		"status", status,
		"consecutive_failures", entry.State.ConsecutiveFailures,
		"retry_in", retryIn,
		"error", err)
	c.eventBus.Publish(events.NewM3RequestFailedEvent(
		r.hostname, r.action.Kind.String(), r.request.Method, r.request.Path,
		status, errString(err), r.duration.Milliseconds(), retryIn))
}

func (c *Component) backoffFor(generation uint64) *backoff.ExponentialBackOff {
	if b, ok := c.backoffs[generation]; ok {
		return b
	}
	b := backoff.NewExponentialBackOff()
	if c.config.RetryInitialInterval > 0 {
		b.InitialInterval = c.config.RetryInitialInterval
	}
	if c.config.RetryMaxInterval > 0 {
		b.MaxInterval = c.config.RetryMaxInterval
	}
	b.Reset()
	c.backoffs[generation] = b
	return b
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
