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


// Package metrics turns bus events into Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	pkgmetrics "msaf/pkg/metrics"
)

// M3 request outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

// Metrics holds the application function's Prometheus metrics.
//
// Create one instance per registry. Pass prometheus.NewRegistry(), not the
// default registerer.
type Metrics struct {
	M3Requests        *prometheus.CounterVec
	M3RequestDuration *prometheus.HistogramVec
	M3InFlight        *prometheus.GaugeVec
	PendingChanges    *prometheus.GaugeVec

	ApplicationServers     prometheus.Gauge
	ApplicationServerSyncs *prometheus.CounterVec
	SessionOperations      *prometheus.CounterVec
	PurgedEntries          prometheus.Counter
	PurgeFailures          prometheus.Counter
	ResyncsTotal           prometheus.Counter
	CertificateFileChanges prometheus.Counter
	EventSubscribers       prometheus.Gauge
	EventsPublished        prometheus.Counter
}

// New creates all metrics and registers them with registry.
func New(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		M3Requests: pkgmetrics.NewCounterVec(
			registry,
			"msaf_m3_requests_total",
			"M3 requests by action and outcome",
			[]string{"action", "outcome"},
		),
		M3RequestDuration: pkgmetrics.NewHistogramVec(
			registry,
			"msaf_m3_request_duration_seconds",
			"M3 request round-trip time",
			pkgmetrics.DurationBuckets(),
			[]string{"action"},
		),
		M3InFlight: pkgmetrics.NewGaugeVec(
			registry,
			"msaf_m3_requests_in_flight",
			"Outstanding M3 requests per application server (0 or 1)",
			[]string{"hostname"},
		),
		PendingChanges: pkgmetrics.NewGaugeVec(
			registry,
			"msaf_application_server_pending_changes",
			"Queued uploads, deletions and purges per application server, sampled at dispatch",
			[]string{"hostname"},
		),
		ApplicationServers: pkgmetrics.NewGauge(
			registry,
			"msaf_application_servers",
			"Number of registered application servers",
		),
		ApplicationServerSyncs: pkgmetrics.NewCounterVec(
			registry,
			"msaf_application_server_synchronizations_total",
			"Times an application server became idle after work",
			[]string{"hostname"},
		),
		SessionOperations: pkgmetrics.NewCounterVec(
			registry,
			"msaf_session_operations_total",
			"Provisioning session changes handed to the sync loop",
			[]string{"operation"},
		),
		PurgedEntries: pkgmetrics.NewCounter(
			registry,
			"msaf_cache_purged_entries_total",
			"Cache entries purged across all application servers",
		),
		PurgeFailures: pkgmetrics.NewCounter(
			registry,
			"msaf_cache_purge_failures_total",
			"Per-server cache purge failures",
		),
		ResyncsTotal: pkgmetrics.NewCounter(
			registry,
			"msaf_resyncs_total",
			"Resynchronizations triggered by inactivity",
		),
		CertificateFileChanges: pkgmetrics.NewCounter(
			registry,
			"msaf_certificate_file_changes_total",
			"Certificate files changed on disk",
		),
		EventSubscribers: pkgmetrics.NewGauge(
			registry,
			"msaf_event_subscribers",
			"Number of active event bus subscribers",
		),
		EventsPublished: pkgmetrics.NewCounter(
			registry,
			"msaf_events_published_total",
			"Events seen on the event bus",
		),
	}
}

// RecordM3Request records one finished M3 request.
func (m *Metrics) RecordM3Request(action, outcome string, durationSeconds float64) {
	m.M3Requests.WithLabelValues(action, outcome).Inc()
	if outcome != OutcomeDiscarded {
		m.M3RequestDuration.WithLabelValues(action).Observe(durationSeconds)
	}
}

// SetInFlight marks whether hostname has an outstanding request.
func (m *Metrics) SetInFlight(hostname string, inFlight bool) {
	v := 0.0
	if inFlight {
		v = 1
	}
	m.M3InFlight.WithLabelValues(hostname).Set(v)
}

// ForgetServer drops per-server series of a removed application server.
func (m *Metrics) ForgetServer(hostname string) {
	m.M3InFlight.DeleteLabelValues(hostname)
	m.PendingChanges.DeleteLabelValues(hostname)
	m.ApplicationServerSyncs.DeleteLabelValues(hostname)
}

// RecordSessionOperation counts an assign, update or remove.
func (m *Metrics) RecordSessionOperation(operation string) {
	m.SessionOperations.WithLabelValues(operation).Inc()
}

// RecordPurge records one server's purge answer.
func (m *Metrics) RecordPurge(purged int, failed bool) {
	if failed {
		m.PurgeFailures.Inc()
		return
	}
	m.PurgedEntries.Add(float64(purged))
}

// SetEventSubscribers sets the number of bus subscribers.
func (m *Metrics) SetEventSubscribers(count int) {
	m.EventSubscribers.Set(float64(count))
}

// RecordEvent counts a bus event.
func (m *Metrics) RecordEvent() {
	m.EventsPublished.Inc()
}
