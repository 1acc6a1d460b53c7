// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package metrics exposes Prometheus instrumentation for the intake path,
// the state machine, and the reconciliation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts accepted state machine transitions by final action.
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_events_applied_total",
			Help: "Total number of attendance transitions applied",
		},
		[]string{"action"},
	)

	// EventsRejected counts rejected transitions by rejection kind
	// (guard_violation, already_done, precursor_missing, debounced, cooldown).
	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_events_rejected_total",
			Help: "Total number of rejected attendance transitions",
		},
		[]string{"kind"},
	)

	// IdentityMatches counts biometric identification outcomes.
	IdentityMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_identity_matches_total",
			Help: "Total number of identity resolution attempts",
		},
		[]string{"outcome"}, // "matched", "unknown"
	)

	// ReconcileOutcomes counts reconciliation results.
	ReconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_reconcile_total",
			Help: "Total number of reconciliation attempts by outcome",
		},
		[]string{"outcome"}, // "synced", "noop", "offline", "rejected"
	)

	// ReconcileDuration observes reconciliation latency including remote calls.
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "punchd_reconcile_duration_seconds",
			Help:    "Duration of reconciliation attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// OrderingCorrections counts how often the checkout string needed the
	// positive offset to satisfy the mirror's ordering constraint.
	OrderingCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punchd_ordering_corrections_total",
			Help: "Total number of checkout ordering corrections applied",
		},
	)

	// SyncSweeps counts scheduler sweeps by result.
	SyncSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_sync_sweeps_total",
			Help: "Total number of scheduler sweeps",
		},
		[]string{"result"}, // "completed", "offline", "empty"
	)

	// PendingRecords gauges the unsynced backlog after each sweep.
	PendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "punchd_pending_records",
			Help: "Number of records with pending sync status",
		},
	)

	// CircuitBreakerState tracks mirror breaker state (0 closed, 1 half-open, 2 open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "punchd_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open",
		},
		[]string{"name"},
	)

	// CircuitBreakerRequests counts breaker-wrapped calls by result.
	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// APIRequestDuration observes HTTP handler latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "punchd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// APIRequestsTotal counts API requests by status code.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// WebSocketClients gauges connected live-feed clients.
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "punchd_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)
)
