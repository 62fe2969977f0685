// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the portal.
//
// # Description
//
// Metrics include:
//   - HTTP request counters and latency histograms by route
//   - Ticket creation and status change counters
//   - Transfer status change counters
//   - Login attempt counters by outcome
//   - Upload byte counters by backend
//
// Metrics are exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "sanjesh"

// PortalMetrics holds all Prometheus metrics for the portal.
type PortalMetrics struct {
	// HTTPRequestsTotal counts requests.
	// Labels: method, route (gin FullPath), status (HTTP code class: 2xx, 4xx, ...)
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDurationSeconds measures handler latency.
	// Labels: method, route
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	// TicketsCreatedTotal counts new tickets.
	// Labels: receiver (district, province)
	TicketsCreatedTotal *prometheus.CounterVec

	// StatusChangesTotal counts applied status changes.
	// Labels: resource (ticket, transfer), status (target status)
	StatusChangesTotal *prometheus.CounterVec

	// LoginsTotal counts login attempts.
	// Labels: outcome (success, bad_credentials, inactive, throttled)
	LoginsTotal *prometheus.CounterVec

	// UploadBytesTotal counts stored attachment bytes.
	// Labels: backend (disk, gcs)
	UploadBytesTotal *prometheus.CounterVec
}

// NewMetrics creates the portal metrics and registers them with reg.
//
// # Description
//
// Each portal instance owns its registry so tests can build many
// servers in one process without duplicate registration panics.
//
// # Inputs
//
//   - reg: Registry to register with. Must not be nil.
//
// # Outputs
//
//   - *PortalMetrics: Ready to use.
func NewMetrics(reg prometheus.Registerer) *PortalMetrics {
	factory := promauto.With(reg)
	return &PortalMetrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, route and status class",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP handler latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		TicketsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "tickets",
				Name:      "created_total",
				Help:      "Total tickets created by receiver level",
			},
			[]string{"receiver"},
		),
		StatusChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "status_changes_total",
				Help:      "Total status changes by resource and target status",
			},
			[]string{"resource", "status"},
		),
		LoginsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "auth",
				Name:      "logins_total",
				Help:      "Total login attempts by outcome",
			},
			[]string{"outcome"},
		),
		UploadBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "uploads",
				Name:      "bytes_total",
				Help:      "Total attachment bytes stored by backend",
			},
			[]string{"backend"},
		),
	}
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordTicketCreated increments the ticket counter.
func (m *PortalMetrics) RecordTicketCreated(receiver string) {
	if m == nil {
		return
	}
	m.TicketsCreatedTotal.WithLabelValues(receiver).Inc()
}

// RecordStatusChange increments the status change counter.
func (m *PortalMetrics) RecordStatusChange(resource, status string) {
	if m == nil {
		return
	}
	m.StatusChangesTotal.WithLabelValues(resource, status).Inc()
}

// RecordLogin increments the login counter.
func (m *PortalMetrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpload adds stored bytes.
func (m *PortalMetrics) RecordUpload(backend string, size int64) {
	if m == nil {
		return
	}
	m.UploadBytesTotal.WithLabelValues(backend).Add(float64(size))
}
