// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	// Upstream connection metrics
	UpstreamActiveConnections prometheus.Gauge
	UpstreamConnections       *prometheus.CounterVec
	UpstreamReadErrors        prometheus.Counter
	UpstreamConnectionSeconds prometheus.Histogram

	// Command metrics
	CommandsRecognized *prometheus.CounterVec
	CommandsCoalesced  *prometheus.CounterVec
	CommandsDelivered  *prometheus.CounterVec
	CommandsAbandoned  *prometheus.CounterVec

	// Downstream link metrics
	DownstreamConnected     prometheus.Gauge
	DownstreamDialFailures  prometheus.Counter
	DownstreamSendFailures  prometheus.Counter
	DownstreamStateChanges  *prometheus.CounterVec
	DownstreamWriteDuration prometheus.Histogram
}

// New creates a new Metrics instance registered with reg. A nil reg uses
// the default Prometheus registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "tfmdelta"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		UpstreamActiveConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_active_connections",
				Help:      "Number of currently open controller connections",
			},
		),
		UpstreamConnections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_connections_total",
				Help:      "Total number of closed controller connections by close reason",
			},
			[]string{"status"},
		),
		UpstreamReadErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_read_errors_total",
				Help:      "Total number of controller connections closed by a read error",
			},
		),
		UpstreamConnectionSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_connection_duration_seconds",
				Help:      "Controller connection duration in seconds",
				Buckets:   []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
			},
		),
		CommandsRecognized: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_recognized_total",
				Help:      "Total number of commands recognized on controller connections",
			},
			[]string{"command"},
		),
		CommandsCoalesced: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_coalesced_total",
				Help:      "Total number of recognized commands merged into an already pending one",
			},
			[]string{"command"},
		),
		CommandsDelivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_delivered_total",
				Help:      "Total number of commands fully written to the media server",
			},
			[]string{"command"},
		),
		CommandsAbandoned: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_abandoned_total",
				Help:      "Total number of commands dropped because the media server link failed mid-write",
			},
			[]string{"command"},
		),
		DownstreamConnected: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "downstream_connected",
				Help:      "Media server link state (0=disconnected, 1=connected)",
			},
		),
		DownstreamDialFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downstream_dial_failures_total",
				Help:      "Total number of failed connection attempts to the media server",
			},
		),
		DownstreamSendFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downstream_send_failures_total",
				Help:      "Total number of failed writes to the media server",
			},
		),
		DownstreamStateChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downstream_state_changes_total",
				Help:      "Total number of media server link state transitions",
			},
			[]string{"to"},
		),
		DownstreamWriteDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "downstream_write_duration_seconds",
				Help:      "Time to write one command sequence to the media server",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2},
			},
		),
	}
}

// ConnectionOpened records an accepted upstream connection.
func (m *Metrics) ConnectionOpened() {
	m.UpstreamActiveConnections.Inc()
}

// ConnectionClosed records the end of an upstream connection opened at
// connectedAt. reason is the close reason used as the status label.
func (m *Metrics) ConnectionClosed(reason string, connectedAt time.Time) {
	m.UpstreamActiveConnections.Dec()
	m.UpstreamConnectionSeconds.Observe(time.Since(connectedAt).Seconds())
	m.UpstreamConnections.WithLabelValues(reason).Inc()
	if reason == "error" {
		m.UpstreamReadErrors.Inc()
	}
}

// RecordDelivery records one downstream command write sequence that took
// d. A non-nil err counts it as abandoned.
func (m *Metrics) RecordDelivery(cmd string, d time.Duration, err error) {
	m.DownstreamWriteDuration.Observe(d.Seconds())

	if err != nil {
		m.DownstreamSendFailures.Inc()
		m.CommandsAbandoned.WithLabelValues(cmd).Inc()
		return
	}
	m.CommandsDelivered.WithLabelValues(cmd).Inc()
}
