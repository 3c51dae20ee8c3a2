// Package stats persists the per-node measurement logs and keeps the
// in-process counters.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are per-simulation Prometheus counters. There is no exporter: the
// counters are registered on an in-process registry, and nothing in the run
// reads them back.
type Metrics struct {
	InterestsSent   *prometheus.CounterVec // node
	DataReceived    *prometheus.CounterVec // node
	Timeouts        *prometheus.CounterVec // node
	WindowDecreases *prometheus.CounterVec // node, cause
	Suppressed      *prometheus.CounterVec // node
	DuplicatesDrop  *prometheus.CounterVec // node
	BytesOut        *prometheus.CounterVec // node
	BytesIn         *prometheus.CounterVec // node
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InterestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfnagg_interests_sent_total", Help: "Interests sent, per node.",
		}, []string{"node"}),
		DataReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfnagg_data_received_total", Help: "Data packets received, per node.",
		}, []string{"node"}),
		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfnagg_timeouts_total", Help: "Retransmission timeouts, per node.",
		}, []string{"node"}),
		WindowDecreases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfnagg_window_decreases_total", Help: "Multiplicative decreases, per node and cause.",
		}, []string{"node", "cause"}),
		Suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfnagg_window_decreases_suppressed_total", Help: "CWA-suppressed decreases, per node.",
		}, []string{"node"}),
		DuplicatesDrop: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfnagg_duplicate_interests_dropped_total", Help: "Upstream interests dropped as retransmission duplicates.",
		}, []string{"node"}),
		BytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfnagg_bytes_out_total", Help: "Approximate bytes sent, per node.",
		}, []string{"node"}),
		BytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfnagg_bytes_in_total", Help: "Approximate bytes received, per node.",
		}, []string{"node"}),
	}
	reg.MustRegister(m.InterestsSent, m.DataReceived, m.Timeouts,
		m.WindowDecreases, m.Suppressed, m.DuplicatesDrop, m.BytesOut, m.BytesIn)
	return m
}
