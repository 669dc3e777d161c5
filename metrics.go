// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the store's prometheus collectors. They are registered
// with Options.MetricsRegisterer on Open, if one is provided.
type Metrics struct {
	// CompactionsCompleted counts successfully applied compactions by kind
	// (cumulative, base, backtrace).
	CompactionsCompleted *prometheus.CounterVec
	// CompactionsFailed counts compactions that aborted without mutating
	// the catalog.
	CompactionsFailed prometheus.Counter
	// CompactionsInProgress is the number of currently running
	// compactions.
	CompactionsInProgress prometheus.Gauge
	// CompactionDuration observes wall-clock seconds per completed
	// compaction.
	CompactionDuration prometheus.Histogram
	// CompactionBytesWritten counts bytes written by compaction outputs.
	CompactionBytesWritten prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		CompactionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabletstore_compactions_completed_total",
			Help: "Compactions applied, by kind.",
		}, []string{"kind"}),
		CompactionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabletstore_compactions_failed_total",
			Help: "Compactions that aborted without mutating the catalog.",
		}),
		CompactionsInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabletstore_compactions_in_progress",
			Help: "Currently running compactions.",
		}),
		CompactionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabletstore_compaction_duration_seconds",
			Help:    "Wall-clock duration of completed compactions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		CompactionBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabletstore_compaction_bytes_written_total",
			Help: "Bytes written by compaction outputs.",
		}),
	}
}

func (m *Metrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.CompactionsCompleted,
		m.CompactionsFailed,
		m.CompactionsInProgress,
		m.CompactionDuration,
		m.CompactionBytesWritten,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
