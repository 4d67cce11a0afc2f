// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics holds the pipeline's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/indexer/internal/errors"
)

// Entry outcomes.
const (
	OutcomeDone   = "done"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
	OutcomeParked = "parked"
)

// Metrics groups the collectors updated by the pipeline. A nil *Metrics
// records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	entries   *prometheus.CounterVec
	minted    prometheus.Counter
	conflicts prometheus.Counter
	duration  prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexer_entries_total",
			Help: "Queue entries handled, by outcome.",
		}, []string{"outcome"}),
		minted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexer_proxies_minted_total",
			Help: "Canonical proxy identifiers minted.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexer_proxy_conflicts_total",
			Help: "Equivalence classes whose members already belonged to different proxies.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexer_entry_duration_seconds",
			Help:    "Time from dequeue to acknowledgement or failure.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	m.registry.MustRegister(m.entries, m.minted, m.conflicts, m.duration)
	for _, o := range []string{OutcomeDone, OutcomeEmpty, OutcomeFailed, OutcomeParked} {
		m.entries.WithLabelValues(o)
	}
	return m
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Entry records the outcome and duration of one queue entry.
func (m *Metrics) Entry(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

// Minted adds n minted proxies.
func (m *Metrics) Minted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.minted.Add(float64(n))
}

// Conflicts adds n detected proxy conflicts.
func (m *Metrics) Conflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflicts.Add(float64(n))
}

// WriteTextfile writes the current values in the text exposition format
// for the node exporter's textfile collector. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "writing metrics to %s", path)
	}
	return nil
}
