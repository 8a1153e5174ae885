// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics keeps the counters of one invocation and writes them for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/autobrr/trctl/internal/transmission"
)

// Add outcomes.
const (
	OutcomeAdded     = "added"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the collectors, registered on a private registry so nothing
// leaks into the default one.
type Metrics struct {
	registry *prometheus.Registry

	Torrents      *prometheus.GaugeVec
	SpaceFree     *prometheus.GaugeVec
	SpaceSafe     *prometheus.GaugeVec
	SpaceTotal    *prometheus.GaugeVec
	AddTotal      *prometheus.CounterVec
	AddDuration   prometheus.Histogram
	PausedOnSpace prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Torrents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trctl_torrents",
			Help: "Number of torrents known to the daemon by status",
		}, []string{"status"}),
		SpaceFree: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trctl_space_free_bytes",
			Help: "Free disk space reported by the daemon",
		}, []string{"dir"}),
		SpaceSafe: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trctl_space_safe_bytes",
			Help: "Free space minus what running torrents will still write",
		}, []string{"dir"}),
		SpaceTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trctl_space_total_bytes",
			Help: "Projected final size of the torrents in a directory",
		}, []string{"dir"}),
		AddTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trctl_add_total",
			Help: "Torrent admissions by outcome",
		}, []string{"outcome"}),
		AddDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trctl_add_duration_seconds",
			Help:    "Time spent admitting one torrent",
			Buckets: prometheus.DefBuckets,
		}),
		PausedOnSpace: factory.NewCounter(prometheus.CounterOpts{
			Name: "trctl_add_paused_total",
			Help: "Torrents added paused because of low disk space",
		}),
	}
}

// Registry exposes the private registry, for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTorrents resets and refills the per-status gauge.
func (m *Metrics) ObserveTorrents(torrents []transmission.Torrent) {
	m.Torrents.Reset()
	for _, name := range transmission.StatusNames() {
		m.Torrents.WithLabelValues(name).Set(0)
	}
	for i := range torrents {
		status := "unknown"
		if torrents[i].Status != nil {
			status = torrents[i].Status.String()
		}
		m.Torrents.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveSpace(dir string, free, safe, total int64) {
	m.SpaceFree.WithLabelValues(dir).Set(float64(free))
	m.SpaceSafe.WithLabelValues(dir).Set(float64(safe))
	m.SpaceTotal.WithLabelValues(dir).Set(float64(total))
}

// WriteTextfile writes the registry in text format. The file is replaced
// atomically so a concurrent scrape never sees a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
