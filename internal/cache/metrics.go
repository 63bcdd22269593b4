// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// metrics mirrors the cache counters into Prometheus. A nil *metrics is
// valid and records nothing.
type metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	evictions     prometheus.Counter
	invalidations prometheus.Counter
	size          prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted at capacity",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of entries removed by invalidation",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recall",
			Subsystem: "cache",
			Name:      "size",
			Help:      "Current number of entries in cache",
		}),
	}

	for _, c := range []prometheus.Collector{m.hits, m.misses, m.evictions, m.invalidations, m.size} {
		if err := reg.Register(c); err != nil {
			return nil, recallerr.Wrap(err, recallerr.CodeServerInternalFailure, "registering cache metrics")
		}
	}
	return m, nil
}

func (m *metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *metrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *metrics) evicted() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *metrics) invalidated(n int) {
	if m != nil && n > 0 {
		m.invalidations.Add(float64(n))
	}
}

func (m *metrics) setSize(n int) {
	if m != nil {
		m.size.Set(float64(n))
	}
}
