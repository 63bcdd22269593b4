// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import "math"

// counters are guarded by Cache.mu.
type counters struct {
	hits          int64
	misses        int64
	evictions     int64
	expirations   int64
	invalidations int64
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Evictions     int64   `json:"evictions"`
	Expirations   int64   `json:"expirations"`
	Invalidations int64   `json:"invalidations"`
	HitRate       float64 `json:"hit_rate"` // percent, two decimals
	Size          int     `json:"size"`
	MaxSize       int     `json:"max_size"`
	Enabled       bool    `json:"enabled"`
}

// Stats returns current counters. A disabled cache reports zeros.
func (c *Cache) Stats() Stats {
	if !c.Enabled() {
		s := Stats{}
		if c != nil {
			s.MaxSize = c.cfg.MaxEntries
		}
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:          c.stats.hits,
		Misses:        c.stats.misses,
		Evictions:     c.stats.evictions,
		Expirations:   c.stats.expirations,
		Invalidations: c.stats.invalidations,
		Size:          len(c.entries),
		MaxSize:       c.cfg.MaxEntries,
		Enabled:       true,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = math.Round(float64(s.Hits)/float64(total)*10000) / 100
	}
	return s
}

// ResetStats zeroes the counters. Entries are untouched.
func (c *Cache) ResetStats() {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	c.stats = counters{}
	c.mu.Unlock()
}
