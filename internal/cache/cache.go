// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package cache memoizes tool outputs for a short time. Entries are tagged
// with the tool ("owner") that produced them so write operations can drop
// exactly the results they made stale.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

const (
	DefaultTTL           = 60 * time.Second
	DefaultMaxEntries    = 1000
	DefaultSweepInterval = 30 * time.Second
)

// Config controls cache behaviour. A disabled cache turns every operation
// into a pass-through.
type Config struct {
	Enabled       bool
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

// DefaultConfig returns an enabled cache with the stock limits.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		TTL:           DefaultTTL,
		MaxEntries:    DefaultMaxEntries,
		SweepInterval: DefaultSweepInterval,
	}
}

type entry struct {
	value     any
	owner     string
	createdAt time.Time
	expiresAt time.Time
	seq       uint64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.After(now)
}

// Cache is a TTL map with oldest-first eviction at capacity. All state is
// guarded by one mutex; nothing blocking ever runs while it is held.
type Cache struct {
	cfg     Config
	logger  *slog.Logger
	nowFunc func() time.Time
	metrics *metrics

	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	stats   counters

	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepDone chan struct{}

	registerer prometheus.Registerer
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics registers hit/miss/eviction metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Cache) { c.registerer = reg }
}

// WithNowFunc overrides the clock. Intended for tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(c *Cache) {
		if fn != nil {
			c.nowFunc = fn
		}
	}
}

// New creates a cache. Zero TTL, MaxEntries and SweepInterval fall back to
// their defaults.
func New(cfg Config, opts ...Option) (*Cache, error) {
	if cfg.TTL < 0 || cfg.MaxEntries < 0 || cfg.SweepInterval < 0 {
		return nil, recallerr.New(recallerr.CodeConfigValidateInvalidValue,
			"cache limits must not be negative",
			recallerr.Field("ttl", cfg.TTL.String()),
			recallerr.Field("max_entries", cfg.MaxEntries),
		)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	c := &Cache{
		cfg:     cfg,
		logger:  slog.Default(),
		nowFunc: time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.registerer != nil {
		m, err := newMetrics(c.registerer)
		if err != nil {
			return nil, err
		}
		c.metrics = m
	}

	return c, nil
}

// Enabled reports whether the cache stores anything at all.
func (c *Cache) Enabled() bool { return c != nil && c.cfg.Enabled }

// TTL is the default time-to-live for new entries.
func (c *Cache) TTL() time.Duration { return c.cfg.TTL }

// Get returns the live value for key. An expired entry is removed and
// reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	if !c.Enabled() {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && e.expired(c.nowFunc()) {
		c.removeLocked(key)
		c.stats.expirations++
		ok = false
	}
	if !ok {
		c.stats.misses++
		c.metrics.miss()
		return nil, false
	}

	c.stats.hits++
	c.metrics.hit()
	return e.value, true
}

// SetOption customizes a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	owner string
	ttl   time.Duration
}

// WithOwner tags the entry with the tool that produced it.
func WithOwner(owner string) SetOption {
	return func(o *setOptions) { o.owner = owner }
}

// WithTTL overrides the default TTL for one entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// Set stores value under key. Inserting a new key into a full cache first
// evicts the entry with the oldest creation time. Set reports false only
// when the cache is disabled.
func (c *Cache) Set(key string, value any, opts ...SetOption) bool {
	if !c.Enabled() {
		return false
	}

	o := setOptions{ttl: c.cfg.TTL}
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}

	now := c.nowFunc()
	c.seq++
	c.entries[key] = &entry{
		value:     value,
		owner:     o.owner,
		createdAt: now,
		expiresAt: now.Add(o.ttl),
		seq:       c.seq,
	}
	c.metrics.setSize(len(c.entries))
	return true
}

// Has reports whether key holds a live entry, removing it if expired. It
// does not count toward hit/miss statistics.
func (c *Cache) Has(key string) bool {
	if !c.Enabled() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if e.expired(c.nowFunc()) {
		c.removeLocked(key)
		c.stats.expirations++
		return false
	}
	return true
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	if !c.Enabled() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.removeLocked(key)
	return true
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	if !c.Enabled() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*entry)
	c.stats.invalidations += int64(n)
	c.metrics.invalidated(n)
	c.metrics.setSize(0)
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	if !c.Enabled() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	c.metrics.setSize(len(c.entries))
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldest    *entry
	)
	for k, e := range c.entries {
		if oldest == nil ||
			e.createdAt.Before(oldest.createdAt) ||
			(e.createdAt.Equal(oldest.createdAt) && e.seq < oldest.seq) {
			oldestKey, oldest = k, e
		}
	}
	if oldest == nil {
		return
	}

	c.removeLocked(oldestKey)
	c.stats.evictions++
	c.metrics.evicted()
	c.logger.Debug("cache entry evicted",
		"key", oldestKey,
		"owner", oldest.owner,
		"age", c.nowFunc().Sub(oldest.createdAt),
	)
}
