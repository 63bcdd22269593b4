// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

const (
	visitorSweepInterval = 5 * time.Minute
	visitorStaleAfter    = 10 * time.Minute
	defaultMaxVisitors   = 10000
)

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client IP. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxVisitors caps the number of tracked IPs. Default: 10000.
	MaxVisitors int
}

// Validate checks the config and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return recallerr.Errorf(recallerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return recallerr.Errorf(recallerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)",
			c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return recallerr.Errorf(recallerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = defaultMaxVisitors
	}
	return nil
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// ipLimiter is a token bucket per client IP.
type ipLimiter struct {
	cfg     RateLimitConfig
	nowFunc func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newIPLimiter(cfg RateLimitConfig, nowFunc func() time.Time) *ipLimiter {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &ipLimiter{cfg: cfg, nowFunc: nowFunc, buckets: make(map[string]*bucket)}
}

func (l *ipLimiter) allow(ip string) bool {
	now := l.nowFunc()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.buckets[ip] = b
	}
	b.lastSeen = now

	b.tokens += now.Sub(b.lastRefill).Seconds() * l.cfg.RequestsPerSecond
	b.tokens = min(b.tokens, float64(l.cfg.Burst))
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops idle buckets and then the oldest ones above MaxVisitors.
// It returns how many were evicted for the cap.
func (l *ipLimiter) sweep() int {
	now := l.nowFunc()

	l.mu.Lock()
	defer l.mu.Unlock()

	type seen struct {
		ip   string
		last time.Time
	}
	live := make([]seen, 0, len(l.buckets))
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > visitorStaleAfter {
			delete(l.buckets, ip)
			continue
		}
		live = append(live, seen{ip: ip, last: b.lastSeen})
	}

	excess := len(live) - l.cfg.MaxVisitors
	if l.cfg.MaxVisitors <= 0 || excess <= 0 {
		return 0
	}
	slices.SortFunc(live, func(a, b seen) int { return a.last.Compare(b.last) })
	for _, s := range live[:excess] {
		delete(l.buckets, s.ip)
	}
	return excess
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// rateLimitMiddleware enforces per-IP limits. It is a pass-through when
// cfg.RequestsPerSecond is zero. done stops the sweeper.
func rateLimitMiddleware(cfg RateLimitConfig, logger *slog.Logger, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	l := newIPLimiter(cfg, nil)
	go func() {
		ticker := time.NewTicker(visitorSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := l.sweep(); n > 0 {
					logger.Warn("rate limiter visitor cap enforced", "evicted", n, "max_visitors", cfg.MaxVisitors)
				}
			case <-done:
				return
			}
		}
	}()

	return limitWith(l, logger)
}

func limitWith(l *ipLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Limit by host so ephemeral ports do not get separate buckets.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !l.allow(ip) {
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":429,"title":"Too Many Requests","detail":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
