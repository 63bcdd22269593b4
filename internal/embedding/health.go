// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"sync"
	"time"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
	"github.com/sigil-dev/recall/pkg/health"
)

// DefaultHealthCooldown is how long auto selection skips a provider after
// it failed.
const DefaultHealthCooldown = 5 * time.Minute

// HealthTracker remembers recent provider failures. A provider is healthy
// until RecordFailure, then unavailable for the cooldown.
type HealthTracker struct {
	mu           sync.RWMutex
	provider     string
	healthy      bool
	failedAt     time.Time
	lastError    string
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time
}

// NewHealthTracker creates a tracker that starts healthy.
func NewHealthTracker(provider string, cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, recallerr.Errorf(recallerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		provider: provider,
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// isHealthyLocked: caller holds h.mu.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

// RecordFailure marks the provider unhealthy and counts the failure.
func (h *HealthTracker) RecordFailure(err error) {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	if err != nil {
		h.lastError = err.Error()
	}
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Metrics returns a serializable snapshot.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		Provider:     h.provider,
		FailureCount: h.failureCount,
		LastError:    h.lastError,
		Available:    h.isHealthyLocked(),
	}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	if !h.healthy {
		until := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}
