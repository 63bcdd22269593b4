// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package coordinator

import (
	"context"
	"time"
)

// SetEmbeddingReady flips the readiness flag. The embedding subsystem sets
// it once its provider has warmed up.
func (c *Coordinator) SetEmbeddingReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Coordinator) IsEmbeddingReady() bool { return c.ready.Load() }

// WaitForReady polls the readiness flag until it is set, timeout elapses or
// ctx ends. It never blocks longer than timeout.
func (c *Coordinator) WaitForReady(ctx context.Context, timeout time.Duration) bool {
	if c.ready.Load() {
		return true
	}
	if timeout <= 0 {
		return false
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.opts.ReadyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.ready.Load()
		case <-deadline.C:
			return c.ready.Load()
		case <-ticker.C:
			if c.ready.Load() {
				return true
			}
		}
	}
}
