// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import (
	"context"
	"time"
)

// Start launches the background sweep that drops expired entries every
// SweepInterval. It returns immediately; the sweep ends when ctx is done or
// Close is called. Calling Start on a running or disabled cache is a no-op.
func (c *Cache) Start(ctx context.Context) {
	if !c.Enabled() {
		return
	}

	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.sweepStop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.sweepStop, c.sweepDone = stop, done

	go func() {
		defer close(done)

		ticker := time.NewTicker(c.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.logger.Debug("cache sweep removed expired entries", "count", n)
				}
			}
		}
	}()
}

// Sweep removes all expired entries now and returns how many went.
func (c *Cache) Sweep() int {
	if !c.Enabled() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	var n int
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.stats.expirations += int64(n)
		c.metrics.setSize(len(c.entries))
	}
	return n
}

// Close stops the background sweep and waits for it to exit.
func (c *Cache) Close() {
	if c == nil {
		return
	}

	c.sweepMu.Lock()
	stop, done := c.sweepStop, c.sweepDone
	c.sweepStop, c.sweepDone = nil, nil
	c.sweepMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
