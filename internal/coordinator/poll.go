// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package coordinator

import (
	"context"
	"time"
)

// Start launches the background change-detection loop when PollInterval is
// set. Errors are logged; the loop ends with ctx or Shutdown.
func (c *Coordinator) Start(ctx context.Context) {
	if c.opts.PollInterval <= 0 {
		return
	}

	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.pollStop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.pollStop, c.pollDone = stop, done

	go func() {
		defer close(done)

		ticker := time.NewTicker(c.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if _, err := c.CheckForExternalUpdate(ctx); err != nil {
					c.logger.Error("background change detection", "error", err)
				}
			}
		}
	}()
}

func (c *Coordinator) stopPoll() {
	c.pollMu.Lock()
	stop, done := c.pollStop, c.pollDone
	c.pollStop, c.pollDone = nil, nil
	c.pollMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
