// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package coordinator

import (
	"context"
	"strconv"
	"time"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// LastScanKey is the config row holding the last index scan time.
const LastScanKey = "last_index_scan"

// GetLastScanTime returns the last index scan as unix milliseconds, or 0 if
// no scan was recorded or the store cannot be read.
func (c *Coordinator) GetLastScanTime(ctx context.Context) int64 {
	h := c.Handle()
	if h == nil {
		return 0
	}

	raw, err := h.Config().Get(ctx, LastScanKey)
	if err != nil {
		if !recallerr.IsNotFound(err) {
			c.logger.Warn("reading last scan time", "error", err)
		}
		return 0
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.logger.Warn("malformed last scan time", "value", raw, "error", err)
		return 0
	}
	return ms
}

// SetLastScanTime records a scan at ms. Failures are logged, not returned.
func (c *Coordinator) SetLastScanTime(ctx context.Context, ms int64) {
	h := c.Handle()
	if h == nil {
		c.logger.Warn("recording last scan time: store not open")
		return
	}
	if err := h.Config().Set(ctx, LastScanKey, strconv.FormatInt(ms, 10)); err != nil {
		c.logger.Warn("recording last scan time", "error", err)
	}
}

// ScanAllowed reports whether the scan cooldown has elapsed. When it has
// not, the remaining wait is returned.
func (c *Coordinator) ScanAllowed(ctx context.Context) (bool, time.Duration) {
	last := c.GetLastScanTime(ctx)
	if last == 0 {
		return true, 0
	}

	next := time.UnixMilli(last).Add(c.opts.ScanCooldown)
	if wait := next.Sub(c.nowFunc()); wait > 0 {
		return false, wait
	}
	return true, 0
}
