// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package tools runs tool invocations against the store with the request
// lifecycle every call shares: an opportunistic external-update check, the
// output cache for reads and targeted invalidation after writes.
package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/coordinator"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// DispatcherConfig holds dependencies for Dispatcher.
type DispatcherConfig struct {
	Coordinator *coordinator.Coordinator
	// Cache may be nil, which disables output caching.
	Cache  *cache.Cache
	Logger *slog.Logger
	// DefaultTimeout bounds each tool body. Zero means no timeout.
	DefaultTimeout time.Duration
	// NowFunc stamps scan times. Defaults to time.Now.
	NowFunc func() time.Time
}

// Dispatcher sequences tool calls around the coordinator and the cache.
type Dispatcher struct {
	coord          *coordinator.Coordinator
	cache          *cache.Cache
	logger         *slog.Logger
	defaultTimeout time.Duration
	nowFunc        func() time.Time
}

// NewDispatcher validates cfg and returns a Dispatcher. It registers a reset
// hook so that every reconnection clears the whole cache.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Coordinator == nil {
		return nil, recallerr.New(recallerr.CodeServerConfigInvalid, "Coordinator is required")
	}
	if cfg.DefaultTimeout < 0 {
		return nil, recallerr.New(recallerr.CodeConfigValidateInvalidValue, "tool timeout must not be negative")
	}

	d := &Dispatcher{
		coord:          cfg.Coordinator,
		cache:          cfg.Cache,
		logger:         cfg.Logger,
		defaultTimeout: cfg.DefaultTimeout,
		nowFunc:        cfg.NowFunc,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.nowFunc == nil {
		d.nowFunc = time.Now
	}

	cfg.Coordinator.OnReset("output_cache", func() {
		n := d.cache.InvalidateOnWrite(cache.OpReinitialize, cache.WriteEvent{Source: "coordinator"})
		d.logger.Debug("cache cleared for reconnection", "entries", n)
	})
	return d, nil
}

// Cache returns the output cache, which may be nil.
func (d *Dispatcher) Cache() *cache.Cache { return d.cache }

// sync runs the external-update check. A failed reconnection is returned so
// the tool does not run against a closed handle.
func (d *Dispatcher) sync(ctx context.Context) error {
	reinit, err := d.coord.CheckForExternalUpdate(ctx)
	if err != nil {
		return err
	}
	if reinit {
		d.logger.Info("store changed externally, reconnected")
	}
	return nil
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.defaultTimeout > 0 {
		return context.WithTimeout(ctx, d.defaultTimeout)
	}
	return ctx, func() {}
}

// Read runs a read-only tool: the external-update check, then the cached
// result for (owner, args) or fn.
func Read[T any](
	ctx context.Context,
	d *Dispatcher,
	owner string,
	args any,
	fn func(context.Context) (T, error),
	opts ...cache.CallOption,
) (T, error) {
	if err := d.sync(ctx); err != nil {
		var zero T
		return zero, err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	return cache.WithCache(ctx, d.cache, owner, args, fn, opts...)
}

// Write runs a mutating tool and then invalidates the owners op affects.
// Invalidation happens even when fn fails, since a failed write may still
// have committed part of its work.
func (d *Dispatcher) Write(ctx context.Context, op cache.WriteOp, ev cache.WriteEvent, fn func(context.Context) error) error {
	if err := d.sync(ctx); err != nil {
		return err
	}

	execCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	err := fn(execCtx)
	n := d.cache.InvalidateOnWrite(op, ev)
	d.logger.Debug("write completed", "op", op, "invalidated", n, "error", err)
	return err
}

// Scan runs an index scan unless the persisted cooldown is still running,
// in which case it returns a budget-exceeded error carrying the wait.
// A successful scan stamps the cooldown and invalidates memory readers.
func (d *Dispatcher) Scan(ctx context.Context, fn func(context.Context) error) error {
	if err := d.sync(ctx); err != nil {
		return err
	}

	if ok, wait := d.coord.ScanAllowed(ctx); !ok {
		wait = wait.Round(time.Second)
		return recallerr.New(recallerr.CodeToolScanCooldown,
			"index scan rate limited, retry in "+wait.String(),
			recallerr.Field("retry_after_seconds", int64(wait/time.Second)),
		)
	}

	execCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := fn(execCtx); err != nil {
		return err
	}

	d.coord.SetLastScanTime(ctx, d.nowFunc().UnixMilli())
	d.cache.InvalidateOnWrite(cache.OpIndexScan, cache.WriteEvent{Source: "scan"})
	return nil
}
