// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package coordinator owns the store handle and keeps every component that
// reads through it consistent when another process rewrites the database.
// It detects out-of-band writes through a sentinel marker file, collapses
// concurrent reconnection requests into a single close/reopen sequence and
// re-wires dependents onto the fresh handle.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

const (
	DefaultScanCooldown      = 60 * time.Second
	DefaultReadyPollInterval = 50 * time.Millisecond
)

// Dependent is a component that reads through the store handle. Init is
// called once at startup and again after every reconnection; the handle
// stays owned by the Coordinator and must not be closed by the dependent.
type Dependent interface {
	Init(ctx context.Context, h store.Handle) error
}

// DependentFunc adapts a function to the Dependent interface.
type DependentFunc func(ctx context.Context, h store.Handle) error

func (f DependentFunc) Init(ctx context.Context, h store.Handle) error { return f(ctx, h) }

// State is the reconnection state machine.
type State int

const (
	StateIdle State = iota
	StateInProgress
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in_progress"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Coordinator.
type Options struct {
	Storage    store.StorageConfig
	MarkerPath string

	// PollInterval enables the background change-detection loop started by
	// Start. Zero disables it.
	PollInterval      time.Duration
	ScanCooldown      time.Duration
	ReadyPollInterval time.Duration

	Logger *slog.Logger

	// Open overrides how handles are opened. Defaults to store.Open.
	Open    func(cfg *store.StorageConfig) (store.Handle, error)
	NowFunc func() time.Time
}

type namedDependent struct {
	name string
	dep  Dependent
}

type namedHook struct {
	name string
	fn   func()
}

type callKind int

const (
	callInit callKind = iota
	callReconnect
	callAttach
)

// reinitCall is the in-flight marker. Every sequence that touches the
// handle installs one, so at most one runs at a time. done is closed once
// err is final.
type reinitCall struct {
	id   string
	kind callKind
	done chan struct{}
	err  error
}

var errReinitAborted = errors.New("reinitialization aborted")

// Coordinator exclusively owns the store handle, the in-flight marker and
// the embedding readiness flag.
type Coordinator struct {
	opts    Options
	logger  *slog.Logger
	open    func(cfg *store.StorageConfig) (store.Handle, error)
	nowFunc func() time.Time

	mu         sync.Mutex
	handle     store.Handle
	dependents []namedDependent
	resetHooks []namedHook
	inflight   *reinitCall
	lastSeen   int64
	closed     bool

	reinits atomic.Int64
	ready   atomic.Bool

	pollMu   sync.Mutex
	pollStop chan struct{}
	pollDone chan struct{}
}

// New validates opts and returns an uninitialized Coordinator. Call Init
// before use.
func New(opts Options) (*Coordinator, error) {
	if opts.Storage.Path == "" {
		return nil, recallerr.New(recallerr.CodeConfigValidateInvalidValue, "coordinator: storage path is required")
	}
	if opts.PollInterval < 0 || opts.ScanCooldown < 0 || opts.ReadyPollInterval < 0 {
		return nil, recallerr.New(recallerr.CodeConfigValidateInvalidValue, "coordinator: intervals must not be negative")
	}
	if opts.ScanCooldown == 0 {
		opts.ScanCooldown = DefaultScanCooldown
	}
	if opts.ReadyPollInterval == 0 {
		opts.ReadyPollInterval = DefaultReadyPollInterval
	}

	c := &Coordinator{
		opts:    opts,
		logger:  opts.Logger,
		open:    opts.Open,
		nowFunc: opts.NowFunc,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.open == nil {
		c.open = store.Open
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	return c, nil
}

// Register adds a dependent. Dependents are re-wired in registration order.
// Register before Init; dependents added later are wired on the next
// reconnection. Use Attach to add one to a running coordinator.
func (c *Coordinator) Register(name string, d Dependent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dependents = append(c.dependents, namedDependent{name: name, dep: d})
}

// OnReset adds a hook that clears derived state (caches, lookaheads). Hooks
// run at the start of every reconnection, before the old handle closes.
func (c *Coordinator) OnReset(name string, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetHooks = append(c.resetHooks, namedHook{name: name, fn: fn})
}

// Init opens the store, wires every registered dependent and records the
// current marker as already seen. Concurrent callers share one open.
func (c *Coordinator) Init(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return errShutdown()
		}
		if call := c.inflight; call != nil {
			c.mu.Unlock()
			if err := c.wait(ctx, call); err != nil {
				return err
			}
			continue
		}
		if c.handle != nil {
			c.mu.Unlock()
			return nil
		}
		call := c.installLocked(callInit)
		deps := slices.Clone(c.dependents)
		c.mu.Unlock()

		return c.lead(call, func() error { return c.openAndWire(ctx, deps) })
	}
}

func (c *Coordinator) openAndWire(ctx context.Context, deps []namedDependent) error {
	h, err := c.open(&c.opts.Storage)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = h.Close()
		return errShutdown()
	}
	c.handle = h
	if ts, ok := ReadMarker(c.opts.MarkerPath); ok && ts > c.lastSeen {
		c.lastSeen = ts
	}
	c.mu.Unlock()

	c.logger.Info("store opened", "path", h.Path(), "dependents", len(deps))
	return c.rewire(ctx, h, deps)
}

// Attach registers a dependent and wires it to the current handle. No
// reconnection can start until its Init returns, so it never sees a closed
// handle. When the store is not open the dependent is only registered and
// gets wired by the next Init or reconnection.
func (c *Coordinator) Attach(ctx context.Context, name string, d Dependent) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return errShutdown()
		}
		if call := c.inflight; call != nil {
			c.mu.Unlock()
			if err := c.wait(ctx, call); err != nil {
				return err
			}
			continue
		}
		c.dependents = append(c.dependents, namedDependent{name: name, dep: d})
		h := c.handle
		if h == nil {
			c.mu.Unlock()
			c.logger.Warn("store not open, dependent wired on next reconnection", "dependent", name)
			return nil
		}
		call := c.installLocked(callAttach)
		c.mu.Unlock()

		return c.lead(call, func() error {
			return c.rewire(ctx, h, []namedDependent{{name: name, dep: d}})
		})
	}
}

func (c *Coordinator) installLocked(kind callKind) *reinitCall {
	call := &reinitCall{
		id:   uuid.NewString(),
		kind: kind,
		done: make(chan struct{}),
		err:  errReinitAborted,
	}
	c.inflight = call
	return call
}

// lead runs fn as the owner of call and releases the marker afterwards,
// also when fn panics.
func (c *Coordinator) lead(call *reinitCall, fn func() error) error {
	defer func() {
		c.mu.Lock()
		c.inflight = nil
		c.mu.Unlock()
		close(call.done)
	}()
	call.err = fn()
	return call.err
}

func errShutdown() error {
	return recallerr.New(recallerr.CodeStateNotInitialized, "coordinator is shut down")
}

// Handle returns the current store handle, or nil before Init, while a
// reconnection runs and after a failed one.
func (c *Coordinator) Handle() store.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// State reports whether a reconnection is running.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil && c.inflight.kind == callReconnect {
		return StateInProgress
	}
	return StateIdle
}

// Reinitializations counts completed close/reopen sequences.
func (c *Coordinator) Reinitializations() int64 { return c.reinits.Load() }

// LastSeenMarker is the newest marker timestamp already acted on.
func (c *Coordinator) LastSeenMarker() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// CheckForExternalUpdate compares the sentinel marker with the last value
// acted on and reconnects when the marker is strictly newer. A missing or
// malformed marker means no change. The returned bool reports whether a
// reconnection ran (or was joined).
func (c *Coordinator) CheckForExternalUpdate(ctx context.Context) (bool, error) {
	ts, ok := ReadMarker(c.opts.MarkerPath)
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	seen := c.lastSeen
	c.mu.Unlock()
	if ts <= seen {
		return false, nil
	}

	c.logger.Debug("external store update detected", "marker", ts, "last_seen", seen)
	return true, c.reinitialize(ctx, ts)
}

// Reinitialize closes and reopens the store and re-wires all dependents.
// Callers arriving while a sequence runs wait for it and share its result
// instead of starting another one. A waiter whose ctx ends stops waiting
// with ctx.Err(); the sequence itself is not cancelled.
func (c *Coordinator) Reinitialize(ctx context.Context) error {
	return c.reinitialize(ctx, 0)
}

// reinitialize runs or joins a sequence. A non-zero markerTS that is no
// longer newer than lastSeen means another caller already handled it.
// Init and reconnection sequences are joined; an Attach is waited out and
// then a fresh sequence starts.
func (c *Coordinator) reinitialize(ctx context.Context, markerTS int64) error {
	for {
		c.mu.Lock()
		if call := c.inflight; call != nil {
			c.mu.Unlock()
			if call.kind != callAttach {
				return c.await(ctx, call)
			}
			if err := c.wait(ctx, call); err != nil {
				return err
			}
			continue
		}
		if c.closed {
			c.mu.Unlock()
			return errShutdown()
		}
		if markerTS != 0 && markerTS <= c.lastSeen {
			c.mu.Unlock()
			return nil
		}

		// Idle check and install happen under the same lock hold. The
		// sequence takes sole ownership of the old handle.
		call := c.installLocked(callReconnect)
		old := c.handle
		c.handle = nil
		hooks := slices.Clone(c.resetHooks)
		deps := slices.Clone(c.dependents)
		c.mu.Unlock()

		// Dependents must not be left half-wired because the leader gave up.
		return c.lead(call, func() error {
			return c.runSequence(context.WithoutCancel(ctx), call.id, old, hooks, deps, markerTS)
		})
	}
}

func (c *Coordinator) await(ctx context.Context, call *reinitCall) error {
	c.logger.Debug("joining in-flight reinitialization", "sequence", call.id)
	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait blocks until call finishes without adopting its result.
func (c *Coordinator) wait(ctx context.Context, call *reinitCall) error {
	select {
	case <-call.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) runSequence(
	ctx context.Context,
	id string,
	old store.Handle,
	hooks []namedHook,
	deps []namedDependent,
	markerTS int64,
) error {
	started := c.nowFunc()
	c.logger.Info("reinitializing store", "sequence", id, "marker", markerTS)

	for _, h := range hooks {
		h.fn()
		c.logger.Debug("reset hook ran", "sequence", id, "hook", h.name)
	}

	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.Warn("closing previous store handle", "sequence", id, "error", err)
		}
	}

	h, err := c.open(&c.opts.Storage)
	if err != nil {
		c.logger.Error("store reopen failed", "sequence", id, "error", err)
		return recallerr.New(recallerr.CodeStateReinitFailure,
			fmt.Sprintf("reopening store: %v", err),
			recallerr.FieldPath(c.opts.Storage.Path),
			recallerr.Field("sequence", id),
		)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = h.Close()
		return recallerr.New(recallerr.CodeStateNotInitialized, "coordinator shut down during reinitialization")
	}
	c.handle = h
	c.mu.Unlock()
	c.reinits.Add(1)

	if err := c.rewire(ctx, h, deps); err != nil {
		return err
	}

	seen := markerTS
	if ts, ok := ReadMarker(c.opts.MarkerPath); ok && ts > seen {
		seen = ts
	}
	c.mu.Lock()
	if seen > c.lastSeen {
		c.lastSeen = seen
	}
	c.mu.Unlock()

	c.logger.Info("store reinitialized",
		"sequence", id,
		"dependents", len(deps),
		"duration", c.nowFunc().Sub(started),
	)
	return nil
}

// rewire calls Init on every dependent in order. It is best-effort: a
// failing dependent does not stop the rest and nothing is rolled back.
func (c *Coordinator) rewire(ctx context.Context, h store.Handle, deps []namedDependent) error {
	var errs []error
	var failed []string
	for _, d := range deps {
		if err := d.dep.Init(ctx, h); err != nil {
			c.logger.Error("dependent re-init failed", "dependent", d.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
			failed = append(failed, d.name)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return recallerr.New(recallerr.CodeStateRewireFailure,
		fmt.Sprintf("re-wiring dependents: %v", errors.Join(errs...)),
		recallerr.Field("failed", failed),
	)
}

// Shutdown stops the poller and closes the handle. Safe to call twice.
func (c *Coordinator) Shutdown() error {
	c.stopPoll()

	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.closed = true
	c.mu.Unlock()

	c.ready.Store(false)
	if h == nil {
		return nil
	}
	if err := h.Close(); err != nil {
		return recallerr.Wrap(err, recallerr.CodeStoreDatabaseFailure, "closing store handle")
	}
	return nil
}
