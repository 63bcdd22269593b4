// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package coordinator_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/coordinator"
	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

func newTestCoordinator(t *testing.T, opener *fakeOpener) (*coordinator.Coordinator, string) {
	t.Helper()
	marker := filepath.Join(t.TempDir(), ".db-updated")
	c, err := coordinator.New(coordinator.Options{
		Storage:    store.StorageConfig{Path: "fake.db"},
		MarkerPath: marker,
		Open:       opener.Open,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })
	return c, marker
}

func TestNew_Validation(t *testing.T) {
	_, err := coordinator.New(coordinator.Options{})
	assert.True(t, recallerr.IsConfiguration(err))

	_, err = coordinator.New(coordinator.Options{
		Storage:      store.StorageConfig{Path: "x.db"},
		PollInterval: -time.Second,
	})
	assert.True(t, recallerr.IsConfiguration(err))
}

func TestInit_WiresDependentsInOrder(t *testing.T) {
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)

	var order []string
	c.Register("first", coordinator.DependentFunc(func(context.Context, store.Handle) error {
		order = append(order, "first")
		return nil
	}))
	c.Register("second", coordinator.DependentFunc(func(context.Context, store.Handle) error {
		order = append(order, "second")
		return nil
	}))

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.NotNil(t, c.Handle())
	assert.Equal(t, coordinator.StateIdle, c.State())

	// Init is idempotent.
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, int64(1), opener.opens.Load())
}

func TestInit_SeedsLastSeenFromMarker(t *testing.T) {
	opener := newFakeOpener()
	c, marker := newTestCoordinator(t, opener)

	require.NoError(t, coordinator.MarkUpdated(marker, time.UnixMilli(5000)))
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, int64(5000), c.LastSeenMarker())

	changed, err := c.CheckForExternalUpdate(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReinitialize_SwapsHandleAndRunsResetHooks(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)

	dep := &recordingDependent{}
	c.Register("dep", dep)
	var resets atomic.Int32
	c.OnReset("cache", func() { resets.Add(1) })

	require.NoError(t, c.Init(ctx))
	first := c.Handle()

	require.NoError(t, c.Reinitialize(ctx))

	assert.True(t, first.(*fakeHandle).closed.Load())
	assert.NotSame(t, first, c.Handle())
	assert.Same(t, c.Handle(), dep.last())
	assert.Equal(t, 2, dep.count())
	assert.Equal(t, int32(1), resets.Load())
	assert.Equal(t, int64(1), c.Reinitializations())
}

func TestReinitialize_ConcurrentCallersShareOneSequence(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)

	dep := &recordingDependent{}
	c.Register("dep", dep)
	require.NoError(t, c.Init(ctx))
	first := c.Handle().(*fakeHandle)

	release := opener.block()

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	finished := make([]atomic.Bool, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = c.Reinitialize(ctx)
		finished[0].Store(true)
	}()
	opener.waitEntered()
	assert.Equal(t, coordinator.StateInProgress, c.State())

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Reinitialize(ctx)
			finished[i].Store(true)
		}()
	}

	// Nobody may finish while the single sequence is blocked in reopen.
	time.Sleep(20 * time.Millisecond)
	for i := range callers {
		assert.False(t, finished[i].Load(), "caller %d finished early", i)
	}

	release()
	wg.Wait()

	for i := range callers {
		assert.NoError(t, errs[i])
	}
	assert.Equal(t, int64(2), opener.opens.Load(), "one open for Init, one for the shared reinit")
	assert.Equal(t, int64(1), c.Reinitializations())
	assert.True(t, first.closed.Load())
	assert.Equal(t, 2, dep.count())
	assert.Equal(t, coordinator.StateIdle, c.State())
}

func TestReinitialize_FailureReleasesMarkerAndPropagates(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)
	require.NoError(t, c.Init(ctx))

	opener.setFail(errors.New("disk gone"))
	release := opener.block()

	leaderErr := make(chan error, 1)
	go func() { leaderErr <- c.Reinitialize(ctx) }()
	opener.waitEntered()

	waiterErr := make(chan error, 1)
	go func() { waiterErr <- c.Reinitialize(ctx) }()

	release()

	for _, ch := range []chan error{leaderErr, waiterErr} {
		select {
		case err := <-ch:
			require.Error(t, err)
			assert.True(t, recallerr.HasCode(err, recallerr.CodeStateReinitFailure))
			assert.Contains(t, err.Error(), "disk gone")
		case <-time.After(2 * time.Second):
			t.Fatal("caller never resolved")
		}
	}

	assert.Equal(t, coordinator.StateIdle, c.State())
	assert.Nil(t, c.Handle())

	// The mutex is free again: a retry runs a fresh sequence.
	opener.setFail(nil)
	require.NoError(t, c.Reinitialize(ctx))
	assert.NotNil(t, c.Handle())
}

func TestReinitialize_WaiterContextCancelled(t *testing.T) {
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)
	require.NoError(t, c.Init(context.Background()))

	release := opener.block()
	leaderErr := make(chan error, 1)
	go func() { leaderErr <- c.Reinitialize(context.Background()) }()
	opener.waitEntered()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Reinitialize(ctx), context.Canceled)

	release()
	require.NoError(t, <-leaderErr)
}

func TestReinitialize_RewireIsBestEffort(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)

	failing := &recordingDependent{}
	after := &recordingDependent{}
	c.Register("failing", failing)
	c.Register("after", after)
	require.NoError(t, c.Init(ctx))

	failing.mu.Lock()
	failing.err = errors.New("index corrupt")
	failing.mu.Unlock()

	err := c.Reinitialize(ctx)
	require.Error(t, err)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStateRewireFailure))
	assert.Contains(t, err.Error(), "failing")

	// The later dependent was still re-wired onto the new handle.
	assert.Equal(t, 2, after.count())
	assert.Same(t, c.Handle(), after.last())
	assert.Equal(t, coordinator.StateIdle, c.State())
}

func TestCheckForExternalUpdate(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, marker := newTestCoordinator(t, opener)
	require.NoError(t, c.Init(ctx))

	// No marker yet.
	changed, err := c.CheckForExternalUpdate(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, coordinator.MarkUpdated(marker, time.UnixMilli(1000)))
	changed, err = c.CheckForExternalUpdate(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(1000), c.LastSeenMarker())

	// Same marker again is not a change.
	changed, err = c.CheckForExternalUpdate(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	// Older marker is not a change either.
	require.NoError(t, coordinator.MarkUpdated(marker, time.UnixMilli(500)))
	changed, err = c.CheckForExternalUpdate(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, int64(1), c.Reinitializations())
}

func TestCheckForExternalUpdate_ConcurrentCheckersReinitOnce(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, marker := newTestCoordinator(t, opener)
	require.NoError(t, c.Init(ctx))

	require.NoError(t, coordinator.MarkUpdated(marker, time.UnixMilli(2000)))

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, err := c.CheckForExternalUpdate(ctx)
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.Equal(t, int64(1), c.Reinitializations())
}

func TestShutdown(t *testing.T) {
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)
	require.NoError(t, c.Init(context.Background()))
	h := c.Handle().(*fakeHandle)

	require.NoError(t, c.Shutdown())
	assert.True(t, h.closed.Load())
	assert.Nil(t, c.Handle())
	require.NoError(t, c.Shutdown())

	err := c.Reinitialize(context.Background())
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStateNotInitialized))
}

func TestStart_PollsForChanges(t *testing.T) {
	opener := newFakeOpener()
	marker := filepath.Join(t.TempDir(), ".db-updated")
	c, err := coordinator.New(coordinator.Options{
		Storage:      store.StorageConfig{Path: "fake.db"},
		MarkerPath:   marker,
		PollInterval: 5 * time.Millisecond,
		Open:         opener.Open,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Init(ctx))
	c.Start(ctx)

	require.NoError(t, coordinator.MarkUpdated(marker, time.Now()))
	assert.Eventually(t, func() bool { return c.Reinitializations() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Shutdown())
}

func TestShutdown_DuringReinitializeClosesEachHandleOnce(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)
	require.NoError(t, c.Init(ctx))
	first := c.Handle().(*fakeHandle)

	release := opener.block()
	reinitErr := make(chan error, 1)
	go func() { reinitErr <- c.Reinitialize(ctx) }()
	opener.waitEntered()

	// The sequence owns the old handle while it reopens.
	assert.Nil(t, c.Handle())
	require.NoError(t, c.Shutdown())

	release()
	err := <-reinitErr
	require.Error(t, err)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStateNotInitialized))

	assert.Equal(t, int32(1), first.closes.Load())
	handles := opener.opened()
	require.Len(t, handles, 2)
	assert.Equal(t, int32(1), handles[1].closes.Load(), "reopened handle is closed by the sequence")
	assert.Nil(t, c.Handle())
}

func TestInit_ConcurrentCallersOpenOnce(t *testing.T) {
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)
	dep := &recordingDependent{}
	c.Register("dep", dep)

	release := opener.block()

	const callers = 5
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() { errs[i] = c.Init(context.Background()) })
	}
	opener.waitEntered()
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	for i := range callers {
		assert.NoError(t, errs[i])
	}
	assert.Equal(t, int64(1), opener.opens.Load())
	assert.Equal(t, 1, dep.count())
	for _, h := range opener.opened() {
		assert.Same(t, c.Handle(), store.Handle(h))
	}
}

func TestAttach_BeforeInitOnlyRegisters(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)

	dep := &recordingDependent{}
	require.NoError(t, c.Attach(ctx, "late", dep))
	assert.Equal(t, 0, dep.count())

	require.NoError(t, c.Init(ctx))
	assert.Equal(t, 1, dep.count())
	assert.Same(t, c.Handle(), dep.last())
}

func TestAttach_WaitsForRunningReconnection(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)
	require.NoError(t, c.Init(ctx))

	release := opener.block()
	reinitErr := make(chan error, 1)
	go func() { reinitErr <- c.Reinitialize(ctx) }()
	opener.waitEntered()

	dep := &recordingDependent{}
	attachErr := make(chan error, 1)
	go func() { attachErr <- c.Attach(ctx, "late", dep) }()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, dep.count(), "attach must not wire onto the closed handle")

	release()
	require.NoError(t, <-reinitErr)
	require.NoError(t, <-attachErr)

	require.Equal(t, 1, dep.count())
	assert.Same(t, c.Handle(), dep.last())
	assert.False(t, dep.last().(*fakeHandle).closed.Load())
}

func TestAttach_HoldsOffReconnectionUntilWired(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)
	require.NoError(t, c.Init(ctx))
	first := c.Handle()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var seen []store.Handle
	var mu sync.Mutex
	var calls atomic.Int32
	dep := coordinator.DependentFunc(func(_ context.Context, h store.Handle) error {
		mu.Lock()
		seen = append(seen, h)
		mu.Unlock()
		if calls.Add(1) == 1 {
			close(entered)
			<-unblock
		}
		return nil
	})

	attachErr := make(chan error, 1)
	go func() { attachErr <- c.Attach(ctx, "slow", dep) }()
	<-entered

	reinitErr := make(chan error, 1)
	go func() { reinitErr <- c.Reinitialize(ctx) }()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), opener.opens.Load(), "reconnection started while a dependent was being wired")
	assert.False(t, first.(*fakeHandle).closed.Load())

	close(unblock)
	require.NoError(t, <-attachErr)
	require.NoError(t, <-reinitErr)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Same(t, first, seen[0])
	assert.Same(t, c.Handle(), seen[1])
	assert.Equal(t, int64(1), c.Reinitializations())
}
