// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package coordinator_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/coordinator"
	"github.com/sigil-dev/recall/internal/store"
	_ "github.com/sigil-dev/recall/internal/store/sqlite"
)

func TestLastScanTime_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "recall.db")
	opts := coordinator.Options{Storage: store.StorageConfig{Backend: "sqlite", Path: dbPath}}

	c, err := coordinator.New(opts)
	require.NoError(t, err)
	require.NoError(t, c.Init(ctx))

	assert.Zero(t, c.GetLastScanTime(ctx))
	c.SetLastScanTime(ctx, 1718000000000)
	assert.Equal(t, int64(1718000000000), c.GetLastScanTime(ctx))

	// Survives a reconnection on the same handle owner.
	require.NoError(t, c.Reinitialize(ctx))
	assert.Equal(t, int64(1718000000000), c.GetLastScanTime(ctx))
	require.NoError(t, c.Shutdown())

	// And a full process restart.
	c, err = coordinator.New(opts)
	require.NoError(t, err)
	require.NoError(t, c.Init(ctx))
	defer func() { _ = c.Shutdown() }()
	assert.Equal(t, int64(1718000000000), c.GetLastScanTime(ctx))
}

func TestLastScanTime_StoreFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)

	// Before Init there is no handle at all.
	assert.Zero(t, c.GetLastScanTime(ctx))
	c.SetLastScanTime(ctx, 10)

	require.NoError(t, c.Init(ctx))
	opener.config.mu.Lock()
	opener.config.err = errors.New("database is locked")
	opener.config.mu.Unlock()

	assert.Zero(t, c.GetLastScanTime(ctx))
	assert.NotPanics(t, func() { c.SetLastScanTime(ctx, 20) })
}

func TestLastScanTime_MalformedValue(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	c, _ := newTestCoordinator(t, opener)
	require.NoError(t, c.Init(ctx))

	require.NoError(t, c.Handle().Config().Set(ctx, coordinator.LastScanKey, "not-a-number"))
	assert.Zero(t, c.GetLastScanTime(ctx))
}

func TestScanAllowed(t *testing.T) {
	ctx := context.Background()
	opener := newFakeOpener()
	now := time.UnixMilli(1_000_000)

	c, err := coordinator.New(coordinator.Options{
		Storage:      store.StorageConfig{Path: "fake.db"},
		ScanCooldown: time.Minute,
		Open:         opener.Open,
		NowFunc:      func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NoError(t, c.Init(ctx))
	defer func() { _ = c.Shutdown() }()

	ok, wait := c.ScanAllowed(ctx)
	assert.True(t, ok)
	assert.Zero(t, wait)

	c.SetLastScanTime(ctx, now.Add(-20*time.Second).UnixMilli())
	ok, wait = c.ScanAllowed(ctx)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, wait)

	c.SetLastScanTime(ctx, now.Add(-2*time.Minute).UnixMilli())
	ok, _ = c.ScanAllowed(ctx)
	assert.True(t, ok)
}
