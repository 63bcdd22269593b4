// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache_test

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/cache"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, cfg cache.Config, clock *fakeClock) *cache.Cache {
	t.Helper()
	c, err := cache.New(cfg, cache.WithNowFunc(clock.Now))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNew_Defaults(t *testing.T) {
	c, err := cache.New(cache.Config{Enabled: true})
	require.NoError(t, err)

	assert.Equal(t, cache.DefaultTTL, c.TTL())
	assert.Equal(t, cache.DefaultMaxEntries, c.Stats().MaxSize)
	assert.True(t, c.Enabled())
}

func TestNew_NegativeLimits(t *testing.T) {
	_, err := cache.New(cache.Config{Enabled: true, MaxEntries: -1})
	require.Error(t, err)
	assert.True(t, recallerr.IsConfiguration(err))
}

func TestCache_SetGet(t *testing.T) {
	c := newTestCache(t, cache.DefaultConfig(), newFakeClock())

	assert.True(t, c.Set("k", "v", cache.WithOwner(cache.OwnerMemoryRead)))

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 50.0, s.HitRate)
	assert.Equal(t, 1, s.Size)
}

func TestCache_GetExpiredRemovesEntry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, cache.Config{Enabled: true, TTL: time.Minute}, clock)

	c.Set("a", 1)
	c.Set("b", 2, cache.WithTTL(time.Hour))
	require.Equal(t, 2, c.Len())

	clock.Advance(time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, int64(1), c.Stats().Expirations)
}

func TestCache_HasExpiredRemovesEntry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, cache.Config{Enabled: true, TTL: time.Second}, clock)

	c.Set("a", 1)
	assert.True(t, c.Has("a"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.Has("a"))
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().Misses)
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, cache.Config{Enabled: true, MaxEntries: 3}, clock)

	for _, k := range []string{"first", "second", "third"} {
		c.Set(k, k)
		clock.Advance(time.Second)
	}

	c.Set("fourth", "fourth")

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Has("first"))
	assert.True(t, c.Has("second"))
	assert.True(t, c.Has("third"))
	assert.True(t, c.Has("fourth"))
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_EvictionTieBreaksOnInsertionOrder(t *testing.T) {
	c := newTestCache(t, cache.Config{Enabled: true, MaxEntries: 2}, newFakeClock())

	// Same timestamp for every entry.
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
}

func TestCache_OverwriteAtCapacityDoesNotEvict(t *testing.T) {
	c := newTestCache(t, cache.Config{Enabled: true, MaxEntries: 2}, newFakeClock())

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Zero(t, c.Stats().Evictions)
}

func TestCache_Delete(t *testing.T) {
	c := newTestCache(t, cache.DefaultConfig(), newFakeClock())

	c.Set("k", 1)
	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))
}

func TestCache_InvalidateByOwner(t *testing.T) {
	c := newTestCache(t, cache.DefaultConfig(), newFakeClock())

	for i := range 3 {
		c.Set(fmt.Sprintf("search-%d", i), i, cache.WithOwner(cache.OwnerMemorySearch))
	}
	c.Set("list", 0, cache.WithOwner(cache.OwnerMemoryList))
	c.Set("other", 0, cache.WithOwner("context_get"))

	assert.Equal(t, 3, c.InvalidateByOwner(cache.OwnerMemorySearch))
	assert.Equal(t, 2, c.Len())
	assert.Zero(t, c.InvalidateByOwner(cache.OwnerMemorySearch))
	assert.Equal(t, int64(3), c.Stats().Invalidations)
}

func TestCache_InvalidateByPattern(t *testing.T) {
	c := newTestCache(t, cache.DefaultConfig(), newFakeClock())

	c.Set("k1", 1, cache.WithOwner("memory_search"))
	c.Set("k2", 2, cache.WithOwner("memory_list"))
	c.Set("session:abc", 3, cache.WithOwner("context_get"))

	assert.Equal(t, 2, c.InvalidateByPattern(regexp.MustCompile(`^memory_`)))
	assert.Equal(t, 1, c.InvalidateByPattern(regexp.MustCompile(`^session:`)))
	assert.Zero(t, c.Len())
	assert.Zero(t, c.InvalidateByPattern(nil))
}

func TestCache_InvalidateOnWrite(t *testing.T) {
	tests := []struct {
		name      string
		op        cache.WriteOp
		wantCount int
		wantLeft  int
	}{
		{name: "save", op: cache.OpSave, wantCount: 5, wantLeft: 1},
		{name: "update", op: cache.OpUpdate, wantCount: 5, wantLeft: 1},
		{name: "delete", op: cache.OpDelete, wantCount: 5, wantLeft: 1},
		{name: "bulk delete", op: cache.OpBulkDelete, wantCount: 5, wantLeft: 1},
		{name: "index scan", op: cache.OpIndexScan, wantCount: 5, wantLeft: 1},
		{name: "checkpoint restore", op: cache.OpCheckpointRestore, wantCount: 6, wantLeft: 0},
		{name: "reinitialize", op: cache.OpReinitialize, wantCount: 6, wantLeft: 0},
		{name: "unknown", op: cache.WriteOp("vacuum"), wantCount: 0, wantLeft: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(t, cache.DefaultConfig(), newFakeClock())
			for _, owner := range []string{
				cache.OwnerMemorySearch,
				cache.OwnerMemoryMatchTriggers,
				cache.OwnerMemoryList,
				cache.OwnerMemoryStats,
				cache.OwnerMemoryRead,
				"context_get",
			} {
				c.Set(owner, owner, cache.WithOwner(owner))
			}

			got := c.InvalidateOnWrite(tt.op, cache.WriteEvent{IDs: []string{"m1"}, Source: "test"})
			assert.Equal(t, tt.wantCount, got)
			assert.Equal(t, tt.wantLeft, c.Len())
		})
	}
}

func TestCache_Clear(t *testing.T) {
	c := newTestCache(t, cache.DefaultConfig(), newFakeClock())
	c.Set("a", 1)
	c.Set("b", 2)

	assert.Equal(t, 2, c.Clear())
	assert.Zero(t, c.Len())
}

func TestCache_Disabled(t *testing.T) {
	c, err := cache.New(cache.Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, c.Set("k", 1))
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.False(t, c.Has("k"))
	assert.False(t, c.Delete("k"))
	assert.Zero(t, c.InvalidateByOwner("x"))
	assert.Zero(t, c.InvalidateOnWrite(cache.OpReinitialize, cache.WriteEvent{}))
	assert.Zero(t, c.Clear())
	assert.False(t, c.Stats().Enabled)

	c.Start(context.Background())
	c.Close()
}

func TestCache_StatsAndReset(t *testing.T) {
	c := newTestCache(t, cache.DefaultConfig(), newFakeClock())

	c.Set("k", 1)
	c.Get("k")
	c.Get("k")
	c.Get("nope")

	s := c.Stats()
	assert.Equal(t, 66.67, s.HitRate)

	c.ResetStats()
	s = c.Stats()
	assert.Zero(t, s.Hits)
	assert.Zero(t, s.Misses)
	assert.Zero(t, s.HitRate)
	assert.Equal(t, 1, s.Size)
}

func TestCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, cache.Config{Enabled: true, TTL: time.Second}, clock)

	c.Set("a", 1)
	c.Set("b", 2, cache.WithTTL(time.Hour))
	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestCache_BackgroundSweep(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, cache.Config{Enabled: true, TTL: time.Second, SweepInterval: 10 * time.Millisecond}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	c.Start(ctx) // second start is a no-op

	c.Set("a", 1)
	clock.Advance(2 * time.Second)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	c.Close()
	c.Close()
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache(t, cache.Config{Enabled: true, MaxEntries: 50}, newFakeClock())

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("k-%d-%d", g, i%80)
				c.Set(key, i, cache.WithOwner(cache.OwnerMemorySearch))
				c.Get(key)
				if i%25 == 0 {
					c.InvalidateByOwner(cache.OwnerMemorySearch)
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
