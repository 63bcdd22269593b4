// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tools_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/embedding/local"
	"github.com/sigil-dev/recall/internal/memory"
	"github.com/sigil-dev/recall/internal/store"
	"github.com/sigil-dev/recall/internal/tools"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

func bindMemory(t *testing.T, h *harness, mt *tools.MemoryTools) {
	t.Helper()
	p, err := local.New(local.Config{Dimensions: 64})
	require.NoError(t, err)
	profile, err := embedding.NewProfile(p.Name(), p.Model(), p.Dimensions(), "")
	require.NoError(t, err)
	ix, err := memory.NewIndex(p, profile)
	require.NoError(t, err)

	require.NoError(t, h.coord.Attach(context.Background(), "memory_index", ix))
	mt.Bind(ix)
	h.coord.SetEmbeddingReady(true)
}

func TestMemoryTools_NotReady(t *testing.T) {
	h := newHarness(t)
	mt := tools.NewMemoryTools(h.d, 20*time.Millisecond)

	_, err := mt.Save(context.Background(), memory.SaveRequest{Content: "early"})
	require.Error(t, err)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStateNotInitialized))
}

func TestMemoryTools_SearchCachedUntilSave(t *testing.T) {
	h := newHarness(t)
	mt := tools.NewMemoryTools(h.d, time.Second)
	bindMemory(t, h, mt)
	ctx := context.Background()

	first, err := mt.Save(ctx, memory.SaveRequest{Title: "release", Content: "tag the release and publish notes"})
	require.NoError(t, err)

	hits, err := mt.Search(ctx, "publish release notes", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, first.ID, hits[0].Memory.ID)

	_, err = mt.Search(ctx, "publish release notes", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.cache.Stats().Hits)

	_, err = mt.Save(ctx, memory.SaveRequest{Title: "notes", Content: "release notes live in the changelog"})
	require.NoError(t, err)

	hits, err = mt.Search(ctx, "publish release notes", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "the save invalidated the cached search")

	got, err := mt.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "release", got.Title)

	listed, err := mt.List(ctx, store.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	stats, err := mt.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Count)

	require.NoError(t, mt.Delete(ctx, first.ID))
	_, err = mt.Get(ctx, first.ID)
	assert.True(t, recallerr.IsNotFound(err))
}

func TestMemoryTools_PinnedAndReindexCooldown(t *testing.T) {
	h := newHarness(t)
	mt := tools.NewMemoryTools(h.d, time.Second)
	bindMemory(t, h, mt)
	ctx := context.Background()

	_, err := mt.Save(ctx, memory.SaveRequest{Content: "always answer in metric units", Pinned: true})
	require.NoError(t, err)

	pinned, err := mt.Pinned(ctx)
	require.NoError(t, err)
	require.Len(t, pinned, 1)

	n, err := mt.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = mt.Reindex(ctx)
	require.Error(t, err)
	assert.True(t, recallerr.IsBudgetExceeded(err))
}

func TestMemoryTools_ResultsDoNotAliasCache(t *testing.T) {
	h := newHarness(t)
	mt := tools.NewMemoryTools(h.d, time.Second)
	bindMemory(t, h, mt)
	ctx := context.Background()

	saved, err := mt.Save(ctx, memory.SaveRequest{Title: "release", Content: "tag the release and publish notes"})
	require.NoError(t, err)

	got, err := mt.Get(ctx, saved.ID)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := mt.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.cache.Stats().Hits)
	assert.Equal(t, "release", again.Title)

	hits, err := mt.Search(ctx, "publish release notes", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	hits[0].Memory.Content = "mutated"

	hits, err = mt.Search(ctx, "publish release notes", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.cache.Stats().Hits)
	assert.Equal(t, "tag the release and publish notes", hits[0].Memory.Content)

	listed, err := mt.List(ctx, store.ListOpts{Limit: 10})
	require.NoError(t, err)
	listed[0] = nil

	listed, err = mt.List(ctx, store.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.NotNil(t, listed[0])
}

func TestMemoryTools_MatchTriggersCachedUntilSave(t *testing.T) {
	h := newHarness(t)
	mt := tools.NewMemoryTools(h.d, time.Second)
	bindMemory(t, h, mt)
	ctx := context.Background()

	_, err := mt.Save(ctx, memory.SaveRequest{Title: "deploy", Content: "canary first"})
	require.NoError(t, err)

	matched, err := mt.MatchTriggers(ctx, "deploy then rollback")
	require.NoError(t, err)
	assert.Len(t, matched, 1)

	_, err = mt.MatchTriggers(ctx, "deploy then rollback")
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.cache.Stats().Hits)

	_, err = mt.Save(ctx, memory.SaveRequest{Title: "rollback", Content: "revert the tag"})
	require.NoError(t, err)

	matched, err = mt.MatchTriggers(ctx, "deploy then rollback")
	require.NoError(t, err)
	assert.Len(t, matched, 2, "the save invalidated the cached match")
}
