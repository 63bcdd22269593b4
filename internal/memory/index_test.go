// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package memory_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/coordinator"
	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/embedding/local"
	"github.com/sigil-dev/recall/internal/memory"
	"github.com/sigil-dev/recall/internal/store"
	"github.com/sigil-dev/recall/internal/store/sqlite"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

func newLocalIndex(t *testing.T, dims int) *memory.Index {
	t.Helper()
	p, err := local.New(local.Config{Dimensions: dims})
	require.NoError(t, err)
	profile, err := embedding.NewProfile(p.Name(), p.Model(), p.Dimensions(), "")
	require.NoError(t, err)
	ix, err := memory.NewIndex(p, profile)
	require.NoError(t, err)
	return ix
}

func openIndex(t *testing.T) (*memory.Index, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "recall.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ix := newLocalIndex(t, embedding.LegacyDimensions)
	require.NoError(t, ix.Init(context.Background(), db))
	return ix, db
}

func TestNewIndex_DimensionMismatch(t *testing.T) {
	p, err := local.New(local.Config{Dimensions: 64})
	require.NoError(t, err)
	profile, err := embedding.NewProfile("local", "lexical-v1", 128, "")
	require.NoError(t, err)

	_, err = memory.NewIndex(p, profile)
	require.Error(t, err)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeEmbeddingProfileInvalid))
}

func TestIndex_NotInitialized(t *testing.T) {
	ix := newLocalIndex(t, 32)

	_, err := ix.Save(context.Background(), memory.SaveRequest{Content: "x"})
	require.Error(t, err)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStateNotInitialized))

	_, err = ix.Search(context.Background(), "x", 1)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStateNotInitialized))
}

func TestIndex_SaveSearchDelete(t *testing.T) {
	ctx := context.Background()
	ix, _ := openIndex(t)

	sqliteNote, err := ix.Save(ctx, memory.SaveRequest{
		Title:   "sqlite tuning",
		Content: "enable WAL journal mode and a busy timeout for sqlite",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sqliteNote.ID)

	_, err = ix.Save(ctx, memory.SaveRequest{
		Title:   "weekend plans",
		Content: "bake a chocolate cake and walk in the park",
	})
	require.NoError(t, err)

	hits, err := ix.Search(ctx, "sqlite WAL journal", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, sqliteNote.ID, hits[0].Memory.ID)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)

	require.NoError(t, ix.Delete(ctx, sqliteNote.ID))

	hits, err = ix.Search(ctx, "sqlite WAL journal", 2)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.NotEqual(t, sqliteNote.ID, hits[0].Memory.ID)

	err = ix.Delete(ctx, sqliteNote.ID)
	require.Error(t, err)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeMemoryNotFound))
	assert.True(t, recallerr.IsNotFound(err))
}

func TestIndex_SaveUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	ix, _ := openIndex(t)

	first, err := ix.Save(ctx, memory.SaveRequest{ID: "note-1", Content: "first draft"})
	require.NoError(t, err)

	second, err := ix.Save(ctx, memory.SaveRequest{ID: "note-1", Content: "second draft"})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())

	got, err := ix.Get(ctx, "note-1")
	require.NoError(t, err)
	assert.Equal(t, "second draft", got.Content)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Count)
	assert.Equal(t, embedding.LegacyNamespace, stats.Namespace)
}

func TestIndex_InvalidInput(t *testing.T) {
	ctx := context.Background()
	ix, _ := openIndex(t)

	_, err := ix.Save(ctx, memory.SaveRequest{Content: "   "})
	assert.True(t, recallerr.IsInvalidInput(err))

	_, err = ix.Search(ctx, "", 5)
	assert.True(t, recallerr.IsInvalidInput(err))

	_, err = ix.List(ctx, store.ListOpts{Limit: -1})
	assert.True(t, recallerr.IsInvalidInput(err))

	_, err = ix.Get(ctx, "missing")
	assert.True(t, recallerr.HasCode(err, recallerr.CodeMemoryNotFound))
}

func TestIndex_PinnedLookaheadIsCachedUntilReset(t *testing.T) {
	ctx := context.Background()
	ix, db := openIndex(t)

	_, err := ix.Save(ctx, memory.SaveRequest{ID: "p1", Content: "always relevant", Pinned: true})
	require.NoError(t, err)

	pinned, err := ix.Pinned(ctx)
	require.NoError(t, err)
	require.Len(t, pinned, 1)

	// A write that bypasses the index is invisible until Reset.
	require.NoError(t, db.Memories().Put(ctx, &store.Memory{ID: "p2", Content: "also relevant", Pinned: true}))
	pinned, err = ix.Pinned(ctx)
	require.NoError(t, err)
	assert.Len(t, pinned, 1)

	ix.Reset()
	pinned, err = ix.Pinned(ctx)
	require.NoError(t, err)
	assert.Len(t, pinned, 2)
}

// An external process writes to the same database file and stamps the
// marker; the coordinator notices, reconnects and the index sees fresh
// data, including a reloaded pinned lookahead.
func TestIndex_RewiredByCoordinatorAfterExternalWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "recall.db")
	marker := filepath.Join(dir, ".db-updated")

	c, err := coordinator.New(coordinator.Options{
		Storage:    store.StorageConfig{Backend: "sqlite", Path: dbPath},
		MarkerPath: marker,
	})
	require.NoError(t, err)

	ix := newLocalIndex(t, embedding.LegacyDimensions)
	c.Register("memory_index", ix)
	c.OnReset("memory_index", ix.Reset)
	require.NoError(t, c.Init(ctx))
	t.Cleanup(func() { _ = c.Shutdown() })

	pinned, err := ix.Pinned(ctx)
	require.NoError(t, err)
	assert.Empty(t, pinned)

	external, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, external.Memories().Put(ctx, &store.Memory{ID: "ext", Content: "written elsewhere", Pinned: true}))
	require.NoError(t, external.Close())
	require.NoError(t, coordinator.MarkUpdated(marker, time.Now()))

	reinit, err := c.CheckForExternalUpdate(ctx)
	require.NoError(t, err)
	assert.True(t, reinit)
	assert.Equal(t, int64(1), c.Reinitializations())

	pinned, err = ix.Pinned(ctx)
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, "ext", pinned[0].ID)

	// Same marker again is not a change.
	reinit, err = c.CheckForExternalUpdate(ctx)
	require.NoError(t, err)
	assert.False(t, reinit)
}

func TestIndex_ReindexEmbedsRowsWithoutVectors(t *testing.T) {
	ctx := context.Background()
	ix, db := openIndex(t)

	require.NoError(t, db.Memories().Put(ctx, &store.Memory{ID: "a", Title: "deploy", Content: "roll out the canary before the fleet"}))
	require.NoError(t, db.Memories().Put(ctx, &store.Memory{ID: "b", Title: "coffee", Content: "grind the beans right before brewing"}))

	hits, err := ix.Search(ctx, "canary fleet rollout", 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "rows written without vectors are not searchable")

	n, err := ix.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err = ix.Search(ctx, "canary fleet rollout", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Memory.ID)
}

func TestIndex_MatchTriggers(t *testing.T) {
	ctx := context.Background()
	ix, _ := openIndex(t)

	deploy, err := ix.Save(ctx, memory.SaveRequest{Title: "Deploy Checklist", Content: "canary first, then the fleet"})
	require.NoError(t, err)
	_, err = ix.Save(ctx, memory.SaveRequest{Title: "rollback", Content: "revert the release tag"})
	require.NoError(t, err)
	_, err = ix.Save(ctx, memory.SaveRequest{Content: "untitled notes never trigger"})
	require.NoError(t, err)

	matched, err := ix.MatchTriggers(ctx, "where is the deploy checklist again?")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, deploy.ID, matched[0].ID)

	matched, err = ix.MatchTriggers(ctx, "nothing relevant")
	require.NoError(t, err)
	assert.NotNil(t, matched)
	assert.Empty(t, matched)

	_, err = ix.MatchTriggers(ctx, "  ")
	assert.True(t, recallerr.HasCode(err, recallerr.CodeMemoryInvalidInput))
}
