// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/store/sqlite"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

func TestVectorStore_StoreAndSearch(t *testing.T) {
	ctx := context.Background()
	vs, err := openTestDB(t, "vectors").Vectors(ctx, "local__lexical_v1__3", 3)
	require.NoError(t, err)

	assert.Equal(t, "local__lexical_v1__3", vs.Namespace())
	assert.Equal(t, 3, vs.Dimensions())

	require.NoError(t, vs.Store(ctx, "v1", []float32{1, 0, 0}, map[string]any{"source": "test1"}))
	require.NoError(t, vs.Store(ctx, "v2", []float32{0, 1, 0}, map[string]any{"source": "test2"}))
	require.NoError(t, vs.Store(ctx, "v3", []float32{0.9, 0.1, 0}, nil))

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "v1", results[0].ID)
	assert.Equal(t, "test1", results[0].Metadata["source"])
	assert.Equal(t, "v3", results[1].ID)
	assert.Nil(t, results[1].Metadata)
}

func TestVectorStore_StoreUpsert(t *testing.T) {
	ctx := context.Background()
	vs, err := openTestDB(t, "vectors-upsert").Vectors(ctx, "ns", 3)
	require.NoError(t, err)

	require.NoError(t, vs.Store(ctx, "v1", []float32{1, 0, 0}, map[string]any{"rev": "a"}))
	require.NoError(t, vs.Store(ctx, "v1", []float32{0, 0, 1}, map[string]any{"rev": "b"}))

	results, err := vs.Search(ctx, []float32{0, 0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Metadata["rev"])
	assert.InDelta(t, 0, results[0].Score, 1e-6)
}

func TestVectorStore_Delete(t *testing.T) {
	ctx := context.Background()
	vs, err := openTestDB(t, "vectors-delete").Vectors(ctx, "ns", 3)
	require.NoError(t, err)

	require.NoError(t, vs.Store(ctx, "v1", []float32{1, 0, 0}, nil))
	require.NoError(t, vs.Delete(ctx, []string{"v1"}))
	require.NoError(t, vs.Delete(ctx, nil))

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, "vectors-dims")

	vs, err := db.Vectors(ctx, "ns", 3)
	require.NoError(t, err)

	err = vs.Store(ctx, "v1", []float32{1, 0}, nil)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStoreDimensionMismatch))

	_, err = vs.Search(ctx, []float32{1, 0, 0, 0}, 1)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStoreDimensionMismatch))

	_, err = db.Vectors(ctx, "ns", 4)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStoreDimensionMismatch))
}

func TestVectorStore_NamespaceDimensionSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "vectors-reopen")

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	_, err = db.Vectors(ctx, "openai__text_embedding_3_small__1536", 1536)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = sqlite.Open(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Vectors(ctx, "openai__text_embedding_3_small__1536", 768)
	assert.True(t, recallerr.HasCode(err, recallerr.CodeStoreDimensionMismatch))
}

func TestVectorStore_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, "vectors-isolated")

	a, err := db.Vectors(ctx, "memory_index", 3)
	require.NoError(t, err)
	b, err := db.Vectors(ctx, "openai__text_embedding_3_small__4", 4)
	require.NoError(t, err)

	require.NoError(t, a.Store(ctx, "v1", []float32{1, 0, 0}, nil))

	results, err := b.Search(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectors_InvalidNamespace(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, "vectors-invalid")

	for _, ns := range []string{"", "Has-Caps", "drop table;", "a b"} {
		_, err := db.Vectors(ctx, ns, 3)
		assert.True(t, recallerr.IsInvalidInput(err), ns)
	}

	_, err := db.Vectors(ctx, "ns", 0)
	assert.True(t, recallerr.IsInvalidInput(err))
}
