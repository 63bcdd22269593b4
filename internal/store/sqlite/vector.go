// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore implements store.VectorStore for one namespace, backed by a
// vec0 virtual table and a companion metadata table.
type VectorStore struct {
	db         *sql.DB
	namespace  string
	dimensions int
	vecTable   string
	metaTable  string
}

// openVectorStore registers the namespace (or verifies its recorded
// dimension) and creates its tables.
func openVectorStore(ctx context.Context, db *sql.DB, namespace string, dimensions int) (*VectorStore, error) {
	var recorded int
	err := db.QueryRowContext(ctx,
		`SELECT dimensions FROM vector_namespaces WHERE namespace = ?`, namespace,
	).Scan(&recorded)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx,
			`INSERT INTO vector_namespaces(namespace, dimensions, created_at) VALUES (?, ?, ?)`,
			namespace, dimensions, formatTime(time.Now()),
		); err != nil {
			return nil, recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "registering vector namespace %s", namespace)
		}
	case err != nil:
		return nil, recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "reading vector namespace %s", namespace)
	case recorded != dimensions:
		return nil, dimensionMismatch(namespace, recorded, dimensions)
	}

	vs := &VectorStore{
		db:         db,
		namespace:  namespace,
		dimensions: dimensions,
		vecTable:   "vec_" + namespace,
		metaTable:  "vec_" + namespace + "_meta",
	}
	if err := vs.migrate(ctx); err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "migrating vector namespace %s", namespace)
	}
	return vs, nil
}

func (v *VectorStore) migrate(ctx context.Context) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`,
		v.vecTable, v.dimensions,
	)
	if _, err := v.db.ExecContext(ctx, vecDDL); err != nil {
		return fmt.Errorf("creating %s virtual table: %w", v.vecTable, err)
	}

	metaDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id       TEXT PRIMARY KEY,
	metadata TEXT NOT NULL DEFAULT '{}'
)`, v.metaTable)
	if _, err := v.db.ExecContext(ctx, metaDDL); err != nil {
		return fmt.Errorf("creating %s table: %w", v.metaTable, err)
	}

	return nil
}

func (v *VectorStore) Namespace() string { return v.namespace }
func (v *VectorStore) Dimensions() int   { return v.dimensions }

// Store inserts or replaces a vector and its metadata.
func (v *VectorStore) Store(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	if len(embedding) != v.dimensions {
		return dimensionMismatch(v.namespace, v.dimensions, len(embedding))
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("serializing embedding: %w", err)
	}

	metaJSON := []byte("{}")
	if len(metadata) > 0 {
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+v.vecTable+` WHERE id = ?`, id); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "deleting existing vector %s", id)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO `+v.vecTable+`(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "inserting vector %s", id)
	}

	metaQ := `INSERT INTO ` + v.metaTable + `(id, metadata) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET metadata = excluded.metadata`
	if _, err := tx.ExecContext(ctx, metaQ, id, string(metaJSON)); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "upserting vector metadata %s", id)
	}

	if err := tx.Commit(); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "committing vector store")
	}
	return nil
}

// Search performs a k-nearest-neighbor search and returns results with metadata.
// Score represents distance (lower = more similar); 0.0 = exact match.
func (v *VectorStore) Search(ctx context.Context, query []float32, k int) ([]store.VectorResult, error) {
	if len(query) != v.dimensions {
		return nil, dimensionMismatch(v.namespace, v.dimensions, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serializing query vector: %w", err)
	}

	q := `SELECT v.id, v.distance, COALESCE(m.metadata, '{}')
FROM ` + v.vecTable + ` v
LEFT JOIN ` + v.metaTable + ` m ON m.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`

	rows, err := v.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "searching vectors in %s", v.namespace)
	}
	defer func() { _ = rows.Close() }()

	var results []store.VectorResult
	for rows.Next() {
		var r store.VectorResult
		var metaStr string

		if err := rows.Scan(&r.ID, &r.Score, &metaStr); err != nil {
			return nil, fmt.Errorf("scanning vector result: %w", err)
		}

		if metaStr != "" && metaStr != "{}" {
			if err := json.Unmarshal([]byte(metaStr), &r.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling vector metadata: %w", err)
			}
		}

		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector results: %w", err)
	}

	return results, nil
}

// Delete removes vectors and their metadata by ID.
func (v *VectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+v.vecTable+` WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "deleting vectors")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+v.metaTable+` WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "deleting vector metadata")
	}

	if err := tx.Commit(); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "committing vector delete")
	}
	return nil
}
