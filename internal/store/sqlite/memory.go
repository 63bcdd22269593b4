// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

var _ store.MemoryStore = (*memoryStore)(nil)

type memoryStore struct {
	db *sql.DB
}

const memoryColumns = `id, title, content, pinned, created_at, updated_at`

// Put inserts or replaces a memory. CreatedAt is preserved on update.
func (s *memoryStore) Put(ctx context.Context, m *store.Memory) error {
	if m == nil {
		return recallerr.New(recallerr.CodeStoreInvalidInput, "memory must not be nil")
	}
	if err := m.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	const q = `INSERT INTO memories (` + memoryColumns + `) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	content = excluded.content,
	pinned = excluded.pinned,
	updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, q,
		m.ID,
		m.Title,
		m.Content,
		boolToInt(m.Pinned),
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
	)
	if err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "saving memory %s", m.ID)
	}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*store.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recallerr.New(recallerr.CodeStoreNotFound, "memory not found: "+id,
			recallerr.Field("memory_id", id),
		)
	}
	if err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "getting memory %s", id)
	}
	return m, nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "deleting memory %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "checking rows affected for memory %s", id)
	}
	if rows == 0 {
		return recallerr.New(recallerr.CodeStoreNotFound, "memory not found: "+id,
			recallerr.Field("memory_id", id),
		)
	}
	return nil
}

func (s *memoryStore) List(ctx context.Context, opts store.ListOpts) ([]*store.Memory, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT ` + memoryColumns + ` FROM memories ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	return s.query(ctx, q, limit, opts.Offset)
}

func (s *memoryStore) Pinned(ctx context.Context) ([]*store.Memory, error) {
	const q = `SELECT ` + memoryColumns + ` FROM memories WHERE pinned = 1 ORDER BY created_at, id`
	return s.query(ctx, q)
}

func (s *memoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "counting memories")
	}
	return n, nil
}

func (s *memoryStore) query(ctx context.Context, q string, args ...any) ([]*store.Memory, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "querying memories")
	}
	defer func() { _ = rows.Close() }()

	var out []*store.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "scanning memory row")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "iterating memory rows")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*store.Memory, error) {
	var m store.Memory
	var pinned int
	var createdAt, updatedAt string
	if err := row.Scan(&m.ID, &m.Title, &m.Content, &pinned, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.Pinned = pinned != 0
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
