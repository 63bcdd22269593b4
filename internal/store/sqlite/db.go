// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.Handle = (*DB)(nil)

// namespacePattern restricts namespaces to identifiers that are safe to
// splice into table names.
var namespacePattern = regexp.MustCompile(`^[a-z0-9_]{1,120}$`)

// DB implements store.Handle on a single SQLite file. The config table,
// memories and every vector namespace live in the same database so one
// close/reopen cycle covers all of them.
type DB struct {
	db       *sql.DB
	path     string
	config   *configStore
	memories *memoryStore

	mu      sync.Mutex
	vectors map[string]*VectorStore
}

// Open opens (or creates) the SQLite database at dbPath and runs the base
// migrations. Vector tables are created lazily per namespace.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &DB{
		db:       db,
		path:     dbPath,
		config:   &configStore{db: db},
		memories: &memoryStore{db: db},
		vectors:  make(map[string]*VectorStore),
	}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	pinned     INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_pinned ON memories(pinned);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);

CREATE TABLE IF NOT EXISTS vector_namespaces (
	namespace  TEXT PRIMARY KEY,
	dimensions INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

func (d *DB) Path() string                { return d.path }
func (d *DB) Config() store.ConfigStore   { return d.config }
func (d *DB) Memories() store.MemoryStore { return d.memories }

// Vectors returns the vector store for namespace. The first call for a
// namespace records its dimension; later calls with a different dimension
// fail instead of mixing vector spaces in one table.
func (d *DB) Vectors(ctx context.Context, namespace string, dimensions int) (store.VectorStore, error) {
	if !namespacePattern.MatchString(namespace) {
		return nil, recallerr.New(recallerr.CodeStoreInvalidInput,
			fmt.Sprintf("invalid vector namespace %q", namespace),
			recallerr.FieldNamespace(namespace),
		)
	}
	if dimensions <= 0 {
		return nil, recallerr.Errorf(recallerr.CodeStoreInvalidInput,
			"vector dimensions must be positive, got %d", dimensions)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if vs, ok := d.vectors[namespace]; ok {
		if vs.dimensions != dimensions {
			return nil, dimensionMismatch(namespace, vs.dimensions, dimensions)
		}
		return vs, nil
	}

	vs, err := openVectorStore(ctx, d.db, namespace, dimensions)
	if err != nil {
		return nil, err
	}
	d.vectors[namespace] = vs
	return vs, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func dimensionMismatch(namespace string, have, want int) error {
	return recallerr.New(recallerr.CodeStoreDimensionMismatch,
		fmt.Sprintf("namespace %s holds %d-dimensional vectors, refusing %d", namespace, have, want),
		recallerr.FieldNamespace(namespace),
		recallerr.Field("dimensions", have),
		recallerr.Field("requested_dimensions", want),
	)
}

// formatTime serialises a time for storage. Zero times are stored as "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
