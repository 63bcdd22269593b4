// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

var _ store.ConfigStore = (*configStore)(nil)

type configStore struct {
	db *sql.DB
}

func (c *configStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", recallerr.New(recallerr.CodeStoreNotFound, "config key not found: "+key,
			recallerr.Field("key", key),
		)
	}
	if err != nil {
		return "", recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "reading config key %s", key)
	}
	return value, nil
}

func (c *configStore) Set(ctx context.Context, key, value string) error {
	const q = `INSERT INTO config(key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := c.db.ExecContext(ctx, q, key, value); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeStoreDatabaseFailure, "writing config key %s", key)
	}
	return nil
}
