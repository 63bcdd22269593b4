// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// MemoryStore persists memory entries. Pinned entries are the
// always-relevant set surfaced with every search.
type MemoryStore interface {
	Put(ctx context.Context, m *Memory) error
	Get(ctx context.Context, id string) (*Memory, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOpts) ([]*Memory, error)
	Pinned(ctx context.Context) ([]*Memory, error)
	Count(ctx context.Context) (int64, error)
}
