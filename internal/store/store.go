// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// Handle is one open connection to the backing store. A Handle has exactly
// one owner, which is responsible for closing it; every other component
// receives it through an Init call and must not close it.
type Handle interface {
	// Path identifies the backing file (or DSN) the handle was opened on.
	Path() string
	Config() ConfigStore
	Memories() MemoryStore
	// Vectors returns the vector table for namespace, creating it on first
	// use. A namespace is bound to one dimension for its whole lifetime.
	Vectors(ctx context.Context, namespace string, dimensions int) (VectorStore, error)
	Close() error
}

// ConfigStore is a generic key/value table inside the store. Get returns a
// not-found error (recallerr.IsNotFound) for absent keys.
type ConfigStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
