// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// VectorStore holds embeddings of a single namespace. All vectors in one
// namespace share the namespace's dimension.
type VectorStore interface {
	Namespace() string
	Dimensions() int
	Store(ctx context.Context, id string, embedding []float32, metadata map[string]any) error
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	Delete(ctx context.Context, ids []string) error
}
