// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "time"

// Memory is one stored memory entry. Content is opaque to the store.
type Memory struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListOpts pages through List results, newest first.
type ListOpts struct {
	Limit  int
	Offset int
}

// VectorResult is a single kNN hit. Score is a distance: lower is closer.
type VectorResult struct {
	ID       string
	Score    float64
	Metadata map[string]any
}
