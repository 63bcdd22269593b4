// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// Validate checks that the Memory has all required fields set.
func (m Memory) Validate() error {
	if m.ID == "" {
		return recallerr.New(recallerr.CodeStoreInvalidInput, "memory: ID is required")
	}
	if m.Content == "" {
		return recallerr.New(recallerr.CodeStoreInvalidInput, "memory: Content is required",
			recallerr.Field("memory_id", m.ID),
		)
	}
	if !m.UpdatedAt.IsZero() && !m.CreatedAt.IsZero() && m.UpdatedAt.Before(m.CreatedAt) {
		return recallerr.New(recallerr.CodeStoreInvalidInput, "memory: UpdatedAt precedes CreatedAt",
			recallerr.Field("memory_id", m.ID),
		)
	}
	return nil
}

// Validate checks ListOpts for negative paging values.
func (o ListOpts) Validate() error {
	if o.Limit < 0 {
		return recallerr.Errorf(recallerr.CodeStoreInvalidInput, "list opts: Limit must be >= 0, got %d", o.Limit)
	}
	if o.Offset < 0 {
		return recallerr.Errorf(recallerr.CodeStoreInvalidInput, "list opts: Offset must be >= 0, got %d", o.Offset)
	}
	return nil
}
