// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

// StorageConfig controls which backend Open uses and where it lives.
type StorageConfig struct {
	Backend string // "sqlite" is the only supported backend for now.
	Path    string // Database file path.
}
