// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// Opener opens a Handle on the database at path.
type Opener func(path string) (Handle, error)

var (
	openers   = map[string]Opener{}
	openersMu sync.RWMutex
)

// RegisterBackend registers the opener for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[name] = open
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// Open opens a new Handle using the configured backend.
func Open(cfg *StorageConfig) (Handle, error) {
	backend := resolveBackend(cfg)

	openersMu.RLock()
	open, ok := openers[backend]
	openersMu.RUnlock()
	if !ok {
		return nil, recallerr.New(recallerr.CodeStoreBackendUnsupported,
			"unsupported storage backend: "+backend,
			recallerr.Field("backend", backend),
		)
	}

	if cfg.Path == "" {
		return nil, recallerr.New(recallerr.CodeStoreInvalidInput, "storage path must not be empty")
	}

	h, err := open(cfg.Path)
	if err != nil {
		return nil, recallerr.Wrap(err, recallerr.CodeStoreOpenFailure, "opening store",
			recallerr.FieldPath(cfg.Path),
		)
	}
	return h, nil
}
