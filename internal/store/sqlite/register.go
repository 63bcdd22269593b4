// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/sigil-dev/recall/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", openHandle)
}

func openHandle(path string) (store.Handle, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	return Open(path)
}
