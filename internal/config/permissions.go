// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the config file at path is
// readable by group or others, since it may hold provider credentials.
// It never fails.
func WarnInsecurePermissions(path string, logger *slog.Logger) bool {
	if path == "" {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Debug("skipping config permission check", "path", path, "error", err)
		return false
	}

	if info.Mode().Perm()&0o044 == 0 {
		return false
	}
	logger.Warn("config file is readable by other users and may expose api keys",
		"path", path,
		"mode", info.Mode().Perm().String(),
		"recommended", "0600",
	)
	return true
}
