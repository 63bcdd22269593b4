// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns what it wrote to
// stdout. HOME points at a temp dir so no real config is discovered.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

// writeConfig writes a config rooted at a fresh data dir and returns the
// file path and the data dir.
func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	path := filepath.Join(dir, "recall.yaml")

	body := "data_dir: " + dataDir + "\n" +
		"embeddings:\n  provider: local\n" +
		"server:\n  listen: 127.0.0.1:18790\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, dataDir
}
