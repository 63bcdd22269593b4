// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/store/sqlite"
)

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

// openTestDB opens a database that is closed when the test ends.
func openTestDB(t *testing.T, name string) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(testDBPath(t, name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
