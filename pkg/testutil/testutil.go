// Package testutil provides testing utilities for the CDM exporter.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	_ "modernc.org/sqlite" // sqlite driver for fixtures
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a context with a 30-second timeout that is cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// SQLiteFile creates a SQLite database file in a test temp dir, runs stmts
// against it and returns its path.
func SQLiteFile(t *testing.T, stmts ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cdm.db")
	ExecSQLite(t, path, stmts...)
	return path
}

// ExecSQLite runs stmts against the SQLite database at path.
func ExecSQLite(t *testing.T, path string, stmts ...string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "statement: %s", stmt)
	}
}
