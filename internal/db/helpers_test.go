package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// openTestDB opens a fresh database file under t.TempDir. A file is used
// instead of :memory: so every pooled connection sees the same data.
func openTestDB(t *testing.T) (*sqlx.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "puma.db")
	database, err := Open(context.Background(), Options{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database, path
}

// sequentialHoles returns a hole id generator yielding H-1, H-2, ...
func sequentialHoles() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("H-%d", n)
	}
}

func testMigrateOptions() MigrateOptions {
	return MigrateOptions{
		Retry:     RetryPolicy{Attempts: 50, BaseDelay: time.Millisecond, MaxDelay: 20 * time.Millisecond},
		Now:       func() time.Time { return testNow },
		NewHoleID: sequentialHoles(),
	}
}

func mustExec(t *testing.T, database *sqlx.DB, query string, args ...any) {
	t.Helper()
	_, err := database.Exec(query, args...)
	require.NoError(t, err, query)
}

func countRows(t *testing.T, database *sqlx.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, database.Get(&n, query, args...))
	return n
}

func schemaSnapshot(t *testing.T, database *sqlx.DB) []string {
	t.Helper()
	var out []string
	require.NoError(t, database.Select(&out,
		"SELECT type || ':' || name || ':' || COALESCE(sql, '') FROM sqlite_master ORDER BY type, name"))
	return out
}
