package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DefaultBusyTimeout is how long SQLite itself waits on a locked file before
// reporting SQLITE_BUSY to the retry layer.
const DefaultBusyTimeout = 30 * time.Second

// Options configures the embedded database connection.
type Options struct {
	Path        string
	BusyTimeout time.Duration
	Retry       RetryPolicy
	Logger      *zap.Logger
}

// Open opens the SQLite file at opts.Path, creating its directory if needed,
// and switches it to WAL mode.
//
// busy_timeout, foreign_keys and the immediate transaction lock are passed in
// the DSN so every pooled connection gets them, not just the first one.
func Open(ctx context.Context, opts Options) (*sqlx.DB, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("database path required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}
	policy := opts.Retry
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		opts.Path, busy.Milliseconds())
	database, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := configureJournal(ctx, database, policy); err != nil {
		database.Close()
		return nil, err
	}

	logger.Debug("opened embedded database",
		zap.String("path", opts.Path),
		zap.Duration("busy_timeout", busy))
	return database, nil
}

// configureJournal enables WAL. Another process holding the file during its
// own startup can make this fail with "locked", so it runs under the retry
// policy.
func configureJournal(ctx context.Context, database *sqlx.DB, policy RetryPolicy) error {
	err := Retry(ctx, policy, IsLocked, func(ctx context.Context) error {
		var mode string
		if err := database.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
			return err
		}
		_, err := database.ExecContext(ctx, "PRAGMA synchronous=NORMAL")
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to configure journal mode: %w", err)
	}
	return nil
}

// JournalMode reports the current journal mode, used by diagnostics.
func JournalMode(ctx context.Context, q Querier) (string, error) {
	var mode string
	if err := q.QueryRowxContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", fmt.Errorf("failed to read journal mode: %w", err)
	}
	return mode, nil
}
