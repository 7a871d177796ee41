// Package warehouse implements the remote storage engine on PostgreSQL.
//
// Tables use the PUMA_ prefix and key activities by (shift date, username),
// matching the layout the warehouse has always had. Rows are translated to
// the same record shapes the embedded engine returns.
package warehouse

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/example/puma/internal/errs"
	"github.com/example/puma/internal/ports/secondary"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey serialises Init across processes.
const migrationLockKey = 0x70756d61

// Options configures the remote engine.
type Options struct {
	DSN       string
	Logger    *zap.Logger
	Now       func() time.Time
	NewHoleID func() string
}

// Engine is the PostgreSQL implementation of secondary.StorageEngine.
type Engine struct {
	pool      *pgxpool.Pool
	logger    *zap.Logger
	now       func() time.Time
	newHoleID func() string
}

var _ secondary.StorageEngine = (*Engine)(nil)

// Open connects to the warehouse and verifies the connection.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errs.Missing("warehouse_dsn")
	}
	pool, err := pgxpool.New(ctx, opts.DSN)
	if err != nil {
		return nil, errs.Fatal("connect", fmt.Errorf("failed to create connection pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Fatal("connect", fmt.Errorf("failed to ping database: %w", err))
	}
	return NewEngine(pool, opts), nil
}

// NewEngine creates an engine over an existing pool.
func NewEngine(pool *pgxpool.Pool, opts Options) *Engine {
	e := &Engine{
		pool:      pool,
		logger:    opts.Logger,
		now:       opts.Now,
		newHoleID: opts.NewHoleID,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newHoleID == nil {
		e.newHoleID = uuid.NewString
	}
	return e
}

// Name returns secondary.BackendRemote.
func (e *Engine) Name() string { return secondary.BackendRemote }

// Close closes the connection pool.
func (e *Engine) Close() error {
	e.pool.Close()
	return nil
}

// Ping reports whether the warehouse is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.classify("ping", e.pool.Ping(ctx))
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Second)
}

// classify passes validation errors through and marks everything else as a
// fatal storage error for this request.
func (e *Engine) classify(op string, err error) error {
	if err == nil || errors.Is(err, errs.ErrValidation) {
		return err
	}
	e.logger.Error("warehouse operation failed", zap.String("op", op), zap.Error(err))
	return errs.Fatal(op, err)
}

// Init applies pending migration files in name order. Each file runs in its
// own transaction holding an advisory lock, and is recorded in
// schema_migrations so re-runs and concurrent processes skip it.
func (e *Engine) Init(ctx context.Context) (*secondary.InitRecord, error) {
	_, err := e.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return nil, e.classify("migrate", fmt.Errorf("failed to create schema_migrations table: %w", err))
	}

	files, err := migrationFiles()
	if err != nil {
		return nil, e.classify("migrate", err)
	}

	rec := &secondary.InitRecord{}
	for _, filename := range files {
		applied, err := e.applyMigration(ctx, filename)
		if err != nil {
			return nil, e.classify("migrate "+filename, err)
		}
		if applied {
			rec.Applied = append(rec.Applied, filename)
			e.logger.Info("applied warehouse migration", zap.String("file", filename))
		}
	}

	var count int
	if err := e.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return nil, e.classify("migrate", fmt.Errorf("failed to read schema version: %w", err))
	}
	rec.SchemaVersion = count

	assigned, err := e.backfillHoles(ctx)
	if err != nil {
		rec.Anomalies = append(rec.Anomalies, fmt.Sprintf("hole backfill failed: %v", err))
		e.logger.Warn("hole backfill failed", zap.Error(err))
	}
	rec.HolesAssigned = assigned
	return rec, nil
}

func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (e *Engine) applyMigration(ctx context.Context, filename string) (bool, error) {
	content, err := fs.ReadFile(migrationsFS, "migrations/"+filename)
	if err != nil {
		return false, fmt.Errorf("failed to read migration %s: %w", filename, err)
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction for %s: %w", filename, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return false, fmt.Errorf("failed to lock migrations: %w", err)
	}
	var done bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", filename).Scan(&done); err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", filename, err)
	}
	if done {
		return false, nil
	}

	if _, err := tx.Exec(ctx, string(content)); err != nil {
		return false, fmt.Errorf("failed to execute migration %s: %w", filename, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", filename); err != nil {
		return false, fmt.Errorf("failed to record migration %s: %w", filename, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit migration %s: %w", filename, err)
	}
	return true, nil
}

// backfillHoles gives logging activities without a hole a fresh one.
func (e *Engine) backfillHoles(ctx context.Context) (int, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT ID FROM PUMA_ACTIVITIES
		WHERE UPPER(TRIM(CODE)) = 'LOG' AND (HOLE_ID IS NULL OR TRIM(HOLE_ID) = '')
		ORDER BY ID`)
	if err != nil {
		return 0, fmt.Errorf("failed to find logging activities without holes: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("failed to scan activity ids: %w", err)
	}

	assigned := 0
	for _, id := range ids {
		err := pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
			hole := e.newHoleID()
			if err := ensureHole(ctx, tx, hole, e.timestamp()); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `
				UPDATE PUMA_ACTIVITIES SET HOLE_ID = $1
				WHERE ID = $2 AND (HOLE_ID IS NULL OR TRIM(HOLE_ID) = '')`, hole, id)
			return err
		})
		if err != nil {
			return assigned, fmt.Errorf("failed to assign hole to activity %d: %w", id, err)
		}
		assigned++
	}
	return assigned, nil
}

// ensureHole registers id, or touches UPDATED_AT when already known.
func ensureHole(ctx context.Context, tx pgx.Tx, id string, now time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO PUMA_HOLES (HOLE_ID, CREATED_AT, UPDATED_AT) VALUES ($1, $2, $2)
		ON CONFLICT (HOLE_ID) DO UPDATE SET UPDATED_AT = EXCLUDED.UPDATED_AT`, id, now)
	if err != nil {
		return fmt.Errorf("failed to register hole %s: %w", id, err)
	}
	return nil
}
