package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/example/puma/internal/errs"
)

// Migration is one named step of the schema chain.
//
// Applies inspects the current shape inside the step's transaction; a step
// whose precondition is false is recorded without running Up. A nil Applies
// always runs. DisableForeignKeys turns enforcement off on the migration
// connection for the duration of the step, which table swaps need.
type Migration struct {
	Version            int
	Name               string
	Applies            func(ctx context.Context, q Querier) (bool, error)
	Up                 func(ctx context.Context, env *migrationEnv) error
	DisableForeignKeys bool
}

// migrationEnv is what a step sees while it runs.
type migrationEnv struct {
	tx        *sqlx.Tx
	now       time.Time
	newHoleID func() string
	logger    *zap.Logger
	rep       *stepReport
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_base_tables",
		Up:      createBaseTables,
	},
	{
		Version:            2,
		Name:               "canonicalize_shifts",
		Applies:            shiftsNeedRebuild,
		Up:                 migrateShifts,
		DisableForeignKeys: true,
	},
	{
		Version:            3,
		Name:               "canonicalize_activities",
		Applies:            activitiesNeedRebuild,
		Up:                 migrateActivities,
		DisableForeignKeys: true,
	},
	{
		Version: 4,
		Name:    "dedupe_shifts_and_unique_index",
		Applies: func(ctx context.Context, q Querier) (bool, error) {
			ok, err := IndexExists(ctx, q, ShiftKeyIndex)
			return !ok, err
		},
		Up: dedupeShifts,
	},
	{
		Version: 5,
		Name:    "supporting_indexes",
		Applies: func(ctx context.Context, q Querier) (bool, error) {
			for _, name := range supportingIndexes {
				ok, err := IndexExists(ctx, q, name)
				if err != nil || !ok {
					return true, err
				}
			}
			return false, nil
		},
		Up: func(ctx context.Context, env *migrationEnv) error {
			if _, err := env.tx.ExecContext(ctx, supportingIndexesSQL); err != nil {
				return fmt.Errorf("failed to create supporting indexes: %w", err)
			}
			return nil
		},
	},
}

// holeMaintenance runs after the chain on every boot. It is not versioned
// because new logging activities can appear between boots.
var holeMaintenance = Migration{
	Name: "hole_backfill",
	Up:   backfillHoles,
}

func createBaseTables(ctx context.Context, env *migrationEnv) error {
	if _, err := env.tx.ExecContext(ctx, TablesSQL); err != nil {
		return fmt.Errorf("failed to create base tables: %w", err)
	}
	return nil
}

// LatestVersion is the version a fully migrated database reports.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// MigrateOptions configures Migrate. Zero values get sensible defaults.
type MigrateOptions struct {
	Retry     RetryPolicy
	Logger    *zap.Logger
	Now       func() time.Time
	NewHoleID func() string
}

func (o MigrateOptions) withDefaults() MigrateOptions {
	if o.Retry.Attempts <= 0 {
		o.Retry = DefaultRetryPolicy()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewHoleID == nil {
		o.NewHoleID = NewHoleID
	}
	return o
}

type stepOutcome int

const (
	stepSkipped stepOutcome = iota
	stepApplied
	stepDeferred
)

// Migrate brings the database to the canonical schema. It is safe to call
// any number of times and from several processes at once: each step takes
// the write lock, re-reads schema_version and only then decides to run.
//
// Reconciliation problems never fail the call; they are returned as
// anomalies. The returned error is always a fatal storage error.
func Migrate(ctx context.Context, database *sqlx.DB, opts MigrateOptions) (*Report, error) {
	opts = opts.withDefaults()
	logger := opts.Logger

	conn, err := database.Connx(ctx)
	if err != nil {
		return nil, errs.Fatal("migrate", fmt.Errorf("failed to acquire connection: %w", err))
	}
	defer conn.Close()

	if err := Retry(ctx, opts.Retry, IsLocked, func(ctx context.Context) error {
		return ensureVersionTable(ctx, conn)
	}); err != nil {
		return nil, errs.Fatal("migrate", err)
	}

	rep := &Report{}
	steps := append(append([]Migration{}, migrations...), holeMaintenance)
	for _, m := range steps {
		var step *stepReport
		var outcome stepOutcome
		err := Retry(ctx, opts.Retry, IsLocked, func(ctx context.Context) error {
			var err error
			step, outcome, err = runMigration(ctx, conn, m, opts)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrUnrecognizedSchema) || errors.Is(err, errs.ErrStorage) {
				return rep, errs.Fatal("migrate "+m.Name, err)
			}
			// Anything else is a reconciliation failure: the step rolled
			// back and will be attempted again on the next boot.
			rep.Deferred = append(rep.Deferred, m.Name)
			rep.Anomalies = append(rep.Anomalies, Anomaly{Step: m.Name, Message: err.Error()})
			logger.Warn("migration step failed; deferred",
				zap.String("step", m.Name), zap.Error(err))
			continue
		}

		rep.merge(step)
		switch outcome {
		case stepApplied:
			if m.Version > 0 {
				rep.Applied = append(rep.Applied, m.Name)
				logger.Info("applied migration",
					zap.Int("version", m.Version), zap.String("name", m.Name))
			}
		case stepDeferred:
			rep.Deferred = append(rep.Deferred, m.Name)
			logger.Warn("migration deferred", zap.String("name", m.Name))
		}
	}

	for _, a := range rep.Anomalies {
		logger.Warn("migration anomaly",
			zap.String("step", a.Step),
			zap.String("table", a.Table),
			zap.Int64("row", a.RowID),
			zap.String("message", a.Message))
	}

	v, err := CurrentVersion(ctx, conn)
	if err != nil {
		return rep, errs.Fatal("migrate", err)
	}
	rep.SchemaVersion = v
	return rep, nil
}

func ensureVersionTable(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			name TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	cols, err := ColumnsByName(ctx, q, "schema_version")
	if err != nil {
		return err
	}
	if !cols.Has("name") {
		if _, err := q.ExecContext(ctx, "ALTER TABLE schema_version ADD COLUMN name TEXT"); err != nil {
			return fmt.Errorf("failed to extend schema_version table: %w", err)
		}
	}
	return nil
}

// runMigration executes one step in its own immediate transaction.
func runMigration(ctx context.Context, conn *sqlx.Conn, m Migration, opts MigrateOptions) (*stepReport, stepOutcome, error) {
	if m.DisableForeignKeys {
		// The pragma is ignored inside a transaction, so it is set first.
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return nil, stepSkipped, fmt.Errorf("failed to disable foreign keys: %w", err)
		}
		defer conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON")
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, stepSkipped, fmt.Errorf("failed to begin migration %s: %w", m.Name, err)
	}
	defer tx.Rollback()

	if m.Version > 0 {
		var recorded int
		err := tx.QueryRowxContext(ctx,
			"SELECT COUNT(*) FROM schema_version WHERE version = ?", m.Version).Scan(&recorded)
		if err != nil {
			return nil, stepSkipped, fmt.Errorf("failed to read schema_version: %w", err)
		}
		if recorded > 0 {
			return &stepReport{step: m.Name}, stepSkipped, nil
		}
	}

	step := &stepReport{step: m.Name}
	env := &migrationEnv{
		tx:        tx,
		now:       opts.Now(),
		newHoleID: opts.NewHoleID,
		logger:    opts.Logger,
		rep:       step,
	}

	applies := true
	if m.Applies != nil {
		applies, err = m.Applies(ctx, tx)
		if err != nil {
			return nil, stepSkipped, fmt.Errorf("failed to check precondition of %s: %w", m.Name, err)
		}
	}

	outcome := stepApplied
	if applies {
		if err := m.Up(ctx, env); err != nil {
			if !errors.Is(err, errDeferred) {
				return nil, stepSkipped, fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
			}
			outcome = stepDeferred
		}
	} else {
		outcome = stepSkipped
	}

	if m.DisableForeignKeys && applies {
		if err := checkForeignKeys(ctx, tx, step); err != nil {
			return nil, stepSkipped, err
		}
	}

	if m.Version > 0 && outcome != stepDeferred {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, name) VALUES (?, ?)", m.Version, m.Name)
		if err != nil {
			return nil, stepSkipped, fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, stepSkipped, fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return step, outcome, nil
}

// checkForeignKeys reports dangling references left behind by a step that ran
// with enforcement off.
func checkForeignKeys(ctx context.Context, tx *sqlx.Tx, step *stepReport) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("failed to check foreign keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, parent string
		var rowid sql.NullInt64
		var fkid int
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign key violation: %w", err)
		}
		step.anomaly(table, rowid.Int64, "dangling reference to %s", parent)
	}
	return rows.Err()
}

// CurrentVersion returns the highest recorded schema version, 0 when none.
func CurrentVersion(ctx context.Context, q Querier) (int, error) {
	exists, err := TableExists(ctx, q, "schema_version")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var v int
	if err := q.QueryRowxContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get current schema version: %w", err)
	}
	return v, nil
}

// AppliedVersions lists every recorded version in order.
func AppliedVersions(ctx context.Context, q Querier) ([]int, error) {
	var out []int
	if err := sqlx.SelectContext(ctx, q, &out, "SELECT version FROM schema_version ORDER BY version"); err != nil {
		return nil, fmt.Errorf("failed to list schema versions: %w", err)
	}
	return out, nil
}
