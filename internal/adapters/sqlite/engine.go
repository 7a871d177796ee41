// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/example/puma/internal/db"
	"github.com/example/puma/internal/errs"
	"github.com/example/puma/internal/ports/secondary"
)

// EngineOptions configures the embedded engine.
type EngineOptions struct {
	Path        string
	BusyTimeout time.Duration
	Retry       db.RetryPolicy
	Logger      *zap.Logger
	Now         func() time.Time
	NewHoleID   func() string
}

// store is the state every repository shares.
type store struct {
	db        *sqlx.DB
	retry     db.RetryPolicy
	logger    *zap.Logger
	now       func() time.Time
	newHoleID func() string
}

func (s *store) timestamp() string {
	return s.now().UTC().Format(db.TimestampLayout)
}

// read runs fn under the retry policy.
func (s *store) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return s.classify(op, db.Retry(ctx, s.retry, db.IsLocked, fn))
}

// write runs fn in an immediate transaction under the retry policy. The whole
// transaction is retried when the file is locked.
func (s *store) write(ctx context.Context, op string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	err := db.Retry(ctx, s.retry, db.IsLocked, func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	})
	return s.classify(op, err)
}

// classify passes validation errors through and marks everything else as a
// fatal storage error for this request.
func (s *store) classify(op string, err error) error {
	if err == nil || errors.Is(err, errs.ErrValidation) {
		return err
	}
	s.logger.Error("storage operation failed", zap.String("op", op), zap.Error(err))
	return errs.Fatal(op, err)
}

// Engine is the embedded SQLite implementation of secondary.StorageEngine.
type Engine struct {
	*ShiftRepository
	*ActivityRepository
	*VehicleRepository
	*HoleRepository

	st   *store
	path string
}

var _ secondary.StorageEngine = (*Engine)(nil)

// Open opens the database file and returns an engine over it. Init must be
// called before the engine is used.
func Open(ctx context.Context, opts EngineOptions) (*Engine, error) {
	database, err := db.Open(ctx, db.Options{
		Path:        opts.Path,
		BusyTimeout: opts.BusyTimeout,
		Retry:       opts.Retry,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, errs.Fatal("open", err)
	}
	e := NewEngine(database, opts)
	e.path = opts.Path
	return e, nil
}

// NewEngine creates an engine over an already opened database.
func NewEngine(database *sqlx.DB, opts EngineOptions) *Engine {
	st := &store{
		db:        database,
		retry:     opts.Retry,
		logger:    opts.Logger,
		now:       opts.Now,
		newHoleID: opts.NewHoleID,
	}
	if st.retry.Attempts <= 0 {
		st.retry = db.DefaultRetryPolicy()
	}
	if st.logger == nil {
		st.logger = zap.NewNop()
	}
	if st.now == nil {
		st.now = time.Now
	}
	if st.newHoleID == nil {
		st.newHoleID = db.NewHoleID
	}
	if st.retry.OnRetry == nil {
		logger := st.logger
		st.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
			logger.Debug("database locked, retrying",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		}
	}

	return &Engine{
		ShiftRepository:    &ShiftRepository{st},
		ActivityRepository: &ActivityRepository{st},
		VehicleRepository:  &VehicleRepository{st},
		HoleRepository:     &HoleRepository{st},
		st:                 st,
		path:               opts.Path,
	}
}

// Name returns secondary.BackendEmbedded.
func (e *Engine) Name() string { return secondary.BackendEmbedded }

// Path returns the database file path.
func (e *Engine) Path() string { return e.path }

// DB exposes the underlying handle for diagnostics.
func (e *Engine) DB() *sqlx.DB { return e.st.db }

// Init runs the migration chain.
func (e *Engine) Init(ctx context.Context) (*secondary.InitRecord, error) {
	rep, err := db.Migrate(ctx, e.st.db, db.MigrateOptions{
		Retry:     e.st.retry,
		Logger:    e.st.logger,
		Now:       func() time.Time { return e.st.now().UTC() },
		NewHoleID: e.st.newHoleID,
	})
	if rep == nil {
		return nil, err
	}

	record := &secondary.InitRecord{
		SchemaVersion:    rep.SchemaVersion,
		Applied:          rep.Applied,
		Deferred:         rep.Deferred,
		ShiftsMerged:     rep.ShiftsMerged,
		ActivitiesMoved:  rep.ActivitiesMoved,
		HolesAssigned:    rep.HolesAssigned,
		OrphanActivities: rep.OrphanActivities,
	}
	for _, a := range rep.Anomalies {
		record.Anomalies = append(record.Anomalies, a.String())
	}
	return record, err
}

// Close closes the database.
func (e *Engine) Close() error {
	return e.st.db.Close()
}

// Diagnostics reports the recorded schema version, journal mode and the
// result of PRAGMA integrity_check.
func (e *Engine) Diagnostics(ctx context.Context) (version int, journal string, integrity string, err error) {
	err = e.st.read(ctx, "diagnostics", func(ctx context.Context) error {
		var err error
		if version, err = db.CurrentVersion(ctx, e.st.db); err != nil {
			return err
		}
		if journal, err = db.JournalMode(ctx, e.st.db); err != nil {
			return err
		}
		return e.st.db.GetContext(ctx, &integrity, "PRAGMA integrity_check")
	})
	return version, journal, integrity, err
}
