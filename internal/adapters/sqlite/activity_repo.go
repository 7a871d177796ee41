package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/example/puma/internal/db"
	"github.com/example/puma/internal/errs"
	"github.com/example/puma/internal/ports/secondary"
)

// ActivityRepository implements secondary.ActivityRepository with SQLite.
type ActivityRepository struct {
	*store
}

// NewActivityRepository creates an activity repository over an opened database.
func NewActivityRepository(database *sqlx.DB) *ActivityRepository {
	return NewEngine(database, EngineOptions{}).ActivityRepository
}

type activityRow struct {
	ID        int64          `db:"id"`
	ShiftID   int64          `db:"shift_id"`
	StartTS   string         `db:"start_ts"`
	EndTS     string         `db:"end_ts"`
	Code      string         `db:"code"`
	Label     string         `db:"label"`
	Notes     sql.NullString `db:"notes"`
	Tool      sql.NullString `db:"tool"`
	HoleID    sql.NullString `db:"hole_id"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
}

func (r activityRow) record() *secondary.ActivityRecord {
	return &secondary.ActivityRecord{
		ID:        r.ID,
		ShiftID:   r.ShiftID,
		StartTS:   r.StartTS,
		EndTS:     r.EndTS,
		Code:      r.Code,
		Label:     r.Label,
		Notes:     r.Notes.String,
		Tool:      r.Tool.String,
		HoleID:    r.HoleID.String,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const activitySelect = `SELECT id, shift_id, start_ts, end_ts, code, label, notes, tool, hole_id,
	created_at, updated_at FROM activities`

func getActivity(ctx context.Context, q sqlx.QueryerContext, id int64) (*secondary.ActivityRecord, error) {
	var row activityRow
	if err := sqlx.GetContext(ctx, q, &row, activitySelect+" WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return row.record(), nil
}

// ListActivities returns the activities of the shift for (date, username),
// ordered by start then id. No shift means no activities.
func (r *ActivityRepository) ListActivities(ctx context.Context, shiftDate, username string) ([]*secondary.ActivityRecord, error) {
	var records []*secondary.ActivityRecord
	err := r.read(ctx, "list activities", func(ctx context.Context) error {
		records = nil
		var rows []activityRow
		err := r.db.SelectContext(ctx, &rows, activitySelect+`
			WHERE shift_id = (SELECT id FROM shifts WHERE shift_date = ? AND username = ?)
			ORDER BY start_ts ASC, id ASC`, shiftDate, username)
		if err != nil {
			return fmt.Errorf("failed to list activities: %w", err)
		}
		for _, row := range rows {
			records = append(records, row.record())
		}
		return nil
	})
	return records, err
}

// prepareHole assigns a fresh hole to logging activities that lack one and
// registers the hole.
func (r *ActivityRepository) prepareHole(ctx context.Context, tx *sqlx.Tx, activity *secondary.ActivityRecord) error {
	activity.HoleID = strings.TrimSpace(activity.HoleID)
	if db.IsLoggingCode(activity.Code) && activity.HoleID == "" {
		activity.HoleID = r.newHoleID()
	}
	return db.EnsureHole(ctx, tx, activity.HoleID, r.now().UTC())
}

// AddActivity stores a new activity in the shift for (date, username).
func (r *ActivityRepository) AddActivity(ctx context.Context, shiftDate, username string, activity *secondary.ActivityRecord) (*secondary.ActivityRecord, error) {
	var stored *secondary.ActivityRecord
	err := r.write(ctx, "add activity", func(ctx context.Context, tx *sqlx.Tx) error {
		shiftID, ok, err := resolveShiftID(ctx, tx, shiftDate, username)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NoShift(shiftDate, username)
		}

		rec := *activity
		if err := r.prepareHole(ctx, tx, &rec); err != nil {
			return err
		}
		now := r.timestamp()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO activities (shift_id, start_ts, end_ts, code, label, notes, tool, hole_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			shiftID, rec.StartTS, rec.EndTS, rec.Code, rec.Label,
			nullString(rec.Notes), nullString(rec.Tool), nullString(rec.HoleID), now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to add activity: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read activity id: %w", err)
		}
		stored, err = getActivity(ctx, tx, id)
		return err
	})
	return stored, err
}

// UpdateActivity replaces every field of the activity activity.ID within the
// shift for (date, username).
func (r *ActivityRepository) UpdateActivity(ctx context.Context, shiftDate, username string, activity *secondary.ActivityRecord) (*secondary.ActivityRecord, error) {
	var stored *secondary.ActivityRecord
	err := r.write(ctx, "update activity", func(ctx context.Context, tx *sqlx.Tx) error {
		shiftID, ok, err := resolveShiftID(ctx, tx, shiftDate, username)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NoShift(shiftDate, username)
		}

		rec := *activity
		if err := r.prepareHole(ctx, tx, &rec); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE activities
			SET start_ts = ?, end_ts = ?, code = ?, label = ?, notes = ?, tool = ?, hole_id = ?, updated_at = ?
			WHERE id = ? AND shift_id = ?`,
			rec.StartTS, rec.EndTS, rec.Code, rec.Label,
			nullString(rec.Notes), nullString(rec.Tool), nullString(rec.HoleID), r.timestamp(),
			rec.ID, shiftID,
		)
		if err != nil {
			return fmt.Errorf("failed to update activity: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update activity: %w", err)
		}
		if n == 0 {
			return errs.Invalid("id", "activity %d not found in shift %s/%s", rec.ID, shiftDate, username)
		}
		stored, err = getActivity(ctx, tx, rec.ID)
		return err
	})
	return stored, err
}

// DeleteActivity removes the activity from the shift for (date, username).
// It is a no-op when the shift or the activity does not exist.
func (r *ActivityRepository) DeleteActivity(ctx context.Context, shiftDate, username string, id int64) error {
	return r.write(ctx, "delete activity", func(ctx context.Context, tx *sqlx.Tx) error {
		shiftID, ok, err := resolveShiftID(ctx, tx, shiftDate, username)
		if err != nil || !ok {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM activities WHERE id = ? AND shift_id = ?", id, shiftID); err != nil {
			return fmt.Errorf("failed to delete activity: %w", err)
		}
		return nil
	})
}
