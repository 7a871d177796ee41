package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/puma/internal/db"
	"github.com/example/puma/internal/ports/secondary"
)

// ShiftRepository implements secondary.ShiftRepository with SQLite.
type ShiftRepository struct {
	*store
}

// NewShiftRepository creates a shift repository over an opened database.
func NewShiftRepository(database *sqlx.DB) *ShiftRepository {
	return NewEngine(database, EngineOptions{}).ShiftRepository
}

type shiftRow struct {
	ID                      int64          `db:"id"`
	ShiftDate               string         `db:"shift_date"`
	Username                string         `db:"username"`
	Client                  string         `db:"client"`
	Site                    string         `db:"site"`
	SiteOther               sql.NullString `db:"site_other"`
	JobNumber               string         `db:"job_number"`
	VehicleBarcode          string         `db:"vehicle_barcode"`
	VehicleName             string         `db:"vehicle_name"`
	VehicleDescription      sql.NullString `db:"vehicle_description"`
	VehicleModel            sql.NullString `db:"vehicle_model"`
	VehicleCategory         sql.NullString `db:"vehicle_category"`
	VehicleLocationExpected sql.NullString `db:"vehicle_location_expected"`
	VehicleLocationActual   sql.NullString `db:"vehicle_location_actual"`
	VehicleLocationMismatch int            `db:"vehicle_location_mismatch"`
	ShiftStart              string         `db:"shift_start"`
	ShiftHours              float64        `db:"shift_hours"`
	ShiftNotes              sql.NullString `db:"shift_notes"`
	CreatedAt               string         `db:"created_at"`
	UpdatedAt               string         `db:"updated_at"`
}

func (r shiftRow) record() *secondary.ShiftRecord {
	return &secondary.ShiftRecord{
		ID:                      r.ID,
		ShiftDate:               r.ShiftDate,
		Username:                r.Username,
		Client:                  r.Client,
		Site:                    r.Site,
		SiteOther:               r.SiteOther.String,
		JobNumber:               r.JobNumber,
		VehicleBarcode:          r.VehicleBarcode,
		VehicleName:             r.VehicleName,
		VehicleDescription:      r.VehicleDescription.String,
		VehicleModel:            r.VehicleModel.String,
		VehicleCategory:         r.VehicleCategory.String,
		VehicleLocationExpected: r.VehicleLocationExpected.String,
		VehicleLocationActual:   r.VehicleLocationActual.String,
		VehicleLocationMismatch: r.VehicleLocationMismatch != 0,
		ShiftStart:              r.ShiftStart,
		ShiftHours:              r.ShiftHours,
		ShiftNotes:              r.ShiftNotes.String,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

const shiftSelect = `SELECT id, shift_date, username, client, site, site_other, job_number,
	vehicle_barcode, vehicle_name, vehicle_description, vehicle_model, vehicle_category,
	vehicle_location_expected, vehicle_location_actual, vehicle_location_mismatch,
	shift_start, shift_hours, shift_notes, created_at, updated_at
	FROM shifts`

func getShift(ctx context.Context, q sqlx.QueryerContext, shiftDate, username string) (*secondary.ShiftRecord, error) {
	var row shiftRow
	err := sqlx.GetContext(ctx, q, &row, shiftSelect+" WHERE shift_date = ? AND username = ?", shiftDate, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return row.record(), nil
}

// GetShift retrieves the shift for (date, username), or nil.
func (r *ShiftRepository) GetShift(ctx context.Context, shiftDate, username string) (*secondary.ShiftRecord, error) {
	var record *secondary.ShiftRecord
	err := r.read(ctx, "get shift", func(ctx context.Context) error {
		var err error
		record, err = getShift(ctx, r.db, shiftDate, username)
		return err
	})
	return record, err
}

// UpsertShift inserts the shift or overwrites the row already stored for its
// (date, username). created_at of an existing row is kept. Concurrent callers
// never see a duplicate-key error; the last write wins.
//
// While the unique key index is deferred the conflict clause has nothing to
// match, so the row is updated by key and inserted only when nothing changed.
func (r *ShiftRepository) UpsertShift(ctx context.Context, shift *secondary.ShiftRecord) (*secondary.ShiftRecord, error) {
	var stored *secondary.ShiftRecord
	err := r.write(ctx, "upsert shift", func(ctx context.Context, tx *sqlx.Tx) error {
		now := r.timestamp()
		mismatch := 0
		if shift.VehicleLocationMismatch {
			mismatch = 1
		}
		values := []any{
			shift.Client, shift.Site, nullString(shift.SiteOther), shift.JobNumber,
			shift.VehicleBarcode, shift.VehicleName, nullString(shift.VehicleDescription),
			nullString(shift.VehicleModel), nullString(shift.VehicleCategory),
			nullString(shift.VehicleLocationExpected), nullString(shift.VehicleLocationActual), mismatch,
			shift.ShiftStart, shift.ShiftHours, nullString(shift.ShiftNotes),
		}

		keyed, err := db.IndexExists(ctx, tx, db.ShiftKeyIndex)
		if err != nil {
			return err
		}
		if keyed {
			args := append([]any{shift.ShiftDate, shift.Username}, values...)
			if _, err := tx.ExecContext(ctx, shiftInsertSQL+shiftConflictSQL, append(args, now, now)...); err != nil {
				return fmt.Errorf("failed to upsert shift: %w", err)
			}
		} else if err := upsertShiftByKey(ctx, tx, shift, values, now); err != nil {
			return err
		}

		stored, err = getShift(ctx, tx, shift.ShiftDate, shift.Username)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("shift %s/%s missing after upsert", shift.ShiftDate, shift.Username)
		}
		return nil
	})
	return stored, err
}

const shiftInsertSQL = `
	INSERT INTO shifts (
		shift_date, username, client, site, site_other, job_number,
		vehicle_barcode, vehicle_name, vehicle_description, vehicle_model, vehicle_category,
		vehicle_location_expected, vehicle_location_actual, vehicle_location_mismatch,
		shift_start, shift_hours, shift_notes, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const shiftConflictSQL = `
	ON CONFLICT(shift_date, username) DO UPDATE SET
		client = excluded.client,
		site = excluded.site,
		site_other = excluded.site_other,
		job_number = excluded.job_number,
		vehicle_barcode = excluded.vehicle_barcode,
		vehicle_name = excluded.vehicle_name,
		vehicle_description = excluded.vehicle_description,
		vehicle_model = excluded.vehicle_model,
		vehicle_category = excluded.vehicle_category,
		vehicle_location_expected = excluded.vehicle_location_expected,
		vehicle_location_actual = excluded.vehicle_location_actual,
		vehicle_location_mismatch = excluded.vehicle_location_mismatch,
		shift_start = excluded.shift_start,
		shift_hours = excluded.shift_hours,
		shift_notes = excluded.shift_notes,
		updated_at = excluded.updated_at`

const shiftUpdateByKeySQL = `
	UPDATE shifts SET
		client = ?, site = ?, site_other = ?, job_number = ?,
		vehicle_barcode = ?, vehicle_name = ?, vehicle_description = ?,
		vehicle_model = ?, vehicle_category = ?,
		vehicle_location_expected = ?, vehicle_location_actual = ?, vehicle_location_mismatch = ?,
		shift_start = ?, shift_hours = ?, shift_notes = ?, updated_at = ?
	WHERE shift_date = ? AND username = ?`

// upsertShiftByKey is the upsert for a table without the unique key index.
// It runs inside the caller's write transaction, so no other writer can
// insert between the update and the insert.
func upsertShiftByKey(ctx context.Context, tx *sqlx.Tx, shift *secondary.ShiftRecord, values []any, now string) error {
	args := append(append([]any{}, values...), now, shift.ShiftDate, shift.Username)
	res, err := tx.ExecContext(ctx, shiftUpdateByKeySQL, args...)
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}
	if n > 0 {
		return nil
	}
	args = append(append([]any{shift.ShiftDate, shift.Username}, values...), now, now)
	if _, err := tx.ExecContext(ctx, shiftInsertSQL, args...); err != nil {
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	return nil
}

// resolveShiftID maps (date, username) to the current shift id.
func resolveShiftID(ctx context.Context, q sqlx.QueryerContext, shiftDate, username string) (int64, bool, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id,
		"SELECT id FROM shifts WHERE shift_date = ? AND username = ?", shiftDate, username)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve shift: %w", err)
	}
	return id, true, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
