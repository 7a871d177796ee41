package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/puma/internal/core/activity"
	"github.com/example/puma/internal/errs"
	"github.com/example/puma/internal/ports/secondary"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryMaps(ctx context.Context, q querier, sql string, args ...any) ([]map[string]any, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errs.Invalid("shift_date", "invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

const shiftSelect = "SELECT * FROM PUMA_SHIFTS WHERE SHIFT_DATE = $1 AND USERNAME = $2 ORDER BY UPDATED_AT DESC LIMIT 1"

func getShift(ctx context.Context, q querier, day time.Time, username string) (*secondary.ShiftRecord, error) {
	rows, err := queryMaps(ctx, q, shiftSelect, day, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return shiftFromRow(rows[0]), nil
}

// GetShift returns the shift for (date, username), or nil.
func (e *Engine) GetShift(ctx context.Context, shiftDate, username string) (*secondary.ShiftRecord, error) {
	day, err := parseDate(shiftDate)
	if err != nil {
		return nil, err
	}
	sh, err := getShift(ctx, e.pool, day, username)
	return sh, e.classify("get shift", err)
}

// UpsertShift inserts or updates the shift for its (date, username) pair.
func (e *Engine) UpsertShift(ctx context.Context, shift *secondary.ShiftRecord) (*secondary.ShiftRecord, error) {
	day, err := parseDate(shift.ShiftDate)
	if err != nil {
		return nil, err
	}
	rows, err := queryMaps(ctx, e.pool, `
		INSERT INTO PUMA_SHIFTS (
			SHIFT_DATE, USERNAME, CLIENT, SITE, SITE_OTHER, JOB_NUMBER,
			VEHICLE_BARCODE, VEHICLE_NAME, VEHICLE_DESCRIPTION, VEHICLE_MODEL, VEHICLE_CATEGORY,
			VEHICLE_LOCATION_EXPECTED, VEHICLE_LOCATION_ACTUAL, VEHICLE_LOCATION_MISMATCH,
			SHIFT_START, SHIFT_HOURS, SHIFT_NOTES, CREATED_AT, UPDATED_AT
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		ON CONFLICT (SHIFT_DATE, USERNAME) DO UPDATE SET
			CLIENT = EXCLUDED.CLIENT,
			SITE = EXCLUDED.SITE,
			SITE_OTHER = EXCLUDED.SITE_OTHER,
			JOB_NUMBER = EXCLUDED.JOB_NUMBER,
			VEHICLE_BARCODE = EXCLUDED.VEHICLE_BARCODE,
			VEHICLE_NAME = EXCLUDED.VEHICLE_NAME,
			VEHICLE_DESCRIPTION = EXCLUDED.VEHICLE_DESCRIPTION,
			VEHICLE_MODEL = EXCLUDED.VEHICLE_MODEL,
			VEHICLE_CATEGORY = EXCLUDED.VEHICLE_CATEGORY,
			VEHICLE_LOCATION_EXPECTED = EXCLUDED.VEHICLE_LOCATION_EXPECTED,
			VEHICLE_LOCATION_ACTUAL = EXCLUDED.VEHICLE_LOCATION_ACTUAL,
			VEHICLE_LOCATION_MISMATCH = EXCLUDED.VEHICLE_LOCATION_MISMATCH,
			SHIFT_START = EXCLUDED.SHIFT_START,
			SHIFT_HOURS = EXCLUDED.SHIFT_HOURS,
			SHIFT_NOTES = EXCLUDED.SHIFT_NOTES,
			UPDATED_AT = EXCLUDED.UPDATED_AT
		RETURNING *`,
		day, shift.Username, shift.Client, shift.Site, nullText(shift.SiteOther), shift.JobNumber,
		shift.VehicleBarcode, shift.VehicleName, nullText(shift.VehicleDescription),
		nullText(shift.VehicleModel), nullText(shift.VehicleCategory),
		nullText(shift.VehicleLocationExpected), nullText(shift.VehicleLocationActual),
		shift.VehicleLocationMismatch, shift.ShiftStart, shift.ShiftHours, nullText(shift.ShiftNotes),
		e.timestamp(),
	)
	if err != nil {
		return nil, e.classify("upsert shift", fmt.Errorf("failed to upsert shift: %w", err))
	}
	if len(rows) == 0 {
		return nil, e.classify("upsert shift", fmt.Errorf("upsert returned no row"))
	}
	return shiftFromRow(rows[0]), nil
}

// activityArgs parses the record's timestamps for the TIMESTAMP columns.
func activityArgs(a *secondary.ActivityRecord) (time.Time, time.Time, error) {
	start, err := parseTimestamp(a.StartTS)
	if err != nil {
		return time.Time{}, time.Time{}, errs.Invalid("start_ts", "cannot parse %q", a.StartTS)
	}
	end, err := parseTimestamp(a.EndTS)
	if err != nil {
		return time.Time{}, time.Time{}, errs.Invalid("end_ts", "cannot parse %q", a.EndTS)
	}
	return start, end, nil
}

func (e *Engine) prepareHole(ctx context.Context, tx pgx.Tx, a *secondary.ActivityRecord) error {
	a.HoleID = strings.TrimSpace(a.HoleID)
	if activity.NeedsHole(a.Code, a.HoleID) {
		a.HoleID = e.newHoleID()
	}
	return ensureHole(ctx, tx, a.HoleID, e.timestamp())
}

// ListActivities returns the activities for (date, username) ordered by
// start then id.
func (e *Engine) ListActivities(ctx context.Context, shiftDate, username string) ([]*secondary.ActivityRecord, error) {
	day, err := parseDate(shiftDate)
	if err != nil {
		return nil, err
	}
	sh, err := getShift(ctx, e.pool, day, username)
	if err != nil || sh == nil {
		return nil, e.classify("list activities", err)
	}
	rows, err := queryMaps(ctx, e.pool, `
		SELECT * FROM PUMA_ACTIVITIES
		WHERE SHIFT_DATE = $1 AND USERNAME = $2
		ORDER BY START_TS ASC, ID ASC`, day, username)
	if err != nil {
		return nil, e.classify("list activities", fmt.Errorf("failed to list activities: %w", err))
	}
	records := make([]*secondary.ActivityRecord, len(rows))
	for i, row := range rows {
		records[i] = activityFromRow(row, sh.ID)
	}
	return records, nil
}

// AddActivity stores a new activity for an existing shift.
func (e *Engine) AddActivity(ctx context.Context, shiftDate, username string, a *secondary.ActivityRecord) (*secondary.ActivityRecord, error) {
	day, err := parseDate(shiftDate)
	if err != nil {
		return nil, err
	}
	start, end, err := activityArgs(a)
	if err != nil {
		return nil, err
	}

	var stored *secondary.ActivityRecord
	err = pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		sh, err := getShift(ctx, tx, day, username)
		if err != nil {
			return err
		}
		if sh == nil {
			return errs.NoShift(shiftDate, username)
		}

		rec := *a
		if err := e.prepareHole(ctx, tx, &rec); err != nil {
			return err
		}
		now := e.timestamp()
		rows, err := queryMaps(ctx, tx, `
			INSERT INTO PUMA_ACTIVITIES (
				SHIFT_DATE, USERNAME, START_TS, END_TS, CODE, LABEL, NOTES, TOOL, HOLE_ID, CREATED_AT, UPDATED_AT
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			RETURNING *`,
			day, username, start, end, rec.Code, rec.Label,
			nullText(rec.Notes), nullText(rec.Tool), nullText(rec.HoleID), now,
		)
		if err != nil {
			return fmt.Errorf("failed to add activity: %w", err)
		}
		stored = activityFromRow(rows[0], sh.ID)
		return nil
	})
	if err != nil {
		return nil, e.classify("add activity", err)
	}
	return stored, nil
}

// UpdateActivity replaces every field of activity a.ID within (date, username).
func (e *Engine) UpdateActivity(ctx context.Context, shiftDate, username string, a *secondary.ActivityRecord) (*secondary.ActivityRecord, error) {
	day, err := parseDate(shiftDate)
	if err != nil {
		return nil, err
	}
	start, end, err := activityArgs(a)
	if err != nil {
		return nil, err
	}

	var stored *secondary.ActivityRecord
	err = pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		sh, err := getShift(ctx, tx, day, username)
		if err != nil {
			return err
		}
		if sh == nil {
			return errs.NoShift(shiftDate, username)
		}

		rec := *a
		if err := e.prepareHole(ctx, tx, &rec); err != nil {
			return err
		}
		rows, err := queryMaps(ctx, tx, `
			UPDATE PUMA_ACTIVITIES
			SET START_TS = $1, END_TS = $2, CODE = $3, LABEL = $4, NOTES = $5, TOOL = $6, HOLE_ID = $7, UPDATED_AT = $8
			WHERE ID = $9 AND SHIFT_DATE = $10 AND USERNAME = $11
			RETURNING *`,
			start, end, rec.Code, rec.Label, nullText(rec.Notes), nullText(rec.Tool), nullText(rec.HoleID),
			e.timestamp(), rec.ID, day, username,
		)
		if err != nil {
			return fmt.Errorf("failed to update activity: %w", err)
		}
		if len(rows) == 0 {
			return errs.Invalid("id", "activity %d not found in shift %s/%s", rec.ID, shiftDate, username)
		}
		stored = activityFromRow(rows[0], sh.ID)
		return nil
	})
	if err != nil {
		return nil, e.classify("update activity", err)
	}
	return stored, nil
}

// DeleteActivity removes the activity; missing rows are not an error.
func (e *Engine) DeleteActivity(ctx context.Context, shiftDate, username string, id int64) error {
	day, err := parseDate(shiftDate)
	if err != nil {
		return err
	}
	_, err = e.pool.Exec(ctx,
		"DELETE FROM PUMA_ACTIVITIES WHERE ID = $1 AND SHIFT_DATE = $2 AND USERNAME = $3",
		id, day, username)
	if err != nil {
		return e.classify("delete activity", fmt.Errorf("failed to delete activity: %w", err))
	}
	return nil
}

// ReplaceVehicles deletes the catalog and inserts vehicles in one transaction.
func (e *Engine) ReplaceVehicles(ctx context.Context, vehicles []*secondary.VehicleRecord) error {
	err := pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM PUMA_VEHICLES"); err != nil {
			return fmt.Errorf("failed to clear vehicles: %w", err)
		}
		now := e.timestamp()
		for _, v := range vehicles {
			barcode := strings.TrimSpace(v.Barcode)
			if barcode == "" {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO PUMA_VEHICLES (BARCODE, NAME, DESCRIPTION, MODEL, CATEGORY, LOCATION, UPDATED_AT)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (BARCODE) DO UPDATE SET
					NAME = EXCLUDED.NAME,
					DESCRIPTION = EXCLUDED.DESCRIPTION,
					MODEL = EXCLUDED.MODEL,
					CATEGORY = EXCLUDED.CATEGORY,
					LOCATION = EXCLUDED.LOCATION,
					UPDATED_AT = EXCLUDED.UPDATED_AT`,
				barcode, nullText(v.Name), nullText(v.Description), nullText(v.Model),
				nullText(v.Category), nullText(v.Location), now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert vehicle %s: %w", barcode, err)
			}
		}
		return nil
	})
	return e.classify("replace vehicles", err)
}

// GetVehicle returns the vehicle with barcode, or nil.
func (e *Engine) GetVehicle(ctx context.Context, barcode string) (*secondary.VehicleRecord, error) {
	rows, err := queryMaps(ctx, e.pool, "SELECT * FROM PUMA_VEHICLES WHERE BARCODE = $1", strings.TrimSpace(barcode))
	if err != nil {
		return nil, e.classify("get vehicle", fmt.Errorf("failed to get vehicle: %w", err))
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return vehicleFromRow(rows[0]), nil
}

// ListVehicles returns every vehicle ordered by name.
func (e *Engine) ListVehicles(ctx context.Context) ([]*secondary.VehicleRecord, error) {
	rows, err := queryMaps(ctx, e.pool, "SELECT * FROM PUMA_VEHICLES ORDER BY NAME ASC, BARCODE ASC")
	if err != nil {
		return nil, e.classify("list vehicles", fmt.Errorf("failed to list vehicles: %w", err))
	}
	records := make([]*secondary.VehicleRecord, len(rows))
	for i, row := range rows {
		records[i] = vehicleFromRow(row)
	}
	return records, nil
}

// ListHoles returns the hole registry with activity counts.
func (e *Engine) ListHoles(ctx context.Context) ([]*secondary.HoleRecord, error) {
	rows, err := queryMaps(ctx, e.pool, `
		SELECT h.HOLE_ID, h.CREATED_AT, h.UPDATED_AT, COUNT(a.ID) AS ACTIVITY_COUNT
		FROM PUMA_HOLES h
		LEFT JOIN PUMA_ACTIVITIES a ON a.HOLE_ID = h.HOLE_ID
		GROUP BY h.HOLE_ID, h.CREATED_AT, h.UPDATED_AT
		ORDER BY h.CREATED_AT ASC, h.HOLE_ID ASC`)
	if err != nil {
		return nil, e.classify("list holes", fmt.Errorf("failed to list holes: %w", err))
	}
	records := make([]*secondary.HoleRecord, len(rows))
	for i, row := range rows {
		records[i] = holeFromRow(row)
	}
	return records, nil
}
