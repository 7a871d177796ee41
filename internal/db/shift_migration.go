package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// shiftRow is one shifts row in canonical form.
type shiftRow struct {
	ID                      int64
	ShiftDate               string
	Username                string
	Client                  string
	Site                    string
	SiteOther               string
	JobNumber               string
	VehicleBarcode          string
	VehicleName             string
	VehicleDescription      string
	VehicleModel            string
	VehicleCategory         string
	VehicleLocationExpected string
	VehicleLocationActual   string
	VehicleLocationMismatch bool
	ShiftStart              string
	ShiftHours              float64
	ShiftNotes              string
	CreatedAt               string
	UpdatedAt               string

	// raw timestamps as found, used for keeper selection
	rawCreated string
	rawUpdated string
}

// values returns the row in ShiftColumns order.
func (r shiftRow) values() []any {
	mismatch := 0
	if r.VehicleLocationMismatch {
		mismatch = 1
	}
	return []any{
		r.ID, r.ShiftDate, r.Username, r.Client, r.Site, nullable(r.SiteOther), r.JobNumber,
		r.VehicleBarcode, r.VehicleName, nullable(r.VehicleDescription), nullable(r.VehicleModel),
		nullable(r.VehicleCategory), nullable(r.VehicleLocationExpected), nullable(r.VehicleLocationActual),
		mismatch, r.ShiftStart, r.ShiftHours, nullable(r.ShiftNotes),
		r.CreatedAt, r.UpdatedAt,
	}
}

func (r shiftRow) candidate() keeperCandidate {
	return keeperCandidate{ID: r.ID, CreatedAt: r.rawCreated, UpdatedAt: r.rawUpdated}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// shiftsNeedRebuild reports whether the shifts columns differ from the
// canonical set, or a column the canonical layout declares NOT NULL accepts
// NULL. A nullable username lets NULL rows slip past the duplicate scan and
// keeps the unique index from ever being built.
func shiftsNeedRebuild(ctx context.Context, q Querier) (bool, error) {
	cols, err := ColumnsByName(ctx, q, "shifts")
	if err != nil {
		return false, err
	}
	if len(cols) == 0 {
		return false, nil
	}
	if !cols.Equal(ShiftColumns) {
		return true, nil
	}
	for _, name := range requiredColumns(shiftColumnsDDL) {
		if !cols[name].NotNull {
			return true, nil
		}
	}
	return false, nil
}

// preferred returns the value of column unless it is blank or still equals
// the column's declared default, in which case the first non-blank fallback
// column wins. When no fallback has a value the column's own value is kept.
func preferred(row map[string]any, cols ColumnSet, column string, fallbacks ...string) string {
	own := strings.TrimSpace(AsString(row[column]))
	unset := own == ""
	if c, ok := cols[column]; ok && !unset {
		if def, has := c.DefaultValue(); has && def == own {
			unset = true
		}
	}
	if !unset {
		return own
	}
	if fb := FirstString(row, fallbacks...); fb != "" {
		return fb
	}
	return own
}

// reconcileShiftRow derives the canonical row from a legacy row. It never
// fails; every value it had to invent is described in the returned notes.
func reconcileShiftRow(row map[string]any, cols ColumnSet, now time.Time) (shiftRow, []string) {
	var notes []string
	r := shiftRow{}

	r.ID = rowID(row)

	r.Username = preferred(row, cols, "username", "active_user")
	if r.Username == "" {
		r.Username = DefaultUsername
		notes = append(notes, "no username or active_user; defaulted")
	}

	rawDate := FirstString(row, "shift_date")
	date, ok := ParseShiftDate(rawDate, now)
	if !ok {
		notes = append(notes, fmt.Sprintf("unparseable shift_date %q; defaulted to %s", rawDate, date))
	}
	r.ShiftDate = date

	site := preferred(row, cols, "site")
	siteName := FirstString(row, "site_name")
	r.SiteOther = FirstString(row, "site_other")
	siteUnset := site == ""
	if c, ok := cols["site"]; ok && !siteUnset {
		if def, has := c.DefaultValue(); has && def == site {
			siteUnset = true
		}
	}
	switch {
	case siteUnset && siteName != "":
		r.Site = SiteManual
		if r.SiteOther == "" {
			r.SiteOther = siteName
		}
	case site == "":
		r.Site = SiteManual
		notes = append(notes, "no site; defaulted")
	default:
		r.Site = site
	}

	r.Client = FirstString(row, "client")
	if r.Client == "" {
		r.Client = DefaultClient
	}
	r.JobNumber = FirstString(row, "job_number")
	if r.JobNumber == "" {
		r.JobNumber = DefaultJobNumber
	}

	r.VehicleBarcode = preferred(row, cols, "vehicle_barcode", "vehicle")
	if r.VehicleBarcode == "" {
		r.VehicleBarcode = DefaultVehicle
	}
	r.VehicleName = preferred(row, cols, "vehicle_name", "vehicle")
	if r.VehicleName == "" {
		r.VehicleName = DefaultVehicle
	}
	r.VehicleDescription = FirstString(row, "vehicle_description")
	r.VehicleModel = FirstString(row, "vehicle_model")
	r.VehicleCategory = FirstString(row, "vehicle_category")
	r.VehicleLocationExpected = FirstString(row, "vehicle_location_expected")
	r.VehicleLocationActual = FirstString(row, "vehicle_location_actual")
	r.VehicleLocationMismatch = CoerceBool(row["vehicle_location_mismatch"])

	rawStart := FirstString(row, "shift_start")
	start, ok := ParseShiftStart(rawStart)
	if !ok {
		notes = append(notes, fmt.Sprintf("unparseable shift_start %q; defaulted to %s", rawStart, start))
	}
	r.ShiftStart = start

	hours, ok := ParseShiftHours(row["shift_hours"])
	if !ok {
		notes = append(notes, fmt.Sprintf("invalid shift_hours %q; defaulted to %g", AsString(row["shift_hours"]), hours))
	}
	r.ShiftHours = hours

	r.ShiftNotes = FirstString(row, "shift_notes", "notes")

	r.rawCreated = FirstString(row, "created_at")
	r.rawUpdated = FirstString(row, "updated_at")
	nowText := now.Format(TimestampLayout)
	if ts, ok := NormalizeTimestamp(r.rawCreated); ok {
		r.CreatedAt = ts
	} else {
		r.CreatedAt = nowText
	}
	if ts, ok := NormalizeTimestamp(r.rawUpdated); ok {
		r.UpdatedAt = ts
	} else {
		r.UpdatedAt = r.CreatedAt
	}

	return r, notes
}

// rowID prefers an integer id column and falls back to the rowid.
func rowID(row map[string]any) int64 {
	if id, err := strconv.ParseInt(strings.TrimSpace(AsString(row["id"])), 10, 64); err == nil {
		return id
	}
	id, _ := strconv.ParseInt(AsString(row["_rowid_"]), 10, 64)
	return id
}

// migrateShifts rebuilds shifts into the canonical layout. Rows sharing
// (shift_date, username) collapse into the keeper, whose original id is kept
// so activity references stay valid; activities of the other rows are
// repointed before the old table is dropped.
func migrateShifts(ctx context.Context, env *migrationEnv) error {
	cols, err := ColumnsByName(ctx, env.tx, "shifts")
	if err != nil {
		return err
	}

	rows, err := env.tx.QueryxContext(ctx, "SELECT rowid AS _rowid_, * FROM shifts ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("failed to read shifts: %w", err)
	}
	var derived []shiftRow
	for rows.Next() {
		raw := map[string]any{}
		if err := rows.MapScan(raw); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan shift: %w", err)
		}
		r, notes := reconcileShiftRow(raw, cols, env.now)
		for _, n := range notes {
			env.rep.anomaly("shifts", r.ID, "%s", n)
		}
		derived = append(derived, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read shifts: %w", err)
	}
	rows.Close()

	groups := map[string][]int{}
	var order []string
	for i, r := range derived {
		key := r.ShiftDate + "\x00" + r.Username
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	if _, err := env.tx.ExecContext(ctx, "DROP TABLE IF EXISTS shifts_new"); err != nil {
		return fmt.Errorf("failed to clear shifts_new: %w", err)
	}
	if _, err := env.tx.ExecContext(ctx, "CREATE TABLE shifts_new (\n"+shiftColumnsDDL+"\n)"); err != nil {
		return fmt.Errorf("failed to create shifts_new: %w", err)
	}

	actCols, err := ColumnsByName(ctx, env.tx, "activities")
	if err != nil {
		return err
	}
	canRepoint := actCols.Has("shift_id")

	insert := "INSERT INTO shifts_new (" + strings.Join(ShiftColumns, ", ") + ") VALUES (" +
		placeholders(len(ShiftColumns)) + ")"
	for _, key := range order {
		idx := groups[key]
		candidates := make([]keeperCandidate, len(idx))
		for i, j := range idx {
			candidates[i] = derived[j].candidate()
		}
		keeper := derived[idx[pickKeeper(candidates)]]

		if _, err := env.tx.ExecContext(ctx, insert, keeper.values()...); err != nil {
			return fmt.Errorf("failed to copy shift %d: %w", keeper.ID, err)
		}

		for _, j := range idx {
			loser := derived[j]
			if loser.ID == keeper.ID {
				continue
			}
			env.rep.ShiftsMerged++
			if !canRepoint {
				env.rep.anomaly("shifts", loser.ID, "merged into shift %d", keeper.ID)
				continue
			}
			res, err := env.tx.ExecContext(ctx,
				"UPDATE activities SET shift_id = ? WHERE shift_id = ?", keeper.ID, loser.ID)
			if err != nil {
				return fmt.Errorf("failed to repoint activities of shift %d: %w", loser.ID, err)
			}
			n, _ := res.RowsAffected()
			env.rep.ActivitiesMoved += int(n)
			env.rep.anomaly("shifts", loser.ID, "merged into shift %d, moved %d activities", keeper.ID, n)
		}
	}

	if _, err := env.tx.ExecContext(ctx, "DROP TABLE shifts"); err != nil {
		return fmt.Errorf("failed to drop old shifts: %w", err)
	}
	if _, err := env.tx.ExecContext(ctx, "ALTER TABLE shifts_new RENAME TO shifts"); err != nil {
		return fmt.Errorf("failed to rename shifts_new: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
