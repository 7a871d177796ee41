package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnrecognizedSchema is returned when a table cannot be mapped onto the
// canonical layout at all.
var ErrUnrecognizedSchema = errors.New("schema not recognized")

var legacyActivityColumns = []string{"start_time", "end_time"}

// activitiesNeedRebuild reports whether activities is missing canonical
// columns, carries the legacy time-only columns, or lacks the shift/hole
// foreign keys.
func activitiesNeedRebuild(ctx context.Context, q Querier) (bool, error) {
	cols, err := ColumnsByName(ctx, q, "activities")
	if err != nil {
		return false, err
	}
	if len(cols) == 0 {
		return false, nil
	}
	if !cols.Equal(ActivityColumns) || cols.HasAny(legacyActivityColumns...) {
		return true, nil
	}
	toShifts, err := HasForeignKey(ctx, q, "activities", "shift_id", "shifts")
	if err != nil {
		return false, err
	}
	toHoles, err := HasForeignKey(ctx, q, "activities", "hole_id", "holes")
	if err != nil {
		return false, err
	}
	return !toShifts || !toHoles, nil
}

// activityRow is one activities row in canonical form.
type activityRow struct {
	ID        int64
	ShiftID   int64
	StartTS   string
	EndTS     string
	Code      string
	Label     string
	Notes     string
	Tool      string
	HoleID    string
	CreatedAt string
	UpdatedAt string

	shiftKnown bool
}

func (r activityRow) values() []any {
	return []any{
		r.ID, r.ShiftID, r.StartTS, r.EndTS, r.Code, r.Label,
		nullable(r.Notes), nullable(r.Tool), nullable(r.HoleID),
		r.CreatedAt, r.UpdatedAt,
	}
}

// reconcileActivityRow maps a legacy row onto the canonical columns.
// shiftDates resolves shift ids to their dates for anchoring bare clock times.
func reconcileActivityRow(row map[string]any, shiftDates map[int64]string, now time.Time, newHoleID func() string) (activityRow, []string, bool) {
	var notes []string
	r := activityRow{ID: rowID(row)}
	nowText := now.Format(TimestampLayout)

	if sid, err := strconv.ParseInt(strings.TrimSpace(AsString(row["shift_id"])), 10, 64); err == nil {
		r.ShiftID = sid
		_, r.shiftKnown = shiftDates[sid]
	}
	date := shiftDates[r.ShiftID]

	rawStart := FirstString(row, "start_ts", "start_time", "start", "begin_time")
	start, ok := ResolveActivityTime(rawStart, date)
	if !ok {
		start = nowText
		notes = append(notes, fmt.Sprintf("unparseable start %q; defaulted to now", rawStart))
	}
	r.StartTS = start

	rawEnd := FirstString(row, "end_ts", "end_time", "end", "finish_time")
	end, ok := ResolveActivityTime(rawEnd, date)
	if !ok {
		end = start
		if rawEnd != "" {
			notes = append(notes, fmt.Sprintf("unparseable end %q; defaulted to start", rawEnd))
		}
	}
	// time-only rows that run past midnight
	if _, clockOnly := ParseClock(rawEnd); clockOnly && end < start {
		if t, ok := ParseTimestamp(end); ok {
			end = t.Add(24 * time.Hour).Format(TimestampLayout)
		}
	}
	r.EndTS = end

	r.Code = FirstString(row, "code")
	if r.Code == "" {
		r.Code = DefaultCode
	}
	r.Label = FirstString(row, "label", "title", "description")
	if r.Label == "" {
		r.Label = DefaultLabel
	}
	r.Notes = FirstString(row, "notes", "comments")
	r.Tool = FirstString(row, "tool", "tool_ref", "tools_csv")

	r.HoleID = FirstString(row, "hole_id")
	assigned := false
	if IsLoggingCode(r.Code) && r.HoleID == "" {
		r.HoleID = newHoleID()
		assigned = true
	}

	if ts, ok := NormalizeTimestamp(FirstString(row, "created_at")); ok {
		r.CreatedAt = ts
	} else {
		r.CreatedAt = nowText
	}
	if ts, ok := NormalizeTimestamp(FirstString(row, "updated_at")); ok {
		r.UpdatedAt = ts
	} else {
		r.UpdatedAt = r.CreatedAt
	}

	return r, notes, assigned
}

// migrateActivities rebuilds activities into the canonical layout with the
// cascade link to shifts and the set-null link to holes. Rows whose shift
// cannot be resolved are moved to orphan_activities instead of being dropped.
func migrateActivities(ctx context.Context, env *migrationEnv) error {
	cols, err := ColumnsByName(ctx, env.tx, "activities")
	if err != nil {
		return err
	}
	if !cols.Has("shift_id") {
		var n int
		if err := env.tx.QueryRowxContext(ctx, "SELECT COUNT(*) FROM activities").Scan(&n); err != nil {
			return fmt.Errorf("failed to count activities: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: activities has %d rows but no shift_id column", ErrUnrecognizedSchema, n)
		}
	}

	shiftDates := map[int64]string{}
	srows, err := env.tx.QueryxContext(ctx, "SELECT id, shift_date FROM shifts")
	if err != nil {
		return fmt.Errorf("failed to read shift dates: %w", err)
	}
	for srows.Next() {
		var id int64
		var date string
		if err := srows.Scan(&id, &date); err != nil {
			srows.Close()
			return fmt.Errorf("failed to scan shift date: %w", err)
		}
		shiftDates[id] = date
	}
	srows.Close()

	if _, err := env.tx.ExecContext(ctx, orphanActivitiesSQL); err != nil {
		return fmt.Errorf("failed to create orphan_activities: %w", err)
	}
	if _, err := env.tx.ExecContext(ctx, "DROP TABLE IF EXISTS activities_new"); err != nil {
		return fmt.Errorf("failed to clear activities_new: %w", err)
	}
	if _, err := env.tx.ExecContext(ctx, "CREATE TABLE activities_new (\n"+activityColumnsDDL+"\n)"); err != nil {
		return fmt.Errorf("failed to create activities_new: %w", err)
	}

	rows, err := env.tx.QueryxContext(ctx, "SELECT rowid AS _rowid_, * FROM activities ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("failed to read activities: %w", err)
	}
	var derived []activityRow
	for rows.Next() {
		raw := map[string]any{}
		if err := rows.MapScan(raw); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan activity: %w", err)
		}
		r, notes, assigned := reconcileActivityRow(raw, shiftDates, env.now, env.newHoleID)
		for _, n := range notes {
			env.rep.anomaly("activities", r.ID, "%s", n)
		}
		if assigned {
			env.rep.HolesAssigned++
		}
		derived = append(derived, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read activities: %w", err)
	}
	rows.Close()

	insert := "INSERT INTO activities_new (" + strings.Join(ActivityColumns, ", ") + ") VALUES (" +
		placeholders(len(ActivityColumns)) + ")"
	quarantine := "INSERT OR REPLACE INTO orphan_activities (" + strings.Join(ActivityColumns, ", ") +
		", reason, quarantined_at) VALUES (" + placeholders(len(ActivityColumns)+2) + ")"

	for _, r := range derived {
		if err := EnsureHole(ctx, env.tx, r.HoleID, env.now); err != nil {
			return err
		}
		if !r.shiftKnown {
			reason := fmt.Sprintf("shift %d not found", r.ShiftID)
			args := append(r.values(), reason, env.now.Format(TimestampLayout))
			if _, err := env.tx.ExecContext(ctx, quarantine, args...); err != nil {
				return fmt.Errorf("failed to quarantine activity %d: %w", r.ID, err)
			}
			env.rep.OrphanActivities++
			env.rep.anomaly("activities", r.ID, "%s; moved to orphan_activities", reason)
			continue
		}
		if _, err := env.tx.ExecContext(ctx, insert, r.values()...); err != nil {
			return fmt.Errorf("failed to copy activity %d: %w", r.ID, err)
		}
	}

	if _, err := env.tx.ExecContext(ctx, "DROP TABLE activities"); err != nil {
		return fmt.Errorf("failed to drop old activities: %w", err)
	}
	if _, err := env.tx.ExecContext(ctx, "ALTER TABLE activities_new RENAME TO activities"); err != nil {
		return fmt.Errorf("failed to rename activities_new: %w", err)
	}
	if _, err := env.tx.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_acts_shift_start ON activities(shift_id, start_ts);
		CREATE INDEX IF NOT EXISTS idx_acts_hole ON activities(hole_id);`); err != nil {
		return fmt.Errorf("failed to index activities: %w", err)
	}
	return nil
}
