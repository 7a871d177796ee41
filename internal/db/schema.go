package db

import "strings"

// Canonical table layout. Timestamps are ISO-8601 text, dates are
// YYYY-MM-DD text; columns are declared TEXT so the driver never converts
// them to time.Time behind our back.
//
// # Schema Drift Protection
//
// TablesSQL and the index statements below are the single source of truth
// for the canonical schema. The migration chain creates tables from TablesSQL, the migrators
// rebuild into the same column lists (ShiftColumns, ActivityColumns), and tests
// build their databases through Migrate instead of hardcoding CREATE TABLE
// statements.
const TablesSQL = `
-- Vehicles (reference data, replaced wholesale from the catalog)
CREATE TABLE IF NOT EXISTS vehicles (
	barcode TEXT PRIMARY KEY,
	name TEXT,
	description TEXT,
	model TEXT,
	category TEXT,
	location TEXT
);

-- Holes (identifiers attached to logging activities)
CREATE TABLE IF NOT EXISTS holes (
	hole_id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

-- Shifts (one per user per calendar date)
CREATE TABLE IF NOT EXISTS shifts (
` + shiftColumnsDDL + `
);

-- Activities (timestamped entries inside a shift)
CREATE TABLE IF NOT EXISTS activities (
` + activityColumnsDDL + `
);
`

// ShiftKeyIndex is the unique (shift_date, username) index. It is created
// separately from the supporting ones because it can only be built once
// duplicates are gone; writers must not assume it exists.
const ShiftKeyIndex = "ux_shifts_date_user"

const uniqueIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS ` + ShiftKeyIndex + ` ON shifts(shift_date, username);
`

const supportingIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_shifts_user_date ON shifts(username, shift_date);
CREATE INDEX IF NOT EXISTS idx_acts_shift_start ON activities(shift_id, start_ts);
CREATE INDEX IF NOT EXISTS idx_acts_hole ON activities(hole_id);
`

var supportingIndexes = []string{"idx_shifts_user_date", "idx_acts_shift_start", "idx_acts_hole"}

const shiftColumnsDDL = `	id INTEGER PRIMARY KEY AUTOINCREMENT,
	shift_date TEXT NOT NULL,
	username TEXT NOT NULL,
	client TEXT NOT NULL,
	site TEXT NOT NULL,
	site_other TEXT,
	job_number TEXT NOT NULL,
	vehicle_barcode TEXT NOT NULL,
	vehicle_name TEXT NOT NULL,
	vehicle_description TEXT,
	vehicle_model TEXT,
	vehicle_category TEXT,
	vehicle_location_expected TEXT,
	vehicle_location_actual TEXT,
	vehicle_location_mismatch INTEGER NOT NULL DEFAULT 0,
	shift_start TEXT NOT NULL,
	shift_hours REAL NOT NULL DEFAULT 12,
	shift_notes TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL`

const activityColumnsDDL = `	id INTEGER PRIMARY KEY AUTOINCREMENT,
	shift_id INTEGER NOT NULL,
	start_ts TEXT NOT NULL,
	end_ts TEXT NOT NULL,
	code TEXT NOT NULL,
	label TEXT NOT NULL,
	notes TEXT,
	tool TEXT,
	hole_id TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (shift_id) REFERENCES shifts(id) ON DELETE CASCADE,
	FOREIGN KEY (hole_id) REFERENCES holes(hole_id) ON DELETE SET NULL`

// orphanActivitiesSQL holds activities whose shift could not be resolved
// during a rebuild. Rows are kept here rather than dropped.
const orphanActivitiesSQL = `
CREATE TABLE IF NOT EXISTS orphan_activities (
	id INTEGER PRIMARY KEY,
	shift_id INTEGER,
	start_ts TEXT,
	end_ts TEXT,
	code TEXT,
	label TEXT,
	notes TEXT,
	tool TEXT,
	hole_id TEXT,
	created_at TEXT,
	updated_at TEXT,
	reason TEXT NOT NULL,
	quarantined_at TEXT NOT NULL
);
`

// requiredColumns lists the columns a DDL block declares NOT NULL.
func requiredColumns(ddl string) []string {
	var names []string
	for _, line := range strings.Split(ddl, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "FOREIGN KEY") || !strings.Contains(line, "NOT NULL") {
			continue
		}
		names = append(names, strings.Fields(line)[0])
	}
	return names
}

// ShiftColumns is the canonical column list of the shifts table.
var ShiftColumns = []string{
	"id", "shift_date", "username", "client", "site", "site_other", "job_number",
	"vehicle_barcode", "vehicle_name", "vehicle_description", "vehicle_model",
	"vehicle_category", "vehicle_location_expected", "vehicle_location_actual",
	"vehicle_location_mismatch", "shift_start", "shift_hours", "shift_notes",
	"created_at", "updated_at",
}

// ActivityColumns is the canonical column list of the activities table.
var ActivityColumns = []string{
	"id", "shift_id", "start_ts", "end_ts", "code", "label", "notes", "tool",
	"hole_id", "created_at", "updated_at",
}
