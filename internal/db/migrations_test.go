package db

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/puma/internal/errs"
)

const legacySchema = `
CREATE TABLE shifts (
	id INTEGER PRIMARY KEY,
	shift_date TEXT,
	username TEXT DEFAULT 'unknown',
	active_user TEXT,
	site_name TEXT,
	vehicle TEXT,
	shift_start TEXT,
	shift_hours TEXT,
	notes TEXT,
	created_at TEXT,
	updated_at TEXT
);
CREATE TABLE activities (
	id INTEGER PRIMARY KEY,
	shift_id INTEGER,
	start_time TEXT,
	end_time TEXT,
	title TEXT,
	comments TEXT,
	code TEXT,
	tools_csv TEXT
);
`

func seedLegacy(t *testing.T, database *sqlx.DB) {
	t.Helper()
	mustExec(t, database, legacySchema)
	mustExec(t, database, `INSERT INTO shifts
		(id, shift_date, active_user, site_name, vehicle, shift_start, shift_hours, notes, created_at, updated_at)
		VALUES
		(1, '2024-05-01', 'alice', 'Pad 3', 'Hilux', '06:30', '10', 'first', '2024-05-01 05:00:00', '2024-05-01 08:00:00'),
		(2, '2024-05-01', 'alice', 'Pad 3', 'Hilux', '06:30', '10', 'second', '2024-05-01 05:00:00', '2024-05-01 18:00:00'),
		(3, 'garbage', 'bob', NULL, NULL, 'late', '0', NULL, NULL, NULL)`)
	mustExec(t, database, `INSERT INTO activities
		(id, shift_id, start_time, end_time, title, comments, code, tools_csv)
		VALUES
		(1, 1, '07:00', '07:30', 'Logging', 'core', 'LOG', 'rig'),
		(2, 2, '23:00', '01:00', NULL, NULL, NULL, NULL),
		(3, 99, '08:00', '09:00', 'Lost', NULL, 'CAL', NULL)`)
}

func insertCanonicalShift(t *testing.T, database *sqlx.DB, id int64, date, user, updated string) {
	t.Helper()
	mustExec(t, database, `INSERT INTO shifts
		(id, shift_date, username, client, site, job_number, vehicle_barcode, vehicle_name,
		 shift_start, shift_hours, created_at, updated_at)
		VALUES (?, ?, ?, 'RTIO', 'Other', 'J1', '12', 'Hilux', '06:00', 12, ?, ?)`,
		id, date, user, updated, updated)
}

func TestMigrate_FreshDatabase(t *testing.T) {
	database, _ := openTestDB(t)
	ctx := context.Background()

	rep, err := Migrate(ctx, database, testMigrateOptions())
	require.NoError(t, err)

	assert.Equal(t, LatestVersion(), rep.SchemaVersion)
	assert.Empty(t, rep.Deferred)
	assert.Empty(t, rep.Anomalies)

	versions, err := AppliedVersions(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, versions)

	for _, table := range []string{"vehicles", "holes", "shifts", "activities"} {
		ok, err := TableExists(ctx, database, table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}
	for _, idx := range append([]string{"ux_shifts_date_user"}, supportingIndexes...) {
		ok, err := IndexExists(ctx, database, idx)
		require.NoError(t, err)
		assert.True(t, ok, idx)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	database, _ := openTestDB(t)
	ctx := context.Background()

	_, err := Migrate(ctx, database, testMigrateOptions())
	require.NoError(t, err)
	insertCanonicalShift(t, database, 1, "2024-05-01", "alice", "2024-05-01T06:00:00")
	before := schemaSnapshot(t, database)

	rep, err := Migrate(ctx, database, testMigrateOptions())
	require.NoError(t, err)

	assert.Empty(t, rep.Applied)
	assert.Empty(t, rep.Deferred)
	assert.Equal(t, before, schemaSnapshot(t, database))
	assert.Equal(t, 1, countRows(t, database, "SELECT COUNT(*) FROM shifts"))
	assert.Equal(t, 5, countRows(t, database, "SELECT COUNT(*) FROM schema_version"))
}

func TestMigrate_LegacyShape(t *testing.T) {
	database, _ := openTestDB(t)
	ctx := context.Background()
	seedLegacy(t, database)

	rep, err := Migrate(ctx, database, testMigrateOptions())
	require.NoError(t, err)

	assert.Empty(t, rep.Deferred)
	assert.Equal(t, 1, rep.ShiftsMerged)
	assert.Equal(t, 1, rep.ActivitiesMoved)
	assert.Equal(t, 1, rep.HolesAssigned)
	assert.Equal(t, 1, rep.OrphanActivities)
	assert.Contains(t, rep.Applied, "canonicalize_shifts")
	assert.Contains(t, rep.Applied, "canonicalize_activities")

	cols, err := ColumnsByName(ctx, database, "shifts")
	require.NoError(t, err)
	assert.True(t, cols.Equal(ShiftColumns), "shift columns: %v", cols.Names())

	type shift struct {
		ID             int64   `db:"id"`
		ShiftDate      string  `db:"shift_date"`
		Username       string  `db:"username"`
		Site           string  `db:"site"`
		SiteOther      *string `db:"site_other"`
		VehicleBarcode string  `db:"vehicle_barcode"`
		VehicleName    string  `db:"vehicle_name"`
		ShiftStart     string  `db:"shift_start"`
		ShiftHours     float64 `db:"shift_hours"`
		ShiftNotes     *string `db:"shift_notes"`
	}
	var shifts []shift
	require.NoError(t, database.Select(&shifts, `SELECT id, shift_date, username, site, site_other,
		vehicle_barcode, vehicle_name, shift_start, shift_hours, shift_notes FROM shifts ORDER BY id`))
	require.Len(t, shifts, 2)

	alice := shifts[0]
	assert.Equal(t, int64(2), alice.ID)
	assert.Equal(t, "2024-05-01", alice.ShiftDate)
	assert.Equal(t, "alice", alice.Username)
	assert.Equal(t, SiteManual, alice.Site)
	require.NotNil(t, alice.SiteOther)
	assert.Equal(t, "Pad 3", *alice.SiteOther)
	assert.Equal(t, "Hilux", alice.VehicleBarcode)
	assert.Equal(t, "Hilux", alice.VehicleName)
	assert.Equal(t, "06:30", alice.ShiftStart)
	assert.Equal(t, 10.0, alice.ShiftHours)
	require.NotNil(t, alice.ShiftNotes)
	assert.Equal(t, "second", *alice.ShiftNotes)

	bob := shifts[1]
	assert.Equal(t, int64(3), bob.ID)
	assert.Equal(t, "bob", bob.Username)
	assert.Equal(t, "2024-06-01", bob.ShiftDate)
	assert.Equal(t, DefaultShiftStart, bob.ShiftStart)
	assert.Equal(t, DefaultShiftHours, bob.ShiftHours)
	assert.Equal(t, DefaultVehicle, bob.VehicleBarcode)

	type activity struct {
		ID      int64   `db:"id"`
		ShiftID int64   `db:"shift_id"`
		StartTS string  `db:"start_ts"`
		EndTS   string  `db:"end_ts"`
		Code    string  `db:"code"`
		Label   string  `db:"label"`
		Notes   *string `db:"notes"`
		Tool    *string `db:"tool"`
		HoleID  *string `db:"hole_id"`
	}
	var acts []activity
	require.NoError(t, database.Select(&acts, `SELECT id, shift_id, start_ts, end_ts, code, label,
		notes, tool, hole_id FROM activities ORDER BY id`))
	require.Len(t, acts, 2)

	assert.Equal(t, int64(2), acts[0].ShiftID)
	assert.Equal(t, "2024-05-01T07:00:00", acts[0].StartTS)
	assert.Equal(t, "2024-05-01T07:30:00", acts[0].EndTS)
	assert.Equal(t, "Logging", acts[0].Label)
	require.NotNil(t, acts[0].HoleID)
	assert.Equal(t, "H-1", *acts[0].HoleID)
	require.NotNil(t, acts[0].Tool)
	assert.Equal(t, "rig", *acts[0].Tool)

	assert.Equal(t, int64(2), acts[1].ShiftID)
	assert.Equal(t, "2024-05-01T23:00:00", acts[1].StartTS)
	assert.Equal(t, "2024-05-02T01:00:00", acts[1].EndTS)
	assert.Equal(t, DefaultCode, acts[1].Code)
	assert.Equal(t, DefaultLabel, acts[1].Label)
	assert.Nil(t, acts[1].HoleID)

	assert.Equal(t, 1, countRows(t, database, "SELECT COUNT(*) FROM holes WHERE hole_id = 'H-1'"))
	assert.Equal(t, 1, countRows(t, database,
		"SELECT COUNT(*) FROM orphan_activities WHERE id = 3 AND shift_id = 99 AND label = 'Lost'"))

	for _, ref := range []struct{ column, table string }{{"shift_id", "shifts"}, {"hole_id", "holes"}} {
		ok, err := HasForeignKey(ctx, database, "activities", ref.column, ref.table)
		require.NoError(t, err)
		assert.True(t, ok, ref.table)
	}
	rows, err := database.Query("PRAGMA foreign_key_check")
	require.NoError(t, err)
	violations := 0
	for rows.Next() {
		violations++
	}
	rows.Close()
	assert.Zero(t, violations)

	var fk int
	require.NoError(t, database.Get(&fk, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, fk)
}

func TestMigrate_LegacyActivitiesAreNeverLost(t *testing.T) {
	database, _ := openTestDB(t)
	ctx := context.Background()
	seedLegacy(t, database)
	before := countRows(t, database, "SELECT COUNT(*) FROM activities")

	_, err := Migrate(ctx, database, testMigrateOptions())
	require.NoError(t, err)

	after := countRows(t, database, "SELECT COUNT(*) FROM activities") +
		countRows(t, database, "SELECT COUNT(*) FROM orphan_activities")
	assert.Equal(t, before, after)
	assert.Equal(t, 0, countRows(t, database,
		"SELECT COUNT(*) FROM activities WHERE shift_id NOT IN (SELECT id FROM shifts)"))
}

func TestMigrate_DuplicateShiftsCollapse(t *testing.T) {
	database, _ := openTestDB(t)
	ctx := context.Background()
	// Canonical tables from before the unique index existed.
	mustExec(t, database, TablesSQL)
	insertCanonicalShift(t, database, 1, "2024-05-01", "alice", "2024-05-01T08:00:00")
	insertCanonicalShift(t, database, 2, "2024-05-01", "alice", "2024-05-01T18:00:00")
	insertCanonicalShift(t, database, 3, "2024-05-02", "alice", "2024-05-02T08:00:00")
	mustExec(t, database, `INSERT INTO activities
		(id, shift_id, start_ts, end_ts, code, label, created_at, updated_at)
		VALUES (10, 1, '2024-05-01T07:00:00', '2024-05-01T08:00:00', 'SAF', 'Safety', '2024-05-01T07:00:00', '2024-05-01T07:00:00')`)

	rep, err := Migrate(ctx, database, testMigrateOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.ShiftsMerged)
	assert.Equal(t, 1, rep.ActivitiesMoved)
	assert.Empty(t, rep.Deferred)
	assert.NotContains(t, rep.Applied, "canonicalize_shifts")

	var ids []int64
	require.NoError(t, database.Select(&ids, "SELECT id FROM shifts ORDER BY id"))
	assert.Equal(t, []int64{2, 3}, ids)
	var shiftID int64
	require.NoError(t, database.Get(&shiftID, "SELECT shift_id FROM activities WHERE id = 10"))
	assert.Equal(t, int64(2), shiftID)

	ok, err := IndexExists(ctx, database, "ux_shifts_date_user")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = database.Exec(`INSERT INTO shifts
		(shift_date, username, client, site, job_number, vehicle_barcode, vehicle_name,
		 shift_start, shift_hours, created_at, updated_at)
		VALUES ('2024-05-01', 'alice', 'RTIO', 'Other', 'J1', '12', 'Hilux', '06:00', 12, 'x', 'x')`)
	assert.Error(t, err, "unique index should reject a second row")
}

func TestMigrate_NullableUsernameIsRebuilt(t *testing.T) {
	database, _ := openTestDB(t)
	ctx := context.Background()
	// Canonical column names, but username was declared without NOT NULL.
	mustExec(t, database, strings.Replace(TablesSQL, "username TEXT NOT NULL", "username TEXT", 1))
	mustExec(t, database, `INSERT INTO shifts
		(id, shift_date, username, client, site, job_number, vehicle_barcode, vehicle_name,
		 shift_start, shift_hours, created_at, updated_at)
		VALUES
		(1, '2024-05-01', NULL, 'RTIO', 'Other', 'J1', '12', 'Hilux', '06:00', 12, '2024-05-01T06:00:00', '2024-05-01T06:00:00'),
		(2, '2024-05-01', NULL, 'RTIO', 'Other', 'J2', '12', 'Hilux', '06:00', 12, '2024-05-01T06:00:00', '2024-05-01T09:00:00')`)
	insertCanonicalShift(t, database, 3, "2024-05-01", "alice", "2024-05-01T06:00:00")

	needs, err := shiftsNeedRebuild(ctx, database)
	require.NoError(t, err)
	assert.True(t, needs)

	rep, err := Migrate(ctx, database, testMigrateOptions())
	require.NoError(t, err)

	assert.Contains(t, rep.Applied, "canonicalize_shifts")
	assert.Empty(t, rep.Deferred)

	cols, err := ColumnsByName(ctx, database, "shifts")
	require.NoError(t, err)
	assert.True(t, cols["username"].NotNull)

	ok, err := IndexExists(ctx, database, ShiftKeyIndex)
	require.NoError(t, err)
	assert.True(t, ok)

	var job string
	require.NoError(t, database.Get(&job, "SELECT job_number FROM shifts WHERE username = ?", DefaultUsername))
	assert.Equal(t, "J2", job)
	assert.Equal(t, 2, countRows(t, database, "SELECT COUNT(*) FROM shifts"))

	needs, err = shiftsNeedRebuild(ctx, database)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestRequiredColumns(t *testing.T) {
	required := requiredColumns(shiftColumnsDDL)
	assert.Contains(t, required, "shift_date")
	assert.Contains(t, required, "username")
	assert.NotContains(t, required, "id")
	assert.NotContains(t, required, "site_other")
	assert.NotContains(t, requiredColumns(activityColumnsDDL), "FOREIGN")
}

func TestMigrate_HoleBackfillIsStable(t *testing.T) {
	database, _ := openTestDB(t)
	ctx := context.Background()

	_, err := Migrate(ctx, database, testMigrateOptions())
	require.NoError(t, err)
	insertCanonicalShift(t, database, 1, "2024-05-01", "alice", "2024-05-01T06:00:00")
	mustExec(t, database, `INSERT INTO activities
		(id, shift_id, start_ts, end_ts, code, label, created_at, updated_at)
		VALUES (1, 1, '2024-05-01T07:00:00', '2024-05-01T08:00:00', 'LOG', 'Logging', 'x', 'x'),
		       (2, 1, '2024-05-01T08:00:00', '2024-05-01T09:00:00', 'MTG', 'Meeting', 'x', 'x')`)

	rep, err := Migrate(ctx, database, testMigrateOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.HolesAssigned)

	var hole string
	require.NoError(t, database.Get(&hole, "SELECT hole_id FROM activities WHERE id = 1"))
	assert.Equal(t, "H-1", hole)
	assert.Equal(t, 0, countRows(t, database, "SELECT COUNT(*) FROM activities WHERE id = 2 AND hole_id IS NOT NULL"))

	opts := testMigrateOptions()
	opts.NewHoleID = func() string { return "SHOULD-NOT-BE-USED" }
	rep, err = Migrate(ctx, database, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.HolesAssigned)

	require.NoError(t, database.Get(&hole, "SELECT hole_id FROM activities WHERE id = 1"))
	assert.Equal(t, "H-1", hole)
}

func TestMigrate_UnrecognizedActivitiesIsFatal(t *testing.T) {
	database, _ := openTestDB(t)
	mustExec(t, database, "CREATE TABLE activities (id INTEGER PRIMARY KEY, scribble TEXT)")
	mustExec(t, database, "INSERT INTO activities (scribble) VALUES ('who knows')")

	_, err := Migrate(context.Background(), database, testMigrateOptions())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnrecognizedSchema)
	assert.ErrorIs(t, err, errs.ErrStorage)
	assert.Equal(t, 1, countRows(t, database, "SELECT COUNT(*) FROM activities"))
}

func TestMigrate_ConcurrentProcesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	const workers = 4
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			database, err := Open(ctx, Options{Path: path})
			if err != nil {
				errCh <- err
				return
			}
			defer database.Close()
			_, err = Migrate(ctx, database, testMigrateOptions())
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	database, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer database.Close()
	versions, err := AppliedVersions(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, versions)
}

func TestOpen_ConfiguresConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "puma.db")
	database, err := Open(context.Background(), Options{Path: path})
	require.NoError(t, err)
	defer database.Close()

	mode, err := JournalMode(context.Background(), database)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, database.Get(&fk, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, fk)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	assert.Error(t, err)
}
