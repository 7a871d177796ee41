package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRow_LowercasesKeysAndFormatsTimes(t *testing.T) {
	row := normalizeRow(map[string]any{
		"SHIFT_DATE": time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"START_TS":   time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC),
		"Label":      "Logging",
		"NOTES":      nil,
	})

	assert.Equal(t, "2024-05-01", row["shift_date"])
	assert.Equal(t, "2024-05-01T07:00:00", row["start_ts"])
	assert.Equal(t, "Logging", row["label"])
	assert.Contains(t, row, "notes")
	assert.NotContains(t, row, "LABEL")
}

func TestShiftFromRow(t *testing.T) {
	created := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	sh := shiftFromRow(map[string]any{
		"id":                        int64(4),
		"shift_date":                time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"username":                  "alice",
		"client":                    "RTIO",
		"site":                      "Other",
		"site_other":                "Pad 3",
		"vehicle_location_mismatch": true,
		"shift_start":               "06:00",
		"shift_hours":               12.0,
		"shift_notes":               nil,
		"created_at":                created,
		"updated_at":                created,
	})

	assert.Equal(t, int64(4), sh.ID)
	assert.Equal(t, "2024-05-01", sh.ShiftDate)
	assert.Equal(t, "Pad 3", sh.SiteOther)
	assert.True(t, sh.VehicleLocationMismatch)
	assert.Equal(t, 12.0, sh.ShiftHours)
	assert.Empty(t, sh.ShiftNotes)
	assert.Equal(t, "2024-05-01T20:00:00", sh.CreatedAt)
}

func TestActivityFromRow(t *testing.T) {
	a := activityFromRow(map[string]any{
		"ID":       int64(9),
		"START_TS": time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC),
		"END_TS":   time.Date(2024, 5, 2, 1, 0, 0, 0, time.UTC),
		"CODE":     "LOG",
		"LABEL":    "Logging",
		"HOLE_ID":  "H-1",
	}, 4)

	assert.Equal(t, int64(9), a.ID)
	assert.Equal(t, int64(4), a.ShiftID)
	assert.Equal(t, "2024-05-01T23:30:00", a.StartTS)
	assert.Equal(t, "2024-05-02T01:00:00", a.EndTS)
	assert.Equal(t, "H-1", a.HoleID)
}

func TestHoleFromRow_CountTypes(t *testing.T) {
	assert.Equal(t, 3, holeFromRow(map[string]any{"activity_count": int64(3)}).ActivityCount)
	assert.Equal(t, 0, holeFromRow(map[string]any{}).ActivityCount)
}

func TestParseTimestamp(t *testing.T) {
	got, err := parseTimestamp("2024-05-01T07:00:00")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Hour())

	got, err = parseTimestamp("2024-05-01T07:00:00+08:00")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Hour())

	_, err = parseTimestamp("07:00")
	assert.Error(t, err)
}

func TestMigrationFilesAreOrdered(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_create_tables.sql", "0002_holes.sql"}, files)
}
