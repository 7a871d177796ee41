// Package sqlite_test contains integration tests for the embedded engine.
//
// # Schema Protection
//
// Tests never create tables by hand. setupTestEngine opens a fresh file and
// runs the real migration chain, so tests always run against the schema
// production boots into.
package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/puma/internal/adapters/sqlite"
	"github.com/example/puma/internal/db"
	"github.com/example/puma/internal/ports/secondary"
)

var fixedNow = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func testOptions(path string) sqlite.EngineOptions {
	n := 0
	return sqlite.EngineOptions{
		Path:  path,
		Retry: db.RetryPolicy{Attempts: 100, BaseDelay: time.Millisecond, MaxDelay: 20 * time.Millisecond},
		Now:   func() time.Time { return fixedNow },
		NewHoleID: func() string {
			n++
			return fmt.Sprintf("HOLE-%03d", n)
		},
	}
}

// setupTestEngine opens an initialised engine on a temporary file.
// A file is used instead of :memory: so every pooled connection shares data.
func setupTestEngine(t *testing.T) *sqlite.Engine {
	t.Helper()
	return openTestEngine(t, filepath.Join(t.TempDir(), "puma.db"))
}

func openTestEngine(t *testing.T, path string) *sqlite.Engine {
	t.Helper()

	engine, err := sqlite.Open(context.Background(), testOptions(path))
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	if _, err := engine.Init(context.Background()); err != nil {
		t.Fatalf("failed to init engine: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
	})

	return engine
}

// aliceShift returns the shift used by most tests.
func aliceShift() *secondary.ShiftRecord {
	return &secondary.ShiftRecord{
		ShiftDate:      "2024-05-01",
		Username:       "alice",
		Client:         "RTIO",
		Site:           "Other",
		SiteOther:      "Pad 3",
		JobNumber:      "J100",
		VehicleBarcode: "12",
		VehicleName:    "Hilux",
		ShiftStart:     "06:00",
		ShiftHours:     12,
	}
}

// seedShift stores shift and returns the stored row.
func seedShift(t *testing.T, engine *sqlite.Engine, shift *secondary.ShiftRecord) *secondary.ShiftRecord {
	t.Helper()
	stored, err := engine.UpsertShift(context.Background(), shift)
	if err != nil {
		t.Fatalf("failed to seed shift: %v", err)
	}
	return stored
}

// seedActivity adds an activity to alice's shift.
func seedActivity(t *testing.T, engine *sqlite.Engine, start, end, code, label string) *secondary.ActivityRecord {
	t.Helper()
	stored, err := engine.AddActivity(context.Background(), "2024-05-01", "alice", &secondary.ActivityRecord{
		StartTS: start,
		EndTS:   end,
		Code:    code,
		Label:   label,
	})
	if err != nil {
		t.Fatalf("failed to seed activity: %v", err)
	}
	return stored
}
