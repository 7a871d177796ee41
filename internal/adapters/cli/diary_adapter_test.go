package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/example/puma/internal/ports/primary"
)

func init() {
	color.NoColor = true
}

// mockDiaryService implements primary.DiaryService for testing
type mockDiaryService struct {
	initFn    func(ctx context.Context) (*primary.InitReport, error)
	summaryFn func(ctx context.Context, date, user string) (*primary.ShiftSummary, error)
	addFn     func(ctx context.Context, date, user string, in primary.ActivityInput) (*primary.Activity, error)
	holes     []*primary.Hole
	vehicles  []*primary.Vehicle

	// Track calls for verification
	lastVehicles []primary.Vehicle
	lastShift    primary.ShiftInput
	deletedID    int64
}

func (m *mockDiaryService) InitStorage(ctx context.Context) (*primary.InitReport, error) {
	if m.initFn != nil {
		return m.initFn(ctx)
	}
	return &primary.InitReport{Backend: "embedded", SchemaVersion: 5}, nil
}

func (m *mockDiaryService) UpsertReferenceData(ctx context.Context, vehicles []primary.Vehicle) error {
	m.lastVehicles = vehicles
	return nil
}

func (m *mockDiaryService) GetVehicle(ctx context.Context, barcode string) (*primary.Vehicle, error) {
	return nil, nil
}

func (m *mockDiaryService) ListVehicles(ctx context.Context) ([]*primary.Vehicle, error) {
	return m.vehicles, nil
}

func (m *mockDiaryService) GetShift(ctx context.Context, date, user string) (*primary.Shift, error) {
	return nil, nil
}

func (m *mockDiaryService) UpsertShift(ctx context.Context, in primary.ShiftInput) (*primary.Shift, error) {
	m.lastShift = in
	return &primary.Shift{
		ShiftDate: in.ShiftDate, Username: in.Username, ShiftStart: "06:00", ShiftEnd: "18:00",
		VehicleName: in.VehicleName, VehicleLocationExpected: "Yard", VehicleLocationMismatch: in.VehicleLocationActual != "",
	}, nil
}

func (m *mockDiaryService) GetShiftSummary(ctx context.Context, date, user string) (*primary.ShiftSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, date, user)
	}
	return nil, nil
}

func (m *mockDiaryService) ListActivities(ctx context.Context, date, user string) ([]*primary.Activity, error) {
	return nil, nil
}

func (m *mockDiaryService) AddActivity(ctx context.Context, date, user string, in primary.ActivityInput) (*primary.Activity, error) {
	if m.addFn != nil {
		return m.addFn(ctx, date, user, in)
	}
	return &primary.Activity{ID: 1, Code: in.Code, StartTS: "2024-05-01T06:00:00", EndTS: "2024-05-01T07:00:00"}, nil
}

func (m *mockDiaryService) UpdateActivity(ctx context.Context, date, user string, id int64, in primary.ActivityInput) (*primary.Activity, error) {
	return &primary.Activity{ID: id}, nil
}

func (m *mockDiaryService) DeleteActivity(ctx context.Context, date, user string, id int64) error {
	m.deletedID = id
	return nil
}

func (m *mockDiaryService) ListHoles(ctx context.Context) ([]*primary.Hole, error) {
	return m.holes, nil
}

func (m *mockDiaryService) Backend() string { return "embedded" }

// ============================================================================
// Init Tests
// ============================================================================

func TestDiaryAdapter_Init_PrintsReport(t *testing.T) {
	mock := &mockDiaryService{
		initFn: func(ctx context.Context) (*primary.InitReport, error) {
			return &primary.InitReport{
				Backend:          "embedded",
				SchemaVersion:    5,
				Applied:          []string{"create_base_tables"},
				ShiftsMerged:     2,
				ActivitiesMoved:  3,
				OrphanActivities: 1,
				Anomalies:        []string{"shift 9 has no date"},
			}, nil
		},
	}
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(mock, &buf)

	if err := adapter.Init(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	out := buf.String()
	for _, want := range []string{"embedded, schema v5", "applied   create_base_tables", "merged 2 duplicate", "quarantined 1", "shift 9 has no date"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got '%s'", want, out)
		}
	}
}

func TestDiaryAdapter_Init_ServiceError(t *testing.T) {
	mock := &mockDiaryService{
		initFn: func(ctx context.Context) (*primary.InitReport, error) {
			return nil, errors.New("disk full")
		},
	}
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(mock, &buf)

	err := adapter.Init(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected wrapped service error, got %v", err)
	}
}

// ============================================================================
// Shift Tests
// ============================================================================

func TestDiaryAdapter_ShowShift_NoShift(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(&mockDiaryService{}, &buf)

	if err := adapter.ShowShift(context.Background(), "2024-05-01", "alice"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(buf.String(), "No shift for alice on 2024-05-01") {
		t.Errorf("unexpected output '%s'", buf.String())
	}
}

func TestDiaryAdapter_ShowShift_Summary(t *testing.T) {
	mock := &mockDiaryService{
		summaryFn: func(ctx context.Context, date, user string) (*primary.ShiftSummary, error) {
			return &primary.ShiftSummary{
				Shift: &primary.Shift{
					ShiftDate: date, Username: user, Client: "RTIO", Site: "Other (manual)", SiteOther: "Pad 3",
					VehicleName: "Hilux", VehicleBarcode: "12", ShiftStart: "06:00", ShiftEnd: "18:00", ShiftHours: 12,
				},
				Activities: []*primary.Activity{
					{ID: 1, StartTS: "2024-05-01T06:00:00", EndTS: "2024-05-01T08:00:00", Code: "LOG", Label: "Logging", Tool: "Density", HoleID: "H-1"},
					{ID: 2, StartTS: "2024-05-01T07:30:00", EndTS: "2024-05-01T08:30:00", Code: "SAF", Label: "Safety"},
				},
				LoggedMinutes: 150,
				ShiftMinutes:  720,
				Overlaps:      [][2]int64{{1, 2}},
			}, nil
		},
	}
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(mock, &buf)

	if err := adapter.ShowShift(context.Background(), "2024-05-01", "alice"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Other (manual) (Pad 3)", "06:00 → 18:00 (12h)", "150m of 720m (20%)", "2024-05-01 06:00", "Density · hole H-1", "activities 1 and 2 overlap"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got '%s'", want, out)
		}
	}
}

func TestDiaryAdapter_SaveShift_WarnsOnMismatch(t *testing.T) {
	mock := &mockDiaryService{}
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(mock, &buf)

	err := adapter.SaveShift(context.Background(), primary.ShiftInput{
		ShiftDate: "2024-05-01", Username: "alice", VehicleName: "Hilux", VehicleLocationActual: "Pit 4",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mock.lastShift.Username != "alice" {
		t.Errorf("expected input to reach the service, got %+v", mock.lastShift)
	}
	if !strings.Contains(buf.String(), "Vehicle Hilux is expected at Yard") {
		t.Errorf("expected mismatch warning, got '%s'", buf.String())
	}
}

// ============================================================================
// Activity Tests
// ============================================================================

func TestDiaryAdapter_AddActivity_ServiceError(t *testing.T) {
	mock := &mockDiaryService{
		addFn: func(ctx context.Context, date, user string, in primary.ActivityInput) (*primary.Activity, error) {
			return nil, errors.New("time conflict with LOG Logging")
		},
	}
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(mock, &buf)

	err := adapter.AddActivity(context.Background(), "2024-05-01", "alice", primary.ActivityInput{Code: "LOG"})
	if err == nil || !strings.Contains(err.Error(), "time conflict") {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got '%s'", buf.String())
	}
}

func TestDiaryAdapter_AddActivity_Success(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(&mockDiaryService{}, &buf)

	if err := adapter.AddActivity(context.Background(), "2024-05-01", "alice", primary.ActivityInput{Code: "SAF"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(buf.String(), "Added activity 1: SAF 2024-05-01 06:00 → 2024-05-01 07:00") {
		t.Errorf("unexpected output '%s'", buf.String())
	}
}

func TestDiaryAdapter_DeleteActivity(t *testing.T) {
	mock := &mockDiaryService{}
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(mock, &buf)

	if err := adapter.DeleteActivity(context.Background(), "2024-05-01", "alice", 7); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mock.deletedID != 7 {
		t.Errorf("expected id 7 deleted, got %d", mock.deletedID)
	}
}

// ============================================================================
// Reference Data Tests
// ============================================================================

func TestDiaryAdapter_LoadVehicles_EmptyIsSkipped(t *testing.T) {
	mock := &mockDiaryService{}
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(mock, &buf)

	if err := adapter.LoadVehicles(context.Background(), nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mock.lastVehicles != nil {
		t.Errorf("expected service not to be called")
	}
	if !strings.Contains(buf.String(), "keeping stored list") {
		t.Errorf("unexpected output '%s'", buf.String())
	}
}

func TestDiaryAdapter_ListVehiclesAndHoles(t *testing.T) {
	mock := &mockDiaryService{
		vehicles: []*primary.Vehicle{{Barcode: "12", Name: "Hilux", Category: "LV", Location: "Yard"}},
		holes:    []*primary.Hole{{HoleID: "HOLE-1", ActivityCount: 3}},
	}
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(mock, &buf)

	if err := adapter.ListVehicles(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := adapter.ListHoles(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Hilux") || !strings.Contains(out, "HOLE-1") {
		t.Errorf("unexpected output '%s'", out)
	}
}

func TestDiaryAdapter_Doctor(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewDiaryAdapter(&mockDiaryService{}, &buf)

	failed := adapter.Doctor([]CheckResult{
		{Name: "schema", OK: true},
		{Name: "journal", OK: true, Warn: true, Details: "journal mode is delete"},
	})
	if failed {
		t.Error("expected no failure for warnings")
	}

	failed = adapter.Doctor([]CheckResult{{Name: "integrity", Details: "page 4 corrupt"}})
	if !failed {
		t.Error("expected failure")
	}
	if !strings.Contains(buf.String(), "integrity: page 4 corrupt") {
		t.Errorf("unexpected output '%s'", buf.String())
	}
}
