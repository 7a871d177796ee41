package sqlite_test

import (
	"context"
	"testing"
)

func TestHoleRepository_ListHolesCountsActivities(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()
	seedShift(t, engine, aliceShift())

	first := seedActivity(t, engine, "2024-05-01T07:00:00", "2024-05-01T08:00:00", "LOG", "Logging")
	seedActivity(t, engine, "2024-05-01T08:00:00", "2024-05-01T09:00:00", "LOG", "Logging")
	seedActivity(t, engine, "2024-05-01T09:00:00", "2024-05-01T09:30:00", "SAF", "Safety")

	holes, err := engine.ListHoles(ctx)
	if err != nil {
		t.Fatalf("ListHoles failed: %v", err)
	}
	if len(holes) != 2 {
		t.Fatalf("expected 2 holes, got %d", len(holes))
	}
	if holes[0].HoleID != first.HoleID {
		t.Errorf("expected %s first, got %s", first.HoleID, holes[0].HoleID)
	}
	for _, h := range holes {
		if h.ActivityCount != 1 {
			t.Errorf("hole %s: expected 1 activity, got %d", h.HoleID, h.ActivityCount)
		}
	}
}

func TestHoleRepository_NonLoggingActivityHasNoHole(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()
	seedShift(t, engine, aliceShift())

	act := seedActivity(t, engine, "2024-05-01T07:00:00", "2024-05-01T08:00:00", "DWN", "Downtime")
	if act.HoleID != "" {
		t.Errorf("expected no hole for non-logging activity, got %q", act.HoleID)
	}

	holes, err := engine.ListHoles(ctx)
	if err != nil {
		t.Fatalf("ListHoles failed: %v", err)
	}
	if len(holes) != 0 {
		t.Errorf("expected no holes, got %d", len(holes))
	}
}
