package shift

import (
	"testing"
)

func TestCanSaveShift(t *testing.T) {
	valid := SaveShiftContext{
		ShiftDate:  "2024-05-01",
		Site:       "Mesa A",
		ShiftStart: "06:00",
		ShiftHours: 12,
	}

	tests := []struct {
		name      string
		mutate    func(*SaveShiftContext)
		wantAllow bool
		wantField string
	}{
		{"valid", func(*SaveShiftContext) {}, true, ""},
		{"bad date", func(c *SaveShiftContext) { c.ShiftDate = "01/05/2024" }, false, "shift_date"},
		{"bad start", func(c *SaveShiftContext) { c.ShiftStart = "six" }, false, "shift_start"},
		{"zero hours", func(c *SaveShiftContext) { c.ShiftHours = 0 }, false, "shift_hours"},
		{"negative hours", func(c *SaveShiftContext) { c.ShiftHours = -1 }, false, "shift_hours"},
		{"manual site without text", func(c *SaveShiftContext) { c.Site = "Other" }, false, "site_other"},
		{"manual label without text", func(c *SaveShiftContext) { c.Site = "Other (manual)" }, false, "site_other"},
		{"manual site with text", func(c *SaveShiftContext) { c.Site = "Other"; c.SiteOther = "Pad 3" }, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := valid
			tt.mutate(&ctx)
			result := CanSaveShift(ctx)

			if result.Allowed != tt.wantAllow {
				t.Errorf("expected Allowed=%v, got %v (reason: %s)", tt.wantAllow, result.Allowed, result.Reason)
			}
			if result.Field != tt.wantField {
				t.Errorf("expected Field=%q, got %q", tt.wantField, result.Field)
			}
			if tt.wantAllow && result.Error() != nil {
				t.Errorf("expected nil error, got %v", result.Error())
			}
			if !tt.wantAllow && result.Error() == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNormalizeSite(t *testing.T) {
	if got := NormalizeSite(" Other (manual) "); got != SiteManual {
		t.Errorf("expected %q, got %q", SiteManual, got)
	}
	if got := NormalizeSite("Yandi"); got != "Yandi" {
		t.Errorf("expected Yandi, got %q", got)
	}
}

func TestEnd(t *testing.T) {
	tests := []struct {
		date, start string
		hours       float64
		want        string
	}{
		{"2024-05-01", "06:00", 12, "2024-05-01T18:00:00"},
		{"2024-05-01", "18:00", 12, "2024-05-02T06:00:00"},
		{"2024-05-01", "06:00", 10.5, "2024-05-01T16:30:00"},
		{"bad", "06:00", 12, ""},
	}
	for _, tt := range tests {
		if got := End(tt.date, tt.start, tt.hours); got != tt.want {
			t.Errorf("End(%s, %s, %v) = %q, want %q", tt.date, tt.start, tt.hours, got, tt.want)
		}
	}
}

func TestLocationMismatch(t *testing.T) {
	if LocationMismatch("", "Yard") {
		t.Error("unknown expected location should not mismatch")
	}
	if LocationMismatch("Yard", "yard") {
		t.Error("case differences should not mismatch")
	}
	if !LocationMismatch("Yard", "Pit 4") {
		t.Error("expected mismatch")
	}
}
