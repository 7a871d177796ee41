// Package shift contains the pure business logic for shift operations.
// Guards are pure functions that evaluate preconditions without side effects.
package shift

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Layouts shared with the storage engines.
const (
	DateLayout      = "2006-01-02"
	ClockLayout     = "15:04"
	TimestampLayout = "2006-01-02T15:04:05"
)

// DefaultHours is used when a shift is saved without a duration.
const DefaultHours = 12.0

// SiteManual is the stored site value meaning "see site_other". Forms show
// it as SiteManualLabel.
const (
	SiteManual      = "Other"
	SiteManualLabel = "Other (manual)"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Field   string
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	if r.Field == "" {
		return fmt.Errorf("%s", r.Reason)
	}
	return fmt.Errorf("%s: %s", r.Field, r.Reason)
}

// SaveShiftContext provides context for the save guard.
type SaveShiftContext struct {
	ShiftDate  string
	Site       string
	SiteOther  string
	ShiftStart string
	ShiftHours float64
}

// NormalizeSite maps the form label of the manual sentinel to its stored value.
func NormalizeSite(site string) string {
	site = strings.TrimSpace(site)
	if strings.EqualFold(site, SiteManualLabel) {
		return SiteManual
	}
	return site
}

// IsManualSite reports whether site is the manual sentinel.
func IsManualSite(site string) bool {
	return NormalizeSite(site) == SiteManual
}

// CanSaveShift evaluates the rules a shift must satisfy beyond required fields.
// Rules:
// - shift_date must be YYYY-MM-DD
// - shift_start must be HH:MM
// - shift_hours must be positive
// - site_other is required when site is the manual sentinel
func CanSaveShift(ctx SaveShiftContext) GuardResult {
	if _, err := time.Parse(DateLayout, ctx.ShiftDate); err != nil {
		return GuardResult{Field: "shift_date", Reason: fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", ctx.ShiftDate)}
	}
	if _, err := time.Parse(ClockLayout, ctx.ShiftStart); err != nil {
		return GuardResult{Field: "shift_start", Reason: fmt.Sprintf("invalid time %q (want HH:MM)", ctx.ShiftStart)}
	}
	if math.IsNaN(ctx.ShiftHours) || ctx.ShiftHours <= 0 {
		return GuardResult{Field: "shift_hours", Reason: "must be greater than zero"}
	}
	if IsManualSite(ctx.Site) && strings.TrimSpace(ctx.SiteOther) == "" {
		return GuardResult{Field: "site_other", Reason: "required when site is Other"}
	}
	return GuardResult{Allowed: true}
}

// Window returns the shift's start and end instants.
func Window(shiftDate, shiftStart string, hours float64) (time.Time, time.Time, bool) {
	day, err := time.Parse(DateLayout, shiftDate)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	clock, err := time.Parse(ClockLayout, shiftStart)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
	end := start.Add(time.Duration(hours * float64(time.Hour)))
	return start, end, true
}

// End returns shift_start + shift_hours as a timestamp, or "" when the
// inputs do not parse.
func End(shiftDate, shiftStart string, hours float64) string {
	_, end, ok := Window(shiftDate, shiftStart, hours)
	if !ok {
		return ""
	}
	return end.Format(TimestampLayout)
}

// LocationMismatch reports whether the vehicle was found somewhere other
// than expected. Unknown locations never mismatch.
func LocationMismatch(expected, actual string) bool {
	expected, actual = strings.TrimSpace(expected), strings.TrimSpace(actual)
	if expected == "" || actual == "" {
		return false
	}
	return !strings.EqualFold(expected, actual)
}
