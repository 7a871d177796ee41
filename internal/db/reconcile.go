package db

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/example/puma/internal/core/activity"
	"github.com/example/puma/internal/core/shift"
)

// Text layouts used for everything the embedded engine stores.
const (
	TimestampLayout = shift.TimestampLayout
	DateLayout      = shift.DateLayout
	ClockLayout     = shift.ClockLayout
)

// Reconciliation defaults for values legacy rows never carried.
const (
	DefaultShiftStart = "06:00"
	DefaultShiftHours = shift.DefaultHours
	DefaultClient     = "Other"
	DefaultJobNumber  = "UNKNOWN"
	DefaultVehicle    = "UNSET"
	DefaultUsername   = "unknown"
	DefaultCode       = "OTH"
	DefaultLabel      = "Activity"

	// SiteManual is the structured site value meaning "see site_other".
	SiteManual = shift.SiteManual
)

// LoggingCode is the activity code that always carries a hole reference.
const LoggingCode = activity.LoggingCode

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var clockLayouts = []string{
	"15:04:05.999999999",
	"15:04:05",
	"15:04",
	"3:04PM",
	"3:04 PM",
}

// AsString renders a driver value as text. Nil becomes "".
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(TimestampLayout)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

// FirstString returns the first non-blank value among keys, trimmed.
func FirstString(row map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(AsString(row[k])); s != "" {
			return s
		}
	}
	return ""
}

// ParseTimestamp parses the timestamp shapes found in historical rows.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if i := strings.Index(s, " m="); i != -1 {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp rewrites a parseable timestamp into TimestampLayout.
func NormalizeTimestamp(s string) (string, bool) {
	t, ok := ParseTimestamp(s)
	if !ok {
		return strings.TrimSpace(s), false
	}
	return t.Format(TimestampLayout), true
}

// ParseClock parses a bare time of day.
func ParseClock(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseShiftDate accepts a full timestamp or anything whose first ten
// characters are a date. Unparseable input yields today and ok=false.
func ParseShiftDate(s string, today time.Time) (string, bool) {
	if t, ok := ParseTimestamp(s); ok {
		return t.Format(DateLayout), true
	}
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		if t, err := time.Parse(DateLayout, s[:10]); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return today.Format(DateLayout), false
}

// ParseShiftStart accepts a full timestamp or a clock time. Anything else
// yields DefaultShiftStart and ok=false.
func ParseShiftStart(s string) (string, bool) {
	if t, ok := ParseTimestamp(s); ok {
		return t.Format(ClockLayout), true
	}
	if t, ok := ParseClock(s); ok {
		return t.Format(ClockLayout), true
	}
	return DefaultShiftStart, false
}

// ParseShiftHours returns a positive duration in hours, or DefaultShiftHours
// and ok=false.
func ParseShiftHours(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case float64:
		f = x
	default:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(AsString(v)), 64)
		if err != nil {
			return DefaultShiftHours, false
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return DefaultShiftHours, false
	}
	return f, true
}

// CoerceBool reads integers, numeric strings and truthy words.
func CoerceBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	}
	s := strings.ToLower(strings.TrimSpace(AsString(v)))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	switch s {
	case "true", "t", "yes", "y", "on", "x":
		return true
	}
	return false
}

// ResolveActivityTime turns a stored activity time into a full timestamp.
// Bare clock values from the time-only layout are anchored on shiftDate.
func ResolveActivityTime(s, shiftDate string) (string, bool) {
	if t, ok := ParseTimestamp(s); ok {
		return t.Format(TimestampLayout), true
	}
	if d, err := time.Parse(DateLayout, strings.TrimSpace(s)); err == nil {
		return d.Format(TimestampLayout), true
	}
	clock, ok := ParseClock(s)
	if !ok {
		return "", false
	}
	day, err := time.Parse(DateLayout, shiftDate)
	if err != nil {
		return "", false
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)
	return t.Format(TimestampLayout), true
}

// IsLoggingCode reports whether code is the logging activity type.
func IsLoggingCode(code string) bool {
	return activity.IsLogging(code)
}
