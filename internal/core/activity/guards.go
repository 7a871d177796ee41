// Package activity contains the pure business logic for activity operations.
// Guards are pure functions that evaluate preconditions without side effects.
package activity

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/puma/internal/core/shift"
)

// TimestampLayout is the stored form of activity times.
const TimestampLayout = shift.TimestampLayout

// LoggingCode is the activity code that always carries a hole.
const LoggingCode = "LOG"

var inputLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

var clockLayouts = []string{
	"15:04:05",
	shift.ClockLayout,
}

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
	return fmt.Errorf("%s: %s", r.Field, r.Reason)
}

// First returns the first non-blank value, trimmed.
func First(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// IsLogging reports whether code is the logging activity type.
func IsLogging(code string) bool {
	return strings.EqualFold(strings.TrimSpace(code), LoggingCode)
}

// NeedsHole reports whether an activity with code and holeID must be given a
// fresh hole.
func NeedsHole(code, holeID string) bool {
	return IsLogging(code) && strings.TrimSpace(holeID) == ""
}

func parseClock(raw string) (time.Time, bool) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeTime turns user input into a stored timestamp. Bare HH:MM or
// HH:MM:SS values are placed on the shift date, or the following day when
// they fall before the shift start (night shifts).
func NormalizeTime(raw, shiftDate, shiftStart string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(TimestampLayout), true
		}
	}
	clock, ok := parseClock(raw)
	if !ok {
		return "", false
	}
	day, err := time.Parse(shift.DateLayout, shiftDate)
	if err != nil {
		return "", false
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)
	if start, ok := parseClock(strings.TrimSpace(shiftStart)); ok && clock.Before(start) {
		t = t.AddDate(0, 0, 1)
	}
	return t.Format(TimestampLayout), true
}

// SaveActivityContext provides context for the save guard. Times are
// already normalized; an empty time means the input did not parse.
type SaveActivityContext struct {
	RawStart string
	RawEnd   string
	StartTS  string
	EndTS    string
	Code     string
	Label    string
}

// CanSaveActivity evaluates whether an activity can be stored.
// Rules:
// - start, end, code and label must not be blank
// - start and end must parse
// - end must be after start
func CanSaveActivity(ctx SaveActivityContext) GuardResult {
	switch {
	case ctx.RawStart == "":
		return GuardResult{Field: "start_ts", Reason: "missing required field"}
	case ctx.RawEnd == "":
		return GuardResult{Field: "end_ts", Reason: "missing required field"}
	case strings.TrimSpace(ctx.Code) == "":
		return GuardResult{Field: "code", Reason: "missing required field"}
	case strings.TrimSpace(ctx.Label) == "":
		return GuardResult{Field: "label", Reason: "missing required field"}
	case ctx.StartTS == "":
		return GuardResult{Field: "start_ts", Reason: fmt.Sprintf("cannot parse %q", ctx.RawStart)}
	case ctx.EndTS == "":
		return GuardResult{Field: "end_ts", Reason: fmt.Sprintf("cannot parse %q", ctx.RawEnd)}
	case ctx.EndTS <= ctx.StartTS:
		return GuardResult{Field: "end_ts", Reason: "must be after start"}
	}
	return GuardResult{Allowed: true}
}

// Interval is an activity's [start, end) span.
type Interval struct {
	ID    int64
	Start time.Time
	End   time.Time
}

// NewInterval parses stored timestamps into an Interval.
func NewInterval(id int64, startTS, endTS string) (Interval, bool) {
	start, err := time.Parse(TimestampLayout, startTS)
	if err != nil {
		return Interval{}, false
	}
	end, err := time.Parse(TimestampLayout, endTS)
	if err != nil {
		return Interval{}, false
	}
	return Interval{ID: id, Start: start, End: end}, true
}

func (a Interval) overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// FindOverlap returns the first existing interval that overlaps candidate,
// ignoring the interval with candidate's own id.
func FindOverlap(candidate Interval, existing []Interval) (Interval, bool) {
	for _, other := range existing {
		if candidate.ID != 0 && other.ID == candidate.ID {
			continue
		}
		if candidate.overlaps(other) {
			return other, true
		}
	}
	return Interval{}, false
}

// Overlaps lists every overlapping pair, lower id first.
func Overlaps(intervals []Interval) [][2]int64 {
	var out [][2]int64
	for i := 0; i < len(intervals); i++ {
		for j := i + 1; j < len(intervals); j++ {
			if intervals[i].overlaps(intervals[j]) {
				a, b := intervals[i].ID, intervals[j].ID
				if a > b {
					a, b = b, a
				}
				out = append(out, [2]int64{a, b})
			}
		}
	}
	return out
}

// Coverage returns the minutes of [from, to) covered by at least one interval.
func Coverage(from, to time.Time, intervals []Interval) int {
	var clipped []Interval
	for _, iv := range intervals {
		s, e := iv.Start, iv.End
		if s.Before(from) {
			s = from
		}
		if e.After(to) {
			e = to
		}
		if e.After(s) {
			clipped = append(clipped, Interval{Start: s, End: e})
		}
	}
	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start.Before(clipped[j].Start) })

	var total time.Duration
	var curStart, curEnd time.Time
	for i, iv := range clipped {
		if i == 0 || iv.Start.After(curEnd) {
			total += curEnd.Sub(curStart)
			curStart, curEnd = iv.Start, iv.End
			continue
		}
		if iv.End.After(curEnd) {
			curEnd = iv.End
		}
	}
	total += curEnd.Sub(curStart)
	return int(total / time.Minute)
}
