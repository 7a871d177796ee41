// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/example/puma/internal/ports/primary"
)

const rule = "────────────────────────────────────────────────────────────────"

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("⚠")
	failMark = color.New(color.FgRed).Sprint("✗")
)

// CheckResult is the outcome of a single doctor check.
type CheckResult struct {
	Name    string
	OK      bool
	Warn    bool
	Details string
}

// DiaryAdapter translates CLI operations to DiaryService calls.
type DiaryAdapter struct {
	service primary.DiaryService
	out     io.Writer
}

// NewDiaryAdapter creates a new DiaryAdapter with the given service.
func NewDiaryAdapter(service primary.DiaryService, out io.Writer) *DiaryAdapter {
	return &DiaryAdapter{
		service: service,
		out:     out,
	}
}

// Init brings storage up to date and prints what changed.
func (a *DiaryAdapter) Init(ctx context.Context) error {
	rep, err := a.service.InitStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialise storage: %w", err)
	}

	fmt.Fprintf(a.out, "%s Storage ready (%s, schema v%d)\n", okMark, rep.Backend, rep.SchemaVersion)
	for _, step := range rep.Applied {
		fmt.Fprintf(a.out, "  applied   %s\n", step)
	}
	for _, step := range rep.Deferred {
		fmt.Fprintf(a.out, "  %s deferred  %s\n", warnMark, step)
	}
	if rep.ShiftsMerged > 0 {
		fmt.Fprintf(a.out, "  merged %d duplicate shift(s), moved %d activit(ies)\n", rep.ShiftsMerged, rep.ActivitiesMoved)
	}
	if rep.HolesAssigned > 0 {
		fmt.Fprintf(a.out, "  assigned %d hole(s)\n", rep.HolesAssigned)
	}
	if rep.OrphanActivities > 0 {
		fmt.Fprintf(a.out, "  %s quarantined %d orphan activit(ies)\n", warnMark, rep.OrphanActivities)
	}
	for _, anomaly := range rep.Anomalies {
		fmt.Fprintf(a.out, "  %s %s\n", warnMark, anomaly)
	}
	return nil
}

// Backend prints the active backend.
func (a *DiaryAdapter) Backend() {
	fmt.Fprintln(a.out, a.service.Backend())
}

// ShowShift prints a shift with its activities and progress.
func (a *DiaryAdapter) ShowShift(ctx context.Context, shiftDate, username string) error {
	sum, err := a.service.GetShiftSummary(ctx, shiftDate, username)
	if err != nil {
		return err
	}
	if sum == nil {
		fmt.Fprintf(a.out, "No shift for %s on %s\n", username, shiftDate)
		return nil
	}

	sh := sum.Shift
	fmt.Fprintf(a.out, "\nShift:   %s / %s\n", sh.ShiftDate, sh.Username)
	fmt.Fprintf(a.out, "Client:  %s\n", sh.Client)
	fmt.Fprintf(a.out, "Site:    %s\n", siteName(sh))
	fmt.Fprintf(a.out, "Job:     %s\n", sh.JobNumber)
	fmt.Fprintf(a.out, "Vehicle: %s (%s)\n", sh.VehicleName, sh.VehicleBarcode)
	if sh.VehicleLocationMismatch {
		fmt.Fprintf(a.out, "         %s expected at %s, found at %s\n",
			warnMark, sh.VehicleLocationExpected, sh.VehicleLocationActual)
	}
	fmt.Fprintf(a.out, "Window:  %s → %s (%gh)\n", sh.ShiftStart, sh.ShiftEnd, sh.ShiftHours)
	if sh.ShiftNotes != "" {
		fmt.Fprintf(a.out, "Notes:   %s\n", sh.ShiftNotes)
	}
	fmt.Fprintf(a.out, "Logged:  %s\n", progress(sum.LoggedMinutes, sum.ShiftMinutes))

	a.printActivities(sum.Activities)
	for _, pair := range sum.Overlaps {
		fmt.Fprintf(a.out, "%s activities %d and %d overlap\n", warnMark, pair[0], pair[1])
	}
	return nil
}

// SaveShift creates or replaces a shift.
func (a *DiaryAdapter) SaveShift(ctx context.Context, input primary.ShiftInput) error {
	sh, err := a.service.UpsertShift(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Saved shift %s / %s (%s → %s)\n", okMark, sh.ShiftDate, sh.Username, sh.ShiftStart, sh.ShiftEnd)
	if sh.VehicleLocationMismatch {
		fmt.Fprintf(a.out, "%s Vehicle %s is expected at %s\n", warnMark, sh.VehicleName, sh.VehicleLocationExpected)
	}
	return nil
}

// ListActivities prints the shift's activities.
func (a *DiaryAdapter) ListActivities(ctx context.Context, shiftDate, username string) error {
	acts, err := a.service.ListActivities(ctx, shiftDate, username)
	if err != nil {
		return fmt.Errorf("failed to list activities: %w", err)
	}
	a.printActivities(acts)
	return nil
}

func (a *DiaryAdapter) printActivities(acts []*primary.Activity) {
	if len(acts) == 0 {
		fmt.Fprintln(a.out, "No activities found")
		return
	}

	fmt.Fprintf(a.out, "\n%-6s %-17s %-17s %-5s %-20s %s\n", "ID", "START", "END", "CODE", "LABEL", "DETAIL")
	fmt.Fprintln(a.out, rule)
	for _, act := range acts {
		fmt.Fprintf(a.out, "%-6d %-17s %-17s %-5s %-20s %s\n",
			act.ID, clock(act.StartTS), clock(act.EndTS), act.Code, act.Label, detail(act))
	}
	fmt.Fprintln(a.out)
}

// AddActivity adds an activity to a shift.
func (a *DiaryAdapter) AddActivity(ctx context.Context, shiftDate, username string, input primary.ActivityInput) error {
	act, err := a.service.AddActivity(ctx, shiftDate, username, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Added activity %d: %s %s → %s\n", okMark, act.ID, act.Code, clock(act.StartTS), clock(act.EndTS))
	if act.HoleID != "" {
		fmt.Fprintf(a.out, "  hole %s\n", act.HoleID)
	}
	return nil
}

// UpdateActivity replaces an activity.
func (a *DiaryAdapter) UpdateActivity(ctx context.Context, shiftDate, username string, id int64, input primary.ActivityInput) error {
	act, err := a.service.UpdateActivity(ctx, shiftDate, username, id, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Activity %d updated\n", okMark, act.ID)
	return nil
}

// DeleteActivity removes an activity.
func (a *DiaryAdapter) DeleteActivity(ctx context.Context, shiftDate, username string, id int64) error {
	if err := a.service.DeleteActivity(ctx, shiftDate, username, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Activity %d deleted\n", okMark, id)
	return nil
}

// LoadVehicles replaces the vehicle catalog.
func (a *DiaryAdapter) LoadVehicles(ctx context.Context, vehicles []primary.Vehicle) error {
	if len(vehicles) == 0 {
		fmt.Fprintf(a.out, "%s No vehicles in catalog, keeping stored list\n", warnMark)
		return nil
	}
	if err := a.service.UpsertReferenceData(ctx, vehicles); err != nil {
		return fmt.Errorf("failed to load vehicles: %w", err)
	}
	fmt.Fprintf(a.out, "%s Loaded %d vehicle(s)\n", okMark, len(vehicles))
	return nil
}

// ListVehicles prints the vehicle catalog.
func (a *DiaryAdapter) ListVehicles(ctx context.Context) error {
	vehicles, err := a.service.ListVehicles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list vehicles: %w", err)
	}
	if len(vehicles) == 0 {
		fmt.Fprintln(a.out, "No vehicles found")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-10s %-20s %-10s %s\n", "BARCODE", "NAME", "CATEGORY", "LOCATION")
	fmt.Fprintln(a.out, rule)
	for _, v := range vehicles {
		fmt.Fprintf(a.out, "%-10s %-20s %-10s %s\n", v.Barcode, v.Name, v.Category, v.Location)
	}
	fmt.Fprintln(a.out)
	return nil
}

// ListHoles prints the hole registry.
func (a *DiaryAdapter) ListHoles(ctx context.Context) error {
	holes, err := a.service.ListHoles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list holes: %w", err)
	}
	if len(holes) == 0 {
		fmt.Fprintln(a.out, "No holes found")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-38s %-10s %s\n", "HOLE", "ACTIVITIES", "CREATED")
	fmt.Fprintln(a.out, rule)
	for _, h := range holes {
		fmt.Fprintf(a.out, "%-38s %-10d %s\n", h.HoleID, h.ActivityCount, h.CreatedAt)
	}
	fmt.Fprintln(a.out)
	return nil
}

// Doctor prints check results and reports whether any failed.
func (a *DiaryAdapter) Doctor(results []CheckResult) bool {
	failed := false
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Check              Status")
	fmt.Fprintln(a.out, "─────────────────────────")
	for _, r := range results {
		mark := okMark
		switch {
		case !r.OK:
			mark = failMark
			failed = true
		case r.Warn:
			mark = warnMark
		}
		fmt.Fprintf(a.out, "%-18s %s\n", r.Name, mark)
	}
	for _, r := range results {
		if r.Details != "" && (!r.OK || r.Warn) {
			fmt.Fprintf(a.out, "\n%s: %s\n", r.Name, r.Details)
		}
	}
	fmt.Fprintln(a.out)
	return failed
}

func siteName(sh *primary.Shift) string {
	if sh.SiteOther != "" {
		return fmt.Sprintf("%s (%s)", sh.Site, sh.SiteOther)
	}
	return sh.Site
}

// clock trims the seconds from a stored timestamp for display.
func clock(ts string) string {
	ts = strings.Replace(ts, "T", " ", 1)
	if len(ts) >= 16 {
		return ts[:16]
	}
	return ts
}

func detail(act *primary.Activity) string {
	parts := []string{}
	if act.Tool != "" {
		parts = append(parts, act.Tool)
	}
	if act.HoleID != "" {
		parts = append(parts, "hole "+act.HoleID)
	}
	if act.Notes != "" {
		parts = append(parts, act.Notes)
	}
	return strings.Join(parts, " · ")
}

func progress(logged, total int) string {
	if total <= 0 {
		return fmt.Sprintf("%dm", logged)
	}
	pct := logged * 100 / total
	c := color.New(color.FgYellow)
	if pct >= 100 {
		c = color.New(color.FgGreen)
	}
	return c.Sprintf("%dm of %dm (%d%%)", logged, total, pct)
}
