package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/example/puma/internal/core/activity"
	"github.com/example/puma/internal/core/shift"
	"github.com/example/puma/internal/errs"
	"github.com/example/puma/internal/ports/primary"
	"github.com/example/puma/internal/ports/secondary"
)

// DiaryOptions carries the optional collaborators of the diary service.
type DiaryOptions struct {
	Audit   secondary.LogWriter
	Catalog activity.Catalog
	Logger  *zap.Logger
}

// DiaryServiceImpl implements the DiaryService interface over one storage
// engine chosen at startup.
type DiaryServiceImpl struct {
	engine   secondary.StorageEngine
	audit    secondary.LogWriter
	catalog  activity.Catalog
	logger   *zap.Logger
	validate *validator.Validate
}

var _ primary.DiaryService = (*DiaryServiceImpl)(nil)

// NewDiaryService creates a new DiaryService with injected dependencies.
func NewDiaryService(engine secondary.StorageEngine, opts DiaryOptions) *DiaryServiceImpl {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.Catalog.Codes) == 0 {
		opts.Catalog = activity.DefaultCatalog()
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &DiaryServiceImpl{
		engine:   engine,
		audit:    opts.Audit,
		catalog:  opts.Catalog,
		logger:   opts.Logger,
		validate: validate,
	}
}

// Backend reports the name of the active storage engine.
func (s *DiaryServiceImpl) Backend() string {
	return s.engine.Name()
}

// InitStorage brings the active engine's schema up to date.
func (s *DiaryServiceImpl) InitStorage(ctx context.Context) (*primary.InitReport, error) {
	rec, err := s.engine.Init(ctx)
	if rec == nil {
		return nil, err
	}

	report := &primary.InitReport{
		Backend:          s.engine.Name(),
		SchemaVersion:    rec.SchemaVersion,
		Applied:          rec.Applied,
		Deferred:         rec.Deferred,
		Anomalies:        rec.Anomalies,
		ShiftsMerged:     rec.ShiftsMerged,
		ActivitiesMoved:  rec.ActivitiesMoved,
		HolesAssigned:    rec.HolesAssigned,
		OrphanActivities: rec.OrphanActivities,
	}
	s.logger.Info("storage initialised",
		zap.String("backend", report.Backend),
		zap.Int("schema_version", report.SchemaVersion),
		zap.Strings("applied", report.Applied),
		zap.Int("anomalies", len(report.Anomalies)))
	return report, err
}

// UpsertReferenceData replaces the vehicle catalog. An empty list leaves the
// stored catalog untouched.
func (s *DiaryServiceImpl) UpsertReferenceData(ctx context.Context, vehicles []primary.Vehicle) error {
	if len(vehicles) == 0 {
		s.logger.Debug("empty vehicle catalog ignored")
		return nil
	}
	records := make([]*secondary.VehicleRecord, 0, len(vehicles))
	for _, v := range vehicles {
		records = append(records, &secondary.VehicleRecord{
			Barcode:     strings.TrimSpace(v.Barcode),
			Name:        strings.TrimSpace(v.Name),
			Description: strings.TrimSpace(v.Description),
			Model:       strings.TrimSpace(v.Model),
			Category:    strings.TrimSpace(v.Category),
			Location:    strings.TrimSpace(v.Location),
		})
	}
	if err := s.engine.ReplaceVehicles(ctx, records); err != nil {
		return err
	}
	s.logger.Info("vehicle catalog replaced", zap.Int("vehicles", len(records)))
	return nil
}

// GetVehicle returns a vehicle by barcode, or nil.
func (s *DiaryServiceImpl) GetVehicle(ctx context.Context, barcode string) (*primary.Vehicle, error) {
	if strings.TrimSpace(barcode) == "" {
		return nil, errs.Missing("vehicle_barcode")
	}
	record, err := s.engine.GetVehicle(ctx, barcode)
	if err != nil || record == nil {
		return nil, err
	}
	return recordToVehicle(record), nil
}

// ListVehicles returns the vehicle catalog.
func (s *DiaryServiceImpl) ListVehicles(ctx context.Context) ([]*primary.Vehicle, error) {
	records, err := s.engine.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	vehicles := make([]*primary.Vehicle, len(records))
	for i, r := range records {
		vehicles[i] = recordToVehicle(r)
	}
	return vehicles, nil
}

// GetShift returns the shift for (date, username), or nil.
func (s *DiaryServiceImpl) GetShift(ctx context.Context, shiftDate, username string) (*primary.Shift, error) {
	shiftDate, username, err := shiftKey(shiftDate, username)
	if err != nil {
		return nil, err
	}
	record, err := s.engine.GetShift(ctx, shiftDate, username)
	if err != nil || record == nil {
		return nil, err
	}
	return recordToShift(record), nil
}

// UpsertShift validates input, snapshots the vehicle from the catalog and
// saves the shift.
func (s *DiaryServiceImpl) UpsertShift(ctx context.Context, input primary.ShiftInput) (*primary.Shift, error) {
	trimShiftInput(&input)
	input.Site = shift.NormalizeSite(input.Site)

	if input.VehicleBarcode != "" {
		vehicle, err := s.engine.GetVehicle(ctx, input.VehicleBarcode)
		if err != nil {
			return nil, err
		}
		fillFromVehicle(&input, vehicle)
	}

	if err := s.validateShift(input); err != nil {
		return nil, err
	}

	record := &secondary.ShiftRecord{
		ShiftDate:               input.ShiftDate,
		Username:                input.Username,
		Client:                  input.Client,
		Site:                    input.Site,
		SiteOther:               input.SiteOther,
		JobNumber:               input.JobNumber,
		VehicleBarcode:          input.VehicleBarcode,
		VehicleName:             input.VehicleName,
		VehicleDescription:      input.VehicleDescription,
		VehicleModel:            input.VehicleModel,
		VehicleCategory:         input.VehicleCategory,
		VehicleLocationExpected: input.VehicleLocationExpected,
		VehicleLocationActual:   input.VehicleLocationActual,
		VehicleLocationMismatch: shift.LocationMismatch(input.VehicleLocationExpected, input.VehicleLocationActual),
		ShiftStart:              input.ShiftStart,
		ShiftHours:              input.ShiftHours,
		ShiftNotes:              input.ShiftNotes,
	}

	previous, err := s.engine.GetShift(ctx, input.ShiftDate, input.Username)
	if err != nil {
		return nil, err
	}
	stored, err := s.engine.UpsertShift(ctx, record)
	if err != nil {
		return nil, err
	}

	entityID := shiftEntityID(stored)
	if previous == nil {
		s.auditCreate(ctx, "shift", entityID)
	} else {
		for _, c := range shiftChanges(previous, stored) {
			s.auditUpdate(ctx, "shift", entityID, c.field, c.from, c.to)
		}
	}
	return recordToShift(stored), nil
}

// GetShiftSummary returns the shift with its activities, the minutes they
// cover inside the shift window and any overlapping pairs. It returns nil
// when the shift does not exist.
func (s *DiaryServiceImpl) GetShiftSummary(ctx context.Context, shiftDate, username string) (*primary.ShiftSummary, error) {
	sh, err := s.GetShift(ctx, shiftDate, username)
	if err != nil || sh == nil {
		return nil, err
	}
	activities, err := s.ListActivities(ctx, sh.ShiftDate, sh.Username)
	if err != nil {
		return nil, err
	}

	summary := &primary.ShiftSummary{Shift: sh, Activities: activities}
	intervals := toIntervals(activities)
	if start, end, ok := shift.Window(sh.ShiftDate, sh.ShiftStart, sh.ShiftHours); ok {
		summary.ShiftMinutes = int(end.Sub(start).Minutes())
		summary.LoggedMinutes = activity.Coverage(start, end, intervals)
	}
	summary.Overlaps = activity.Overlaps(intervals)
	return summary, nil
}

// ListActivities returns the shift's activities ordered by start then id.
func (s *DiaryServiceImpl) ListActivities(ctx context.Context, shiftDate, username string) ([]*primary.Activity, error) {
	shiftDate, username, err := shiftKey(shiftDate, username)
	if err != nil {
		return nil, err
	}
	records, err := s.engine.ListActivities(ctx, shiftDate, username)
	if err != nil {
		return nil, err
	}
	activities := make([]*primary.Activity, len(records))
	for i, r := range records {
		activities[i] = recordToActivity(r)
	}
	return activities, nil
}

// AddActivity validates input against the shift and stores a new activity.
func (s *DiaryServiceImpl) AddActivity(ctx context.Context, shiftDate, username string, input primary.ActivityInput) (*primary.Activity, error) {
	sh, err := s.requireShift(ctx, shiftDate, username)
	if err != nil {
		return nil, err
	}
	record, err := s.resolveActivity(sh, input)
	if err != nil {
		return nil, err
	}
	if !input.AllowOverlap {
		existing, err := s.engine.ListActivities(ctx, sh.ShiftDate, sh.Username)
		if err != nil {
			return nil, err
		}
		if err := checkOverlap(record, existing); err != nil {
			return nil, err
		}
	}

	stored, err := s.engine.AddActivity(ctx, sh.ShiftDate, sh.Username, record)
	if err != nil {
		return nil, err
	}
	s.auditCreate(ctx, "activity", strconv.FormatInt(stored.ID, 10))
	return recordToActivity(stored), nil
}

// UpdateActivity replaces every field of activity id.
func (s *DiaryServiceImpl) UpdateActivity(ctx context.Context, shiftDate, username string, id int64, input primary.ActivityInput) (*primary.Activity, error) {
	if id <= 0 {
		return nil, errs.Invalid("id", "must be a positive activity id")
	}
	sh, err := s.requireShift(ctx, shiftDate, username)
	if err != nil {
		return nil, err
	}
	record, err := s.resolveActivity(sh, input)
	if err != nil {
		return nil, err
	}
	record.ID = id

	existing, err := s.engine.ListActivities(ctx, sh.ShiftDate, sh.Username)
	if err != nil {
		return nil, err
	}
	var previous *secondary.ActivityRecord
	for _, a := range existing {
		if a.ID == id {
			previous = a
			break
		}
	}
	if previous == nil {
		return nil, errs.Invalid("id", "activity %d not found in shift %s/%s", id, sh.ShiftDate, sh.Username)
	}
	// A logging activity keeps its hole unless the caller names another.
	if activity.NeedsHole(record.Code, record.HoleID) && previous.HoleID != "" {
		record.HoleID = previous.HoleID
	}
	if !input.AllowOverlap {
		if err := checkOverlap(record, existing); err != nil {
			return nil, err
		}
	}

	stored, err := s.engine.UpdateActivity(ctx, sh.ShiftDate, sh.Username, record)
	if err != nil {
		return nil, err
	}
	for _, c := range activityChanges(previous, stored) {
		s.auditUpdate(ctx, "activity", strconv.FormatInt(id, 10), c.field, c.from, c.to)
	}
	return recordToActivity(stored), nil
}

// DeleteActivity removes activity id. Missing shifts or activities are not
// an error.
func (s *DiaryServiceImpl) DeleteActivity(ctx context.Context, shiftDate, username string, id int64) error {
	shiftDate, username, err := shiftKey(shiftDate, username)
	if err != nil {
		return err
	}
	if err := s.engine.DeleteActivity(ctx, shiftDate, username, id); err != nil {
		return err
	}
	s.auditDelete(ctx, "activity", strconv.FormatInt(id, 10))
	return nil
}

// ListHoles returns the hole registry.
func (s *DiaryServiceImpl) ListHoles(ctx context.Context) ([]*primary.Hole, error) {
	records, err := s.engine.ListHoles(ctx)
	if err != nil {
		return nil, err
	}
	holes := make([]*primary.Hole, len(records))
	for i, r := range records {
		holes[i] = &primary.Hole{
			HoleID:        r.HoleID,
			CreatedAt:     r.CreatedAt,
			UpdatedAt:     r.UpdatedAt,
			ActivityCount: r.ActivityCount,
		}
	}
	return holes, nil
}

// Helper methods

func (s *DiaryServiceImpl) validateShift(input primary.ShiftInput) error {
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return errs.Missing(fe.Field())
			}
			return errs.Invalid(fe.Field(), "must be greater than zero")
		}
		return errs.Invalid("", "%v", err)
	}

	guard := shift.CanSaveShift(shift.SaveShiftContext{
		ShiftDate:  input.ShiftDate,
		Site:       input.Site,
		SiteOther:  input.SiteOther,
		ShiftStart: input.ShiftStart,
		ShiftHours: input.ShiftHours,
	})
	if !guard.Allowed {
		return errs.Invalid(guard.Field, "%s", guard.Reason)
	}
	return nil
}

func (s *DiaryServiceImpl) requireShift(ctx context.Context, shiftDate, username string) (*secondary.ShiftRecord, error) {
	shiftDate, username, err := shiftKey(shiftDate, username)
	if err != nil {
		return nil, err
	}
	sh, err := s.engine.GetShift(ctx, shiftDate, username)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, errs.NoShift(shiftDate, username)
	}
	return sh, nil
}

// resolveActivity applies the alias fallbacks, places bare clock times on the
// shift and checks the result.
func (s *DiaryServiceImpl) resolveActivity(sh *secondary.ShiftRecord, input primary.ActivityInput) (*secondary.ActivityRecord, error) {
	rawStart := activity.First(input.StartTS, input.StartTime, input.Start, input.BeginTime)
	rawEnd := activity.First(input.EndTS, input.EndTime, input.End, input.FinishTime)
	code := strings.ToUpper(activity.First(input.Code))
	label := activity.First(input.Label, input.Title, input.Description)
	if label == "" && code != "" {
		label = s.catalog.Label(code)
	}

	var startTS, endTS string
	if rawStart != "" {
		startTS, _ = activity.NormalizeTime(rawStart, sh.ShiftDate, sh.ShiftStart)
	}
	if rawEnd != "" {
		endTS, _ = activity.NormalizeTime(rawEnd, sh.ShiftDate, sh.ShiftStart)
	}

	guard := activity.CanSaveActivity(activity.SaveActivityContext{
		RawStart: rawStart,
		RawEnd:   rawEnd,
		StartTS:  startTS,
		EndTS:    endTS,
		Code:     code,
		Label:    label,
	})
	if !guard.Allowed {
		return nil, errs.Invalid(guard.Field, "%s", guard.Reason)
	}

	tool := activity.First(input.Tool, input.ToolRef, input.ToolsCSV)
	if !activity.TakesTool(code) {
		tool = ""
	}

	return &secondary.ActivityRecord{
		StartTS: startTS,
		EndTS:   endTS,
		Code:    code,
		Label:   label,
		Notes:   activity.First(input.Notes, input.Comments),
		Tool:    tool,
		HoleID:  strings.TrimSpace(input.HoleID),
	}, nil
}

func checkOverlap(candidate *secondary.ActivityRecord, existing []*secondary.ActivityRecord) error {
	iv, ok := activity.NewInterval(candidate.ID, candidate.StartTS, candidate.EndTS)
	if !ok {
		return nil
	}
	var others []activity.Interval
	byID := make(map[int64]*secondary.ActivityRecord, len(existing))
	for _, a := range existing {
		if other, ok := activity.NewInterval(a.ID, a.StartTS, a.EndTS); ok {
			others = append(others, other)
			byID[a.ID] = a
		}
	}
	if hit, found := activity.FindOverlap(iv, others); found {
		a := byID[hit.ID]
		return errs.Invalid("start_ts", "time conflict with %s %s (%s to %s)", a.Code, a.Label, a.StartTS, a.EndTS)
	}
	return nil
}

func (s *DiaryServiceImpl) auditCreate(ctx context.Context, entityType, entityID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogCreate(ctx, entityType, entityID); err != nil {
		s.logger.Warn("audit write failed", zap.String("entity", entityType), zap.Error(err))
	}
}

func (s *DiaryServiceImpl) auditUpdate(ctx context.Context, entityType, entityID, field, oldValue, newValue string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogUpdate(ctx, entityType, entityID, field, oldValue, newValue); err != nil {
		s.logger.Warn("audit write failed", zap.String("entity", entityType), zap.Error(err))
	}
}

func (s *DiaryServiceImpl) auditDelete(ctx context.Context, entityType, entityID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogDelete(ctx, entityType, entityID); err != nil {
		s.logger.Warn("audit write failed", zap.String("entity", entityType), zap.Error(err))
	}
}

func shiftKey(shiftDate, username string) (string, string, error) {
	shiftDate, username = strings.TrimSpace(shiftDate), strings.TrimSpace(username)
	if shiftDate == "" {
		return "", "", errs.Missing("shift_date")
	}
	if username == "" {
		return "", "", errs.Missing("username")
	}
	return shiftDate, username, nil
}

func trimShiftInput(in *primary.ShiftInput) {
	for _, f := range []*string{
		&in.ShiftDate, &in.Username, &in.Client, &in.Site, &in.SiteOther, &in.JobNumber,
		&in.VehicleBarcode, &in.VehicleName, &in.VehicleDescription, &in.VehicleModel,
		&in.VehicleCategory, &in.VehicleLocationExpected, &in.VehicleLocationActual,
		&in.ShiftStart, &in.ShiftNotes,
	} {
		*f = strings.TrimSpace(*f)
	}
}

// fillFromVehicle copies catalog fields into blank snapshot fields.
func fillFromVehicle(in *primary.ShiftInput, v *secondary.VehicleRecord) {
	if v == nil {
		return
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&in.VehicleName, v.Name)
	fill(&in.VehicleDescription, v.Description)
	fill(&in.VehicleModel, v.Model)
	fill(&in.VehicleCategory, v.Category)
	fill(&in.VehicleLocationExpected, v.Location)
}

type change struct {
	field, from, to string
}

func shiftChanges(before, after *secondary.ShiftRecord) []change {
	fields := []struct {
		name string
		get  func(*secondary.ShiftRecord) string
	}{
		{"client", func(r *secondary.ShiftRecord) string { return r.Client }},
		{"site", func(r *secondary.ShiftRecord) string { return r.Site }},
		{"site_other", func(r *secondary.ShiftRecord) string { return r.SiteOther }},
		{"job_number", func(r *secondary.ShiftRecord) string { return r.JobNumber }},
		{"vehicle_barcode", func(r *secondary.ShiftRecord) string { return r.VehicleBarcode }},
		{"vehicle_location_actual", func(r *secondary.ShiftRecord) string { return r.VehicleLocationActual }},
		{"shift_start", func(r *secondary.ShiftRecord) string { return r.ShiftStart }},
		{"shift_hours", func(r *secondary.ShiftRecord) string { return strconv.FormatFloat(r.ShiftHours, 'g', -1, 64) }},
		{"shift_notes", func(r *secondary.ShiftRecord) string { return r.ShiftNotes }},
	}
	var out []change
	for _, f := range fields {
		if o, n := f.get(before), f.get(after); o != n {
			out = append(out, change{f.name, o, n})
		}
	}
	return out
}

func activityChanges(before, after *secondary.ActivityRecord) []change {
	fields := []struct {
		name string
		get  func(*secondary.ActivityRecord) string
	}{
		{"start_ts", func(r *secondary.ActivityRecord) string { return r.StartTS }},
		{"end_ts", func(r *secondary.ActivityRecord) string { return r.EndTS }},
		{"code", func(r *secondary.ActivityRecord) string { return r.Code }},
		{"label", func(r *secondary.ActivityRecord) string { return r.Label }},
		{"notes", func(r *secondary.ActivityRecord) string { return r.Notes }},
		{"tool", func(r *secondary.ActivityRecord) string { return r.Tool }},
		{"hole_id", func(r *secondary.ActivityRecord) string { return r.HoleID }},
	}
	var out []change
	for _, f := range fields {
		if o, n := f.get(before), f.get(after); o != n {
			out = append(out, change{f.name, o, n})
		}
	}
	return out
}

func shiftEntityID(r *secondary.ShiftRecord) string {
	return fmt.Sprintf("%s/%s", r.ShiftDate, r.Username)
}

func toIntervals(activities []*primary.Activity) []activity.Interval {
	var out []activity.Interval
	for _, a := range activities {
		if iv, ok := activity.NewInterval(a.ID, a.StartTS, a.EndTS); ok {
			out = append(out, iv)
		}
	}
	return out
}

func recordToShift(r *secondary.ShiftRecord) *primary.Shift {
	return &primary.Shift{
		ID:                      r.ID,
		ShiftDate:               r.ShiftDate,
		Username:                r.Username,
		Client:                  r.Client,
		Site:                    r.Site,
		SiteOther:               r.SiteOther,
		JobNumber:               r.JobNumber,
		VehicleBarcode:          r.VehicleBarcode,
		VehicleName:             r.VehicleName,
		VehicleDescription:      r.VehicleDescription,
		VehicleModel:            r.VehicleModel,
		VehicleCategory:         r.VehicleCategory,
		VehicleLocationExpected: r.VehicleLocationExpected,
		VehicleLocationActual:   r.VehicleLocationActual,
		VehicleLocationMismatch: r.VehicleLocationMismatch,
		ShiftStart:              r.ShiftStart,
		ShiftHours:              r.ShiftHours,
		ShiftEnd:                shift.End(r.ShiftDate, r.ShiftStart, r.ShiftHours),
		ShiftNotes:              r.ShiftNotes,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

func recordToActivity(r *secondary.ActivityRecord) *primary.Activity {
	return &primary.Activity{
		ID:        r.ID,
		ShiftID:   r.ShiftID,
		StartTS:   r.StartTS,
		EndTS:     r.EndTS,
		Code:      r.Code,
		Label:     r.Label,
		Notes:     r.Notes,
		Tool:      r.Tool,
		HoleID:    r.HoleID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func recordToVehicle(r *secondary.VehicleRecord) *primary.Vehicle {
	return &primary.Vehicle{
		Barcode:     r.Barcode,
		Name:        r.Name,
		Description: r.Description,
		Model:       r.Model,
		Category:    r.Category,
		Location:    r.Location,
	}
}
