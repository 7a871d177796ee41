package primary

import "context"

// DiaryService defines the primary port for the shift diary. It is the one
// surface UI collaborators and the CLI talk to, whichever backend is active.
type DiaryService interface {
	// InitStorage brings storage up to date. Idempotent; call once at start.
	InitStorage(ctx context.Context) (*InitReport, error)

	// UpsertReferenceData replaces the vehicle catalog.
	UpsertReferenceData(ctx context.Context, vehicles []Vehicle) error

	// GetVehicle returns a vehicle by barcode, or nil when unknown.
	GetVehicle(ctx context.Context, barcode string) (*Vehicle, error)

	// ListVehicles returns the vehicle catalog.
	ListVehicles(ctx context.Context) ([]*Vehicle, error)

	// GetShift returns the shift for (date, username), or nil.
	GetShift(ctx context.Context, shiftDate, username string) (*Shift, error)

	// UpsertShift validates and saves the shift for input's (date, username).
	UpsertShift(ctx context.Context, input ShiftInput) (*Shift, error)

	// GetShiftSummary returns the shift with its activities and progress.
	GetShiftSummary(ctx context.Context, shiftDate, username string) (*ShiftSummary, error)

	// ListActivities returns the shift's activities ordered by start then id.
	ListActivities(ctx context.Context, shiftDate, username string) ([]*Activity, error)

	// AddActivity validates and adds an activity to an existing shift.
	AddActivity(ctx context.Context, shiftDate, username string, input ActivityInput) (*Activity, error)

	// UpdateActivity replaces every field of an activity.
	UpdateActivity(ctx context.Context, shiftDate, username string, id int64, input ActivityInput) (*Activity, error)

	// DeleteActivity removes an activity. Missing rows are not an error.
	DeleteActivity(ctx context.Context, shiftDate, username string, id int64) error

	// ListHoles returns the hole registry.
	ListHoles(ctx context.Context) ([]*Hole, error)

	// Backend reports "embedded" or "remote".
	Backend() string
}

// InitReport summarises InitStorage.
type InitReport struct {
	Backend          string
	SchemaVersion    int
	Applied          []string
	Deferred         []string
	Anomalies        []string
	ShiftsMerged     int
	ActivitiesMoved  int
	HolesAssigned    int
	OrphanActivities int
}

// Vehicle represents a catalog vehicle at the port boundary.
type Vehicle struct {
	Barcode     string `json:"barcode" yaml:"barcode"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Model       string `json:"model" yaml:"model"`
	Category    string `json:"category" yaml:"category"`
	Location    string `json:"location" yaml:"location"`
}

// Shift represents a stored shift at the port boundary.
type Shift struct {
	ID                      int64
	ShiftDate               string
	Username                string
	Client                  string
	Site                    string
	SiteOther               string
	JobNumber               string
	VehicleBarcode          string
	VehicleName             string
	VehicleDescription      string
	VehicleModel            string
	VehicleCategory         string
	VehicleLocationExpected string
	VehicleLocationActual   string
	VehicleLocationMismatch bool
	ShiftStart              string
	ShiftHours              float64
	ShiftEnd                string // shift start plus hours, computed on read
	ShiftNotes              string
	CreatedAt               string
	UpdatedAt               string
}

// ShiftInput contains the fields for saving a shift. Vehicle snapshot fields
// left blank are filled from the vehicle catalog when the barcode is known.
type ShiftInput struct {
	ShiftDate               string  `json:"shift_date" validate:"required"`
	Username                string  `json:"username" validate:"required"`
	Client                  string  `json:"client" validate:"required"`
	Site                    string  `json:"site" validate:"required"`
	SiteOther               string  `json:"site_other"`
	JobNumber               string  `json:"job_number" validate:"required"`
	VehicleBarcode          string  `json:"vehicle_barcode" validate:"required"`
	VehicleName             string  `json:"vehicle_name" validate:"required"`
	VehicleDescription      string  `json:"vehicle_description"`
	VehicleModel            string  `json:"vehicle_model"`
	VehicleCategory         string  `json:"vehicle_category"`
	VehicleLocationExpected string  `json:"vehicle_location_expected"`
	VehicleLocationActual   string  `json:"vehicle_location_actual"`
	ShiftStart              string  `json:"shift_start" validate:"required"`
	ShiftHours              float64 `json:"shift_hours" validate:"gt=0"`
	ShiftNotes              string  `json:"shift_notes"`
}

// Activity represents a stored activity at the port boundary.
type Activity struct {
	ID        int64
	ShiftID   int64
	StartTS   string
	EndTS     string
	Code      string
	Label     string
	Notes     string
	Tool      string
	HoleID    string
	CreatedAt string
	UpdatedAt string
}

// ActivityInput contains the fields for adding or replacing an activity.
// Several historical names are accepted for the same field; the first
// non-blank one wins.
type ActivityInput struct {
	StartTS   string
	StartTime string
	Start     string
	BeginTime string

	EndTS      string
	EndTime    string
	End        string
	FinishTime string

	Code string

	Label       string
	Title       string
	Description string

	Notes    string
	Comments string

	Tool     string
	ToolRef  string
	ToolsCSV string

	HoleID string

	// AllowOverlap skips the overlapping-interval check.
	AllowOverlap bool
}

// ShiftSummary is a shift with its activities and derived progress.
type ShiftSummary struct {
	Shift      *Shift
	Activities []*Activity

	// LoggedMinutes is the time covered by activities inside the shift
	// window, with overlaps counted once.
	LoggedMinutes int
	// ShiftMinutes is the length of the shift window.
	ShiftMinutes int
	// Overlaps lists pairs of activity ids whose intervals overlap.
	Overlaps [][2]int64
}

// Hole represents a registered hole at the port boundary.
type Hole struct {
	HoleID        string
	CreatedAt     string
	UpdatedAt     string
	ActivityCount int
}
