// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import "context"

// Backend names reported by StorageEngine.Name.
const (
	BackendEmbedded = "embedded"
	BackendRemote   = "remote"
)

// StorageEngine is one physical home for diary data. The embedded SQLite
// file and the remote warehouse both implement it; the application picks one
// at startup and never switches.
type StorageEngine interface {
	ShiftRepository
	ActivityRepository
	VehicleRepository
	HoleRepository

	// Name returns BackendEmbedded or BackendRemote.
	Name() string

	// Init brings the schema up to date. Idempotent.
	Init(ctx context.Context) (*InitRecord, error)

	// Close releases connections.
	Close() error
}

// ShiftRepository defines the secondary port for shift persistence.
type ShiftRepository interface {
	// GetShift returns the shift for (date, username), or nil when none exists.
	GetShift(ctx context.Context, shiftDate, username string) (*ShiftRecord, error)

	// UpsertShift inserts the shift or updates the existing row for its
	// (date, username) pair, and returns the stored row.
	UpsertShift(ctx context.Context, shift *ShiftRecord) (*ShiftRecord, error)
}

// ActivityRepository defines the secondary port for activity persistence.
// Every call is scoped by (date, username); the engine resolves the shift id.
type ActivityRepository interface {
	// ListActivities returns the shift's activities ordered by start then id.
	ListActivities(ctx context.Context, shiftDate, username string) ([]*ActivityRecord, error)

	// AddActivity stores a new activity. Fails with errs.ErrShiftNotFound
	// when the shift does not exist.
	AddActivity(ctx context.Context, shiftDate, username string, activity *ActivityRecord) (*ActivityRecord, error)

	// UpdateActivity replaces every field of the activity with activity.ID.
	UpdateActivity(ctx context.Context, shiftDate, username string, activity *ActivityRecord) (*ActivityRecord, error)

	// DeleteActivity removes the activity. Missing shifts or activities are
	// not an error.
	DeleteActivity(ctx context.Context, shiftDate, username string, id int64) error
}

// VehicleRepository defines the secondary port for vehicle reference data.
type VehicleRepository interface {
	// ReplaceVehicles deletes every vehicle and inserts the given set.
	ReplaceVehicles(ctx context.Context, vehicles []*VehicleRecord) error

	// GetVehicle returns the vehicle with barcode, or nil.
	GetVehicle(ctx context.Context, barcode string) (*VehicleRecord, error)

	// ListVehicles returns all vehicles ordered by name.
	ListVehicles(ctx context.Context) ([]*VehicleRecord, error)
}

// HoleRepository defines the secondary port for the hole registry.
type HoleRepository interface {
	// ListHoles returns every registered hole with its activity count.
	ListHoles(ctx context.Context) ([]*HoleRecord, error)
}

// ShiftRecord represents a shift as stored in persistence.
type ShiftRecord struct {
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
	ShiftNotes              string
	CreatedAt               string
	UpdatedAt               string
}

// ActivityRecord represents an activity as stored in persistence.
type ActivityRecord struct {
	ID        int64
	ShiftID   int64
	StartTS   string
	EndTS     string
	Code      string
	Label     string
	Notes     string
	Tool      string
	HoleID    string // empty means no hole
	CreatedAt string
	UpdatedAt string
}

// VehicleRecord represents one vehicle of the reference catalog.
type VehicleRecord struct {
	Barcode     string
	Name        string
	Description string
	Model       string
	Category    string
	Location    string
}

// HoleRecord represents a registered hole.
type HoleRecord struct {
	HoleID        string
	CreatedAt     string
	UpdatedAt     string
	ActivityCount int
}

// InitRecord reports what Init did.
type InitRecord struct {
	SchemaVersion    int
	Applied          []string
	Deferred         []string
	Anomalies        []string
	ShiftsMerged     int
	ActivitiesMoved  int
	HolesAssigned    int
	OrphanActivities int
}
