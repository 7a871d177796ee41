package db

import "fmt"

// Anomaly is something a migration step patched, defaulted or could not
// finish. Anomalies never block startup.
type Anomaly struct {
	Step    string
	Table   string
	RowID   int64
	Message string
}

func (a Anomaly) String() string {
	if a.RowID != 0 {
		return fmt.Sprintf("[%s] %s#%d: %s", a.Step, a.Table, a.RowID, a.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", a.Step, a.Table, a.Message)
}

// Report summarises one Migrate call.
type Report struct {
	SchemaVersion int
	Applied       []string
	Deferred      []string
	Anomalies     []Anomaly

	ShiftsMerged     int
	ActivitiesMoved  int
	HolesAssigned    int
	OrphanActivities int
}

// stepReport collects what a single step did. It is merged into the Report
// only when the step commits, so a retried step never double counts.
type stepReport struct {
	step string
	Report
}

func (r *stepReport) anomaly(table string, rowID int64, format string, args ...any) {
	r.Anomalies = append(r.Anomalies, Anomaly{
		Step:    r.step,
		Table:   table,
		RowID:   rowID,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *Report) merge(s *stepReport) {
	r.Anomalies = append(r.Anomalies, s.Anomalies...)
	r.ShiftsMerged += s.ShiftsMerged
	r.ActivitiesMoved += s.ActivitiesMoved
	r.HolesAssigned += s.HolesAssigned
	r.OrphanActivities += s.OrphanActivities
}
