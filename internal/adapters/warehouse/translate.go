package warehouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/puma/internal/ports/secondary"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05"
)

// dateColumns are serialized without a time part.
var dateColumns = map[string]bool{"shift_date": true}

// normalizeRow lower-cases column names and renders temporal values as the
// ISO text the embedded engine stores, so callers never see which backend
// produced a row.
func normalizeRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		key := strings.ToLower(k)
		if t, ok := v.(time.Time); ok {
			if dateColumns[key] {
				v = t.Format(dateLayout)
			} else {
				v = t.Format(timestampLayout)
			}
		}
		out[key] = v
	}
	return out
}

func text(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func integer(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func float(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func boolean(row map[string]any, key string) bool {
	switch v := row[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func shiftFromRow(raw map[string]any) *secondary.ShiftRecord {
	row := normalizeRow(raw)
	return &secondary.ShiftRecord{
		ID:                      integer(row, "id"),
		ShiftDate:               text(row, "shift_date"),
		Username:                text(row, "username"),
		Client:                  text(row, "client"),
		Site:                    text(row, "site"),
		SiteOther:               text(row, "site_other"),
		JobNumber:               text(row, "job_number"),
		VehicleBarcode:          text(row, "vehicle_barcode"),
		VehicleName:             text(row, "vehicle_name"),
		VehicleDescription:      text(row, "vehicle_description"),
		VehicleModel:            text(row, "vehicle_model"),
		VehicleCategory:         text(row, "vehicle_category"),
		VehicleLocationExpected: text(row, "vehicle_location_expected"),
		VehicleLocationActual:   text(row, "vehicle_location_actual"),
		VehicleLocationMismatch: boolean(row, "vehicle_location_mismatch"),
		ShiftStart:              text(row, "shift_start"),
		ShiftHours:              float(row, "shift_hours"),
		ShiftNotes:              text(row, "shift_notes"),
		CreatedAt:               text(row, "created_at"),
		UpdatedAt:               text(row, "updated_at"),
	}
}

// activityFromRow translates a PUMA_ACTIVITIES row. The warehouse keys
// activities by (date, user) rather than by shift id, so shiftID is supplied
// by the caller.
func activityFromRow(raw map[string]any, shiftID int64) *secondary.ActivityRecord {
	row := normalizeRow(raw)
	return &secondary.ActivityRecord{
		ID:        integer(row, "id"),
		ShiftID:   shiftID,
		StartTS:   text(row, "start_ts"),
		EndTS:     text(row, "end_ts"),
		Code:      text(row, "code"),
		Label:     text(row, "label"),
		Notes:     text(row, "notes"),
		Tool:      text(row, "tool"),
		HoleID:    text(row, "hole_id"),
		CreatedAt: text(row, "created_at"),
		UpdatedAt: text(row, "updated_at"),
	}
}

func vehicleFromRow(raw map[string]any) *secondary.VehicleRecord {
	row := normalizeRow(raw)
	return &secondary.VehicleRecord{
		Barcode:     text(row, "barcode"),
		Name:        text(row, "name"),
		Description: text(row, "description"),
		Model:       text(row, "model"),
		Category:    text(row, "category"),
		Location:    text(row, "location"),
	}
}

func holeFromRow(raw map[string]any) *secondary.HoleRecord {
	row := normalizeRow(raw)
	return &secondary.HoleRecord{
		HoleID:        text(row, "hole_id"),
		CreatedAt:     text(row, "created_at"),
		UpdatedAt:     text(row, "updated_at"),
		ActivityCount: int(integer(row, "activity_count")),
	}
}

// parseTimestamp accepts the stored ISO form and RFC 3339.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// nullText maps blank strings to SQL NULL.
func nullText(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
