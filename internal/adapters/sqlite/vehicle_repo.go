package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/example/puma/internal/ports/secondary"
)

// VehicleRepository implements secondary.VehicleRepository with SQLite.
type VehicleRepository struct {
	*store
}

type vehicleRow struct {
	Barcode     string         `db:"barcode"`
	Name        sql.NullString `db:"name"`
	Description sql.NullString `db:"description"`
	Model       sql.NullString `db:"model"`
	Category    sql.NullString `db:"category"`
	Location    sql.NullString `db:"location"`
}

func (r vehicleRow) record() *secondary.VehicleRecord {
	return &secondary.VehicleRecord{
		Barcode:     r.Barcode,
		Name:        r.Name.String,
		Description: r.Description.String,
		Model:       r.Model.String,
		Category:    r.Category.String,
		Location:    r.Location.String,
	}
}

const vehicleSelect = "SELECT barcode, name, description, model, category, location FROM vehicles"

// ReplaceVehicles deletes the whole catalog and inserts vehicles in one
// transaction. Vehicles without a barcode are skipped; a repeated barcode
// keeps the last entry.
func (r *VehicleRepository) ReplaceVehicles(ctx context.Context, vehicles []*secondary.VehicleRecord) error {
	return r.write(ctx, "replace vehicles", func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM vehicles"); err != nil {
			return fmt.Errorf("failed to clear vehicles: %w", err)
		}
		for _, v := range vehicles {
			barcode := strings.TrimSpace(v.Barcode)
			if barcode == "" {
				continue
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO vehicles (barcode, name, description, model, category, location)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(barcode) DO UPDATE SET
					name = excluded.name,
					description = excluded.description,
					model = excluded.model,
					category = excluded.category,
					location = excluded.location`,
				barcode, nullString(v.Name), nullString(v.Description), nullString(v.Model),
				nullString(v.Category), nullString(v.Location),
			)
			if err != nil {
				return fmt.Errorf("failed to insert vehicle %s: %w", barcode, err)
			}
		}
		return nil
	})
}

// GetVehicle retrieves a vehicle by barcode, or nil.
func (r *VehicleRepository) GetVehicle(ctx context.Context, barcode string) (*secondary.VehicleRecord, error) {
	var record *secondary.VehicleRecord
	err := r.read(ctx, "get vehicle", func(ctx context.Context) error {
		var row vehicleRow
		err := r.db.GetContext(ctx, &row, vehicleSelect+" WHERE barcode = ?", strings.TrimSpace(barcode))
		if errors.Is(err, sql.ErrNoRows) {
			record = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get vehicle: %w", err)
		}
		record = row.record()
		return nil
	})
	return record, err
}

// ListVehicles retrieves all vehicles ordered by name.
func (r *VehicleRepository) ListVehicles(ctx context.Context) ([]*secondary.VehicleRecord, error) {
	var records []*secondary.VehicleRecord
	err := r.read(ctx, "list vehicles", func(ctx context.Context) error {
		records = nil
		var rows []vehicleRow
		if err := r.db.SelectContext(ctx, &rows, vehicleSelect+" ORDER BY name ASC, barcode ASC"); err != nil {
			return fmt.Errorf("failed to list vehicles: %w", err)
		}
		for _, row := range rows {
			records = append(records, row.record())
		}
		return nil
	})
	return records, err
}
