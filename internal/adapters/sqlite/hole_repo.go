package sqlite

import (
	"context"
	"fmt"

	"github.com/example/puma/internal/ports/secondary"
)

// HoleRepository implements secondary.HoleRepository with SQLite.
type HoleRepository struct {
	*store
}

type holeRow struct {
	HoleID        string `db:"hole_id"`
	CreatedAt     string `db:"created_at"`
	UpdatedAt     string `db:"updated_at"`
	ActivityCount int    `db:"activity_count"`
}

// ListHoles retrieves every registered hole with the number of activities
// referencing it, oldest first.
func (r *HoleRepository) ListHoles(ctx context.Context) ([]*secondary.HoleRecord, error) {
	var records []*secondary.HoleRecord
	err := r.read(ctx, "list holes", func(ctx context.Context) error {
		records = nil
		var rows []holeRow
		err := r.db.SelectContext(ctx, &rows, `
			SELECT h.hole_id, h.created_at, h.updated_at, COUNT(a.id) AS activity_count
			FROM holes h
			LEFT JOIN activities a ON a.hole_id = h.hole_id
			GROUP BY h.hole_id, h.created_at, h.updated_at
			ORDER BY h.created_at ASC, h.hole_id ASC`)
		if err != nil {
			return fmt.Errorf("failed to list holes: %w", err)
		}
		for _, row := range rows {
			records = append(records, &secondary.HoleRecord{
				HoleID:        row.HoleID,
				CreatedAt:     row.CreatedAt,
				UpdatedAt:     row.UpdatedAt,
				ActivityCount: row.ActivityCount,
			})
		}
		return nil
	})
	return records, err
}
