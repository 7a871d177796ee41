package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// NewHoleID returns a fresh opaque hole identifier.
func NewHoleID() string {
	return uuid.NewString()
}

// EnsureHole registers id in the hole registry, or touches updated_at when it
// is already known. Blank ids are ignored.
func EnsureHole(ctx context.Context, e sqlx.ExecerContext, id string, now time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	ts := now.Format(TimestampLayout)
	_, err := e.ExecContext(ctx, `
		INSERT INTO holes (hole_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(hole_id) DO UPDATE SET updated_at = excluded.updated_at`,
		id, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to register hole %s: %w", id, err)
	}
	return nil
}

// backfillHoles gives every logging activity without a hole a fresh one and
// registers any hole referenced by an activity but missing from the registry.
// Rows that already carry a hole are left alone, so repeated runs are no-ops.
func backfillHoles(ctx context.Context, env *migrationEnv) error {
	cols, err := ColumnsByName(ctx, env.tx, "activities")
	if err != nil {
		return err
	}
	if !cols.Has("id", "code", "hole_id") {
		env.rep.anomaly("activities", 0, "hole backfill skipped: activities is not in canonical shape")
		return nil
	}

	var ids []int64
	err = sqlx.SelectContext(ctx, env.tx, &ids, `
		SELECT id FROM activities
		WHERE UPPER(TRIM(code)) = ? AND (hole_id IS NULL OR TRIM(hole_id) = '')
		ORDER BY id`, LoggingCode)
	if err != nil {
		return fmt.Errorf("failed to find logging activities without holes: %w", err)
	}

	for _, id := range ids {
		hole := env.newHoleID()
		if err := EnsureHole(ctx, env.tx, hole, env.now); err != nil {
			return err
		}
		if _, err := env.tx.ExecContext(ctx, "UPDATE activities SET hole_id = ? WHERE id = ?", hole, id); err != nil {
			return fmt.Errorf("failed to assign hole to activity %d: %w", id, err)
		}
		env.rep.HolesAssigned++
	}

	ts := env.now.Format(TimestampLayout)
	_, err = env.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO holes (hole_id, created_at, updated_at)
		SELECT DISTINCT TRIM(hole_id), ?, ? FROM activities
		WHERE hole_id IS NOT NULL AND TRIM(hole_id) <> ''`, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to register referenced holes: %w", err)
	}
	return nil
}
