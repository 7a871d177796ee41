package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errDeferred tells the runner to commit a step's work without recording its
// version, so the step runs again on the next boot.
var errDeferred = errors.New("migration deferred")

// keeperCandidate is the part of a shift row that decides which duplicate
// survives.
type keeperCandidate struct {
	ID        int64
	CreatedAt string
	UpdatedAt string
}

func (c keeperCandidate) rank() time.Time {
	if t, ok := ParseTimestamp(c.UpdatedAt); ok {
		return t
	}
	if t, ok := ParseTimestamp(c.CreatedAt); ok {
		return t
	}
	return time.Time{}
}

// outranks reports whether c should be kept over other: the later
// updated_at (else created_at, else the zero time) wins, then the higher id.
func (c keeperCandidate) outranks(other keeperCandidate) bool {
	a, b := c.rank(), other.rank()
	if !a.Equal(b) {
		return a.After(b)
	}
	return c.ID > other.ID
}

// pickKeeper returns the index of the surviving candidate.
func pickKeeper(group []keeperCandidate) int {
	best := 0
	for i := 1; i < len(group); i++ {
		if group[i].outranks(group[best]) {
			best = i
		}
	}
	return best
}

type dedupRow struct {
	ID        int64   `db:"id"`
	ShiftDate string  `db:"shift_date"`
	Username  string  `db:"username"`
	CreatedAt *string `db:"created_at"`
	UpdatedAt *string `db:"updated_at"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// dedupeShifts collapses shifts sharing (shift_date, username) into the
// keeper row, moving activities of the losers first. Each group runs inside
// its own savepoint; a failing group is rolled back, reported and skipped.
func dedupeShifts(ctx context.Context, env *migrationEnv) error {
	var rows []dedupRow
	err := env.tx.SelectContext(ctx, &rows, `
		SELECT id, shift_date, username, created_at, updated_at FROM shifts
		WHERE (shift_date, username) IN (
			SELECT shift_date, username FROM shifts
			GROUP BY shift_date, username HAVING COUNT(*) > 1
		)
		ORDER BY shift_date, username, id`)
	if err != nil {
		env.rep.anomaly("shifts", 0, "duplicate scan failed: %v", err)
		return errDeferred
	}

	groups := map[string][]keeperCandidate{}
	var order []string
	for _, r := range rows {
		key := r.ShiftDate + "\x00" + r.Username
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], keeperCandidate{
			ID:        r.ID,
			CreatedAt: deref(r.CreatedAt),
			UpdatedAt: deref(r.UpdatedAt),
		})
	}

	for _, key := range order {
		group := groups[key]
		keeper := group[pickKeeper(group)]
		if err := mergeGroup(ctx, env, keeper, group); err != nil {
			env.rep.anomaly("shifts", keeper.ID, "could not merge duplicates: %v", err)
		}
	}

	var residual int
	err = env.tx.QueryRowxContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM shifts GROUP BY shift_date, username HAVING COUNT(*) > 1
		)`).Scan(&residual)
	if err != nil {
		env.rep.anomaly("shifts", 0, "duplicate recount failed: %v", err)
		return errDeferred
	}
	if residual > 0 {
		env.rep.anomaly("shifts", 0, "%d duplicate (date, user) groups remain; unique index deferred", residual)
		return errDeferred
	}

	if _, err := env.tx.ExecContext(ctx, uniqueIndexSQL); err != nil {
		return fmt.Errorf("failed to create unique shift index: %w", err)
	}
	return nil
}

func mergeGroup(ctx context.Context, env *migrationEnv, keeper keeperCandidate, group []keeperCandidate) (err error) {
	if _, err := env.tx.ExecContext(ctx, "SAVEPOINT dedup_group"); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			env.tx.ExecContext(ctx, "ROLLBACK TO dedup_group")
		}
		env.tx.ExecContext(ctx, "RELEASE dedup_group")
	}()

	var moved int64
	var merged int
	for _, c := range group {
		if c.ID == keeper.ID {
			continue
		}
		res, err := env.tx.ExecContext(ctx, "UPDATE activities SET shift_id = ? WHERE shift_id = ?", keeper.ID, c.ID)
		if err != nil {
			return fmt.Errorf("failed to move activities of shift %d: %w", c.ID, err)
		}
		n, _ := res.RowsAffected()
		moved += n
		if _, err := env.tx.ExecContext(ctx, "DELETE FROM shifts WHERE id = ?", c.ID); err != nil {
			return fmt.Errorf("failed to delete duplicate shift %d: %w", c.ID, err)
		}
		merged++
	}

	env.rep.ShiftsMerged += merged
	env.rep.ActivitiesMoved += int(moved)
	env.rep.anomaly("shifts", keeper.ID, "merged %d duplicate shift(s), moved %d activities", merged, moved)
	return nil
}
