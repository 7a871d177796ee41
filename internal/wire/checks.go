package wire

import (
	"context"
	"fmt"

	cliadapter "github.com/example/puma/internal/adapters/cli"
	"github.com/example/puma/internal/adapters/sqlite"
	"github.com/example/puma/internal/adapters/warehouse"
	"github.com/example/puma/internal/db"
	"github.com/example/puma/internal/ports/secondary"
)

// Checks inspects a storage engine for the doctor command.
func Checks(ctx context.Context, eng secondary.StorageEngine) []cliadapter.CheckResult {
	results := []cliadapter.CheckResult{{Name: "backend", OK: true, Details: eng.Name()}}

	switch e := eng.(type) {
	case *sqlite.Engine:
		version, journal, integrity, err := e.Diagnostics(ctx)
		if err != nil {
			return append(results, cliadapter.CheckResult{Name: "database", Details: err.Error()})
		}
		results = append(results,
			cliadapter.CheckResult{
				Name:    "schema",
				OK:      true,
				Warn:    version < db.LatestVersion(),
				Details: fmt.Sprintf("schema v%d, latest v%d; run puma init", version, db.LatestVersion()),
			},
			cliadapter.CheckResult{
				Name:    "journal",
				OK:      true,
				Warn:    journal != "wal",
				Details: fmt.Sprintf("journal mode is %s, expected wal", journal),
			},
			cliadapter.CheckResult{
				Name:    "integrity",
				OK:      integrity == "ok",
				Details: integrity,
			},
		)
	case *warehouse.Engine:
		if err := e.Ping(ctx); err != nil {
			results = append(results, cliadapter.CheckResult{Name: "warehouse", Details: err.Error()})
		} else {
			results = append(results, cliadapter.CheckResult{Name: "warehouse", OK: true})
		}
	}
	return results
}
