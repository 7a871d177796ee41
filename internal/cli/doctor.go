package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/puma/internal/adapters/cli"
	"github.com/example/puma/internal/wire"
)

// DoctorCmd returns the doctor command for storage health checks
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the diary storage",
		Long: `Health check for the selected backend.

Embedded: schema version, WAL journal mode and PRAGMA integrity_check.
Remote:   warehouse connectivity.

Examples:
  puma doctor              # Run full health check
  puma doctor --quiet      # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := wire.Diagnose(cmd.Context())

			out := cmd.OutOrStdout()
			if quiet {
				out = io.Discard
			}
			if cliadapter.NewDiaryAdapter(nil, out).Doctor(results) {
				return fmt.Errorf("doctor found problems")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress output, exit code only")
	return cmd
}
