package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/puma/internal/config"
	"github.com/example/puma/internal/wire"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	var vehicles string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade the diary storage",
		Long: `Bring the selected backend up to date.

On the embedded database this runs the migration chain: legacy tables are
canonicalised, duplicate shifts merged and logging activities given holes.
Running it again is safe.

Examples:
  puma init
  puma init --vehicles ./vehicles_catalog.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			if err := s.adapter.Init(s.ctx); err != nil {
				return err
			}

			if vehicles == "" {
				cfg, _ := wire.Config()
				vehicles = cfg.VehicleCatalog
			}
			list, err := config.LoadVehicles(vehicles)
			if err != nil {
				return fmt.Errorf("failed to read vehicle catalog: %w", err)
			}
			if len(list) == 0 {
				return nil
			}
			return s.adapter.LoadVehicles(s.ctx, list)
		},
	}

	cmd.Flags().StringVar(&vehicles, "vehicles", "", "Vehicle catalog to load after init (default from config)")
	return cmd
}

// BackendCmd returns the backend command
func BackendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backend",
		Short: "Print the storage backend in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := wire.DiaryAdapterWithOutput(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			adapter.Backend()
			return nil
		},
	}
}
