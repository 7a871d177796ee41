package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/puma/internal/config"
	"github.com/example/puma/internal/wire"
)

// VehiclesCmd returns the vehicles command
func VehiclesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "Manage the vehicle catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "load [catalog.json]",
		Short: "Replace the stored vehicles with a catalog file",
		Long: `Replace the stored vehicles with the entries of a catalog file of the
form {"vehicles": [{"barcode": ..., "name": ..., "location": ...}]}.
Without an argument the configured vehicleCatalog is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, _ := wire.Config()
				path = cfg.VehicleCatalog
			}
			vehicles, err := config.LoadVehicles(path)
			if err != nil {
				return fmt.Errorf("failed to read vehicle catalog: %w", err)
			}
			return s.adapter.LoadVehicles(s.ctx, vehicles)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored vehicles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			return s.adapter.ListVehicles(s.ctx)
		},
	})
	return cmd
}

// HolesCmd returns the holes command
func HolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holes",
		Short: "List registered holes and their activity counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			return s.adapter.ListHoles(s.ctx)
		},
	}
}
