package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/puma/internal/cli"
	"github.com/example/puma/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "puma",
		Short:   "PUMA - shift and activity diary for logging crews",
		Version: version.String(),
		Long: `PUMA records field shifts and the activities logged during them.
Data lives in an embedded SQLite file or, when configured, the shared warehouse.`,
		SilenceUsage: true,
	}
	cli.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.BackendCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.ShiftCmd())
	rootCmd.AddCommand(cli.ActivityCmd())

	// Reference data
	rootCmd.AddCommand(cli.VehiclesCmd())
	rootCmd.AddCommand(cli.HolesCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
