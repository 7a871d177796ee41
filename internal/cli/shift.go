package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/puma/internal/core/shift"
	"github.com/example/puma/internal/ports/primary"
)

// ShiftCmd returns the shift command
func ShiftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shift",
		Short: "Show or save the shift for a date and user",
	}
	cmd.AddCommand(shiftShowCmd())
	cmd.AddCommand(shiftSaveCmd())
	return cmd
}

func shiftShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the shift with its activities and progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			return s.adapter.ShowShift(s.ctx, s.date, s.user)
		},
	}
}

func shiftSaveCmd() *cobra.Command {
	var in primary.ShiftInput

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or replace the shift",
		Long: `Create or replace the shift for --date and --user.

Vehicle details left blank are filled from the vehicle catalog.

Examples:
  puma shift save --client RTIO --site "Pad 3" --job J100 --vehicle 12 --start 06:00
  puma shift save --client FMG --site "Other (manual)" --site-other "Cloud Break" --job J7 --vehicle 14 --start 18:00 --hours 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			in.ShiftDate = s.date
			in.Username = s.user
			return s.adapter.SaveShift(s.ctx, in)
		},
	}

	cmd.Flags().StringVar(&in.Client, "client", "", "Client")
	cmd.Flags().StringVar(&in.Site, "site", "", "Site")
	cmd.Flags().StringVar(&in.SiteOther, "site-other", "", "Site name when --site is \"Other (manual)\"")
	cmd.Flags().StringVar(&in.JobNumber, "job", "", "Job number")
	cmd.Flags().StringVar(&in.VehicleBarcode, "vehicle", "", "Vehicle barcode")
	cmd.Flags().StringVar(&in.VehicleName, "vehicle-name", "", "Vehicle name (default from catalog)")
	cmd.Flags().StringVar(&in.VehicleLocationActual, "vehicle-location", "", "Where the vehicle actually is")
	cmd.Flags().StringVar(&in.ShiftStart, "start", "", "Shift start HH:MM")
	cmd.Flags().Float64Var(&in.ShiftHours, "hours", shift.DefaultHours, "Shift length in hours")
	cmd.Flags().StringVar(&in.ShiftNotes, "notes", "", "Shift notes")
	return cmd
}
