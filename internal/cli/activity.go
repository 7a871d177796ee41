package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/puma/internal/ports/primary"
)

// ActivityCmd returns the activity command
func ActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "activity",
		Aliases: []string{"act"},
		Short:   "Manage the activities of a shift",
	}
	cmd.AddCommand(activityListCmd())
	cmd.AddCommand(activityAddCmd())
	cmd.AddCommand(activityUpdateCmd())
	cmd.AddCommand(activityDeleteCmd())
	return cmd
}

func activityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List activities ordered by start time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			return s.adapter.ListActivities(s.ctx, s.date, s.user)
		},
	}
}

// activityFlags binds the flags add and update share.
func activityFlags(cmd *cobra.Command, in *primary.ActivityInput) {
	cmd.Flags().StringVar(&in.Start, "start", "", "Start, HH:MM or YYYY-MM-DDTHH:MM:SS")
	cmd.Flags().StringVar(&in.End, "end", "", "End, HH:MM or YYYY-MM-DDTHH:MM:SS")
	cmd.Flags().StringVar(&in.Code, "code", "", "Activity code (LOG, CAL, SAF, ...)")
	cmd.Flags().StringVar(&in.Label, "label", "", "Label (default from catalog)")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "Notes")
	cmd.Flags().StringVar(&in.Tool, "tool", "", "Tool, for LOG and CAL")
	cmd.Flags().StringVar(&in.HoleID, "hole", "", "Hole id (LOG activities get a new one when blank)")
	cmd.Flags().BoolVar(&in.AllowOverlap, "allow-overlap", false, "Save even if the times overlap another activity")
}

func activityAddCmd() *cobra.Command {
	var in primary.ActivityInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an activity to the shift",
		Long: `Add an activity to the shift for --date and --user.

Clock times are placed on the shift date; times before the shift start
belong to the next day.

Examples:
  puma activity add --start 06:30 --end 08:00 --code LOG --tool Density
  puma activity add --start 23:00 --end 01:00 --code SAF --notes "toolbox talk"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			return s.adapter.AddActivity(s.ctx, s.date, s.user, in)
		},
	}
	activityFlags(cmd, &in)
	return cmd
}

func activityUpdateCmd() *cobra.Command {
	var in primary.ActivityInput

	cmd := &cobra.Command{
		Use:   "update [activity-id]",
		Short: "Replace every field of an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseActivityID(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			return s.adapter.UpdateActivity(s.ctx, s.date, s.user, id, in)
		},
	}
	activityFlags(cmd, &in)
	return cmd
}

func activityDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [activity-id]",
		Short: "Delete an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseActivityID(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			return s.adapter.DeleteActivity(s.ctx, s.date, s.user, id)
		},
	}
}

func parseActivityID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid activity id %q", arg)
	}
	return id, nil
}
