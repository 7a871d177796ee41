package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/puma/internal/adapters/cli"
	"github.com/example/puma/internal/ctxutil"
	"github.com/example/puma/internal/wire"
)

// Persistent flag names shared by every command.
const (
	flagConfig  = "config"
	flagUser    = "user"
	flagDate    = "date"
	flagVerbose = "verbose"
)

// AddGlobalFlags registers the persistent flags and hands them to wire before
// any command runs.
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().String(flagConfig, "", "Path to puma.yaml (default: ./puma.yaml, then ~/puma.yaml)")
	root.PersistentFlags().StringP(flagUser, "u", "", "User the shift belongs to (default from config)")
	root.PersistentFlags().StringP(flagDate, "d", "", "Shift date YYYY-MM-DD (default today)")
	root.PersistentFlags().BoolP(flagVerbose, "v", false, "Log debug output to stderr")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString(flagConfig)
		verbose, _ := cmd.Flags().GetBool(flagVerbose)
		wire.Configure(wire.Settings{ConfigPath: path, Verbose: verbose})
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return wire.Close()
	}
}

// session is what a diary command needs: the shift it addresses, a context
// carrying the acting user, and an adapter over the selected backend.
type session struct {
	ctx     context.Context
	date    string
	user    string
	adapter *cliadapter.DiaryAdapter
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := wire.Config()
	if err != nil {
		return nil, err
	}
	adapter, err := wire.DiaryAdapterWithOutput(cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}

	explicit, _ := cmd.Flags().GetString(flagUser)
	user := cfg.User(explicit)
	if user == "" {
		return nil, fmt.Errorf("no user selected\nHint: Use --user or set defaultUser in puma.yaml")
	}

	date, _ := cmd.Flags().GetString(flagDate)
	date = strings.TrimSpace(date)
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return &session{
		ctx:     ctxutil.WithActorID(ctx, user),
		date:    date,
		user:    user,
		adapter: adapter,
	}, nil
}
