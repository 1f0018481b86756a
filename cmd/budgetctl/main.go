package main

import (
	"context"
	"fmt"
	"os"

	"budgeteer/internal/cli"
	"budgeteer/internal/config"
	"budgeteer/internal/log"

	"github.com/spf13/cobra"
)

func main() {
	cli.LoadEnvFile()

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := newRootCmd(openApp).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// openApp opens the configured ledger with events on, so changes made from
// the command line reach the consumer like those made over HTTP.
func openApp(ctx context.Context) (*cli.App, error) {
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentCLI)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cli.NewApp(ctx, cfg, logger, cli.WithEvents())
}

type appOpener func(ctx context.Context) (*cli.App, error)

// session holds the app for the running command.
type session struct {
	open appOpener
	app  *cli.App
}

func newRootCmd(open appOpener) *cobra.Command {
	s := &session{open: open}

	root := &cobra.Command{
		Use:   "budgetctl",
		Short: "Manage the monthly budget ledger from the command line",
		Long: `budgetctl works on the same ledger as the budgeteer server: add and
remove transactions, set the monthly limit, close the month and export.

The server keeps its own copy of the ledger and overwrites the store on its
next change, so stop it before changing the ledger from here.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.open(cmd.Context())
			if err != nil {
				return err
			}
			s.app = app
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if s.app == nil {
				return nil
			}
			return s.app.Close()
		},
	}

	root.AddCommand(
		newAddCmd(s),
		newRemoveCmd(s),
		newListCmd(s),
		newSummaryCmd(s),
		newLimitCmd(s),
		newCurrencyCmd(s),
		newVoiceCmd(s),
		newMonthEndCmd(s),
		newExportCmd(s),
	)
	return root
}
