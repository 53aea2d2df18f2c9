package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raoulx24/snapmirror/internal/daemon"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler (default)",
	Long: `Run cycles on the configured schedule until interrupted.

Exactly one of POOLING_INTERVAL_IN_MINUTES (schedule.interval_minutes) or
POOLING_TIME (schedule.time, HH:MM) must be set. With DEBUG set, a single
cycle runs immediately and the process exits.

SIGHUP reloads the configuration. Sources, destination and retention apply
to the next cycle; schedule and mirror changes need a restart.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, loader, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeQuietly(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	return reported(daemon.Run(ctx, cfg, daemon.Deps{
		Log:    log,
		Loader: loader,
		Hangup: hangup,
	}))
}
