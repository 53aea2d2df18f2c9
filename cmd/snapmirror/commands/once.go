package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raoulx24/snapmirror/internal/daemon"
)

func init() {
	rootCmd.AddCommand(onceCmd)
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single cycle and exit",
	Long: `Build one snapshot, prune old ones, and exit. Schedule settings are
ignored, as with DEBUG.`,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, _, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeQuietly(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(cfg, daemon.Deps{Log: log})
	if err != nil {
		log.Error("%v", err)
		return reported(err)
	}

	c, err := d.Once(ctx)
	if err != nil {
		return reported(err)
	}
	if c.OK() && c.Snapshot != nil {
		fmt.Fprintln(cmd.OutOrStdout(), c.Snapshot.Path)
	}
	return nil
}
