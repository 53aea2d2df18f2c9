package commands

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/fsprobe"
	"github.com/raoulx24/snapmirror/internal/lockfile"
	"github.com/raoulx24/snapmirror/internal/retention"
)

var pruneDryRun bool

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "print what would be removed without removing it")
	rootCmd.AddCommand(pruneCmd)
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply retention without taking a snapshot",
	Long: `Remove all but the NUMBER_OF_LAST_BACKUPS_KEPT newest directories of the
destination root. Snapshot names sort chronologically, so the greatest names
are kept.`,
	Example: `  # Show what would go
  snapmirror prune --dry-run

  # Keep the last 3
  NUMBER_OF_LAST_BACKUPS_KEPT=3 snapmirror prune`,
	RunE: runPrune,
}

func runPrune(cmd *cobra.Command, _ []string) error {
	cfg, _, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeQuietly(log)

	if cfg.DestinationPath == "" {
		return snaperrors.MarkConfig(errors.New("DESTINATION_PATH is required"))
	}
	if cfg.Retention.Keep < 1 {
		return snaperrors.MarkConfig(errors.Newf("NUMBER_OF_LAST_BACKUPS_KEPT must be a positive integer, got %d", cfg.Retention.Keep))
	}

	p := retention.NewPruner(nil, log, retention.OnlySnapshots(cfg.Retention.OnlySnapshots))
	out := cmd.OutOrStdout()

	if pruneDryRun {
		victims, err := p.Plan(cfg.DestinationPath, cfg.Retention.Keep)
		if err != nil {
			return err
		}
		for _, v := range victims {
			fmt.Fprintln(out, v)
		}
		return nil
	}

	if err := fsprobe.Destination(cfg.DestinationPath); err != nil {
		return err
	}
	lock, err := lockfile.Acquire(cfg.DestinationPath)
	if err != nil {
		return err
	}
	defer lock.Close()

	removed, err := p.Apply(cmd.Context(), cfg.DestinationPath, cfg.Retention.Keep)
	for _, r := range removed {
		fmt.Fprintln(out, r)
	}
	if err != nil {
		log.Error("%v", err)
		return reported(err)
	}
	return nil
}
