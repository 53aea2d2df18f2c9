package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/fs"
	"github.com/raoulx24/snapmirror/internal/snapshot"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots in the destination root",
	Long: `List the directories of the destination root, oldest first, with the
status recorded in each snapshot's manifest. Snapshots left behind by failed
cycles show as failed.`,
	RunE: runList,
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, _, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeQuietly(log)

	if cfg.DestinationPath == "" {
		return snaperrors.MarkConfig(errors.New("DESTINATION_PATH is required"))
	}

	snaps, err := snapshot.List(fs.New(), cfg.DestinationPath, cfg.Location())
	if err != nil {
		return err
	}
	return writeSnapshotTable(cmd.OutOrStdout(), snaps)
}

func writeSnapshotTable(w io.Writer, snaps []snapshot.Snapshot) error {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "No snapshots.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tAGE\tSOURCES")
	for _, s := range snaps {
		age := "-"
		if !s.Timestamp.IsZero() {
			age = humanize.Time(s.Timestamp)
		}
		sources := "-"
		if s.Manifest != nil {
			sources = fmt.Sprintf("%d", len(s.Manifest.Sources))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, statusText(s.Manifest), age, sources)
	}
	return tw.Flush()
}

func statusText(m *snapshot.Manifest) string {
	if m == nil {
		return "-"
	}
	switch m.Status {
	case snapshot.StatusComplete:
		return color.GreenString(string(m.Status))
	case snapshot.StatusFailed:
		return color.RedString(string(m.Status))
	default:
		return color.YellowString(string(m.Status))
	}
}
