// Package commands implements the CLI commands for snapmirror.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/raoulx24/snapmirror/internal/config"
	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/logging"
)

// configFile holds the value of the --config flag.
var configFile string

// logFile holds the value of the --log-file flag.
var logFile string

// logLevel holds the value of the --log-level flag.
var logLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: $XDG_CONFIG_HOME/snapmirror/config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"append log lines to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: debug, info, warn, error")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("snapmirror version {{.Version}}\n")

	// Silence errors and usage so main controls error output and exit codes.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

var rootCmd = &cobra.Command{
	Use:   "snapmirror",
	Short: "Scheduled directory mirroring into timestamped snapshots",
	Long: `snapmirror copies a set of source directories into timestamped snapshot
directories under a destination root, using an external mirror tool (rsync by
default), and keeps only the most recent snapshots.

Configuration comes from defaults, an optional YAML file, environment
variables (SOURCE_PATHS, DESTINATION_PATH, NUMBER_OF_LAST_BACKUPS_KEPT,
POOLING_INTERVAL_IN_MINUTES or POOLING_TIME, DEBUG, ...) and flags, in that
order.

Without a subcommand snapmirror behaves like "snapmirror run".`,
	Example: `  # Mirror two directories every 30 minutes, keep 10 snapshots
  SOURCE_PATHS=/srv/www/,/srv/db/ DESTINATION_PATH=/backups \
  NUMBER_OF_LAST_BACKUPS_KEPT=10 POOLING_INTERVAL_IN_MINUTES=30 snapmirror

  # One cycle now, then exit
  snapmirror once --config /etc/snapmirror.yaml`,
	RunE: runDaemon,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// newLoader builds the config loader for the current flags.
func newLoader(cmd *cobra.Command) *config.Loader {
	path := configFile
	if path == "" {
		path = config.DefaultConfigFile()
	}

	opts := []config.Option{config.WithConfigFile(path)}
	if cmd.Flags().Changed("log-file") {
		opts = append(opts, config.WithOverride("log.file", logFile))
	}
	if cmd.Flags().Changed("log-level") {
		opts = append(opts, config.WithOverride("log.level", logLevel))
	}
	return config.NewLoader(opts...)
}

// setup loads the configuration and opens the log sink.
func setup(cmd *cobra.Command) (*config.Config, *config.Loader, *logging.LogrusLogger, error) {
	loader := newLoader(cmd)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logging.New(logging.Options{
		File:   cfg.Log.File,
		Level:  cfg.Log.Level,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, nil, snaperrors.MarkConfig(err)
	}
	return cfg, loader, log, nil
}

// reported marks err as already logged so main only sets the exit code.
func reported(err error) error {
	if err == nil {
		return nil
	}
	return snaperrors.NewExitError(err, snaperrors.ExitCode(err))
}

// closeQuietly closes c and ignores the error; used for log files on exit.
func closeQuietly(c io.Closer) {
	_ = c.Close()
}
