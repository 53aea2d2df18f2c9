package config

import (
	"path/filepath"

	"github.com/cockroachdb/errors"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/logging"
	"github.com/raoulx24/snapmirror/internal/snapshot"
)

// Validate checks everything a cycle needs. The schedule is checked by the
// scheduler because one-shot runs do not need one.
func (c *Config) Validate() error {
	if len(c.SourcePaths) == 0 {
		return configErr("SOURCE_PATHS: at least one source is required")
	}

	seen := make(map[string]string, len(c.SourcePaths))
	for _, src := range c.SourcePaths {
		name := snapshot.FolderName(src)
		if name == "" {
			return configErr("SOURCE_PATHS: %q has no folder name", src)
		}
		if prev, dup := seen[name]; dup {
			return configErr("SOURCE_PATHS: %q and %q both map to folder %q", prev, src, name)
		}
		seen[name] = src
	}

	if c.DestinationPath == "" {
		return configErr("DESTINATION_PATH is required")
	}
	if !filepath.IsAbs(c.DestinationPath) {
		return configErr("DESTINATION_PATH must be absolute, got %q", c.DestinationPath)
	}

	if c.Retention.Keep < 1 {
		return configErr("NUMBER_OF_LAST_BACKUPS_KEPT must be a positive integer, got %d", c.Retention.Keep)
	}

	switch c.OnFailure {
	case FailExit, FailContinue:
	default:
		return configErr("on_failure must be %q or %q, got %q", FailExit, FailContinue, c.OnFailure)
	}

	if c.Mirror.Command == "" {
		return configErr("mirror.command is required")
	}
	if c.Mirror.Parallelism < 1 {
		return configErr("mirror.parallelism must be at least 1, got %d", c.Mirror.Parallelism)
	}
	if c.Mirror.Timeout < 0 {
		return configErr("mirror.timeout must not be negative")
	}

	switch c.Reload.Mode {
	case "auto", "poll", "fsnotify":
	default:
		return configErr("reload.mode must be auto, poll or fsnotify, got %q", c.Reload.Mode)
	}
	if c.Reload.Enabled && c.Reload.PollInterval <= 0 {
		return configErr("reload.poll_interval must be positive")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return snaperrors.MarkConfig(err)
	}
	return nil
}

func configErr(format string, args ...any) error {
	return snaperrors.MarkConfig(errors.Newf(format, args...))
}
