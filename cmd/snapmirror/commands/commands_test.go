package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/fs"
	"github.com/raoulx24/snapmirror/internal/snapshot"
)

var envNames = []string{
	"SOURCE_PATHS", "DESTINATION_PATH", "NUMBER_OF_LAST_BACKUPS_KEPT",
	"POOLING_INTERVAL_IN_MINUTES", "POOLING_IN_MINUTES", "POOLING_TIME", "DEBUG",
	"MIRROR_COMMAND", "MIRROR_ARGS", "LOG_FILE", "LOG_LEVEL", "ON_MIRROR_FAILURE",
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns everything written
// to stdout and stderr.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	for _, name := range envNames {
		if v, ok := os.LookupEnv(name); ok {
			t.Setenv(name, v)
			require.NoError(t, os.Unsetenv(name))
		}
	}
	resetFlags(rootCmd)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, dest string, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "source_paths: [/data/app1/, /data/app2/]\n" +
		"destination_path: " + dest + "\n" +
		"retention:\n  keep: 2\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func seedSnapshots(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, n), 0o755))
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "snapmirror version dev")
	assert.Contains(t, out, "commit:")
}

func TestPrune_DryRun(t *testing.T) {
	dest := t.TempDir()
	seedSnapshots(t, dest, "2024-03-01~0000", "2024-03-02~0000", "2024-03-03~0000")
	cfg := writeConfig(t, dest, "")

	out, err := execute(t, "prune", "--dry-run", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "2024-03-01~0000")+"\n", out)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "dry run removes nothing")
}

func TestPrune(t *testing.T) {
	dest := t.TempDir()
	seedSnapshots(t, dest, "2024-03-01~0000", "2024-03-02~0000", "2024-03-03~0000", "2024-03-04~0000")
	cfg := writeConfig(t, dest, "")

	out, err := execute(t, "prune", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "REMOVE: [")
	assert.Contains(t, out, filepath.Join(dest, "2024-03-02~0000"))

	var dirs []string
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	assert.Equal(t, []string{"2024-03-03~0000", "2024-03-04~0000"}, dirs)
}

func TestPrune_MissingDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention:\n  keep: 2\n"), 0o644))

	_, err := execute(t, "prune", "--config", path)
	require.Error(t, err)
	assert.Equal(t, snaperrors.ExitConfig, snaperrors.ExitCode(err))
}

func TestList(t *testing.T) {
	dest := t.TempDir()
	seedSnapshots(t, dest, "2024-03-01~0000", "2024-03-02~0000")
	require.NoError(t, snapshot.WriteManifest(fs.New(), filepath.Join(dest, "2024-03-02~0000"), &snapshot.Manifest{
		Name:    "2024-03-02~0000",
		Status:  snapshot.StatusFailed,
		Sources: []snapshot.SourceEntry{{Source: "/data/app1/"}},
	}))
	cfg := writeConfig(t, dest, "")

	out, err := execute(t, "list", "--config", cfg)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "2024-03-01~0000")
	assert.Contains(t, lines[1], "ago")
	assert.Contains(t, lines[2], "failed")
}

func TestList_Empty(t *testing.T) {
	out, err := execute(t, "list", "--config", writeConfig(t, t.TempDir(), ""))
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots.")
}

func TestOnce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses the true command")
	}
	dest := t.TempDir()
	logFile := filepath.Join(t.TempDir(), "snapmirror.log")
	cfg := writeConfig(t, dest, "mirror:\n  command: \"true\"\n")

	out, err := execute(t, "once", "--config", cfg, "--log-file", logFile)
	require.NoError(t, err)

	snaps, err := snapshot.List(fs.New(), dest, time.Local)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snaps[0].Path+"\n", out)
	require.NotNil(t, snaps[0].Manifest)
	assert.Equal(t, snapshot.StatusComplete, snaps[0].Manifest.Status)

	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "SOURCE_PATH: /data/app1/ DESTINATION_PATH: ")
	assert.Contains(t, string(logged), "COMMAND: true -av /data/app2/ ")
	assert.Contains(t, string(logged), "TIME: ")
}

func TestOnce_MirrorFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses the false command")
	}
	cfg := writeConfig(t, t.TempDir(), "mirror:\n  command: \"false\"\n")

	out, err := execute(t, "once", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, snaperrors.ExitCycle, snaperrors.ExitCode(err))

	var exitErr *snaperrors.ExitError
	assert.True(t, errors.As(err, &exitErr), "cycle errors are reported through the log")
	assert.Contains(t, out, "ERROR: ")
}

func TestRun_ScheduleConflict(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "schedule:\n  interval_minutes: 5\n  time: \"03:00\"\n")

	out, err := execute(t, "run", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, snaperrors.ExitConfig, snaperrors.ExitCode(err))
	assert.Contains(t, out, "Only 1 POOLING config should be set")
}

func TestRun_BadConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, snaperrors.ExitConfig, snaperrors.ExitCode(err))
}
