package mirror

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/logging"
)

// TestHelperProcess stands in for rsync. The source argument selects the
// behavior: "fail" exits 23, "progress" emits \r separated updates, "hang"
// sleeps until killed.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	src, dst := args[len(args)-2], args[len(args)-1]

	switch {
	case strings.Contains(src, "fail"):
		fmt.Println("sending incremental file list")
		fmt.Fprintln(os.Stderr, "rsync: change_dir failed: No such file or directory (2)")
		os.Exit(23)
	case strings.Contains(src, "progress"):
		fmt.Print("file1\r 50%\r100%\n")
		os.Exit(0)
	case strings.Contains(src, "hang"):
		time.Sleep(time.Minute)
		os.Exit(0)
	}

	fmt.Println("sending incremental file list")
	fmt.Println("argv: " + strings.Join(args, " "))
	fmt.Println("dst: " + dst)
	os.Exit(0)
}

func helperCommand(ctx context.Context, name string, arg ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, arg...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

func TestCommand_Argv(t *testing.T) {
	c := Command{Name: "rsync", Args: []string{"-av"}}
	assert.Equal(t, []string{"-av", "/data/app1/", "/backups/x/app1"}, c.Argv("/data/app1/", "/backups/x/app1"))

	c.RemoteShell = "ssh -T -o Compression=no"
	assert.Equal(t,
		[]string{"-av", "-e", "ssh -T -o Compression=no", "host:/data/app1/", "/backups/x/app1"},
		c.Argv("host:/data/app1/", "/backups/x/app1"))
	assert.Equal(t,
		`rsync -av -e "ssh -T -o Compression=no" host:/data/app1/ /backups/x/app1`,
		c.String("host:/data/app1/", "/backups/x/app1"))
}

func TestInvoker_StreamsLinesWithLabel(t *testing.T) {
	rec := logging.NewRecorder()
	inv := New(Command{Name: "rsync", Args: []string{"-av"}}, rec, WithCommandContext(helperCommand))

	res, err := inv.Run(context.Background(), Request{Source: "/data/app1/", Destination: "/backups/s/app1", Label: "app1"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, 3, res.Lines)

	assert.True(t, rec.Contains("COMMAND: rsync -av /data/app1/ /backups/s/app1"))
	assert.True(t, rec.Contains("[app1] sending incremental file list"))
	assert.True(t, rec.Contains("[app1] argv: rsync -av /data/app1/ /backups/s/app1"))
	assert.True(t, rec.Contains("[app1] dst: /backups/s/app1"))
}

func TestInvoker_NonZeroExit(t *testing.T) {
	rec := logging.NewRecorder()
	inv := New(Command{Name: "rsync", Args: []string{"-av"}}, rec, WithCommandContext(helperCommand))

	res, err := inv.Run(context.Background(), Request{Source: "/data/fail/", Destination: "/backups/s/fail"})
	require.Error(t, err)
	assert.Equal(t, 23, res.ExitCode)
	assert.True(t, errors.Is(err, snaperrors.ErrMirrorFailed))

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, 23, f.ExitCode)
	assert.Contains(t, f.Stderr, "change_dir failed")

	// Output before the failure was still forwarded, without a label prefix.
	assert.True(t, rec.Contains("sending incremental file list"))
	assert.False(t, rec.Contains("[]"))
}

func TestInvoker_StartFailure(t *testing.T) {
	inv := New(Command{Name: "definitely-not-a-mirror-tool-xyz"}, logging.Nop{})

	res, err := inv.Run(context.Background(), Request{Source: "/a/", Destination: "/b"})
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
	assert.True(t, errors.Is(err, snaperrors.ErrMirrorFailed))
}

func TestInvoker_CarriageReturnProgress(t *testing.T) {
	rec := logging.NewRecorder()
	inv := New(Command{Name: "rsync"}, rec, WithCommandContext(helperCommand))

	res, err := inv.Run(context.Background(), Request{Source: "/data/progress/", Destination: "/b"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Lines)
	assert.True(t, rec.Contains("50%"))
}

func TestInvoker_Timeout(t *testing.T) {
	inv := New(Command{Name: "rsync"}, logging.Nop{},
		WithCommandContext(helperCommand),
		WithTimeout(200*time.Millisecond))

	start := time.Now()
	_, err := inv.Run(context.Background(), Request{Source: "/data/hang/", Destination: "/b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, snaperrors.ErrMirrorFailed))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(5)
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defgh"))
	assert.Equal(t, "defgh", tb.String())
}
