// Package mirror runs the external directory-mirroring tool (rsync by
// default) for one source/destination pair and streams its output into the
// log sink line by line.
package mirror

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/logging"
)

const (
	// maxLineSize bounds one output line; longer lines fail the scan.
	maxLineSize = 1 << 20
	// stderrTail is how much trailing stderr is kept for error reports.
	stderrTail = 8 << 10
)

// Command is the invocation template: <Name> <Args...> [-e <RemoteShell>] <src> <dst>.
type Command struct {
	Name        string
	Args        []string
	RemoteShell string
}

// Argv returns the arguments passed after the command name.
func (c Command) Argv(src, dst string) []string {
	argv := make([]string, 0, len(c.Args)+4)
	argv = append(argv, c.Args...)
	if c.RemoteShell != "" {
		argv = append(argv, "-e", c.RemoteShell)
	}
	return append(argv, src, dst)
}

// String renders the full command line for logs.
func (c Command) String(src, dst string) string {
	parts := append([]string{c.Name}, c.Argv(src, dst)...)
	for i, p := range parts {
		if strings.ContainsAny(p, " \t") {
			parts[i] = fmt.Sprintf("%q", p)
		}
	}
	return strings.Join(parts, " ")
}

// Request is one mirror invocation.
type Request struct {
	Source      string
	Destination string
	// Label, when set, prefixes every forwarded output line.
	Label string
}

// Result describes a finished invocation. ExitCode is -1 when the process
// could not be started or was killed by a signal.
type Result struct {
	ExitCode int
	Lines    int
	Duration time.Duration
}

// Failure is returned for a non-zero exit or a failed start.
type Failure struct {
	Source   string
	ExitCode int
	Stderr   string
	Err      error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("mirror of %s exited with status %d", f.Source, f.ExitCode)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	if f.Stderr != "" {
		msg += ": " + f.Stderr
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// CommandContext matches exec.CommandContext so tests can swap the process.
type CommandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Invoker runs Command synchronously.
type Invoker struct {
	cmd            Command
	timeout        time.Duration
	log            logging.Logger
	commandContext CommandContext
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithTimeout bounds each invocation. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		i.timeout = d
	}
}

// WithCommandContext replaces exec.CommandContext.
func WithCommandContext(fn CommandContext) Option {
	return func(i *Invoker) {
		if fn != nil {
			i.commandContext = fn
		}
	}
}

// New creates an Invoker for cmd.
func New(cmd Command, log logging.Logger, opts ...Option) *Invoker {
	inv := &Invoker{
		cmd:            cmd,
		log:            log,
		commandContext: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Run executes the mirror for req. It returns only after stdout reached EOF
// and the process exited, so the exit code and the log are both complete.
func (i *Invoker) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	i.log.Info("COMMAND: %s", i.cmd.String(req.Source, req.Destination))

	c := i.commandContext(ctx, i.cmd.Name, i.cmd.Argv(req.Source, req.Destination)...)
	configureProcess(c)

	stderr := newTailBuffer(stderrTail)
	c.Stderr = stderr

	stdout, err := c.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, i.fail(req, -1, "", errors.Wrap(err, "opening stdout pipe"))
	}

	if err := c.Start(); err != nil {
		res := Result{ExitCode: -1, Duration: time.Since(start)}
		return res, i.fail(req, -1, "", errors.Wrapf(err, "starting %s", i.cmd.Name))
	}

	lines, scanErr := i.stream(stdout, req.Label)
	if scanErr != nil {
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := c.Wait()

	res := Result{
		ExitCode: exitCode(c, waitErr),
		Lines:    lines,
		Duration: time.Since(start),
	}

	switch {
	case waitErr != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			waitErr = errors.Wrapf(ctxErr, "%v", waitErr)
		}
		return res, i.fail(req, res.ExitCode, stderr.String(), waitErr)
	case scanErr != nil:
		return res, i.fail(req, res.ExitCode, stderr.String(), errors.Wrap(scanErr, "reading output"))
	}
	return res, nil
}

func (i *Invoker) fail(req Request, code int, stderr string, err error) error {
	return snaperrors.MarkMirror(&Failure{
		Source:   req.Source,
		ExitCode: code,
		Stderr:   strings.TrimSpace(stderr),
		Err:      err,
	})
}

// stream forwards each output line to the log as soon as it is read.
func (i *Invoker) stream(r io.Reader, label string) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLineSize)
	sc.Split(scanLines)

	prefix := ""
	if label != "" {
		prefix = "[" + label + "] "
	}

	n := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n++
		i.log.Info("%s%s", prefix, line)
	}
	return n, sc.Err()
}

// scanLines splits on \n and on bare \r, which progress meters use.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for idx, b := range data {
		if b == '\n' || b == '\r' {
			return idx + 1, data[:idx], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitCode(c *exec.Cmd, waitErr error) int {
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		return ee.ExitCode()
	}
	if c.ProcessState != nil {
		return c.ProcessState.ExitCode()
	}
	return -1
}
