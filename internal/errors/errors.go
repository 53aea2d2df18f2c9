package errors

import (
	"fmt"

	crdberrors "github.com/cockroachdb/errors"
)

// Exit codes for the snapmirror process.
const (
	ExitSuccess = 0
	ExitConfig  = 1
	ExitCycle   = 2
	ExitLocked  = 3
)

// Error kinds.
var (
	// ErrConfig marks configuration that cannot be scheduled or run.
	ErrConfig = crdberrors.New("invalid configuration")

	// ErrMirrorFailed marks a mirror invocation that exited non-zero or
	// could not be started.
	ErrMirrorFailed = crdberrors.New("mirror failed")

	// ErrFilesystem marks a failure creating snapshot directories or
	// deleting pruned snapshots.
	ErrFilesystem = crdberrors.New("filesystem error")

	// ErrLocked marks a destination root held by another process.
	ErrLocked = crdberrors.New("destination locked")
)

// MarkConfig tags err as a configuration error. A nil err stays nil.
func MarkConfig(err error) error { return mark(err, ErrConfig) }

// MarkMirror tags err as a mirror failure. A nil err stays nil.
func MarkMirror(err error) error { return mark(err, ErrMirrorFailed) }

// MarkFilesystem tags err as a filesystem failure. A nil err stays nil.
func MarkFilesystem(err error) error { return mark(err, ErrFilesystem) }

// MarkLocked tags err as a lock conflict. A nil err stays nil.
func MarkLocked(err error) error { return mark(err, ErrLocked) }

func mark(err, kind error) error {
	if err == nil {
		return nil
	}
	return crdberrors.Mark(err, kind)
}

// Kind returns the name of the first kind err carries, or "unknown".
func Kind(err error) string {
	switch {
	case crdberrors.Is(err, ErrConfig):
		return "config"
	case crdberrors.Is(err, ErrMirrorFailed):
		return "mirror"
	case crdberrors.Is(err, ErrFilesystem):
		return "filesystem"
	case crdberrors.Is(err, ErrLocked):
		return "locked"
	default:
		return "unknown"
	}
}

// ExitError wraps an error with the exit code the process should end with.
type ExitError struct {
	// Err is the underlying error that caused the exit.
	Err error

	// Code is the exit code to return to the operating system.
	Code int
}

// NewExitError creates an ExitError with the given underlying error and exit code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// Error returns the error message from the underlying error.
// If the underlying error is nil, it returns a generic message with the exit code.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps err to a process exit code. An explicit ExitError wins over
// the kind marks; unmarked errors are treated as cycle failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if crdberrors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch {
	case crdberrors.Is(err, ErrConfig):
		return ExitConfig
	case crdberrors.Is(err, ErrLocked):
		return ExitLocked
	default:
		return ExitCycle
	}
}
