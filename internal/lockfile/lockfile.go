// Package lockfile holds an exclusive advisory lock on a destination root so
// two snapmirror processes never run cycles against the same snapshots.
package lockfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
)

// Name is the lock file created in the destination root.
const Name = ".snapmirror.lock"

// Lock is a held lock. Release it with Close.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock for dir without blocking. A lock held by another
// process yields an error marked ErrLocked.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, Name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, snaperrors.MarkFilesystem(errors.Wrapf(err, "opening %s", path))
	}

	if err := lock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			holder := readHolder(path)
			return nil, snaperrors.MarkLocked(errors.Newf("%s is locked by another snapmirror process%s", dir, holder))
		}
		return nil, snaperrors.MarkFilesystem(errors.Wrapf(err, "locking %s", path))
	}

	// Informational only; the kernel lock is what counts.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{f: f, path: path}, nil
}

// Path is the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Close releases the lock. The file stays in place.
func (l *Lock) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

func readHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return ""
	}
	return " (pid " + strconv.Itoa(pid) + ")"
}
