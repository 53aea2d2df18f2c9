// Package fsprobe checks directories before snapmirror relies on them: the
// destination must be a writable directory, and a watched config directory
// must actually deliver fsnotify events.
package fsprobe

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
)

// Destination checks that dir exists, is a directory and accepts new files.
// Failures are configuration errors: nothing is scheduled against a root
// that cannot hold snapshots.
func Destination(dir string) error {
	st, err := os.Stat(dir)
	if err != nil {
		return snaperrors.MarkConfig(errors.Wrapf(err, "DESTINATION_PATH %s", dir))
	}
	if !st.IsDir() {
		return snaperrors.MarkConfig(errors.Newf("DESTINATION_PATH %s is not a directory", dir))
	}

	f, err := os.CreateTemp(dir, ".fsprobe-*")
	if err != nil {
		return snaperrors.MarkConfig(errors.Wrapf(err, "DESTINATION_PATH %s is not writable", dir))
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return snaperrors.MarkConfig(errors.Wrapf(err, "DESTINATION_PATH %s: removing probe file", dir))
	}
	return nil
}

// Result reports whether fsnotify is usable and why.
type Result struct {
	FsnotifySupported bool   // true if events are delivered
	Reason            string // explanation when unsupported
}

// Notify tests whether fsnotify reliably reports rename events in dir.
// Editors and config management tools usually replace files by rename.
func Notify(dir string, wait time.Duration) Result {
	st, err := os.Stat(dir)
	if err != nil {
		return Result{false, fmt.Sprintf("stat failed: %v", err)}
	}
	if !st.IsDir() {
		return Result{false, "not a directory"}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return Result{false, fmt.Sprintf("fsnotify unavailable: %v", err)}
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return Result{false, fmt.Sprintf("cannot watch directory: %v", err)}
	}

	tmp := filepath.Join(dir, ".fsprobe_tmp")
	final := filepath.Join(dir, ".fsprobe_final")

	if f, err := os.Create(tmp); err == nil {
		f.Close()
	} else {
		return Result{false, fmt.Sprintf("cannot create temp file: %v", err)}
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return Result{false, fmt.Sprintf("rename failed: %v", err)}
	}
	defer os.Remove(final)

	timeout := time.After(wait)
	for {
		select {
		case ev := <-w.Events:
			if ev.Op&(fsnotify.Rename|fsnotify.Create|fsnotify.Write) != 0 {
				return Result{true, ""}
			}
		case <-timeout:
			return Result{false, "no events received (rename not reported)"}
		}
	}
}
