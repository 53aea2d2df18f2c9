// Package watcher monitors the config file and reports changes so the daemon
// can reload it.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/raoulx24/snapmirror/internal/config"
	"github.com/raoulx24/snapmirror/internal/fsprobe"
	"github.com/raoulx24/snapmirror/internal/logging"
	"github.com/raoulx24/snapmirror/internal/mailbox"
)

// Change is posted when the watched file was modified.
type Change struct {
	Path string
	At   time.Time
}

// Watcher observes one file and posts a Change when its modification time
// or size moves.
type Watcher struct {
	mu sync.RWMutex

	path     string
	interval time.Duration
	mode     string
	debounce time.Duration

	log logging.Logger

	lastMod  time.Time
	lastSize int64

	mb *mailbox.Mailbox[Change]
}

// New creates a watcher for path using the reload settings.
func New(path string, cfg config.ReloadConfig, log logging.Logger, mb *mailbox.Mailbox[Change]) *Watcher {
	w := &Watcher{
		path:     path,
		interval: cfg.PollInterval,
		mode:     cfg.Mode,
		debounce: cfg.Debounce,
		log:      log,
		mb:       mb,
	}
	w.lastMod, w.lastSize, _ = stat(path)
	return w
}

// Start chooses the watching strategy and blocks until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	switch w.mode {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		w.StartPolling(ctx)
		return nil

	case "auto", "":
		res := fsprobe.Notify(filepath.Dir(w.path), 200*time.Millisecond)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn("fsnotify disabled: %s", res.Reason)
		w.StartPolling(ctx)
		return nil

	default:
		return fmt.Errorf("unknown mode %q", w.mode)
	}
}
