// Package worker runs backup cycles: build a snapshot, then prune old ones.
package worker

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"

	"github.com/raoulx24/snapmirror/internal/config"
	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/logging"
	"github.com/raoulx24/snapmirror/internal/snapshot"
)

// Builder creates and fills one snapshot.
type Builder interface {
	Build(ctx context.Context, p snapshot.Plan) (*snapshot.Snapshot, error)
}

// Pruner enforces the retention count on a destination root.
type Pruner interface {
	Apply(ctx context.Context, root string, keep int) ([]string, error)
	Count(root string) (int, error)
}

// Metrics receives per-cycle measurements. *metrics.Registry implements it.
type Metrics interface {
	CycleFinished(ok bool, d time.Duration, finishedAt time.Time)
	MirrorRun(ok bool)
	Pruned(n, retained int)
}

// Settings are the parts of the configuration a cycle reads. They can be
// replaced between cycles with UpdateConfig.
type Settings struct {
	Sources   []string
	Root      string
	Keep      int
	OnFailure config.FailurePolicy
}

// SettingsFrom extracts the cycle settings from cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Sources:   append([]string(nil), cfg.SourcePaths...),
		Root:      cfg.DestinationPath,
		Keep:      cfg.Retention.Keep,
		OnFailure: cfg.OnFailure,
	}
}

// Worker runs backup cycles one at a time.
type Worker struct {
	mu       sync.RWMutex
	settings Settings

	builder Builder
	pruner  Pruner
	log     logging.Logger
	metrics Metrics
	now     func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

type Option func(*Worker)

// WithMetrics reports every cycle to m.
func WithMetrics(m Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// New creates a worker.
func New(s Settings, b Builder, p Pruner, log logging.Logger, opts ...Option) *Worker {
	log.Debug("creating worker")
	w := &Worker{
		settings: s,
		builder:  b,
		pruner:   p,
		log:      log,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// UpdateConfig replaces the settings used by the next cycle. A running
// cycle keeps the settings it started with.
func (w *Worker) UpdateConfig(s Settings) {
	w.log.Debug("entering Worker.UpdateConfig()")
	w.mu.Lock()
	w.settings = s
	w.mu.Unlock()
}

// Settings returns a copy of the current settings.
func (w *Worker) Settings() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := w.settings
	s.Sources = append([]string(nil), s.Sources...)
	return s
}

func (w *Worker) newID(t time.Time) string {
	w.idMu.Lock()
	defer w.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), w.entropy).String()
}

// RunCycle builds one snapshot and, only if every source was mirrored,
// prunes the destination root. The cycle duration is always logged.
func (w *Worker) RunCycle(ctx context.Context) (Cycle, error) {
	s := w.Settings()
	start := w.now()
	c := Cycle{ID: w.newID(start), Started: start}
	w.log.Debug("cycle %s started", c.ID)

	c.Err = w.runCycle(ctx, s, &c)

	c.Duration = w.now().Sub(start)
	w.log.Info("TIME: %0.2f minute(s)", c.Duration.Minutes())
	if w.metrics != nil {
		w.metrics.CycleFinished(c.Err == nil, c.Duration, start.Add(c.Duration))
	}
	return c, c.Err
}

func (w *Worker) runCycle(ctx context.Context, s Settings, c *Cycle) error {
	snap, err := w.builder.Build(ctx, snapshot.Plan{
		Root:    s.Root,
		Sources: s.Sources,
		Now:     c.Started,
		CycleID: c.ID,
	})
	c.Snapshot = snap
	w.recordMirrorRuns(snap, err)
	if err != nil {
		w.log.Error("cycle %s failed, skipping retention: %v", c.ID, err)
		return err
	}

	removed, err := w.pruner.Apply(ctx, s.Root, s.Keep)
	c.Removed = removed
	if err != nil {
		w.log.Error("cycle %s: retention failed: %v", c.ID, err)
		return err
	}

	if w.metrics != nil {
		retained, cerr := w.pruner.Count(s.Root)
		if cerr != nil {
			w.log.Warn("counting snapshots in %s: %v", s.Root, cerr)
		}
		w.metrics.Pruned(len(removed), retained)
	}
	return nil
}

func (w *Worker) recordMirrorRuns(snap *snapshot.Snapshot, err error) {
	if w.metrics == nil {
		return
	}
	if snap != nil && snap.Manifest != nil {
		for _, e := range snap.Manifest.Sources {
			if e.Status == snapshot.StatusComplete {
				w.metrics.MirrorRun(true)
			}
		}
	}
	if errors.Is(err, snaperrors.ErrMirrorFailed) {
		w.metrics.MirrorRun(false)
	}
}
