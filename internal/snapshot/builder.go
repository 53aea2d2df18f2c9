package snapshot

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/fs"
	"github.com/raoulx24/snapmirror/internal/logging"
	"github.com/raoulx24/snapmirror/internal/mirror"
)

// Mirror is the part of mirror.Invoker the builder needs.
type Mirror interface {
	Run(ctx context.Context, req mirror.Request) (mirror.Result, error)
}

// Plan is the input of one Build call.
type Plan struct {
	Root    string
	Sources []string
	Now     time.Time
	CycleID string
}

// Target is one source and the directory it is mirrored into.
type Target struct {
	Source      string
	Destination string
	Label       string
}

// Builder creates snapshot directories and fills them through the mirror.
type Builder struct {
	fs          fs.FS
	mirror      Mirror
	log         logging.Logger
	parallelism int
	loc         *time.Location
	now         func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithParallelism mirrors up to n sources at once. Values below 2 keep the
// sequential behavior.
func WithParallelism(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.parallelism = n
		}
	}
}

// WithLocation names snapshots in loc instead of local time.
func WithLocation(loc *time.Location) Option {
	return func(b *Builder) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// WithClock replaces time.Now for manifest timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder creates a Builder. A nil filesystem means the OS filesystem.
func NewBuilder(filesystem fs.FS, m Mirror, log logging.Logger, opts ...Option) *Builder {
	if filesystem == nil {
		filesystem = fs.New()
	}
	b := &Builder{
		fs:          filesystem,
		mirror:      m,
		log:         log,
		parallelism: 1,
		loc:         time.Local,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Layout returns the snapshot path for p and the per-source targets, in
// configured order.
func (b *Builder) Layout(p Plan) (string, []Target) {
	name := Name(p.Now.In(b.loc))
	snapPath := filepath.Join(p.Root, name)

	targets := make([]Target, 0, len(p.Sources))
	for _, src := range p.Sources {
		folder := FolderName(src)
		targets = append(targets, Target{
			Source:      src,
			Destination: filepath.Join(snapPath, folder),
			Label:       folder,
		})
	}
	return snapPath, targets
}

// Build creates the snapshot for p and mirrors every source into it. The
// first failure stops the build: later sources are not attempted and the
// partial snapshot stays on disk with a failed manifest.
func (b *Builder) Build(ctx context.Context, p Plan) (*Snapshot, error) {
	snapPath, targets := b.Layout(p)
	name := filepath.Base(snapPath)

	if err := b.fs.MkdirAll(p.Root); err != nil {
		return nil, snaperrors.MarkFilesystem(errors.Wrapf(err, "creating %s", p.Root))
	}
	// Mkdir, not MkdirAll: an existing snapshot of the same minute belongs to
	// another cycle and its manifest must stay untouched.
	if err := b.fs.Mkdir(snapPath); err != nil {
		return nil, snaperrors.MarkFilesystem(errors.Wrapf(err, "creating snapshot %s", name))
	}

	m := &Manifest{
		CycleID:   p.CycleID,
		Name:      name,
		StartedAt: b.now(),
		Status:    StatusInProgress,
		Sources:   make([]SourceEntry, len(targets)),
	}
	for i, t := range targets {
		m.Sources[i] = SourceEntry{Source: t.Source, Destination: t.Destination, Status: StatusPending}
	}
	if err := WriteManifest(b.fs, snapPath, m); err != nil {
		return nil, snaperrors.MarkFilesystem(err)
	}

	snap := &Snapshot{Name: name, Path: snapPath, Timestamp: p.Now, Manifest: m}

	var runErr error
	if b.parallelism > 1 && len(targets) > 1 {
		runErr = b.runParallel(ctx, targets, m)
	} else {
		runErr = b.runSequential(ctx, targets, m)
	}

	m.FinishedAt = b.now()
	if runErr != nil {
		m.Status = StatusFailed
		m.Error = runErr.Error()
		if err := WriteManifest(b.fs, snapPath, m); err != nil {
			b.log.Warn("could not record failure in %s: %v", name, err)
		}
		return snap, runErr
	}

	m.Status = StatusComplete
	if err := WriteManifest(b.fs, snapPath, m); err != nil {
		return snap, snaperrors.MarkFilesystem(err)
	}
	return snap, nil
}

func (b *Builder) runSequential(ctx context.Context, targets []Target, m *Manifest) error {
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.mirrorOne(ctx, t, &m.Sources[i]); err != nil {
			return err
		}
	}
	return nil
}

// runParallel keeps the per-source ordering guarantee that matters: each
// destination exists before its mirror starts. No new source starts once
// one has failed.
func (b *Builder) runParallel(ctx context.Context, targets []Target, m *Manifest) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)

	for i := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return b.mirrorOne(gctx, targets[i], &m.Sources[i])
		})
	}
	return g.Wait()
}

func (b *Builder) mirrorOne(ctx context.Context, t Target, entry *SourceEntry) error {
	if err := b.fs.Mkdir(t.Destination); err != nil {
		entry.Status = StatusFailed
		return snaperrors.MarkFilesystem(errors.Wrapf(err, "creating %s", t.Destination))
	}

	b.log.Info("SOURCE_PATH: %s DESTINATION_PATH: %s", t.Source, t.Destination)
	entry.Status = StatusInProgress

	res, err := b.mirror.Run(ctx, mirror.Request{
		Source:      t.Source,
		Destination: t.Destination,
		Label:       t.Label,
	})
	entry.ExitCode = res.ExitCode
	entry.Lines = res.Lines
	entry.Duration = res.Duration

	if err != nil {
		entry.Status = StatusFailed
		return snaperrors.MarkMirror(errors.Wrapf(err, "mirroring %s", t.Source))
	}
	entry.Status = StatusComplete
	return nil
}
