// Package daemon wires configuration, scheduler, worker and the optional
// metrics and reload machinery into the snapmirror process.
//
// A daemon starts Unconfigured. Run validates the configuration and either
// runs one cycle (debug) or resolves the schedule and enters Scheduled,
// where each trigger moves it to Running for one cycle and back.
package daemon

import (
	"context"
	"os"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raoulx24/snapmirror/internal/config"
	"github.com/raoulx24/snapmirror/internal/fs"
	"github.com/raoulx24/snapmirror/internal/fsprobe"
	"github.com/raoulx24/snapmirror/internal/lockfile"
	"github.com/raoulx24/snapmirror/internal/logging"
	"github.com/raoulx24/snapmirror/internal/mailbox"
	"github.com/raoulx24/snapmirror/internal/metrics"
	"github.com/raoulx24/snapmirror/internal/mirror"
	"github.com/raoulx24/snapmirror/internal/retention"
	"github.com/raoulx24/snapmirror/internal/scheduler"
	"github.com/raoulx24/snapmirror/internal/snapshot"
	"github.com/raoulx24/snapmirror/internal/watcher"
	"github.com/raoulx24/snapmirror/internal/worker"
)

// Deps are the collaborators Run does not build itself. Only Log is
// required.
type Deps struct {
	Log logging.Logger

	// Loader re-reads the configuration on reload. Nil disables reloads.
	Loader *config.Loader
	// Hangup delivers reload requests, usually SIGHUP.
	Hangup <-chan os.Signal

	// Mirror replaces the external mirror command.
	Mirror snapshot.Mirror
	// FS replaces the OS filesystem for snapshots and retention.
	FS fs.FS
	// Now replaces time.Now for cycle timestamps.
	Now func() time.Time
	// Metrics is used instead of a fresh registry when set.
	Metrics *metrics.Registry
}

// levelSetter is implemented by loggers whose level can change at runtime.
type levelSetter interface {
	SetLevel(level string) error
}

// Daemon holds the running components. Build it with New.
type Daemon struct {
	mu   sync.Mutex
	cfg  *config.Config
	deps Deps
	log  logging.Logger

	worker  *worker.Worker
	metrics *metrics.Registry
	lock    *lockfile.Lock
}

// New validates cfg and builds the worker and its collaborators.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{cfg: cfg, deps: deps, log: deps.Log}

	if deps.Metrics != nil {
		d.metrics = deps.Metrics
	} else if cfg.Metrics.Addr != "" {
		d.metrics = metrics.NewRegistry()
	}

	d.worker = d.buildWorker(cfg)
	return d, nil
}

func (d *Daemon) buildWorker(cfg *config.Config) *worker.Worker {
	m := d.deps.Mirror
	if m == nil {
		m = mirror.New(mirror.Command{
			Name:        cfg.Mirror.Command,
			Args:        cfg.Mirror.Args,
			RemoteShell: cfg.Mirror.RemoteShell,
		}, d.log, mirror.WithTimeout(cfg.Mirror.Timeout))
	}

	b := snapshot.NewBuilder(d.deps.FS, m, d.log,
		snapshot.WithParallelism(cfg.Mirror.Parallelism),
		snapshot.WithLocation(cfg.Location()),
	)
	p := retention.NewPruner(d.deps.FS, d.log, retention.OnlySnapshots(cfg.Retention.OnlySnapshots))

	var opts []worker.Option
	if d.metrics != nil {
		opts = append(opts, worker.WithMetrics(d.metrics))
	}
	if d.deps.Now != nil {
		opts = append(opts, worker.WithClock(d.deps.Now))
	}
	return worker.New(worker.SettingsFrom(cfg), b, p, d.log, opts...)
}

// Worker exposes the cycle runner, mainly for tests and the once command.
func (d *Daemon) Worker() *worker.Worker {
	return d.worker
}

// Run checks the destination, takes its lock and then either runs a single
// cycle (debug) or schedules cycles until ctx is done or a cycle fails under
// the exit policy.
func Run(ctx context.Context, cfg *config.Config, deps Deps) error {
	d, err := New(cfg, deps)
	if err != nil {
		deps.Log.Error("%v", err)
		return err
	}
	if cfg.Debug {
		_, err := d.Once(ctx)
		return err
	}
	return d.Serve(ctx)
}

// Once runs exactly one cycle under the destination lock. A cycle cut short
// by ctx is reported in Cycle.Err but is not an error, as in Serve.
func (d *Daemon) Once(ctx context.Context) (worker.Cycle, error) {
	if err := d.acquire(); err != nil {
		return worker.Cycle{}, err
	}
	defer d.release()

	c, err := d.worker.RunCycle(ctx)
	if err != nil && ctx.Err() != nil {
		d.log.Warn("cycle interrupted by shutdown")
		return c, nil
	}
	return c, err
}

// newScheduler builds the cron loop for plan. POOLING_TIME is wall-clock
// local time; utc_names only affects snapshot names.
func (d *Daemon) newScheduler(plan scheduler.Plan) *scheduler.Scheduler {
	return scheduler.New(plan, d.log, scheduler.WithLocation(time.Local))
}

// Serve resolves the schedule and runs the scheduler, the worker loop and,
// when configured, the metrics server and the config watcher.
func (d *Daemon) Serve(ctx context.Context) error {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	plan, err := scheduler.Resolve(cfg.Schedule)
	if err != nil {
		d.log.Error("%v", err)
		return err
	}

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()

	g, gctx := errgroup.WithContext(ctx)

	jobs := mailbox.New[worker.Job]()
	sched := d.newScheduler(plan)
	sched.Start(func(at time.Time) {
		if jobs.Put(worker.Job{At: at, Reason: "schedule"}) {
			d.log.Warn("previous trigger still pending, runs coalesced")
		}
	})
	defer func() { <-sched.Stop().Done() }()
	d.log.Debug("next run at %s", sched.Next().Format(time.RFC3339))

	g.Go(func() error {
		return d.worker.Start(gctx, jobs)
	})

	if d.metrics != nil && cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return d.metrics.Serve(gctx, cfg.Metrics.Addr, d.log)
		})
	}

	if d.deps.Loader != nil {
		changes := mailbox.New[watcher.Change]()
		if cfg.Reload.Enabled && d.deps.Loader.File() != "" {
			w := watcher.New(d.deps.Loader.File(), cfg.Reload, d.log, changes)
			g.Go(func() error {
				return w.Start(gctx)
			})
		}
		if d.deps.Hangup != nil {
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-d.deps.Hangup:
						changes.Put(watcher.Change{At: time.Now()})
					}
				}
			})
		}
		g.Go(func() error {
			d.reloadLoop(gctx, changes)
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		d.log.Error("%v", err)
	}
	return err
}

// reloadLoop applies reload requests one at a time. A Change without a path
// comes from SIGHUP.
func (d *Daemon) reloadLoop(ctx context.Context, changes *mailbox.Mailbox[watcher.Change]) {
	for {
		ch, err := changes.Take(ctx)
		if err != nil {
			return
		}
		if ch.Path == "" {
			d.log.Info("SIGHUP received, reloading configuration")
		} else {
			d.log.Info("%s changed, reloading configuration", ch.Path)
		}
		if err := d.Reload(); err != nil {
			d.log.Error("reload failed, keeping current configuration: %v", err)
		}
	}
}

// Reload reads the configuration again and applies sources, destination and
// retention to the following cycles. Schedule and mirror changes are only
// reported; they need a restart.
func (d *Daemon) Reload() error {
	if d.deps.Loader == nil {
		return nil
	}
	next, err := d.deps.Loader.Load()
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.cfg

	if next.Schedule != prev.Schedule {
		d.log.Warn("schedule change ignored until restart")
	}
	if !reflect.DeepEqual(next.Mirror, prev.Mirror) || next.UTCNames != prev.UTCNames ||
		next.Retention.OnlySnapshots != prev.Retention.OnlySnapshots {
		d.log.Warn("mirror and naming changes ignored until restart")
	}

	if next.DestinationPath != prev.DestinationPath {
		if err := fsprobe.Destination(next.DestinationPath); err != nil {
			return err
		}
		if d.lock != nil {
			l, err := lockfile.Acquire(next.DestinationPath)
			if err != nil {
				return err
			}
			_ = d.lock.Close()
			d.lock = l
		}
		d.log.Info("DESTINATION_PATH: %s", next.DestinationPath)
	}

	if next.Log.Level != prev.Log.Level {
		if lv, ok := d.log.(levelSetter); ok {
			if err := lv.SetLevel(next.Log.Level); err != nil {
				return err
			}
		}
	}

	d.worker.UpdateConfig(worker.SettingsFrom(next))
	d.cfg = next
	d.log.Info("configuration reloaded")
	return nil
}

func (d *Daemon) acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := fsprobe.Destination(d.cfg.DestinationPath); err != nil {
		d.log.Error("%v", err)
		return err
	}
	l, err := lockfile.Acquire(d.cfg.DestinationPath)
	if err != nil {
		d.log.Error("%v", err)
		return err
	}
	d.lock = l
	return nil
}

func (d *Daemon) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lock != nil {
		_ = d.lock.Close()
		d.lock = nil
	}
}
