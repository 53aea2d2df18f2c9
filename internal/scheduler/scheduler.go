// Package scheduler turns the schedule configuration into a cron job that
// fires triggers for the worker.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/raoulx24/snapmirror/internal/config"
	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/logging"
)

type Mode int

const (
	// ModeInterval fires every Interval, counted from registration.
	ModeInterval Mode = iota + 1
	// ModeDaily fires once a day at Hour:Minute.
	ModeDaily
)

// Plan is a resolved schedule.
type Plan struct {
	Mode     Mode
	Interval time.Duration
	Hour     int
	Minute   int
	Schedule cron.Schedule
}

func (p Plan) String() string {
	switch p.Mode {
	case ModeInterval:
		return fmt.Sprintf("each %s", p.Interval)
	case ModeDaily:
		return fmt.Sprintf("daily at %02d:%02d", p.Hour, p.Minute)
	default:
		return "unscheduled"
	}
}

// Every returns an interval plan. Intervals below one second are rounded
// up by cron.
func Every(d time.Duration) Plan {
	return Plan{Mode: ModeInterval, Interval: d, Schedule: cron.Every(d)}
}

// Daily returns a plan firing at hour:minute in the scheduler's location.
func Daily(hour, minute int) (Plan, error) {
	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return Plan{}, errors.Wrap(err, "building daily schedule")
	}
	return Plan{Mode: ModeDaily, Hour: hour, Minute: minute, Schedule: sched}, nil
}

// Resolve checks that exactly one schedule form is set and builds its plan.
func Resolve(s config.ScheduleConfig) (Plan, error) {
	hasInterval := s.IntervalMinutes != 0
	hasTime := strings.TrimSpace(s.Time) != ""

	if hasInterval == hasTime {
		return Plan{}, snaperrors.MarkConfig(errors.New(
			"Only 1 POOLING config should be set (POOLING_INTERVAL_IN_MINUTES or POOLING_TIME)"))
	}

	if hasInterval {
		if s.IntervalMinutes < 0 {
			return Plan{}, snaperrors.MarkConfig(errors.Newf(
				"POOLING_INTERVAL_IN_MINUTES must be positive, got %d", s.IntervalMinutes))
		}
		return Every(time.Duration(s.IntervalMinutes) * time.Minute), nil
	}

	t, err := time.Parse("15:04", strings.TrimSpace(s.Time))
	if err != nil {
		return Plan{}, snaperrors.MarkConfig(errors.Newf("POOLING_TIME %q is not HH:MM", s.Time))
	}
	p, err := Daily(t.Hour(), t.Minute())
	return p, snaperrors.MarkConfig(err)
}

// Scheduler runs one cron job for a Plan.
type Scheduler struct {
	plan Plan
	cron *cron.Cron
	log  logging.Logger
	loc  *time.Location
}

type Option func(*Scheduler)

// WithLocation evaluates daily plans in loc instead of local time.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(plan Plan, log logging.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{plan: plan, log: log, loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log}),
	)
	return s
}

// Plan returns the plan the scheduler runs.
func (s *Scheduler) Plan() Plan {
	return s.plan
}

// Start registers fire and starts the cron loop. fire runs on the cron
// goroutine and must not block.
func (s *Scheduler) Start(fire func(at time.Time)) {
	switch s.plan.Mode {
	case ModeInterval:
		s.log.Info("Scheduling Task to run each %d minutes", int(s.plan.Interval/time.Minute))
	case ModeDaily:
		s.log.Info("Scheduling Task at %02d:%02d", s.plan.Hour, s.plan.Minute)
	}

	s.cron.Schedule(s.plan.Schedule, cron.FuncJob(func() {
		fire(time.Now().In(s.loc))
	}))
	s.cron.Start()
}

// Location is the zone daily plans are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Next returns when the job fires next, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops the cron loop. The returned context is done once a running
// fire callback has returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger routes cron's own logging into the log sink. Its per-tick
// messages go to debug.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: %s%s", msg, formatKV(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: %s: %v%s", msg, err, formatKV(keysAndValues))
}

func formatKV(kv []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
