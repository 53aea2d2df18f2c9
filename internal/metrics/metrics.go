// Package metrics exposes snapmirror cycle, mirror and retention metrics in
// Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raoulx24/snapmirror/internal/logging"
)

const namespace = "snapmirror"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Registry holds all snapmirror metrics on a private prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	MirrorRunsTotal   *prometheus.CounterVec
	SnapshotsPruned   prometheus.Counter
	SnapshotsRetained prometheus.Gauge
	LastSuccess       prometheus.Gauge
}

// NewRegistry creates the metrics and registers them together with the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Backup cycles run, by result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a backup cycle, mirroring and pruning included.",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}),
		MirrorRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_runs_total",
			Help:      "Mirror command invocations, by result.",
		}, []string{"result"}),
		SnapshotsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_pruned_total",
			Help:      "Snapshot directories removed by retention.",
		}),
		SnapshotsRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshots_retained",
			Help:      "Snapshot directories left after the last prune.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.CyclesTotal,
		r.CycleDuration,
		r.MirrorRunsTotal,
		r.SnapshotsPruned,
		r.SnapshotsRetained,
		r.LastSuccess,
	)
	return r
}

// CycleFinished records one cycle. finishedAt feeds the last-success gauge.
func (r *Registry) CycleFinished(ok bool, d time.Duration, finishedAt time.Time) {
	result := ResultFailure
	if ok {
		result = ResultSuccess
		r.LastSuccess.Set(float64(finishedAt.Unix()))
	}
	r.CyclesTotal.WithLabelValues(result).Inc()
	r.CycleDuration.Observe(d.Seconds())
}

// MirrorRun records one mirror invocation.
func (r *Registry) MirrorRun(ok bool) {
	if ok {
		r.MirrorRunsTotal.WithLabelValues(ResultSuccess).Inc()
		return
	}
	r.MirrorRunsTotal.WithLabelValues(ResultFailure).Inc()
}

// Pruned records a prune that removed n snapshots and left retained.
func (r *Registry) Pruned(n, retained int) {
	r.SnapshotsPruned.Add(float64(n))
	r.SnapshotsRetained.Set(float64(retained))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string, log logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "metrics server on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "stopping metrics server")
		}
		return nil
	}
}
