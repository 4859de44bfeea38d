// Package metrics exposes Prometheus counters/histograms for the FMM
// pass schedule: per-pass call counts and durations, grouped by tree
// level, in the promauto-registered CounterVec/HistogramVec/GaugeVec
// shape the platform's HTTP monitoring middleware uses for request
// metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects per-run timing and call-count metrics. Registered
// against a caller-supplied prometheus.Registerer so a CLI run and a
// long-lived benchmark server can each control their own registry.
type Recorder struct {
	passDuration *prometheus.HistogramVec
	passCalls    *prometheus.CounterVec
	activeRuns   prometheus.Gauge
}

// NewRecorder registers the FMM metrics against reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		passDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fmm_pass_duration_seconds",
			Help:    "Wall-clock time spent in one FMM pass at one tree level.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pass", "level"}),
		passCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fmm_pass_calls_total",
			Help: "Number of operator invocations performed by a pass.",
		}, []string{"pass"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fmm_active_runs",
			Help: "Number of engine Run calls currently executing.",
		}),
	}
}

// Observe records one pass's duration at the given level (level -1 for
// passes that are not level-scoped, e.g. the whole direct pass).
func (r *Recorder) Observe(pass string, level int, d time.Duration) {
	r.passDuration.WithLabelValues(pass, strconv.Itoa(level)).Observe(d.Seconds())
}

// AddCalls increments the call counter for pass by n.
func (r *Recorder) AddCalls(pass string, n int) {
	r.passCalls.WithLabelValues(pass).Add(float64(n))
}

// Track wraps one engine Run call: increments/decrements the active-runs
// gauge around fn.
func (r *Recorder) Track(fn func() error) error {
	r.activeRuns.Inc()
	defer r.activeRuns.Dec()
	return fn()
}

// Timer returns a function that, when called, records the elapsed time
// since Timer was called as one Observe for pass/level.
func (r *Recorder) Timer(pass string, level int) func() {
	start := time.Now()
	return func() {
		r.Observe(pass, level, time.Since(start))
	}
}
