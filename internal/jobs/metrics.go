package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	duplicates *prometheus.GaugeVec
	cleaned    prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetDuplicateNumbers records how many invoice numbers of a branch are shared
// by more than one invoice. An empty branch is reported as "unknown".
func (m *Metrics) SetDuplicateNumbers(branch string, count int) {
	if m == nil {
		return
	}
	if branch == "" {
		branch = "unknown"
	}
	m.duplicates.WithLabelValues(branch).Set(float64(count))
}

// ReplaceDuplicateNumbers publishes the result of a scan over every branch.
// Series of branches missing from counts are dropped so a cleaned branch
// stops reporting duplicates.
func (m *Metrics) ReplaceDuplicateNumbers(counts map[string]int) {
	if m == nil {
		return
	}
	m.duplicates.Reset()
	for branch, count := range counts {
		m.SetDuplicateNumbers(branch, count)
	}
}

// AddCleanedKeys counts idempotency keys removed by the cleanup job.
func (m *Metrics) AddCleanedKeys(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.cleaned.Add(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	duplicates := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_invoice_duplicate_numbers",
		Help: "Invoice numbers carried by more than one invoice, per branch.",
	}, []string{"branch"})
	cleaned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_idempotency_keys_cleaned_total",
		Help: "Idempotency keys removed after their retention window.",
	})
	registerer.MustRegister(runs, failures, duration, duplicates, cleaned)
	return &Metrics{runs: runs, failures: failures, duration: duration, duplicates: duplicates, cleaned: cleaned}
}
