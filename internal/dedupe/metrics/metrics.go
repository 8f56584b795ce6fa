package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for duplicate detection.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	Comparisons     prometheus.Counter
	FlagsRaised     prometheus.Counter
	SkippedRecords  prometheus.Counter
	Resolutions     *prometheus.CounterVec
	PublishFailures prometheus.Counter
}

// New creates and registers dedupe metrics.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_dedupe_runs_total",
			Help: "Detection runs by outcome",
		}, []string{"outcome", "dry_run"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollguard_dedupe_run_duration_seconds",
			Help:    "Wall time of detection runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		Comparisons: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollguard_dedupe_comparisons_total",
			Help: "Record pairs scored",
		}),
		FlagsRaised: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollguard_dedupe_flags_raised_total",
			Help: "Duplicate flags persisted",
		}),
		SkippedRecords: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollguard_dedupe_skipped_records_total",
			Help: "Malformed records skipped during detection",
		}),
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_dedupe_resolutions_total",
			Help: "Flag resolutions by action",
		}, []string{"action"}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollguard_dedupe_publish_failures_total",
			Help: "Flag events that could not be published",
		}),
	}
}

func (m *Metrics) ObserveRun(outcome string, dryRun bool, seconds float64, comparisons int64, skipped int) {
	if m == nil {
		return
	}
	dry := "false"
	if dryRun {
		dry = "true"
	}
	m.RunsTotal.WithLabelValues(outcome, dry).Inc()
	m.RunDuration.Observe(seconds)
	m.Comparisons.Add(float64(comparisons))
	m.SkippedRecords.Add(float64(skipped))
}

func (m *Metrics) AddFlagsRaised(n int) {
	if m == nil {
		return
	}
	m.FlagsRaised.Add(float64(n))
}

func (m *Metrics) IncResolution(action string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(action).Inc()
}

func (m *Metrics) IncPublishFailure() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}
