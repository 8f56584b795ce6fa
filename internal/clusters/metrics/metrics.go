package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for address cluster detection.
type Metrics struct {
	RunsTotal       prometheus.Counter
	RunDuration     prometheus.Histogram
	ClustersFlagged *prometheus.CounterVec
	Reviews         *prometheus.CounterVec
}

// New creates and registers cluster metrics.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollguard_clusters_runs_total",
			Help: "Address cluster detection runs",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollguard_clusters_run_duration_seconds",
			Help:    "Wall time of cluster detection runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		ClustersFlagged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_clusters_flagged_total",
			Help: "Cluster flags created or refreshed, by risk level",
		}, []string{"risk_level"}),
		Reviews: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_clusters_reviews_total",
			Help: "Cluster review actions by resulting status",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveRun(seconds float64) {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
	m.RunDuration.Observe(seconds)
}

func (m *Metrics) IncFlagged(level string) {
	if m == nil {
		return
	}
	m.ClustersFlagged.WithLabelValues(level).Inc()
}

func (m *Metrics) IncReview(status string) {
	if m == nil {
		return
	}
	m.Reviews.WithLabelValues(status).Inc()
}
