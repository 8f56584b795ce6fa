package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process-level Prometheus metrics. Bounded contexts register
// their own metrics in their metrics packages.
type Metrics struct {
	ScheduledRuns     *prometheus.CounterVec
	ScheduledFailures *prometheus.CounterVec
	BuildInfo         *prometheus.GaugeVec
}

// New creates and registers process metrics.
func New() *Metrics {
	return &Metrics{
		ScheduledRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_scheduled_runs_total",
			Help: "Scheduled job executions by job",
		}, []string{"job"}),
		ScheduledFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_scheduled_failures_total",
			Help: "Scheduled job failures by job",
		}, []string{"job"}),
		BuildInfo: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollguard_build_info",
			Help: "Build information",
		}, []string{"version"}),
	}
}

func (m *Metrics) IncScheduledRun(job string) {
	if m == nil {
		return
	}
	m.ScheduledRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncScheduledFailure(job string) {
	if m == nil {
		return
	}
	m.ScheduledFailures.WithLabelValues(job).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
