package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the hash-chain ledger.
type Metrics struct {
	AppendsTotal   *prometheus.CounterVec
	AppendFailures *prometheus.CounterVec
	AppendLatency  *prometheus.HistogramVec
	VerifyRuns     *prometheus.CounterVec
	ChainValid     *prometheus.GaugeVec
	ChainLength    *prometheus.GaugeVec
}

// New creates and registers ledger metrics.
func New() *Metrics {
	return &Metrics{
		AppendsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_ledger_appends_total",
			Help: "Total number of blocks appended per chain",
		}, []string{"chain"}),
		AppendFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_ledger_append_failures_total",
			Help: "Total number of failed block appends per chain",
		}, []string{"chain"}),
		AppendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollguard_ledger_append_duration_seconds",
			Help:    "Time to append one block, including the single-writer wait",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"chain"}),
		VerifyRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollguard_ledger_verify_runs_total",
			Help: "Chain verifications by outcome",
		}, []string{"chain", "result"}),
		ChainValid: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollguard_ledger_chain_valid",
			Help: "1 if the last verification of the chain passed, 0 otherwise",
		}, []string{"chain"}),
		ChainLength: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollguard_ledger_chain_length",
			Help: "Number of blocks seen by the last verification",
		}, []string{"chain"}),
	}
}

// ObserveAppend records a successful append.
func (m *Metrics) ObserveAppend(chain string, seconds float64) {
	if m == nil {
		return
	}
	m.AppendsTotal.WithLabelValues(chain).Inc()
	m.AppendLatency.WithLabelValues(chain).Observe(seconds)
}

// IncAppendFailure records a failed append.
func (m *Metrics) IncAppendFailure(chain string) {
	if m == nil {
		return
	}
	m.AppendFailures.WithLabelValues(chain).Inc()
}

// ObserveVerify records a verification outcome.
func (m *Metrics) ObserveVerify(chain string, valid bool, blocks int64) {
	if m == nil {
		return
	}
	result, gauge := "invalid", 0.0
	if valid {
		result, gauge = "valid", 1.0
	}
	m.VerifyRuns.WithLabelValues(chain, result).Inc()
	m.ChainValid.WithLabelValues(chain).Set(gauge)
	m.ChainLength.WithLabelValues(chain).Set(float64(blocks))
}
