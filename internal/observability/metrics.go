// Package observability exposes prometheus instrumentation for the
// credit engine.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics captures engine health signals.
type Metrics struct {
	opsTotal       *prometheus.CounterVec
	opDuration     *prometheus.HistogramVec
	casConflicts   prometheus.Counter
	contention     prometheus.Counter
	expiredCredits prometheus.Counter
}

// NewMetrics registers collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_operations_total",
			Help: "Credit engine operations by operation and result.",
		}, []string{"operation", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credit_operation_duration_seconds",
			Help:    "Credit engine operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		casConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credit_cas_conflicts_total",
			Help: "Conditional balance writes that lost the version race.",
		}),
		contention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credit_contention_total",
			Help: "Operations that exhausted their conditional-write retries.",
		}),
		expiredCredits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credit_expired_total",
			Help: "Credits removed by expiration runs.",
		}),
	}
	reg.MustRegister(m.opsTotal, m.opDuration, m.casConflicts, m.contention, m.expiredCredits)
	return m
}

func (m *Metrics) ObserveOperation(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.opsTotal.WithLabelValues(operation, result).Inc()
	m.opDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) IncCASConflict() {
	if m == nil {
		return
	}
	m.casConflicts.Inc()
}

func (m *Metrics) IncContention() {
	if m == nil {
		return
	}
	m.contention.Inc()
}

func (m *Metrics) AddExpiredCredits(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.expiredCredits.Add(float64(amount))
}

func newDefault() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// Module provides engine metrics on the default registry.
var Module = fx.Module("observability",
	fx.Provide(newDefault),
)
