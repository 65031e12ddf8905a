package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the shielding coordinator. Amounts are
// never recorded.
type Metrics struct {
	ShieldsStarted   prometheus.Counter
	ShieldsConfirmed prometheus.Counter
	ShieldRejections *prometheus.CounterVec
	CASRetries       prometheus.Counter
	ShieldDuration   prometheus.Histogram
}

// New registers the shielding metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ShieldsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "discard_shielding_started_total",
			Help: "Deposits credited to the pool and moved to shielding",
		}),
		ShieldsConfirmed: f.NewCounter(prometheus.CounterOpts{
			Name: "discard_shielding_confirmed_total",
			Help: "Shield transactions confirmed",
		}),
		ShieldRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_shielding_rejections_total",
			Help: "Rejected shield requests by reason",
		}, []string{"reason"}),
		CASRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "discard_shielding_pool_cas_retries_total",
			Help: "Pool balance updates retried after a version conflict",
		}),
		ShieldDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "discard_shielding_duration_seconds",
			Help:    "Time to shield one deposit",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncStarted() {
	m.ShieldsStarted.Inc()
}

func (m *Metrics) IncConfirmed() {
	m.ShieldsConfirmed.Inc()
}

func (m *Metrics) IncRejected(reason string) {
	m.ShieldRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncCASRetry() {
	m.CASRetries.Inc()
}

func (m *Metrics) ObserveShield(seconds float64) {
	m.ShieldDuration.Observe(seconds)
}
