package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records sweep runs per step.
type Metrics struct {
	Swept        *prometheus.CounterVec
	StepFailures *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Swept: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_sweeper_records_total",
			Help: "Records expired or removed by the sweeper, by step",
		}, []string{"step"}),
		StepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_sweeper_step_failures_total",
			Help: "Failed sweep steps",
		}, []string{"step"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "discard_sweeper_step_duration_seconds",
			Help:    "Duration of each sweep step",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
	}
}

func (m *Metrics) ObserveStep(step string, swept int, seconds float64, failed bool) {
	m.StepDuration.WithLabelValues(step).Observe(seconds)
	if failed {
		m.StepFailures.WithLabelValues(step).Inc()
		return
	}
	m.Swept.WithLabelValues(step).Add(float64(swept))
}
