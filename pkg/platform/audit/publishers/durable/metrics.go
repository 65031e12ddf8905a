package durable

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Written       *prometheus.CounterVec
	WriteFailures *prometheus.CounterVec
	WriteDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Written: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_audit_events_written_total",
			Help: "Audit events persisted, by category",
		}, []string{"category"}),
		WriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_audit_write_failures_total",
			Help: "Audit events that failed to persist, by category",
		}, []string{"category"}),
		WriteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "discard_audit_write_duration_seconds",
			Help:    "Latency of synchronous audit writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) observe(category string, seconds float64, err error) {
	m.WriteDuration.Observe(seconds)
	if err != nil {
		m.WriteFailures.WithLabelValues(category).Inc()
		return
	}
	m.Written.WithLabelValues(category).Inc()
}
