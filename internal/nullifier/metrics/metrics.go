package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the nullifier registry.
type Metrics struct {
	Consumed        *prometheus.CounterVec
	ReplaysRejected *prometheus.CounterVec
	Expired         prometheus.Counter
	Deleted         prometheus.Counter
	MarkUsedLatency prometheus.Histogram
}

// New registers the nullifier metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Consumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_nullifiers_consumed_total",
			Help: "Total number of nullifiers consumed, by proof type",
		}, []string{"proof_type"}),
		ReplaysRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_nullifier_replays_rejected_total",
			Help: "Total number of rejected nullifier replays, by proof type",
		}, []string{"proof_type"}),
		Expired: f.NewCounter(prometheus.CounterOpts{
			Name: "discard_nullifiers_expired_total",
			Help: "Total number of nullifiers moved to expired by sweeps",
		}),
		Deleted: f.NewCounter(prometheus.CounterOpts{
			Name: "discard_nullifiers_deleted_total",
			Help: "Total number of expired nullifiers removed by retention cleanup",
		}),
		MarkUsedLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "discard_nullifier_mark_used_duration_seconds",
			Help:    "Duration of MarkUsed operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncConsumed(proofType string) {
	m.Consumed.WithLabelValues(proofType).Inc()
}

func (m *Metrics) IncReplay(proofType string) {
	m.ReplaysRejected.WithLabelValues(proofType).Inc()
}

func (m *Metrics) AddExpired(n int) {
	m.Expired.Add(float64(n))
}

func (m *Metrics) AddDeleted(n int) {
	m.Deleted.Add(float64(n))
}

// ObserveMarkUsed records the duration of a MarkUsed call started at start.
func (m *Metrics) ObserveMarkUsed(start time.Time) {
	m.MarkUsedLatency.Observe(time.Since(start).Seconds())
}
