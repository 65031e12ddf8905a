package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the receive address lifecycle.
type Metrics struct {
	AddressesGenerated prometheus.Counter
	Transitions        *prometheus.CounterVec
	DepositsRejected   *prometheus.CounterVec
	AddressesExpired   *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
}

// New registers the lifecycle metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AddressesGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "discard_stealth_addresses_generated_total",
			Help: "Total number of receive addresses generated",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_stealth_address_transitions_total",
			Help: "Lifecycle transitions by target status",
		}, []string{"status"}),
		DepositsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_stealth_deposits_rejected_total",
			Help: "Rejected deposit observations by reason",
		}, []string{"reason"}),
		AddressesExpired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_stealth_addresses_expired_total",
			Help: "Addresses expired, by path (sweep or deposit)",
		}, []string{"path"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_stealth_cache_lookups_total",
			Help: "Address resolution cache lookups by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncGenerated() {
	m.AddressesGenerated.Inc()
}

func (m *Metrics) IncTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDepositRejected(reason string) {
	m.DepositsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddExpired(path string, n int) {
	m.AddressesExpired.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) IncCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}
