package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance proof store.
type Metrics struct {
	ProofsStored      *prometheus.CounterVec
	ProofsUsed        prometheus.Counter
	ProofsRevoked     prometheus.Counter
	ProofsExpired     *prometheus.CounterVec
	ConsumeRejections *prometheus.CounterVec
}

// New registers the compliance metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProofsStored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_compliance_proofs_stored_total",
			Help: "Total number of compliance proofs stored, by verdict and risk level",
		}, []string{"compliant", "risk_level"}),
		ProofsUsed: f.NewCounter(prometheus.CounterOpts{
			Name: "discard_compliance_proofs_used_total",
			Help: "Total number of compliance proofs consumed",
		}),
		ProofsRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "discard_compliance_proofs_revoked_total",
			Help: "Total number of compliance proofs revoked",
		}),
		ProofsExpired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_compliance_proofs_expired_total",
			Help: "Total number of compliance proofs expired, by path (sweep or consumption)",
		}, []string{"path"}),
		ConsumeRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discard_compliance_proof_consume_rejections_total",
			Help: "Rejected proof consumptions by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncStored(compliant bool, riskLevel string) {
	label := "false"
	if compliant {
		label = "true"
	}
	m.ProofsStored.WithLabelValues(label, riskLevel).Inc()
}

func (m *Metrics) IncUsed() {
	m.ProofsUsed.Inc()
}

func (m *Metrics) IncRevoked() {
	m.ProofsRevoked.Inc()
}

func (m *Metrics) AddExpired(path string, n int) {
	m.ProofsExpired.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) IncConsumeRejected(reason string) {
	m.ConsumeRejections.WithLabelValues(reason).Inc()
}
