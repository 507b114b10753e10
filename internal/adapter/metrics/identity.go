package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdentityMetrics counts account events.
type IdentityMetrics struct {
	SignIns        *prometheus.CounterVec
	Registrations  prometheus.Counter
	Confirmations  prometheus.Counter
	PasswordResets prometheus.Counter
}

// NewIdentityMetrics creates and registers identity metrics on the given registry.
func NewIdentityMetrics(reg prometheus.Registerer) *IdentityMetrics {
	m := &IdentityMetrics{
		SignIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "sign_ins_total",
			Help:      "Total number of password sign-in attempts, by result.",
		}, []string{"result"}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "registrations_total",
			Help:      "Total number of accounts registered.",
		}),
		Confirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "email_confirmations_total",
			Help:      "Total number of confirmed email addresses.",
		}),
		PasswordResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "password_resets_total",
			Help:      "Total number of completed password resets.",
		}),
	}

	reg.MustRegister(m.SignIns, m.Registrations, m.Confirmations, m.PasswordResets)
	return m
}
