package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flow_login_attempts_total",
		Help: "Intentos de login por resultado (success | invalid_credentials | mfa_required | error)",
	}, []string{"outcome"})

	MFAVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flow_mfa_verifications_total",
		Help: "Verificaciones MFA por método y resultado",
	}, []string{"method", "outcome"})

	InteractionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flow_interactions_active",
		Help: "Interactions pendientes en el session store",
	})
)

// RegisterFlow registra las métricas del flow de interacciones en el registry
// recibido (o en el default si es nil).
func RegisterFlow(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{LoginAttempts, MFAVerifications, InteractionsActive} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
