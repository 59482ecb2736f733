// Package metrics define los contadores Prometheus del core.
// Paquete standalone para evitar ciclos de import entre services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idcore_logins_total",
		Help: "Intentos de login por resultado (ok, invalid_credentials, disabled)",
	}, []string{"result"})

	TFAVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idcore_tfa_verifications_total",
		Help: "Verificaciones TFA por resultado (ok, wrong_code, expired)",
	}, []string{"result"})

	SessionsRevokedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idcore_sessions_revoked_total",
		Help: "Sesiones revocadas por causa (logout, password_change, password_reset)",
	}, []string{"reason"})

	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idcore_tokens_issued_total",
		Help: "Single-use tokens emitidos por purpose",
	}, []string{"purpose"})

	TokensConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idcore_tokens_consumed_total",
		Help: "Single-use tokens consumidos por purpose",
	}, []string{"purpose"})

	DomainVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idcore_domain_verifications_total",
		Help: "Chequeos de dominio por resultado (verified, pending, resolver_error)",
	}, []string{"result"})
)

// Register registra los contadores en el registry dado (default si nil).
// Tolera doble registro para no romper tests que arman varios engines.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		LoginsTotal,
		TFAVerificationsTotal,
		SessionsRevokedTotal,
		TokensIssuedTotal,
		TokensConsumedTotal,
		DomainVerificationsTotal,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
