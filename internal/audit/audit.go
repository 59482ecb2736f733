// Package audit emite eventos de auditoría como registros estructurados.
// Hoy el sink es el logger; el día que haga falta un almacén dedicado,
// este es el único punto a tocar.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/vetchium/idcore/internal/observability/logger"
)

// Eventos administrativos que quedan en el trail.
const (
	EventRoleAssigned    = "role_assigned"
	EventRoleRemoved     = "role_removed"
	EventAccountDisabled = "account_disabled"
	EventAccountEnabled  = "account_enabled"
	EventPasswordChanged = "password_changed"
	EventPasswordReset   = "password_reset"
	EventDomainVerified  = "domain_verified"
)

// Log registra un evento de auditoría con actor y target.
func Log(ctx context.Context, event, actorID, targetID string, fields ...zap.Field) {
	base := []zap.Field{
		logger.Layer("audit"),
		logger.String("event", event),
		logger.String("actor_id", actorID),
		logger.String("target_id", targetID),
	}
	logger.From(ctx).Info("audit", append(base, fields...)...)
}
