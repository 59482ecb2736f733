package logger

import (
	"go.uber.org/zap"

	"github.com/vetchium/idcore/internal/util"
)

// Campos estándar de negocio. Mantener los nombres snake_case estables:
// los dashboards filtran por ellos.

// TenantID crea un campo para el ID del tenant.
func TenantID(v string) zap.Field {
	return zap.String("tenant_id", v)
}

// PrincipalID crea un campo para el ID del principal.
func PrincipalID(v string) zap.Field {
	return zap.String("principal_id", v)
}

// Email crea un campo para el email, siempre enmascarado.
func Email(v string) zap.Field {
	return zap.String("email", util.MaskEmail(v))
}

// Domain crea un campo para un nombre de dominio reclamado.
func Domain(v string) zap.Field {
	return zap.String("domain", v)
}

// Purpose crea un campo para el purpose de un token.
func Purpose(v string) zap.Field {
	return zap.String("purpose", v)
}

// Role crea un campo para un rol.
func Role(v string) zap.Field {
	return zap.String("role", v)
}

// Campos estándar de sistema.

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (service, store, cmd).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Campos genéricos.

// ID crea un campo genérico para un ID.
func ID(v string) zap.Field {
	return zap.String("id", v)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
