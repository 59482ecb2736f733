// Package store define el contrato Repository que consumen los
// engines. Los adapters (pg, memory) implementan estas interfaces; los
// errores se mapean siempre a la taxonomía de domain (ErrNotFound,
// ErrConflict) para que los services no conozcan drivers.
package store

import (
	"context"
	"time"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/pagination"
)

// Repository agrega los repositorios por entidad.
type Repository interface {
	Ping(ctx context.Context) error

	// Atomically ejecuta fn contra una vista serializable del
	// repositorio. Los chequeos read-count-then-write (invariante del
	// último admin) DEBEN correr acá dentro: dos remociones
	// concurrentes que observan "quedan 2" no pueden ambas commitear.
	Atomically(ctx context.Context, fn func(Repository) error) error

	Tenants() TenantRepo
	Principals() PrincipalRepo
	Challenges() ChallengeRepo
	Sessions() SessionRepo
	Tokens() TokenRepo
	Domains() DomainRepo
}

// TenantRepo persiste tenants.
type TenantRepo interface {
	Create(ctx context.Context, t *domain.Tenant) error
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
}

// PrincipalRepo persiste cuentas. El email es único (case-insensitive)
// dentro del tenant; Create retorna ErrConflict si ya existe.
type PrincipalRepo interface {
	Create(ctx context.Context, p *domain.Principal) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*domain.Principal, error)
	UpdateStatus(ctx context.Context, id string, st domain.PrincipalStatus) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	AddRole(ctx context.Context, id string, r domain.Role) error
	RemoveRole(ctx context.Context, id string, r domain.Role) error

	// CountOtherActiveWithRole cuenta los principals activos del tenant
	// que tienen el rol, excluyendo excludeID. Es la lectura del
	// invariante "último admin": debe ejecutarse bajo Atomically.
	CountOtherActiveWithRole(ctx context.Context, tenantID, excludeID string, r domain.Role) (int, error)

	// List retorna hasta limit principals del tenant estrictamente
	// después del cursor, en orden (email, id).
	List(ctx context.Context, tenantID string, after pagination.Cursor, limit int) ([]domain.Principal, error)
}

// ChallengeRepo persiste desafíos TFA. Son reintentables: nada acá los
// consume; expiran solos y el sweep los barre.
type ChallengeRepo interface {
	Create(ctx context.Context, c *domain.TFAChallenge) error
	GetByTokenHash(ctx context.Context, hash string) (*domain.TFAChallenge, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// SessionRepo persiste sesiones.
type SessionRepo interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByTokenHash(ctx context.Context, hash string) (*domain.Session, error)

	// Revoke marca la sesión revocada. ErrConflict si ya lo estaba.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllForPrincipal revoca todas las sesiones vivas del
	// principal salvo exceptID (vacío = todas). Retorna los token
	// hashes revocados para que el caller pueda evictar su cache.
	RevokeAllForPrincipal(ctx context.Context, principalID, exceptID string, at time.Time) ([]string, error)

	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// TokenRepo persiste single-use tokens.
type TokenRepo interface {
	Create(ctx context.Context, t *domain.SingleUseToken) error
	GetBySecretHash(ctx context.Context, hash string) (*domain.SingleUseToken, error)

	// Consume marca el token consumido. Exactamente un Consume puede
	// tener éxito por token: el segundo retorna ErrConflict aunque el
	// token no haya expirado.
	Consume(ctx context.Context, id string, at time.Time) error

	// PendingSignupForDomain retorna el signup token no consumido y no
	// expirado para el dominio, si existe.
	PendingSignupForDomain(ctx context.Context, domainName string, now time.Time) (*domain.SingleUseToken, error)

	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// DomainRepo persiste reclamaciones de dominio. El nombre es único
// globalmente (entre tenants) mientras la reclamación viva.
type DomainRepo interface {
	Create(ctx context.Context, c *domain.DomainClaim) error
	Delete(ctx context.Context, id string) error

	// GetByName busca sin filtrar por tenant: sólo para el chequeo de
	// unicidad global. Nunca exponer su resultado a un caller.
	GetByName(ctx context.Context, domainName string) (*domain.DomainClaim, error)

	// GetForTenant retorna ErrNotFound si el dominio no existe o si el
	// dueño es otro tenant: la no-propiedad es indistinguible de la
	// inexistencia.
	GetForTenant(ctx context.Context, tenantID, domainName string) (*domain.DomainClaim, error)

	MarkVerified(ctx context.Context, id string, at time.Time) error

	// List retorna hasta limit claims del tenant estrictamente después
	// del cursor, en orden (domain, id).
	List(ctx context.Context, tenantID string, after pagination.Cursor, limit int) ([]domain.DomainClaim, error)

	DeleteExpiredPending(ctx context.Context, before time.Time) (int, error)
}
