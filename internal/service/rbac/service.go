// Package rbac implementa asignación de roles y toggles de estado con
// los invariantes de integridad del tenant ("último admin").
package rbac

import (
	"context"
	"fmt"

	"github.com/vetchium/idcore/internal/audit"
	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/observability/logger"
	"github.com/vetchium/idcore/internal/store"
)

// Deps contiene las dependencias del engine.
type Deps struct {
	Repo store.Repository
}

// Engine implementa las operaciones RBAC.
type Engine struct {
	repo store.Repository
}

// New crea el engine.
func New(deps Deps) *Engine {
	return &Engine{repo: deps.Repo}
}

// Errores del engine.
var (
	ErrInvalidRole = fmt.Errorf("unknown role for tenant type: %w", domain.ErrInvalidInput)
	// ErrLastAdmin protege el invariante: un tenant nunca queda sin
	// cuenta administrativa activa.
	ErrLastAdmin = fmt.Errorf("tenant would lose its last administrative account: %w", domain.ErrInvariantViolation)
	// ErrAlreadyInState rechaza el no-op de estado (habilitar lo
	// habilitado, deshabilitar lo deshabilitado).
	ErrAlreadyInState = fmt.Errorf("account already in requested state: %w", domain.ErrInvariantViolation)
)

// Authorize evalúa la regla de bypass en un único camino: superadmin
// del tenant O rol específico. Nunca dos puertas separadas.
func (e *Engine) Authorize(kind domain.TenantKind, actor *domain.Principal, required domain.Role) error {
	if actor == nil || !actor.IsActive() {
		return domain.ErrForbidden
	}
	if domain.IsSuperAdmin(kind, actor) || actor.HasRole(required) {
		return nil
	}
	return domain.ErrForbidden
}

// tenantKind resuelve el tipo de tenant del actor.
func (e *Engine) tenantKind(ctx context.Context, tenantID string) (domain.TenantKind, error) {
	t, err := e.repo.Tenants().GetByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return t.Kind, nil
}

// AssignRole agrega un rol al target dentro del tenant del actor.
func (e *Engine) AssignRole(ctx context.Context, actor *domain.Principal, targetID string, role domain.Role) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("rbac"),
		logger.Op("AssignRole"),
		logger.Role(string(role)),
	)

	kind, err := e.tenantKind(ctx, actor.TenantID)
	if err != nil {
		return err
	}
	if err := e.Authorize(kind, actor, domain.RoleManageUsers); err != nil {
		return err
	}
	if !domain.ValidRole(kind, role) {
		return ErrInvalidRole
	}

	target, err := e.repo.Principals().GetByID(ctx, targetID)
	if err != nil {
		return domain.ErrNotFound
	}
	if target.TenantID != actor.TenantID {
		// Fuera del tenant del actor: indistinguible de inexistente.
		return domain.ErrNotFound
	}
	if target.HasRole(role) {
		return domain.ErrConflict
	}

	if err := e.repo.Principals().AddRole(ctx, targetID, role); err != nil {
		return err
	}
	audit.Log(ctx, audit.EventRoleAssigned, actor.ID, targetID, logger.Role(string(role)))
	log.Info("role assigned", logger.PrincipalID(targetID))
	return nil
}

// RemoveRole quita un rol. Si el rol es el administrativo tope del
// tenant, la remoción corre bajo transacción: cuenta los OTROS
// principals activos que lo conservan y exige que quede al menos uno.
func (e *Engine) RemoveRole(ctx context.Context, actor *domain.Principal, targetID string, role domain.Role) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("rbac"),
		logger.Op("RemoveRole"),
		logger.Role(string(role)),
	)

	kind, err := e.tenantKind(ctx, actor.TenantID)
	if err != nil {
		return err
	}
	if err := e.Authorize(kind, actor, domain.RoleManageUsers); err != nil {
		return err
	}
	if !domain.ValidRole(kind, role) {
		return ErrInvalidRole
	}

	adminRole := domain.AdministrativeRole(kind)

	return e.repo.Atomically(ctx, func(tx store.Repository) error {
		target, err := tx.Principals().GetByID(ctx, targetID)
		if err != nil {
			return domain.ErrNotFound
		}
		if target.TenantID != actor.TenantID {
			return domain.ErrNotFound
		}
		if !target.HasRole(role) {
			return domain.ErrConflict
		}

		if role == adminRole && target.IsActive() {
			n, err := tx.Principals().CountOtherActiveWithRole(ctx, target.TenantID, target.ID, adminRole)
			if err != nil {
				return err
			}
			if n < 1 {
				log.Warn("last admin guard tripped", logger.PrincipalID(targetID))
				return ErrLastAdmin
			}
		}

		if err := tx.Principals().RemoveRole(ctx, targetID, role); err != nil {
			return err
		}
		audit.Log(ctx, audit.EventRoleRemoved, actor.ID, targetID, logger.Role(string(role)))
		log.Info("role removed", logger.PrincipalID(targetID))
		return nil
	})
}

// DisableUser deshabilita una cuenta. Aplica el mismo invariante que
// RemoveRole: no se puede apagar la última cuenta administrativa
// activa del tenant.
func (e *Engine) DisableUser(ctx context.Context, actor *domain.Principal, targetID string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("rbac"),
		logger.Op("DisableUser"),
	)

	kind, err := e.tenantKind(ctx, actor.TenantID)
	if err != nil {
		return err
	}
	if err := e.Authorize(kind, actor, domain.RoleManageUsers); err != nil {
		return err
	}

	adminRole := domain.AdministrativeRole(kind)

	return e.repo.Atomically(ctx, func(tx store.Repository) error {
		target, err := tx.Principals().GetByID(ctx, targetID)
		if err != nil {
			return domain.ErrNotFound
		}
		if target.TenantID != actor.TenantID {
			return domain.ErrNotFound
		}
		if target.Status == domain.PrincipalDisabled {
			return ErrAlreadyInState
		}

		if target.HasRole(adminRole) {
			n, err := tx.Principals().CountOtherActiveWithRole(ctx, target.TenantID, target.ID, adminRole)
			if err != nil {
				return err
			}
			if n < 1 {
				log.Warn("last admin guard tripped", logger.PrincipalID(targetID))
				return ErrLastAdmin
			}
		}

		if err := tx.Principals().UpdateStatus(ctx, targetID, domain.PrincipalDisabled); err != nil {
			return err
		}
		audit.Log(ctx, audit.EventAccountDisabled, actor.ID, targetID)
		log.Info("account disabled", logger.PrincipalID(targetID))
		return nil
	})
}

// EnableUser reactiva una cuenta deshabilitada.
func (e *Engine) EnableUser(ctx context.Context, actor *domain.Principal, targetID string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("rbac"),
		logger.Op("EnableUser"),
	)

	kind, err := e.tenantKind(ctx, actor.TenantID)
	if err != nil {
		return err
	}
	if err := e.Authorize(kind, actor, domain.RoleManageUsers); err != nil {
		return err
	}

	target, err := e.repo.Principals().GetByID(ctx, targetID)
	if err != nil {
		return domain.ErrNotFound
	}
	if target.TenantID != actor.TenantID {
		return domain.ErrNotFound
	}
	if target.Status == domain.PrincipalActive {
		return ErrAlreadyInState
	}

	if err := e.repo.Principals().UpdateStatus(ctx, targetID, domain.PrincipalActive); err != nil {
		return err
	}
	audit.Log(ctx, audit.EventAccountEnabled, actor.ID, targetID)
	log.Info("account enabled", logger.PrincipalID(targetID))
	return nil
}
