package rbac

import (
	"context"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/pagination"
)

// ListUsers pagina los principals del tenant del actor en orden
// (email, id).
func (e *Engine) ListUsers(ctx context.Context, actor *domain.Principal, req pagination.Request) (pagination.Page[domain.Principal], error) {
	var empty pagination.Page[domain.Principal]

	// Validación antes de cualquier lookup.
	after, err := req.Validate()
	if err != nil {
		return empty, err
	}

	kind, err := e.tenantKind(ctx, actor.TenantID)
	if err != nil {
		return empty, err
	}
	if err := e.Authorize(kind, actor, domain.RoleManageUsers); err != nil {
		return empty, err
	}

	rows, err := e.repo.Principals().List(ctx, actor.TenantID, after, req.Limit+1)
	if err != nil {
		return empty, err
	}
	return pagination.Build(rows, req.Limit, func(p domain.Principal) pagination.Cursor {
		return pagination.Cursor{Key: p.Email, ID: p.ID}
	}), nil
}
