package pg

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/pagination"
)

type principals struct{ q querier }

const principalCols = `p.id, p.tenant_id, p.email, p.full_name, p.password_hash,
	p.status, p.language, p.created_at, p.updated_at`

func scanPrincipal(row pgx.Row) (*domain.Principal, error) {
	var p domain.Principal
	err := row.Scan(&p.ID, &p.TenantID, &p.Email, &p.FullName, &p.PasswordHash,
		&p.Status, &p.Language, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *principals) loadRoles(ctx context.Context, p *domain.Principal) error {
	rows, err := r.q.Query(ctx,
		`SELECT role FROM principal_roles WHERE principal_id = $1 ORDER BY role`, p.ID)
	if err != nil {
		return mapErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return err
		}
		p.Roles = append(p.Roles, domain.Role(role))
	}
	return rows.Err()
}

func (r *principals) Create(ctx context.Context, p *domain.Principal) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO principals
			(id, tenant_id, email, full_name, password_hash, status, language, created_at, updated_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8, $9)`,
		p.ID, p.TenantID, p.Email, p.FullName, p.PasswordHash,
		p.Status, p.Language, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	for _, role := range p.Roles {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO principal_roles (principal_id, role) VALUES ($1, $2)`,
			p.ID, role); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (r *principals) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	p, err := scanPrincipal(r.q.QueryRow(ctx,
		`SELECT `+principalCols+` FROM principals p WHERE p.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadRoles(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *principals) GetByEmail(ctx context.Context, tenantID, email string) (*domain.Principal, error) {
	p, err := scanPrincipal(r.q.QueryRow(ctx,
		`SELECT `+principalCols+` FROM principals p
		 WHERE p.tenant_id = $1 AND p.email = lower($2)`,
		tenantID, strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if err := r.loadRoles(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *principals) UpdateStatus(ctx context.Context, id string, st domain.PrincipalStatus) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE principals SET status = $2, updated_at = now() WHERE id = $1`, id, st)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *principals) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE principals SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *principals) AddRole(ctx context.Context, id string, role domain.Role) error {
	// El PK (principal_id, role) convierte el duplicado en 23505.
	_, err := r.q.Exec(ctx,
		`INSERT INTO principal_roles (principal_id, role) VALUES ($1, $2)`, id, role)
	return mapErr(err)
}

func (r *principals) RemoveRole(ctx context.Context, id string, role domain.Role) error {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM principal_roles WHERE principal_id = $1 AND role = $2`, id, role)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *principals) CountOtherActiveWithRole(ctx context.Context, tenantID, excludeID string, role domain.Role) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT count(*)
		FROM principals p
		JOIN principal_roles pr ON pr.principal_id = p.id
		WHERE p.tenant_id = $1 AND p.id <> $2 AND p.status = 'active' AND pr.role = $3`,
		tenantID, excludeID, role).Scan(&n)
	return n, mapErr(err)
}

func (r *principals) List(ctx context.Context, tenantID string, after pagination.Cursor, limit int) ([]domain.Principal, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+principalCols+` FROM principals p
		WHERE p.tenant_id = $1 AND (p.email, p.id::text) > ($2, $3)
		ORDER BY p.email, p.id
		LIMIT $4`,
		tenantID, after.Key, after.ID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Principal
	for rows.Next() {
		var p domain.Principal
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Email, &p.FullName, &p.PasswordHash,
			&p.Status, &p.Language, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadRoles(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
