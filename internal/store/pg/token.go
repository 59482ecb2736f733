package pg

import (
	"context"
	"time"

	"github.com/vetchium/idcore/internal/domain"
)

type tokens struct{ q querier }

func rolesToStrings(rs []domain.Role) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func stringsToRoles(ss []string) []domain.Role {
	out := make([]domain.Role, len(ss))
	for i, s := range ss {
		out[i] = domain.Role(s)
	}
	return out
}

func (r *tokens) Create(ctx context.Context, t *domain.SingleUseToken) error {
	// principal_id es NOT NULL DEFAULT '': un token sin principal (invite,
	// signup) guarda string vacío, nunca NULL.
	_, err := r.q.Exec(ctx, `
		INSERT INTO single_use_tokens
			(id, tenant_id, purpose, secret_hash, email, principal_id, roles,
			 domain_name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.TenantID, t.Purpose, t.SecretHash, t.Email, t.PrincipalID,
		rolesToStrings(t.Roles), t.Domain, t.ExpiresAt, t.CreatedAt)
	return mapErr(err)
}

func (r *tokens) GetBySecretHash(ctx context.Context, hash string) (*domain.SingleUseToken, error) {
	var (
		t     domain.SingleUseToken
		roles []string
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, tenant_id, purpose, secret_hash, email, principal_id, roles,
		       domain_name, expires_at, consumed_at, created_at
		FROM single_use_tokens WHERE secret_hash = $1`, hash).
		Scan(&t.ID, &t.TenantID, &t.Purpose, &t.SecretHash, &t.Email, &t.PrincipalID,
			&roles, &t.Domain, &t.ExpiresAt, &t.ConsumedAt, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	t.Roles = stringsToRoles(roles)
	return &t, nil
}

func (r *tokens) Consume(ctx context.Context, id string, at time.Time) error {
	// consumed_at IS NULL garantiza exactamente un consumo exitoso.
	tag, err := r.q.Exec(ctx, `
		UPDATE single_use_tokens SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL`, id, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM single_use_tokens WHERE id = $1)`, id).Scan(&exists); err != nil {
			return mapErr(err)
		}
		if exists {
			return domain.ErrConflict
		}
		return domain.ErrNotFound
	}
	return nil
}

func (r *tokens) PendingSignupForDomain(ctx context.Context, domainName string, now time.Time) (*domain.SingleUseToken, error) {
	var hash string
	err := r.q.QueryRow(ctx, `
		SELECT secret_hash FROM single_use_tokens
		WHERE purpose = 'signup' AND domain_name = $1
		  AND consumed_at IS NULL AND expires_at > $2
		LIMIT 1`, domainName, now).Scan(&hash)
	if err != nil {
		return nil, mapErr(err)
	}
	return r.GetBySecretHash(ctx, hash)
}

func (r *tokens) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM single_use_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}
