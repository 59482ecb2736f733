package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/pagination"
)

type domains struct{ q querier }

const claimCols = `id, tenant_id, domain_name, status, challenge_hash,
	expires_at, created_at, verified_at`

func scanClaim(row pgx.Row) (*domain.DomainClaim, error) {
	var c domain.DomainClaim
	err := row.Scan(&c.ID, &c.TenantID, &c.Domain, &c.Status, &c.ChallengeHash,
		&c.ExpiresAt, &c.CreatedAt, &c.VerifiedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *domains) Create(ctx context.Context, c *domain.DomainClaim) error {
	// unique(domain_name) hace Conflict el doble claim, sin importar
	// el tenant.
	_, err := r.q.Exec(ctx, `
		INSERT INTO domain_claims
			(id, tenant_id, domain_name, status, challenge_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.TenantID, c.Domain, c.Status, c.ChallengeHash, c.ExpiresAt, c.CreatedAt)
	return mapErr(err)
}

func (r *domains) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM domain_claims WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *domains) GetByName(ctx context.Context, domainName string) (*domain.DomainClaim, error) {
	return scanClaim(r.q.QueryRow(ctx,
		`SELECT `+claimCols+` FROM domain_claims WHERE domain_name = $1`, domainName))
}

func (r *domains) GetForTenant(ctx context.Context, tenantID, domainName string) (*domain.DomainClaim, error) {
	// El filtro por tenant está en el WHERE: otro dueño = ErrNotFound.
	return scanClaim(r.q.QueryRow(ctx,
		`SELECT `+claimCols+` FROM domain_claims
		 WHERE domain_name = $1 AND tenant_id = $2`, domainName, tenantID))
}

func (r *domains) MarkVerified(ctx context.Context, id string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE domain_claims SET status = 'VERIFIED', verified_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *domains) List(ctx context.Context, tenantID string, after pagination.Cursor, limit int) ([]domain.DomainClaim, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+claimCols+` FROM domain_claims
		WHERE tenant_id = $1 AND (domain_name, id::text) > ($2, $3)
		ORDER BY domain_name, id
		LIMIT $4`,
		tenantID, after.Key, after.ID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.DomainClaim
	for rows.Next() {
		var c domain.DomainClaim
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Domain, &c.Status, &c.ChallengeHash,
			&c.ExpiresAt, &c.CreatedAt, &c.VerifiedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *domains) DeleteExpiredPending(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM domain_claims WHERE status = 'PENDING' AND expires_at < $1`, before)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}
