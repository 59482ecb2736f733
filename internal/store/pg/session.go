package pg

import (
	"context"
	"time"

	"github.com/vetchium/idcore/internal/domain"
)

type sessions struct{ q querier }

func (r *sessions) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO sessions
			(id, tenant_id, principal_id, token_hash, remember_me, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.TenantID, s.PrincipalID, s.TokenHash, s.RememberMe, s.CreatedAt, s.ExpiresAt)
	return mapErr(err)
}

func (r *sessions) GetByTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	var s domain.Session
	err := r.q.QueryRow(ctx, `
		SELECT id, tenant_id, principal_id, token_hash, remember_me,
		       created_at, expires_at, revoked_at
		FROM sessions WHERE token_hash = $1`, hash).
		Scan(&s.ID, &s.TenantID, &s.PrincipalID, &s.TokenHash, &s.RememberMe,
			&s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *sessions) Revoke(ctx context.Context, id string, at time.Time) error {
	// El predicado revoked_at IS NULL hace el doble logout un Conflict.
	tag, err := r.q.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return mapErr(err)
		}
		if exists {
			return domain.ErrConflict
		}
		return domain.ErrNotFound
	}
	return nil
}

func (r *sessions) RevokeAllForPrincipal(ctx context.Context, principalID, exceptID string, at time.Time) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE sessions SET revoked_at = $3
		WHERE principal_id = $1 AND ($2 = '' OR id::text <> $2) AND revoked_at IS NULL
		RETURNING token_hash`,
		principalID, exceptID, at)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (r *sessions) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

type challenges struct{ q querier }

func (r *challenges) Create(ctx context.Context, c *domain.TFAChallenge) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO tfa_challenges
			(id, tenant_id, principal_id, token_hash, code_hash, remember_me, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.TenantID, c.PrincipalID, c.TokenHash, c.CodeHash, c.RememberMe,
		c.ExpiresAt, c.CreatedAt)
	return mapErr(err)
}

func (r *challenges) GetByTokenHash(ctx context.Context, hash string) (*domain.TFAChallenge, error) {
	var c domain.TFAChallenge
	err := r.q.QueryRow(ctx, `
		SELECT id, tenant_id, principal_id, token_hash, code_hash, remember_me,
		       expires_at, created_at
		FROM tfa_challenges WHERE token_hash = $1`, hash).
		Scan(&c.ID, &c.TenantID, &c.PrincipalID, &c.TokenHash, &c.CodeHash,
			&c.RememberMe, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *challenges) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM tfa_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}
