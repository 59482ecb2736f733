package pg

import (
	"context"

	"github.com/vetchium/idcore/internal/domain"
)

type tenants struct{ q querier }

func (r *tenants) Create(ctx context.Context, t *domain.Tenant) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO tenants (id, kind, display_name, region_code, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Kind, t.DisplayName, t.RegionCode, t.CreatedAt)
	return mapErr(err)
}

func (r *tenants) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.q.QueryRow(ctx, `
		SELECT id, kind, display_name, region_code, created_at
		FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Kind, &t.DisplayName, &t.RegionCode, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}
