package repository

import (
	"context"
	"fmt"
	"time"

	"chatdesk/internal/entities"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) CreateTenant(ctx context.Context, t *entities.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		"INSERT INTO tenants (id, name, active, created_at) VALUES ($1, $2, $3, $4)",
		t.ID, t.Name, t.Active, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (r *TenantRepository) GetTenant(ctx context.Context, id string) (*entities.Tenant, error) {
	var t entities.Tenant
	err := r.db.QueryRow(ctx,
		"SELECT id, name, active, created_at FROM tenants WHERE id = $1", id).
		Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// SetTenantActive soft-disables or re-enables a tenant. Tenants are never
// deleted while data references them.
func (r *TenantRepository) SetTenantActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx, "UPDATE tenants SET active = $2 WHERE id = $1", id, active)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrNotFound
	}
	return nil
}
