package repository

import (
	"context"
	"fmt"
	"time"

	"chatdesk/internal/entities"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const integrationColumns = "ci.id, ci.tenant_id, ci.channel_type, ci.external_identifier, ci.credentials, ci.active, ci.created_at, ci.updated_at"

type IntegrationRepository struct {
	db *pgxpool.Pool
}

func NewIntegrationRepository(db *pgxpool.Pool) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func scanIntegration(row pgx.Row) (*entities.ChannelIntegration, error) {
	var i entities.ChannelIntegration
	var channel string
	if err := row.Scan(&i.ID, &i.TenantID, &channel, &i.ExternalIdentifier, &i.SealedCredentials, &i.Active, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	i.ChannelType = entities.ChannelType(channel)
	return &i, nil
}

func (r *IntegrationRepository) FindActiveIntegrations(ctx context.Context, channel entities.ChannelType, externalID string) ([]entities.ChannelIntegration, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+integrationColumns+`
		FROM channel_integrations ci
		JOIN tenants t ON t.id = ci.tenant_id
		WHERE ci.channel_type = $1 AND ci.external_identifier = $2
		  AND ci.active AND t.active
		ORDER BY ci.updated_at DESC
	`, string(channel), externalID)
	if err != nil {
		return nil, fmt.Errorf("query integrations: %w", err)
	}
	defer rows.Close()

	var out []entities.ChannelIntegration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

func (r *IntegrationRepository) GetIntegration(ctx context.Context, id string) (*entities.ChannelIntegration, error) {
	i, err := scanIntegration(r.db.QueryRow(ctx,
		"SELECT "+integrationColumns+" FROM channel_integrations ci WHERE ci.id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return i, nil
}

func (r *IntegrationRepository) ListIntegrations(ctx context.Context, tenantID string) ([]entities.ChannelIntegration, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+integrationColumns+" FROM channel_integrations ci WHERE ci.tenant_id = $1 ORDER BY ci.created_at", tenantID)
	if err != nil {
		return nil, fmt.Errorf("query integrations: %w", err)
	}
	defer rows.Close()

	out := []entities.ChannelIntegration{}
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

// CreateIntegration always inserts an inactive row; use ActivateIntegration
// to bring it live.
func (r *IntegrationRepository) CreateIntegration(ctx context.Context, i *entities.ChannelIntegration) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	i.CreatedAt, i.UpdatedAt, i.Active = now, now, false
	_, err := r.db.Exec(ctx, `
		INSERT INTO channel_integrations (id, tenant_id, channel_type, external_identifier, credentials, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
	`, i.ID, i.TenantID, string(i.ChannelType), i.ExternalIdentifier, i.SealedCredentials, now)
	if err != nil {
		return fmt.Errorf("insert integration: %w", err)
	}
	return nil
}

func (r *IntegrationRepository) ActivateIntegration(ctx context.Context, tenantID, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var channel string
	err = tx.QueryRow(ctx,
		"SELECT channel_type FROM channel_integrations WHERE id = $1 AND tenant_id = $2 FOR UPDATE",
		id, tenantID).Scan(&channel)
	if err != nil {
		return notFound(err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE channel_integrations SET active = FALSE, updated_at = NOW()
		WHERE tenant_id = $1 AND channel_type = $2 AND active AND id <> $3
	`, tenantID, channel, id); err != nil {
		return fmt.Errorf("deactivate previous integration: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE channel_integrations SET active = TRUE, updated_at = NOW() WHERE id = $1", id); err != nil {
		if isUniqueViolation(err, "channel_integrations_one_active") {
			return entities.ErrConflict
		}
		return fmt.Errorf("activate integration: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *IntegrationRepository) DeactivateIntegration(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE channel_integrations SET active = FALSE, updated_at = NOW() WHERE id = $1 AND tenant_id = $2",
		id, tenantID)
	if err != nil {
		return fmt.Errorf("deactivate integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrNotFound
	}
	return nil
}
