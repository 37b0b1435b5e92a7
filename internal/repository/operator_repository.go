package repository

import (
	"context"
	"errors"
	"fmt"

	"chatdesk/internal/entities"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OperatorRepository struct {
	db *pgxpool.Pool
}

func NewOperatorRepository(db *pgxpool.Pool) *OperatorRepository {
	return &OperatorRepository{db: db}
}

func (r *OperatorRepository) CreateOperator(ctx context.Context, op *entities.Operator) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	var tenantID *string
	if op.TenantID != "" {
		tenantID = &op.TenantID
	}
	_, err := r.db.Exec(ctx,
		"INSERT INTO operators (id, username, password_hash, role, tenant_id) VALUES ($1, $2, $3, $4, $5)",
		op.ID, op.Username, op.PasswordHash, op.Role, tenantID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return entities.ErrConflict
		}
		return fmt.Errorf("insert operator: %w", err)
	}
	return nil
}

func (r *OperatorRepository) GetOperatorByUsername(ctx context.Context, username string) (*entities.Operator, error) {
	var op entities.Operator
	var tenantID *string
	err := r.db.QueryRow(ctx,
		"SELECT id, username, password_hash, role, tenant_id FROM operators WHERE username = $1",
		username).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.Role, &tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if tenantID != nil {
		op.TenantID = *tenantID
	}
	return &op, nil
}
