package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatdesk/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MemoryRepository struct {
	db *pgxpool.Pool
}

func NewMemoryRepository(db *pgxpool.Pool) *MemoryRepository {
	return &MemoryRepository{db: db}
}

func (r *MemoryRepository) GetMemory(ctx context.Context, tenantID, contactID string, channel entities.ChannelType) (*entities.ConversationMemory, error) {
	m := entities.ConversationMemory{TenantID: tenantID, ContactID: contactID, ChannelType: channel}
	var blob []byte
	err := r.db.QueryRow(ctx, `
		SELECT message_count, last_intent, context, updated_at
		FROM conversation_memory
		WHERE tenant_id = $1 AND contact_id = $2 AND channel_type = $3
	`, tenantID, contactID, string(channel)).Scan(&m.MessageCount, &m.LastIntent, &blob, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	m.Context = blob
	return &m, nil
}

func (r *MemoryRepository) SaveMemory(ctx context.Context, m *entities.ConversationMemory) error {
	blob := []byte(m.Context)
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	m.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO conversation_memory (tenant_id, contact_id, channel_type, message_count, last_intent, context, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, contact_id, channel_type)
		DO UPDATE SET message_count = EXCLUDED.message_count, last_intent = EXCLUDED.last_intent,
			context = EXCLUDED.context, updated_at = EXCLUDED.updated_at
	`, m.TenantID, m.ContactID, string(m.ChannelType), m.MessageCount, m.LastIntent, blob, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}
