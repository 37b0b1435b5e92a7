package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatdesk/internal/entities"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conversationColumns = "id, tenant_id, contact_id, channel_type, status, intent, last_seq, created_at, updated_at"

type ConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func scanConversation(row pgx.Row) (*entities.Conversation, error) {
	var c entities.Conversation
	var channel, status string
	if err := row.Scan(&c.ID, &c.TenantID, &c.ContactID, &channel, &status, &c.Intent, &c.LastSeq, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ChannelType = entities.ChannelType(channel)
	c.Status = entities.ConversationStatus(status)
	return &c, nil
}

// GetOrCreateContact is idempotent on (tenant, channel, external user).
func (r *ConversationRepository) GetOrCreateContact(ctx context.Context, tenantID string, channel entities.ChannelType, externalUserID string) (*entities.Contact, error) {
	var c entities.Contact
	var ch string
	err := r.db.QueryRow(ctx, `
		INSERT INTO contacts (id, tenant_id, channel_type, external_user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, channel_type, external_user_id)
		DO UPDATE SET external_user_id = EXCLUDED.external_user_id
		RETURNING id, tenant_id, channel_type, external_user_id, created_at
	`, uuid.NewString(), tenantID, string(channel), externalUserID).
		Scan(&c.ID, &c.TenantID, &ch, &c.ExternalUserID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert contact: %w", err)
	}
	c.ChannelType = entities.ChannelType(ch)
	return &c, nil
}

// GetOrCreateOpenConversation returns the contact's non-resolved
// conversation, creating one when none exists.
func (r *ConversationRepository) GetOrCreateOpenConversation(ctx context.Context, tenantID string, contact *entities.Contact) (*entities.Conversation, error) {
	for attempt := 0; attempt < 2; attempt++ {
		conv, err := scanConversation(r.db.QueryRow(ctx,
			"SELECT "+conversationColumns+" FROM conversations WHERE tenant_id = $1 AND contact_id = $2 AND status <> 'resolved'",
			tenantID, contact.ID))
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find conversation: %w", err)
		}

		conv, err = scanConversation(r.db.QueryRow(ctx, `
			INSERT INTO conversations (id, tenant_id, contact_id, channel_type, status)
			VALUES ($1, $2, $3, $4, 'active')
			ON CONFLICT (contact_id) WHERE status <> 'resolved' DO NOTHING
			RETURNING `+conversationColumns,
			uuid.NewString(), tenantID, contact.ID, string(contact.ChannelType)))
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("insert conversation: %w", err)
		}
		// Lost the race to a concurrent insert; read the winner.
	}
	return nil, fmt.Errorf("conversation for contact %s could not be created", contact.ID)
}

// AppendMessage bumps conversations.last_seq and inserts the message in one
// transaction, so sequence numbers have no gaps.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *entities.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if msg.Direction == entities.DirectionInbound && msg.ExternalMessageID != "" {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM messages
				WHERE conversation_id = $1 AND external_message_id = $2 AND direction = 'inbound'
			)
		`, msg.ConversationID, msg.ExternalMessageID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if exists {
			return entities.ErrDuplicateDelivery
		}
	}

	var seq int64
	err = tx.QueryRow(ctx, `
		UPDATE conversations SET last_seq = last_seq + 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING last_seq
	`, msg.ConversationID, msg.TenantID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next seq: %w", notFound(err))
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	var externalID *string
	if msg.ExternalMessageID != "" {
		externalID = &msg.ExternalMessageID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, tenant_id, conversation_id, direction, content, seq, external_message_id, delivery_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.TenantID, msg.ConversationID, string(msg.Direction), msg.Content, seq, externalID, string(msg.DeliveryStatus), msg.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "messages_dedup") {
			return entities.ErrDuplicateDelivery
		}
		return fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	msg.Seq = seq
	return nil
}

func (r *ConversationRepository) UpdateDeliveryStatus(ctx context.Context, tenantID, messageID string, status entities.DeliveryStatus) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE messages SET delivery_status = $3 WHERE id = $1 AND tenant_id = $2 AND direction = 'outbound'",
		messageID, tenantID, string(status))
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) GetConversation(ctx context.Context, tenantID, id string) (*entities.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = $1 AND tenant_id = $2", id, tenantID))
	if err != nil {
		return nil, notFound(err)
	}
	return conv, nil
}

func (r *ConversationRepository) SetConversationStatus(ctx context.Context, tenantID, id string, status entities.ConversationStatus) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE conversations SET status = $3, updated_at = NOW() WHERE id = $1 AND tenant_id = $2",
		id, tenantID, string(status))
	if err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) SetConversationIntent(ctx context.Context, tenantID, id, intent string) error {
	_, err := r.db.Exec(ctx,
		"UPDATE conversations SET intent = $3, updated_at = NOW() WHERE id = $1 AND tenant_id = $2",
		id, tenantID, intent)
	if err != nil {
		return fmt.Errorf("update conversation intent: %w", err)
	}
	return nil
}

func (r *ConversationRepository) ListConversations(ctx context.Context, tenantID string, status entities.ConversationStatus) ([]entities.Conversation, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE tenant_id = $1 AND ($2 = '' OR status = $2) ORDER BY updated_at DESC LIMIT 200",
		tenantID, string(status))
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	out := []entities.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ConversationRepository) ListMessages(ctx context.Context, tenantID, conversationID string) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, conversation_id, direction, content, seq, COALESCE(external_message_id, ''), delivery_status, created_at
		FROM messages WHERE tenant_id = $1 AND conversation_id = $2
		ORDER BY seq
	`, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []entities.Message{}
	for rows.Next() {
		var m entities.Message
		var direction, status string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ConversationID, &direction, &m.Content, &m.Seq, &m.ExternalMessageID, &status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Direction = entities.Direction(direction)
		m.DeliveryStatus = entities.DeliveryStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}
