package usecases

import (
	"context"
	"errors"
	"fmt"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"

	"github.com/rs/zerolog"
)

// Turn is one accepted inbound message bound to its tenant, contact and
// conversation. It is only valid while the conversation lock is held.
type Turn struct {
	TenantID     string
	Integration  *entities.ChannelIntegration
	Contact      *entities.Contact
	Conversation *entities.Conversation
	Inbound      *entities.Message
	Attachment   entities.AttachmentKind
}

// NextFunc runs the response cycle for a turn. It is called with the
// conversation lock held.
type NextFunc func(ctx context.Context, turn *Turn) error

// maxRouteAttempts bounds how often Route retries when its conversation is
// resolved under it.
const maxRouteAttempts = 3

var errConversationChurn = errors.New("conversation kept closing before the lock was granted")

type ConversationRouter struct {
	store interfaces.Store
	locks interfaces.KeyedLocker
	log   zerolog.Logger
}

func NewConversationRouter(store interfaces.Store, locks interfaces.KeyedLocker, log zerolog.Logger) *ConversationRouter {
	return &ConversationRouter{
		store: store,
		locks: locks,
		log:   log.With().Str("component", "router").Logger(),
	}
}

// Route binds msg to a contact and an open conversation, appends it and runs
// next while holding the per-conversation lock. A redelivered message
// returns the conversation without appending or calling next.
func (r *ConversationRouter) Route(ctx context.Context, integration *entities.ChannelIntegration, msg entities.UnboundMessage, next NextFunc) (*entities.Conversation, error) {
	tenantID := integration.TenantID

	contact, err := r.store.GetOrCreateContact(ctx, tenantID, integration.ChannelType, msg.ExternalUserID)
	if err != nil {
		return nil, fmt.Errorf("get or create contact: %w", err)
	}
	for attempt := 0; attempt < maxRouteAttempts; attempt++ {
		conv, err := r.store.GetOrCreateOpenConversation(ctx, tenantID, contact)
		if err != nil {
			return nil, fmt.Errorf("get or create conversation: %w", err)
		}
		conv, routed, err := r.routeLocked(ctx, integration, contact, conv, msg, next)
		if routed {
			return conv, err
		}
		r.log.Debug().
			Str("tenant_id", tenantID).
			Str("conversation_id", conv.ID).
			Msg("conversation resolved while waiting on lock; reopening")
	}
	return nil, fmt.Errorf("route message for contact %s: %w", contact.ID, errConversationChurn)
}

// routeLocked runs the rest of Route under the conversation lock. routed is
// false when the conversation was resolved before the lock was granted, in
// which case nothing was written and the caller should pick a fresh one.
func (r *ConversationRouter) routeLocked(ctx context.Context, integration *entities.ChannelIntegration, contact *entities.Contact, conv *entities.Conversation, msg entities.UnboundMessage, next NextFunc) (_ *entities.Conversation, routed bool, _ error) {
	tenantID := integration.TenantID

	unlock, err := r.locks.Lock(ctx, conv.ID)
	if err != nil {
		return nil, true, fmt.Errorf("lock conversation %s: %w", conv.ID, err)
	}
	defer unlock()

	// Status may have moved while waiting on the lock.
	fresh, err := r.store.GetConversation(ctx, tenantID, conv.ID)
	if err != nil {
		return nil, true, fmt.Errorf("reload conversation %s: %w", conv.ID, err)
	}
	conv = fresh
	if conv.Status == entities.StatusResolved {
		return conv, false, nil
	}

	inbound := &entities.Message{
		TenantID:          tenantID,
		ConversationID:    conv.ID,
		Direction:         entities.DirectionInbound,
		Content:           msg.Text,
		ExternalMessageID: msg.ExternalMessageID,
		CreatedAt:         msg.ReceivedAt,
	}
	if err := r.store.AppendMessage(ctx, inbound); err != nil {
		if errors.Is(err, entities.ErrDuplicateDelivery) {
			r.log.Info().
				Str("tenant_id", tenantID).
				Str("conversation_id", conv.ID).
				Str("external_message_id", msg.ExternalMessageID).
				Msg("duplicate delivery ignored")
			return conv, true, nil
		}
		return nil, true, fmt.Errorf("append inbound message: %w", err)
	}
	conv.LastSeq = inbound.Seq

	if err := r.store.IncrementReceived(ctx, tenantID); err != nil {
		r.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("usage counter not updated")
	}

	if next == nil {
		return conv, true, nil
	}
	turn := &Turn{
		TenantID:     tenantID,
		Integration:  integration,
		Contact:      contact,
		Conversation: conv,
		Inbound:      inbound,
		Attachment:   msg.Attachment,
	}
	if err := next(ctx, turn); err != nil {
		return conv, true, err
	}
	return conv, true, nil
}
