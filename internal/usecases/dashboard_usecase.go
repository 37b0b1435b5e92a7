package usecases

import (
	"context"
	"fmt"
	"strings"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"
)

// DashboardUsecase backs the ops API: the handoff queue, transcripts,
// usage and the knowledge/rule writes owned by the dashboard.
type DashboardUsecase struct {
	store interfaces.Store
	locks interfaces.KeyedLocker
}

func NewDashboardUsecase(store interfaces.Store, locks interfaces.KeyedLocker) *DashboardUsecase {
	return &DashboardUsecase{store: store, locks: locks}
}

// Tenants

func (u *DashboardUsecase) CreateTenant(ctx context.Context, name string) (*entities.Tenant, error) {
	t := &entities.Tenant{Name: strings.TrimSpace(name), Active: true}
	if err := u.store.CreateTenant(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (u *DashboardUsecase) SetTenantActive(ctx context.Context, tenantID string, active bool) error {
	return u.store.SetTenantActive(ctx, tenantID, active)
}

// Conversations (tenant-scoped)

func (u *DashboardUsecase) ListConversations(ctx context.Context, tenantID string, status entities.ConversationStatus) ([]entities.Conversation, error) {
	return u.store.ListConversations(ctx, tenantID, status)
}

func (u *DashboardUsecase) HandoffQueue(ctx context.Context, tenantID string) ([]entities.Conversation, error) {
	return u.store.ListConversations(ctx, tenantID, entities.StatusHandedOff)
}

func (u *DashboardUsecase) Transcript(ctx context.Context, tenantID, conversationID string) (*entities.Conversation, []entities.Message, error) {
	conv, err := u.store.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := u.store.ListMessages(ctx, tenantID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// ResolveConversation closes a conversation. The next inbound message from
// the contact opens a new one.
func (u *DashboardUsecase) ResolveConversation(ctx context.Context, tenantID, conversationID string) error {
	return u.setStatus(ctx, tenantID, conversationID, entities.StatusResolved)
}

// ReturnToBot hands a conversation back to automatic replies.
func (u *DashboardUsecase) ReturnToBot(ctx context.Context, tenantID, conversationID string) error {
	return u.setStatus(ctx, tenantID, conversationID, entities.StatusActive)
}

func (u *DashboardUsecase) setStatus(ctx context.Context, tenantID, conversationID string, status entities.ConversationStatus) error {
	unlock, err := u.locks.Lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	conv, err := u.store.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	if conv.Status == entities.StatusResolved {
		return fmt.Errorf("conversation %s already resolved: %w", conversationID, entities.ErrConflict)
	}
	return u.store.SetConversationStatus(ctx, tenantID, conversationID, status)
}

// Usage

func (u *DashboardUsecase) UsageHistory(ctx context.Context, tenantID string, days int) ([]entities.DailyUsage, error) {
	if days <= 0 || days > 90 {
		days = 30
	}
	return u.store.GetUsageHistory(ctx, tenantID, days)
}

// Knowledge and rules

func (u *DashboardUsecase) SaveKnowledge(ctx context.Context, entry *entities.KnowledgeEntry) error {
	return u.store.SaveKnowledge(ctx, entry)
}

func (u *DashboardUsecase) SaveRule(ctx context.Context, rule *entities.AIRule) error {
	return u.store.SaveRule(ctx, rule)
}

func (u *DashboardUsecase) ListKnowledge(ctx context.Context, tenantID string) ([]entities.KnowledgeEntry, error) {
	return u.store.ListKnowledge(ctx, tenantID, 0)
}

func (u *DashboardUsecase) ListRules(ctx context.Context, tenantID string) ([]entities.AIRule, error) {
	return u.store.ListRules(ctx, tenantID)
}
