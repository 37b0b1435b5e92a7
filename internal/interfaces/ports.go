package interfaces

import (
	"context"
	"net/http"
	"net/url"

	"chatdesk/internal/entities"
)

// WebhookRequest is the raw inbound call as seen by a channel adapter.
type WebhookRequest struct {
	Header         http.Header
	Query          url.Values
	Body           []byte
	PathIdentifier string
}

// ChannelAdapter translates between one provider and the canonical message
// representation. Normalize returns an empty slice for payloads that carry
// no customer message (status callbacks, read receipts, edits).
type ChannelAdapter interface {
	Type() entities.ChannelType
	Identify(req *WebhookRequest) (string, error)
	Verify(req *WebhookRequest, integration *entities.ChannelIntegration) error
	Normalize(req *WebhookRequest) ([]entities.UnboundMessage, error)
	Send(ctx context.Context, integration *entities.ChannelIntegration, externalUserID, text string) error
}

// ChallengeResponder is implemented by adapters whose provider verifies the
// webhook URL with a GET challenge.
type ChallengeResponder interface {
	Challenge(query url.Values) (string, error)
}

type AdapterLookup interface {
	Get(channel entities.ChannelType) (ChannelAdapter, bool)
}

type Generator interface {
	Generate(ctx context.Context, req entities.GenerationRequest) entities.GenerationResult
}

type TenantStore interface {
	CreateTenant(ctx context.Context, t *entities.Tenant) error
	GetTenant(ctx context.Context, id string) (*entities.Tenant, error)
	SetTenantActive(ctx context.Context, id string, active bool) error
}

type IntegrationStore interface {
	// FindActiveIntegrations returns active integrations of active tenants
	// matching the identifier, most recently updated first.
	FindActiveIntegrations(ctx context.Context, channel entities.ChannelType, externalID string) ([]entities.ChannelIntegration, error)
	GetIntegration(ctx context.Context, id string) (*entities.ChannelIntegration, error)
	CreateIntegration(ctx context.Context, integration *entities.ChannelIntegration) error
	ListIntegrations(ctx context.Context, tenantID string) ([]entities.ChannelIntegration, error)
	// ActivateIntegration deactivates any other active integration of the
	// same (tenant, channel) in the same transaction.
	ActivateIntegration(ctx context.Context, tenantID, id string) error
	DeactivateIntegration(ctx context.Context, tenantID, id string) error
}

type ConversationStore interface {
	GetOrCreateContact(ctx context.Context, tenantID string, channel entities.ChannelType, externalUserID string) (*entities.Contact, error)
	GetOrCreateOpenConversation(ctx context.Context, tenantID string, contact *entities.Contact) (*entities.Conversation, error)
	// AppendMessage assigns the next sequence number and inserts the message
	// atomically. It returns entities.ErrDuplicateDelivery when an inbound
	// message with the same external id already exists in the conversation.
	AppendMessage(ctx context.Context, msg *entities.Message) error
	UpdateDeliveryStatus(ctx context.Context, tenantID, messageID string, status entities.DeliveryStatus) error
	GetConversation(ctx context.Context, tenantID, id string) (*entities.Conversation, error)
	SetConversationStatus(ctx context.Context, tenantID, id string, status entities.ConversationStatus) error
	SetConversationIntent(ctx context.Context, tenantID, id, intent string) error
	ListConversations(ctx context.Context, tenantID string, status entities.ConversationStatus) ([]entities.Conversation, error)
	ListMessages(ctx context.Context, tenantID, conversationID string) ([]entities.Message, error)
}

type KnowledgeStore interface {
	ListKnowledge(ctx context.Context, tenantID string, limit int) ([]entities.KnowledgeEntry, error)
	ListRules(ctx context.Context, tenantID string) ([]entities.AIRule, error)
	SaveKnowledge(ctx context.Context, entry *entities.KnowledgeEntry) error
	SaveRule(ctx context.Context, rule *entities.AIRule) error
}

type MemoryStore interface {
	// GetMemory returns (nil, nil) when no memory exists yet.
	GetMemory(ctx context.Context, tenantID, contactID string, channel entities.ChannelType) (*entities.ConversationMemory, error)
	SaveMemory(ctx context.Context, mem *entities.ConversationMemory) error
}

type UsageStore interface {
	IncrementReceived(ctx context.Context, tenantID string) error
	IncrementSent(ctx context.Context, tenantID string) error
	GetUsageHistory(ctx context.Context, tenantID string, days int) ([]entities.DailyUsage, error)
}

type OperatorStore interface {
	CreateOperator(ctx context.Context, op *entities.Operator) error
	// GetOperatorByUsername returns (nil, nil) when the operator does not exist.
	GetOperatorByUsername(ctx context.Context, username string) (*entities.Operator, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	TenantStore
	IntegrationStore
	ConversationStore
	KnowledgeStore
	MemoryStore
	UsageStore
	OperatorStore
}

// SpamCounter records one inbound hit for key and reports whether the key
// is still within its sliding-window limit.
type SpamCounter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type KeyedLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, event entities.HandoffEvent) error
}

type CredentialSealer interface {
	Seal(creds map[string]string) ([]byte, error)
	Open(sealed []byte) (map[string]string, error)
}
