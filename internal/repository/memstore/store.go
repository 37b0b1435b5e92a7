// Package memstore is an in-process implementation of interfaces.Store used
// for local runs and tests. It enforces the same uniqueness rules as the
// Postgres schema.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"

	"github.com/google/uuid"
)

type contactKey struct {
	tenantID string
	channel  entities.ChannelType
	external string
}

type memoryKey struct {
	tenantID  string
	contactID string
	channel   entities.ChannelType
}

type usageKey struct {
	tenantID string
	date     string
}

type Store struct {
	mu sync.RWMutex

	tenants       map[string]entities.Tenant
	integrations  map[string]entities.ChannelIntegration
	contacts      map[contactKey]entities.Contact
	conversations map[string]entities.Conversation
	messages      map[string][]entities.Message
	memory        map[memoryKey]entities.ConversationMemory
	knowledge     map[string]entities.KnowledgeEntry
	rules         map[string]entities.AIRule
	usage         map[usageKey]entities.DailyUsage
	operators     map[string]entities.Operator

	now func() time.Time
}

var _ interfaces.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tenants:       make(map[string]entities.Tenant),
		integrations:  make(map[string]entities.ChannelIntegration),
		contacts:      make(map[contactKey]entities.Contact),
		conversations: make(map[string]entities.Conversation),
		messages:      make(map[string][]entities.Message),
		memory:        make(map[memoryKey]entities.ConversationMemory),
		knowledge:     make(map[string]entities.KnowledgeEntry),
		rules:         make(map[string]entities.AIRule),
		usage:         make(map[usageKey]entities.DailyUsage),
		operators:     make(map[string]entities.Operator),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// tick returns a strictly increasing timestamp so "most recent" ordering is
// deterministic even within one clock tick.
func (s *Store) tick(prev time.Time) time.Time {
	t := s.now()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

// Tenants

func (s *Store) CreateTenant(_ context.Context, t *entities.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := s.tenants[t.ID]; exists {
		return entities.ErrConflict
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.tenants[t.ID] = *t
	return nil
}

func (s *Store) GetTenant(_ context.Context, id string) (*entities.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	return &t, nil
}

func (s *Store) SetTenantActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return entities.ErrNotFound
	}
	t.Active = active
	s.tenants[id] = t
	return nil
}

// Integrations

func (s *Store) FindActiveIntegrations(_ context.Context, channel entities.ChannelType, externalID string) ([]entities.ChannelIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entities.ChannelIntegration
	for _, i := range s.integrations {
		if i.ChannelType != channel || i.ExternalIdentifier != externalID || !i.Active {
			continue
		}
		if t, ok := s.tenants[i.TenantID]; !ok || !t.Active {
			continue
		}
		out = append(out, cloneIntegration(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	return out, nil
}

func (s *Store) GetIntegration(_ context.Context, id string) (*entities.ChannelIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.integrations[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	c := cloneIntegration(i)
	return &c, nil
}

func (s *Store) ListIntegrations(_ context.Context, tenantID string) ([]entities.ChannelIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []entities.ChannelIntegration{}
	for _, i := range s.integrations {
		if i.TenantID == tenantID {
			out = append(out, cloneIntegration(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) CreateIntegration(_ context.Context, i *entities.ChannelIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[i.TenantID]; !ok {
		return entities.ErrNotFound
	}
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	now := s.tick(time.Time{})
	i.CreatedAt, i.UpdatedAt, i.Active = now, now, false
	i.Credentials = nil
	s.integrations[i.ID] = cloneIntegration(*i)
	return nil
}

// PutIntegration stores an integration as-is, bypassing the one-active
// rule. It exists to set up tie-break scenarios in tests.
func (s *Store) PutIntegration(i entities.ChannelIntegration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	s.integrations[i.ID] = cloneIntegration(i)
}

func (s *Store) ActivateIntegration(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.integrations[id]
	if !ok || target.TenantID != tenantID {
		return entities.ErrNotFound
	}
	for otherID, other := range s.integrations {
		if otherID != id && other.Active && other.TenantID == tenantID && other.ChannelType == target.ChannelType {
			other.Active = false
			other.UpdatedAt = s.tick(other.UpdatedAt)
			s.integrations[otherID] = other
		}
	}
	target.Active = true
	target.UpdatedAt = s.tick(target.UpdatedAt)
	s.integrations[id] = target
	return nil
}

func (s *Store) DeactivateIntegration(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.integrations[id]
	if !ok || i.TenantID != tenantID {
		return entities.ErrNotFound
	}
	i.Active = false
	i.UpdatedAt = s.tick(i.UpdatedAt)
	s.integrations[id] = i
	return nil
}

func cloneIntegration(i entities.ChannelIntegration) entities.ChannelIntegration {
	if i.SealedCredentials != nil {
		i.SealedCredentials = append([]byte(nil), i.SealedCredentials...)
	}
	i.Credentials = nil
	return i
}

// Conversations

func (s *Store) GetOrCreateContact(_ context.Context, tenantID string, channel entities.ChannelType, externalUserID string) (*entities.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := contactKey{tenantID, channel, externalUserID}
	if c, ok := s.contacts[key]; ok {
		return &c, nil
	}
	c := entities.Contact{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ChannelType:    channel,
		ExternalUserID: externalUserID,
		CreatedAt:      s.now(),
	}
	s.contacts[key] = c
	return &c, nil
}

func (s *Store) GetOrCreateOpenConversation(_ context.Context, tenantID string, contact *entities.Contact) (*entities.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.TenantID == tenantID && c.ContactID == contact.ID && c.Status != entities.StatusResolved {
			return &c, nil
		}
	}
	now := s.now()
	c := entities.Conversation{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ContactID:   contact.ID,
		ChannelType: contact.ChannelType,
		Status:      entities.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.conversations[c.ID] = c
	return &c, nil
}

func (s *Store) AppendMessage(_ context.Context, msg *entities.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok || conv.TenantID != msg.TenantID {
		return entities.ErrNotFound
	}
	if msg.Direction == entities.DirectionInbound && msg.ExternalMessageID != "" {
		for _, m := range s.messages[conv.ID] {
			if m.Direction == entities.DirectionInbound && m.ExternalMessageID == msg.ExternalMessageID {
				return entities.ErrDuplicateDelivery
			}
		}
	}
	conv.LastSeq++
	conv.UpdatedAt = s.now()
	s.conversations[conv.ID] = conv

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.Seq = conv.LastSeq
	s.messages[conv.ID] = append(s.messages[conv.ID], *msg)
	return nil
}

func (s *Store) UpdateDeliveryStatus(_ context.Context, tenantID, messageID string, status entities.DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for convID, msgs := range s.messages {
		for i := range msgs {
			if msgs[i].ID == messageID && msgs[i].TenantID == tenantID && msgs[i].Direction == entities.DirectionOutbound {
				s.messages[convID][i].DeliveryStatus = status
				return nil
			}
		}
	}
	return entities.ErrNotFound
}

func (s *Store) GetConversation(_ context.Context, tenantID, id string) (*entities.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok || c.TenantID != tenantID {
		return nil, entities.ErrNotFound
	}
	return &c, nil
}

func (s *Store) SetConversationStatus(_ context.Context, tenantID, id string, status entities.ConversationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.TenantID != tenantID {
		return entities.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = s.now()
	s.conversations[id] = c
	return nil
}

func (s *Store) SetConversationIntent(_ context.Context, tenantID, id, intent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.TenantID != tenantID {
		return entities.ErrNotFound
	}
	c.Intent = intent
	c.UpdatedAt = s.now()
	s.conversations[id] = c
	return nil
}

func (s *Store) ListConversations(_ context.Context, tenantID string, status entities.ConversationStatus) ([]entities.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []entities.Conversation{}
	for _, c := range s.conversations {
		if c.TenantID == tenantID && (status == "" || c.Status == status) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	return out, nil
}

func (s *Store) ListMessages(_ context.Context, tenantID, conversationID string) ([]entities.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []entities.Message{}
	for _, m := range s.messages[conversationID] {
		if m.TenantID == tenantID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

// Knowledge and rules

func (s *Store) ListKnowledge(_ context.Context, tenantID string, limit int) ([]entities.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []entities.KnowledgeEntry{}
	for _, e := range s.knowledge {
		if e.TenantID == tenantID && e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListRules(_ context.Context, tenantID string) ([]entities.AIRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []entities.AIRule{}
	for _, r := range s.rules {
		if r.TenantID == tenantID && r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority < out[b].Priority
		}
		return out[a].UpdatedAt.After(out[b].UpdatedAt)
	})
	return out, nil
}

func (s *Store) SaveKnowledge(_ context.Context, e *entities.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if prev, ok := s.knowledge[e.ID]; ok && prev.TenantID != e.TenantID {
		return entities.ErrNotFound
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = s.tick(time.Time{})
	}
	s.knowledge[e.ID] = *e
	return nil
}

func (s *Store) SaveRule(_ context.Context, r *entities.AIRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if prev, ok := s.rules[r.ID]; ok && prev.TenantID != r.TenantID {
		return entities.ErrNotFound
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}
	s.rules[r.ID] = *r
	return nil
}

// Memory

func (s *Store) GetMemory(_ context.Context, tenantID, contactID string, channel entities.ChannelType) (*entities.ConversationMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memory[memoryKey{tenantID, contactID, channel}]
	if !ok {
		return nil, nil
	}
	m.Context = append([]byte(nil), m.Context...)
	return &m, nil
}

func (s *Store) SaveMemory(_ context.Context, m *entities.ConversationMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.UpdatedAt = s.now()
	stored := *m
	stored.Context = append([]byte(nil), m.Context...)
	s.memory[memoryKey{m.TenantID, m.ContactID, m.ChannelType}] = stored
	return nil
}

// Usage

func (s *Store) IncrementSent(_ context.Context, tenantID string) error {
	s.bumpUsage(tenantID, func(u *entities.DailyUsage) { u.MessagesSent++ })
	return nil
}

func (s *Store) IncrementReceived(_ context.Context, tenantID string) error {
	s.bumpUsage(tenantID, func(u *entities.DailyUsage) { u.MessagesReceived++ })
	return nil
}

func (s *Store) bumpUsage(tenantID string, fn func(*entities.DailyUsage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	key := usageKey{tenantID, day.Format("2006-01-02")}
	u := s.usage[key]
	u.Date = day
	fn(&u)
	s.usage[key] = u
}

func (s *Store) GetUsageHistory(_ context.Context, tenantID string, days int) ([]entities.DailyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := s.now().AddDate(0, 0, -days).Format("2006-01-02")
	out := []entities.DailyUsage{}
	for k, u := range s.usage {
		if k.tenantID == tenantID && k.date >= start {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Date.Before(out[b].Date) })
	return out, nil
}

// Operators

func (s *Store) CreateOperator(_ context.Context, op *entities.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.operators[op.Username]; exists {
		return entities.ErrConflict
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	s.operators[op.Username] = *op
	return nil
}

func (s *Store) GetOperatorByUsername(_ context.Context, username string) (*entities.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operators[username]
	if !ok {
		return nil, nil
	}
	return &op, nil
}
