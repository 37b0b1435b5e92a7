package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/infrastructure"
	"chatdesk/internal/interfaces"
	"chatdesk/internal/repository/memstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

type sentMessage struct {
	IntegrationID string
	To            string
	Text          string
}

// fakeAdapter speaks a trivial JSON protocol: the body is a list of
// UnboundMessage and the identifier comes from the path.
type fakeAdapter struct {
	channel entities.ChannelType

	mu      sync.Mutex
	sent    []sentMessage
	calls   int
	sendErr func(call int) error
	// sendDelay makes every Send block until it elapses or ctx ends.
	sendDelay time.Duration
}

func newFakeAdapter(channel entities.ChannelType) *fakeAdapter {
	return &fakeAdapter{channel: channel}
}

func (a *fakeAdapter) Type() entities.ChannelType { return a.channel }

func (a *fakeAdapter) Identify(req *interfaces.WebhookRequest) (string, error) {
	if req.PathIdentifier == "" {
		return "", entities.ErrUnidentified
	}
	return req.PathIdentifier, nil
}

func (a *fakeAdapter) Verify(req *interfaces.WebhookRequest, integration *entities.ChannelIntegration) error {
	if req.Header.Get("X-Test-Secret") != integration.Credential(entities.CredWebhookSecret) {
		return entities.ErrVerificationFailed
	}
	return nil
}

func (a *fakeAdapter) Normalize(req *interfaces.WebhookRequest) ([]entities.UnboundMessage, error) {
	var msgs []entities.UnboundMessage
	if err := json.Unmarshal(req.Body, &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].ChannelType = a.channel
	}
	return msgs, nil
}

func (a *fakeAdapter) Send(ctx context.Context, integration *entities.ChannelIntegration, to, text string) error {
	if a.sendDelay > 0 {
		select {
		case <-time.After(a.sendDelay):
		case <-ctx.Done():
			a.mu.Lock()
			a.calls++
			a.mu.Unlock()
			return ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.sendErr != nil {
		if err := a.sendErr(a.calls); err != nil {
			return err
		}
	}
	a.sent = append(a.sent, sentMessage{IntegrationID: integration.ID, To: to, Text: text})
	return nil
}

func (a *fakeAdapter) Sent() []sentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMessage(nil), a.sent...)
}

func (a *fakeAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []entities.GenerationRequest
	result   entities.GenerationResult
	delay    time.Duration
}

func (g *fakeGenerator) Generate(ctx context.Context, req entities.GenerationRequest) entities.GenerationResult {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	res, delay := g.result, g.delay
	g.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return entities.GenerationResult{Outcome: entities.OutcomeTimeout, Err: ctx.Err()}
		}
	}
	return res
}

func (g *fakeGenerator) Requests() []entities.GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]entities.GenerationRequest(nil), g.requests...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []entities.HandoffEvent
}

func (n *recordingNotifier) NotifyHandoff(_ context.Context, e entities.HandoffEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) Events() []entities.HandoffEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]entities.HandoffEvent(nil), n.events...)
}

type harness struct {
	store      *memstore.Store
	box        *infrastructure.CredentialBox
	registry   *infrastructure.AdapterRegistry
	adapter    *fakeAdapter
	generator  *fakeGenerator
	notifier   *recordingNotifier
	spam       *infrastructure.MemorySpamCounter
	locks      *infrastructure.ConversationLocks
	resolver   *TenantResolver
	router     *ConversationRouter
	engine     *ResponseEngine
	dispatcher *Dispatcher
	pipeline   *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zerolog.Nop()
	h := &harness{
		store:     memstore.New(),
		box:       infrastructure.NewCredentialBox("test-credentials-key"),
		registry:  infrastructure.NewAdapterRegistry(),
		adapter:   newFakeAdapter(entities.ChannelWeb),
		generator: &fakeGenerator{result: entities.GenerationResult{Outcome: entities.OutcomeSuccess, Text: "generated answer"}},
		notifier:  &recordingNotifier{},
		spam:      infrastructure.NewMemorySpamCounter(5, 10*time.Second),
		locks:     infrastructure.NewConversationLocks(),
	}
	t.Cleanup(h.spam.Close)
	h.registry.MustRegister(h.adapter)

	h.resolver = NewTenantResolver(h.store, h.box, log)
	h.router = NewConversationRouter(h.store, h.locks, log)
	h.engine = NewResponseEngine(
		h.store,
		h.generator,
		NewInterceptor(h.spam, 2000, log),
		NewFallbackResponder(3),
		h.notifier,
		EngineSettings{KnowledgeFetchLimit: 50, KnowledgeTopK: 5, MaxTokens: 500},
		log,
	)
	h.dispatcher = NewDispatcher(h.store, h.registry, DispatchSettings{
		Attempts:        3,
		MaxElapsed:      2 * time.Second,
		InitialInterval: time.Millisecond,
	}, log)
	h.pipeline = NewPipeline(h.registry, h.resolver, h.router, h.engine, h.dispatcher, log)
	return h
}

// seedTenant creates an active tenant with an active web integration bound
// to externalID.
func (h *harness) seedTenant(t *testing.T, name, externalID string) (*entities.Tenant, *entities.ChannelIntegration) {
	t.Helper()
	ctx := context.Background()
	tenant := &entities.Tenant{Name: name, Active: true}
	require.NoError(t, h.store.CreateTenant(ctx, tenant))

	sealed, err := h.box.Seal(map[string]string{
		entities.CredWebhookSecret: testSecret,
		entities.CredCallbackURL:   "https://example.test/" + name,
	})
	require.NoError(t, err)
	integration := &entities.ChannelIntegration{
		TenantID:           tenant.ID,
		ChannelType:        entities.ChannelWeb,
		ExternalIdentifier: externalID,
		SealedCredentials:  sealed,
	}
	require.NoError(t, h.store.CreateIntegration(ctx, integration))
	require.NoError(t, h.store.ActivateIntegration(ctx, tenant.ID, integration.ID))

	_, resolved, err := h.resolver.Resolve(ctx, entities.ChannelWeb, externalID)
	require.NoError(t, err)
	return tenant, resolved
}

func webhook(t *testing.T, externalID, secret string, msgs ...entities.UnboundMessage) *interfaces.WebhookRequest {
	t.Helper()
	body, err := json.Marshal(msgs)
	require.NoError(t, err)
	req := &interfaces.WebhookRequest{
		Header:         make(map[string][]string),
		Body:           body,
		PathIdentifier: externalID,
	}
	req.Header.Set("X-Test-Secret", secret)
	return req
}

func inbound(user, id, text string) entities.UnboundMessage {
	return entities.UnboundMessage{
		ExternalUserID:    user,
		ExternalMessageID: id,
		Text:              text,
		ReceivedAt:        time.Now().UTC(),
	}
}

func waitPipeline(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))
}

var errTransient = errors.New("connection reset")
