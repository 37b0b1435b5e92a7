package usecases

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"

	"github.com/rs/zerolog"
)

// IngestResult describes what happened to an accepted webhook call.
type IngestResult struct {
	TenantID string
	Accepted int
}

// Pipeline runs inbound webhooks through identify, resolve, verify and
// normalize synchronously, then processes the messages in the background.
type Pipeline struct {
	adapters   interfaces.AdapterLookup
	resolver   *TenantResolver
	router     *ConversationRouter
	engine     *ResponseEngine
	dispatcher *Dispatcher
	log        zerolog.Logger

	wg sync.WaitGroup
}

func NewPipeline(
	adapters interfaces.AdapterLookup,
	resolver *TenantResolver,
	router *ConversationRouter,
	engine *ResponseEngine,
	dispatcher *Dispatcher,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		adapters:   adapters,
		resolver:   resolver,
		router:     router,
		engine:     engine,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Ingest verifies and accepts one webhook call. It returns
// entities.ErrUnknownChannel, entities.ErrTenantNotFound or
// entities.ErrVerificationFailed for rejected calls; nothing is persisted in
// those cases. Accepted messages are processed after Ingest returns.
func (p *Pipeline) Ingest(ctx context.Context, channel entities.ChannelType, req *interfaces.WebhookRequest) (IngestResult, error) {
	adapter, ok := p.adapters.Get(channel)
	if !ok {
		return IngestResult{}, fmt.Errorf("%w: %s", entities.ErrUnknownChannel, channel)
	}

	externalID, err := adapter.Identify(req)
	if err != nil {
		return IngestResult{}, err
	}
	tenantID, integration, err := p.resolver.Resolve(ctx, channel, externalID)
	if err != nil {
		return IngestResult{}, err
	}
	if err := adapter.Verify(req, integration); err != nil {
		return IngestResult{TenantID: tenantID}, err
	}

	msgs, err := adapter.Normalize(req)
	if err != nil {
		return IngestResult{TenantID: tenantID}, fmt.Errorf("normalize %s payload: %w", channel, err)
	}
	if len(msgs) == 0 {
		return IngestResult{TenantID: tenantID}, nil
	}

	p.wg.Add(1)
	go p.process(context.WithoutCancel(ctx), integration, msgs)
	return IngestResult{TenantID: tenantID, Accepted: len(msgs)}, nil
}

// process handles one webhook's messages in order. A panic is logged and
// swallowed so one bad payload cannot take the process down.
func (p *Pipeline) process(ctx context.Context, integration *entities.ChannelIntegration, msgs []entities.UnboundMessage) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().
				Interface("panic", r).
				Str("tenant_id", integration.TenantID).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic while processing webhook")
		}
	}()

	for _, msg := range msgs {
		if _, err := p.Handle(ctx, integration, msg); err != nil {
			p.log.Error().Err(err).
				Str("tenant_id", integration.TenantID).
				Str("integration_id", integration.ID).
				Str("external_message_id", msg.ExternalMessageID).
				Msg("message processing failed")
		}
	}
}

// Handle runs the full cycle for one message: route, respond, dispatch.
func (p *Pipeline) Handle(ctx context.Context, integration *entities.ChannelIntegration, msg entities.UnboundMessage) (*entities.Conversation, error) {
	return p.router.Route(ctx, integration, msg, p.respond)
}

func (p *Pipeline) respond(ctx context.Context, turn *Turn) error {
	if turn.Conversation.Status == entities.StatusHandedOff {
		p.log.Debug().
			Str("tenant_id", turn.TenantID).
			Str("conversation_id", turn.Conversation.ID).
			Msg("conversation is with a human agent, no automatic reply")
		return nil
	}
	reply := p.engine.Respond(ctx, turn)
	if reply.Text == "" {
		return nil
	}
	_, err := p.dispatcher.Dispatch(ctx, turn.Integration, turn.Contact, turn.Conversation, reply.Text)
	return err
}

// Wait blocks until background processing has drained or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
