package usecases

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"

	"github.com/rs/zerolog"
)

// Reply outcomes.
const (
	OutcomeGenerated   = "generated"
	OutcomeFallback    = "fallback"
	OutcomeIntercepted = "intercepted"
)

type EngineSettings struct {
	KnowledgeFetchLimit int
	KnowledgeTopK       int
	MaxTokens           int
}

type Reply struct {
	Text      string
	Intent    string
	Outcome   string
	HandedOff bool
}

// ResponseEngine turns one inbound turn into a reply string. Every failure
// inside it degrades to a static or fallback reply; it never returns an
// error.
type ResponseEngine struct {
	store       interfaces.Store
	generator   interfaces.Generator
	interceptor *Interceptor
	fallback    *FallbackResponder
	notifier    interfaces.HandoffNotifier
	settings    EngineSettings
	log         zerolog.Logger
	now         func() time.Time
}

func NewResponseEngine(
	store interfaces.Store,
	generator interfaces.Generator,
	interceptor *Interceptor,
	fallback *FallbackResponder,
	notifier interfaces.HandoffNotifier,
	settings EngineSettings,
	log zerolog.Logger,
) *ResponseEngine {
	return &ResponseEngine{
		store:       store,
		generator:   generator,
		interceptor: interceptor,
		fallback:    fallback,
		notifier:    notifier,
		settings:    settings,
		log:         log.With().Str("component", "engine").Logger(),
		now:         time.Now,
	}
}

// Respond must be called with the conversation lock held; it reads and
// writes conversation memory.
func (e *ResponseEngine) Respond(ctx context.Context, turn *Turn) Reply {
	log := e.log.With().
		Str("tenant_id", turn.TenantID).
		Str("conversation_id", turn.Conversation.ID).
		Logger()

	mem := e.loadMemory(ctx, turn, log)
	text := strings.TrimSpace(turn.Inbound.Content)

	if ic := e.interceptor.Check(ctx, turn); ic != nil {
		log.Info().Str("reason", ic.reason).Msg("message intercepted")
		e.saveMemory(ctx, turn, mem, memoryUpdate{outcome: ic.reason, intercepted: true}, log)
		return Reply{Text: ic.reply, Outcome: OutcomeIntercepted}
	}

	ranked := RankKnowledge(e.loadKnowledge(ctx, turn, log), text, e.settings.KnowledgeTopK)
	intent := DetectIntent(text)

	var reply Reply
	var result entities.GenerationResult
	if intent == IntentHuman {
		reply = e.fromFallback(text, ranked)
	} else {
		rules := e.loadRules(ctx, turn, log)
		result = e.generator.Generate(ctx, entities.GenerationRequest{
			Instructions: BuildInstructions(rules, ranked, mem),
			Input:        text,
			MaxTokens:    e.settings.MaxTokens,
		})
		if result.OK() && strings.TrimSpace(result.Text) != "" {
			reply = Reply{Text: strings.TrimSpace(result.Text), Intent: intent, Outcome: OutcomeGenerated}
		} else {
			ev := log.Warn().Str("outcome", string(result.Outcome))
			if result.Err != nil {
				ev = ev.Err(result.Err)
			}
			ev.Msg("generation failed, using fallback")
			reply = e.fromFallback(text, ranked)
		}
	}

	if reply.HandedOff {
		e.handOff(ctx, turn, reply, log)
	}
	if reply.Intent != "" && reply.Intent != IntentUnknown {
		if err := e.store.SetConversationIntent(ctx, turn.TenantID, turn.Conversation.ID, reply.Intent); err != nil {
			log.Warn().Err(err).Msg("conversation intent not saved")
		} else {
			turn.Conversation.Intent = reply.Intent
		}
	}

	update := memoryUpdate{outcome: reply.Outcome, topic: reply.Intent}
	if reply.Outcome == OutcomeGenerated {
		update.lastIntent = reply.Intent
	}
	e.saveMemory(ctx, turn, mem, update, log)

	log.Info().Str("outcome", reply.Outcome).Str("intent", reply.Intent).Bool("handed_off", reply.HandedOff).Msg("reply ready")
	return reply
}

func (e *ResponseEngine) fromFallback(text string, ranked []ScoredEntry) Reply {
	fb := e.fallback.Respond(text, ranked)
	return Reply{Text: fb.Text, Intent: fb.Intent, Outcome: OutcomeFallback, HandedOff: fb.Handoff}
}

func (e *ResponseEngine) handOff(ctx context.Context, turn *Turn, reply Reply, log zerolog.Logger) {
	if turn.Conversation.Status == entities.StatusHandedOff {
		return
	}
	if err := e.store.SetConversationStatus(ctx, turn.TenantID, turn.Conversation.ID, entities.StatusHandedOff); err != nil {
		log.Error().Err(err).Msg("handoff status not saved")
		return
	}
	turn.Conversation.Status = entities.StatusHandedOff

	priority := "normal"
	reason := "no_confident_answer"
	if reply.Intent == IntentHuman {
		priority, reason = "high", "customer_requested_human"
	}
	event := entities.HandoffEvent{
		TenantID:       turn.TenantID,
		ConversationID: turn.Conversation.ID,
		ContactID:      turn.Contact.ID,
		ChannelType:    turn.Conversation.ChannelType,
		Reason:         reason,
		Priority:       priority,
		LastMessage:    turn.Inbound.Content,
		CreatedAt:      e.now().UTC(),
	}
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyHandoff(ctx, event); err != nil {
		log.Warn().Err(err).Msg("handoff notification failed")
	}
}

func (e *ResponseEngine) loadMemory(ctx context.Context, turn *Turn, log zerolog.Logger) *entities.ConversationMemory {
	mem, err := e.store.GetMemory(ctx, turn.TenantID, turn.Contact.ID, turn.Contact.ChannelType)
	if err != nil {
		log.Warn().Err(err).Msg("memory not loaded")
	}
	if mem == nil {
		mem = &entities.ConversationMemory{
			TenantID:    turn.TenantID,
			ContactID:   turn.Contact.ID,
			ChannelType: turn.Contact.ChannelType,
		}
	}
	return mem
}

func (e *ResponseEngine) loadKnowledge(ctx context.Context, turn *Turn, log zerolog.Logger) []entities.KnowledgeEntry {
	entries, err := e.store.ListKnowledge(ctx, turn.TenantID, e.settings.KnowledgeFetchLimit)
	if err != nil {
		log.Warn().Err(err).Msg("knowledge not loaded")
		return nil
	}
	return entries
}

func (e *ResponseEngine) loadRules(ctx context.Context, turn *Turn, log zerolog.Logger) []entities.AIRule {
	rules, err := e.store.ListRules(ctx, turn.TenantID)
	if err != nil {
		log.Warn().Err(err).Msg("rules not loaded")
		return nil
	}
	return rules
}

type memoryUpdate struct {
	outcome     string
	topic       string
	lastIntent  string
	intercepted bool
}

func (e *ResponseEngine) saveMemory(ctx context.Context, turn *Turn, mem *entities.ConversationMemory, u memoryUpdate, log zerolog.Logger) {
	var mc entities.MemoryContext
	if len(mem.Context) > 0 {
		if err := json.Unmarshal(mem.Context, &mc); err != nil {
			log.Debug().Err(err).Msg("memory context reset")
			mc = entities.MemoryContext{}
		}
	}
	mc.LastOutcome = u.outcome
	mc.LastReplyAt = e.now().UTC()
	if u.topic != "" && u.topic != IntentUnknown {
		mc.LastTopic = u.topic
	}
	if u.intercepted {
		mc.Interceptions++
	}
	raw, err := json.Marshal(mc)
	if err != nil {
		log.Warn().Err(err).Msg("memory context not encoded")
		raw = mem.Context
	}

	mem.MessageCount++
	if u.lastIntent != "" && u.lastIntent != IntentUnknown {
		mem.LastIntent = u.lastIntent
	}
	mem.Context = raw
	if err := e.store.SaveMemory(ctx, mem); err != nil {
		log.Warn().Err(err).Msg("memory not saved")
	}
}
