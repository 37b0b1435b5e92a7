package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"chatdesk/internal/entities"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routeOnly appends an inbound message and returns the turn without
// running the engine.
func routeOnly(t *testing.T, h *harness, integration *entities.ChannelIntegration, msg entities.UnboundMessage) *Turn {
	t.Helper()
	var captured *Turn
	_, err := h.router.Route(context.Background(), integration, msg, func(_ context.Context, turn *Turn) error {
		captured = turn
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, captured)
	return captured
}

func TestRulesPrecedeKnowledgeInInstructions(t *testing.T) {
	h := newHarness(t)
	tenant, integration := h.seedTenant(t, "acme", "site-acme")
	ctx := context.Background()
	require.NoError(t, h.store.SaveRule(ctx, &entities.AIRule{
		TenantID: tenant.ID, Priority: 1, Condition: "pricing is discussed",
		Directive: "always mention a 14-day trial", Active: true,
	}))
	require.NoError(t, h.store.SaveKnowledge(ctx, &entities.KnowledgeEntry{
		TenantID: tenant.ID, Question: "How much does the Pro plan cost?",
		Answer: "The Pro plan costs $49 per month.", Keywords: []string{"pricing", "price", "pro"}, Active: true,
	}))

	turn := routeOnly(t, h, integration, inbound("visitor-1", "m1", "What is the price of the pro plan?"))
	reply := h.engine.Respond(ctx, turn)
	assert.Equal(t, OutcomeGenerated, reply.Outcome)

	reqs := h.generator.Requests()
	require.Len(t, reqs, 1)
	instr := reqs[0].Instructions
	ruleAt := strings.Index(instr, "always mention a 14-day trial")
	snippetAt := strings.Index(instr, "The Pro plan costs $49 per month.")
	require.NotEqual(t, -1, ruleAt)
	require.NotEqual(t, -1, snippetAt)
	assert.Less(t, ruleAt, snippetAt)
	assert.Equal(t, "What is the price of the pro plan?", reqs[0].Input)
	assert.Equal(t, 500, reqs[0].MaxTokens)
}

func TestGenerationFailureFallsBackAndCountsOnce(t *testing.T) {
	outcomes := []entities.GenerationOutcome{
		entities.OutcomeTimeout, entities.OutcomeUnavailable, entities.OutcomeMalformed,
	}
	for _, outcome := range outcomes {
		t.Run(string(outcome), func(t *testing.T) {
			h := newHarness(t)
			tenant, integration := h.seedTenant(t, "acme", "site-acme")
			h.generator.result = entities.GenerationResult{Outcome: outcome, Err: errors.New("boom")}

			turn := routeOnly(t, h, integration, inbound("visitor-1", "m1", "hello there"))
			reply := h.engine.Respond(context.Background(), turn)

			assert.Equal(t, OutcomeFallback, reply.Outcome)
			assert.NotEmpty(t, reply.Text)
			assert.Equal(t, IntentGreeting, reply.Intent)

			mem, err := h.store.GetMemory(context.Background(), tenant.ID, turn.Contact.ID, entities.ChannelWeb)
			require.NoError(t, err)
			require.NotNil(t, mem)
			assert.Equal(t, 1, mem.MessageCount)
			assert.Empty(t, mem.LastIntent, "last_intent only follows successful generations")
		})
	}
}

func TestSlowGeneratorIsBoundedByContext(t *testing.T) {
	h := newHarness(t)
	_, integration := h.seedTenant(t, "acme", "site-acme")
	h.generator.delay = time.Minute

	turn := routeOnly(t, h, integration, inbound("visitor-1", "m1", "What are your opening hours?"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	reply := h.engine.Respond(ctx, turn)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, OutcomeFallback, reply.Outcome)
	assert.Equal(t, IntentHours, reply.Intent)
}

func TestSixthMessageInWindowIsThrottled(t *testing.T) {
	h := newHarness(t)
	_, integration := h.seedTenant(t, "acme", "site-acme")
	ctx := context.Background()

	var last Reply
	for i := 1; i <= 6; i++ {
		turn := routeOnly(t, h, integration, inbound("visitor-1", fmt.Sprintf("m%d", i), fmt.Sprintf("question %d about delivery", i)))
		last = h.engine.Respond(ctx, turn)
		if i < 6 {
			assert.Equal(t, OutcomeGenerated, last.Outcome)
		}
	}
	assert.Equal(t, OutcomeIntercepted, last.Outcome)
	assert.Equal(t, ReplyThrottled, last.Text)
	assert.Len(t, h.generator.Requests(), 5, "throttled message never reaches the generator")
}

func TestInterceptionKeepsLastIntent(t *testing.T) {
	h := newHarness(t)
	tenant, integration := h.seedTenant(t, "acme", "site-acme")
	ctx := context.Background()

	turn := routeOnly(t, h, integration, inbound("visitor-1", "m1", "hello"))
	h.engine.Respond(ctx, turn)

	turn = routeOnly(t, h, integration, inbound("visitor-1", "m2", "🙂🙂🙂"))
	reply := h.engine.Respond(ctx, turn)
	assert.Equal(t, OutcomeIntercepted, reply.Outcome)
	assert.Equal(t, ReplyNeedWords, reply.Text)

	mem, err := h.store.GetMemory(ctx, tenant.ID, turn.Contact.ID, entities.ChannelWeb)
	require.NoError(t, err)
	assert.Equal(t, 2, mem.MessageCount)
	assert.Equal(t, IntentGreeting, mem.LastIntent)
	assert.Len(t, h.generator.Requests(), 1)
}

func TestUnknownFallbackHandsOff(t *testing.T) {
	h := newHarness(t)
	tenant, integration := h.seedTenant(t, "acme", "site-acme")
	h.generator.result = entities.GenerationResult{Outcome: entities.OutcomeUnavailable}
	ctx := context.Background()

	turn := routeOnly(t, h, integration, inbound("visitor-1", "m1", "Can I bring my llama to the event?"))
	reply := h.engine.Respond(ctx, turn)

	assert.Equal(t, ReplySafeDefault, reply.Text)
	assert.Equal(t, "I'm not sure — connecting you with a team member shortly.", reply.Text)
	assert.True(t, reply.HandedOff)
	conv, err := h.store.GetConversation(ctx, tenant.ID, turn.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusHandedOff, conv.Status)

	events := h.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "normal", events[0].Priority)
	assert.Equal(t, turn.Conversation.ID, events[0].ConversationID)
	assert.Equal(t, tenant.ID, events[0].TenantID)
}

func TestFallbackUsesKnowledgeMatch(t *testing.T) {
	h := newHarness(t)
	tenant, integration := h.seedTenant(t, "acme", "site-acme")
	h.generator.result = entities.GenerationResult{Outcome: entities.OutcomeTimeout}
	ctx := context.Background()
	require.NoError(t, h.store.SaveKnowledge(ctx, &entities.KnowledgeEntry{
		TenantID: tenant.ID, Question: "Do you ship internationally?",
		Answer: "Yes, we ship to 40 countries.", Keywords: []string{"ship", "international"}, Active: true,
	}))

	turn := routeOnly(t, h, integration, inbound("visitor-1", "m1", "do you ship internationally?"))
	reply := h.engine.Respond(ctx, turn)
	assert.Equal(t, "Yes, we ship to 40 countries.", reply.Text)
	assert.False(t, reply.HandedOff)
}

func TestLengthLimitCountsRunes(t *testing.T) {
	h := newHarness(t)
	_, integration := h.seedTenant(t, "acme", "site-acme")
	engine := NewResponseEngine(h.store, h.generator, NewInterceptor(nil, 11, zerolog.Nop()),
		NewFallbackResponder(3), nil, EngineSettings{KnowledgeTopK: 5}, zerolog.Nop())

	turn := routeOnly(t, h, integration, inbound("visitor-1", "m1", "héllo wörld"))
	reply := engine.Respond(context.Background(), turn)
	assert.NotEqual(t, OutcomeIntercepted, reply.Outcome)

	turn = routeOnly(t, h, integration, inbound("visitor-1", "m2", "héllo wörld!"))
	reply = engine.Respond(context.Background(), turn)
	assert.Equal(t, OutcomeIntercepted, reply.Outcome)
	assert.Equal(t, ReplyTooLong, reply.Text)
}
