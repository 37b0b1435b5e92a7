package usecases

import (
	"context"
	"testing"

	"chatdesk/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoffQueueAndResolve(t *testing.T) {
	h := newHarness(t)
	tenant, _ := h.seedTenant(t, "acme", "site-acme")
	other, _ := h.seedTenant(t, "other", "site-other")
	ctx := context.Background()
	dash := NewDashboardUsecase(h.store, h.locks)

	_, err := h.pipeline.Ingest(ctx, entities.ChannelWeb,
		webhook(t, "site-acme", testSecret, inbound("visitor-1", "m1", "can I talk to a human")))
	require.NoError(t, err)
	waitPipeline(t, h.pipeline)

	queue, err := dash.HandoffQueue(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	convID := queue[0].ID

	empty, err := dash.HandoffQueue(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, _, err = dash.Transcript(ctx, other.ID, convID)
	assert.ErrorIs(t, err, entities.ErrNotFound, "other tenants cannot read the transcript")

	conv, msgs, err := dash.Transcript(ctx, tenant.ID, convID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusHandedOff, conv.Status)
	require.Len(t, msgs, 2)

	require.NoError(t, dash.ResolveConversation(ctx, tenant.ID, convID))
	assert.ErrorIs(t, dash.ResolveConversation(ctx, tenant.ID, convID), entities.ErrConflict)

	// A new message after resolution opens a fresh conversation with the bot.
	_, err = h.pipeline.Ingest(ctx, entities.ChannelWeb,
		webhook(t, "site-acme", testSecret, inbound("visitor-1", "m2", "hello again")))
	require.NoError(t, err)
	waitPipeline(t, h.pipeline)

	all, err := dash.ListConversations(ctx, tenant.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, h.adapter.Sent(), 2)
}

func TestReturnToBotResumesReplies(t *testing.T) {
	h := newHarness(t)
	tenant, _ := h.seedTenant(t, "acme", "site-acme")
	ctx := context.Background()
	dash := NewDashboardUsecase(h.store, h.locks)

	_, err := h.pipeline.Ingest(ctx, entities.ChannelWeb,
		webhook(t, "site-acme", testSecret, inbound("visitor-1", "m1", "agent please")))
	require.NoError(t, err)
	waitPipeline(t, h.pipeline)

	queue, _ := dash.HandoffQueue(ctx, tenant.ID)
	require.Len(t, queue, 1)
	require.NoError(t, dash.ReturnToBot(ctx, tenant.ID, queue[0].ID))

	_, err = h.pipeline.Ingest(ctx, entities.ChannelWeb,
		webhook(t, "site-acme", testSecret, inbound("visitor-1", "m2", "what about shipping costs")))
	require.NoError(t, err)
	waitPipeline(t, h.pipeline)
	assert.Len(t, h.adapter.Sent(), 2)
}

func TestUsageHistory(t *testing.T) {
	h := newHarness(t)
	tenant, _ := h.seedTenant(t, "acme", "site-acme")
	ctx := context.Background()
	dash := NewDashboardUsecase(h.store, h.locks)

	_, err := h.pipeline.Ingest(ctx, entities.ChannelWeb,
		webhook(t, "site-acme", testSecret, inbound("visitor-1", "m1", "question about delivery")))
	require.NoError(t, err)
	waitPipeline(t, h.pipeline)

	usage, err := dash.UsageHistory(ctx, tenant.ID, 0)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 1, usage[0].MessagesReceived)
	assert.Equal(t, 1, usage[0].MessagesSent)
}
