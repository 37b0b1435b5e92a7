package memstore

import (
	"context"
	"sync"
	"testing"

	"chatdesk/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) (*Store, *entities.Tenant) {
	t.Helper()
	s := New()
	tenant := &entities.Tenant{Name: "Acme", Active: true}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return s, tenant
}

func TestAppendMessageAssignsGaplessSeq(t *testing.T) {
	s, tenant := seed(t)
	ctx := context.Background()

	contact, err := s.GetOrCreateContact(ctx, tenant.ID, entities.ChannelWeb, "v1")
	require.NoError(t, err)
	conv, err := s.GetOrCreateOpenConversation(ctx, tenant.ID, contact)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendMessage(ctx, &entities.Message{
				TenantID: tenant.ID, ConversationID: conv.ID,
				Direction: entities.DirectionOutbound, Content: "x",
			}))
		}()
	}
	wg.Wait()

	msgs, err := s.ListMessages(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}
}

func TestAppendMessageRejectsDuplicateInbound(t *testing.T) {
	s, tenant := seed(t)
	ctx := context.Background()
	contact, _ := s.GetOrCreateContact(ctx, tenant.ID, entities.ChannelTelegram, "42")
	conv, _ := s.GetOrCreateOpenConversation(ctx, tenant.ID, contact)

	in := func() *entities.Message {
		return &entities.Message{
			TenantID: tenant.ID, ConversationID: conv.ID, Direction: entities.DirectionInbound,
			Content: "hi", ExternalMessageID: "7",
		}
	}
	require.NoError(t, s.AppendMessage(ctx, in()))
	assert.ErrorIs(t, s.AppendMessage(ctx, in()), entities.ErrDuplicateDelivery)

	msgs, _ := s.ListMessages(ctx, tenant.ID, conv.ID)
	assert.Len(t, msgs, 1)
}

func TestAppendMessageIsTenantScoped(t *testing.T) {
	s, tenant := seed(t)
	ctx := context.Background()
	contact, _ := s.GetOrCreateContact(ctx, tenant.ID, entities.ChannelWeb, "v")
	conv, _ := s.GetOrCreateOpenConversation(ctx, tenant.ID, contact)

	err := s.AppendMessage(ctx, &entities.Message{TenantID: "other", ConversationID: conv.ID, Content: "x"})
	assert.ErrorIs(t, err, entities.ErrNotFound)

	_, err = s.GetConversation(ctx, "other", conv.ID)
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestResolvedConversationStartsANewOne(t *testing.T) {
	s, tenant := seed(t)
	ctx := context.Background()
	contact, _ := s.GetOrCreateContact(ctx, tenant.ID, entities.ChannelWeb, "v")
	first, _ := s.GetOrCreateOpenConversation(ctx, tenant.ID, contact)
	again, _ := s.GetOrCreateOpenConversation(ctx, tenant.ID, contact)
	assert.Equal(t, first.ID, again.ID)

	require.NoError(t, s.SetConversationStatus(ctx, tenant.ID, first.ID, entities.StatusResolved))
	next, err := s.GetOrCreateOpenConversation(ctx, tenant.ID, contact)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
}

func TestActivateIntegrationKeepsOneActive(t *testing.T) {
	s, tenant := seed(t)
	ctx := context.Background()

	a := &entities.ChannelIntegration{TenantID: tenant.ID, ChannelType: entities.ChannelTelegram, ExternalIdentifier: "111"}
	b := &entities.ChannelIntegration{TenantID: tenant.ID, ChannelType: entities.ChannelTelegram, ExternalIdentifier: "222"}
	w := &entities.ChannelIntegration{TenantID: tenant.ID, ChannelType: entities.ChannelWeb, ExternalIdentifier: "site"}
	for _, i := range []*entities.ChannelIntegration{a, b, w} {
		require.NoError(t, s.CreateIntegration(ctx, i))
		assert.False(t, i.Active)
	}

	require.NoError(t, s.ActivateIntegration(ctx, tenant.ID, a.ID))
	require.NoError(t, s.ActivateIntegration(ctx, tenant.ID, w.ID))
	require.NoError(t, s.ActivateIntegration(ctx, tenant.ID, b.ID))

	gotA, _ := s.GetIntegration(ctx, a.ID)
	gotB, _ := s.GetIntegration(ctx, b.ID)
	gotW, _ := s.GetIntegration(ctx, w.ID)
	assert.False(t, gotA.Active)
	assert.True(t, gotB.Active)
	assert.True(t, gotW.Active, "other channels are untouched")

	assert.ErrorIs(t, s.ActivateIntegration(ctx, "other", b.ID), entities.ErrNotFound)
}

func TestFindActiveIntegrationsOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	t1 := &entities.Tenant{Name: "one", Active: true}
	t2 := &entities.Tenant{Name: "two", Active: true}
	require.NoError(t, s.CreateTenant(ctx, t1))
	require.NoError(t, s.CreateTenant(ctx, t2))

	older := &entities.ChannelIntegration{TenantID: t1.ID, ChannelType: entities.ChannelWhatsApp, ExternalIdentifier: "pn"}
	newer := &entities.ChannelIntegration{TenantID: t2.ID, ChannelType: entities.ChannelWhatsApp, ExternalIdentifier: "pn"}
	require.NoError(t, s.CreateIntegration(ctx, older))
	require.NoError(t, s.CreateIntegration(ctx, newer))
	require.NoError(t, s.ActivateIntegration(ctx, t1.ID, older.ID))
	require.NoError(t, s.ActivateIntegration(ctx, t2.ID, newer.ID))

	found, err := s.FindActiveIntegrations(ctx, entities.ChannelWhatsApp, "pn")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, newer.ID, found[0].ID)

	require.NoError(t, s.SetTenantActive(ctx, t2.ID, false))
	found, err = s.FindActiveIntegrations(ctx, entities.ChannelWhatsApp, "pn")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, older.ID, found[0].ID)
}

func TestMemoryAbsentIsNil(t *testing.T) {
	s, tenant := seed(t)
	ctx := context.Background()

	mem, err := s.GetMemory(ctx, tenant.ID, "c1", entities.ChannelWeb)
	require.NoError(t, err)
	assert.Nil(t, mem)

	require.NoError(t, s.SaveMemory(ctx, &entities.ConversationMemory{
		TenantID: tenant.ID, ContactID: "c1", ChannelType: entities.ChannelWeb, MessageCount: 2,
	}))
	mem, err = s.GetMemory(ctx, tenant.ID, "c1", entities.ChannelWeb)
	require.NoError(t, err)
	require.NotNil(t, mem)
	assert.Equal(t, 2, mem.MessageCount)

	other, _ := s.GetMemory(ctx, tenant.ID, "c1", entities.ChannelTelegram)
	assert.Nil(t, other)
}

func TestUsageCounters(t *testing.T) {
	s, tenant := seed(t)
	ctx := context.Background()
	require.NoError(t, s.IncrementReceived(ctx, tenant.ID))
	require.NoError(t, s.IncrementReceived(ctx, tenant.ID))
	require.NoError(t, s.IncrementSent(ctx, tenant.ID))

	hist, err := s.GetUsageHistory(ctx, tenant.ID, 7)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 2, hist[0].MessagesReceived)
	assert.Equal(t, 1, hist[0].MessagesSent)
}

func TestOperatorsUniqueUsername(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateOperator(ctx, &entities.Operator{Username: "admin", Role: entities.RoleAdmin}))
	assert.ErrorIs(t, s.CreateOperator(ctx, &entities.Operator{Username: "admin"}), entities.ErrConflict)

	op, err := s.GetOperatorByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, op)
}
