package repository

import (
	"context"
	"os"
	"sync"
	"testing"

	"chatdesk/internal/entities"
	"chatdesk/internal/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a real Postgres when TEST_DATABASE_URL is set.
func testStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	client, err := infrastructure.NewPostgresClient(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return NewPostgresStore(client.Pool)
}

func seedTenant(t *testing.T, s *PostgresStore) *entities.Tenant {
	t.Helper()
	tenant := &entities.Tenant{Name: "Acme", Active: true}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func TestPostgresAppendMessageIsGapless(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s)

	contact, err := s.GetOrCreateContact(ctx, tenant.ID, entities.ChannelWeb, "visitor-1")
	require.NoError(t, err)
	conv, err := s.GetOrCreateOpenConversation(ctx, tenant.ID, contact)
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.AppendMessage(ctx, &entities.Message{
				TenantID:       tenant.ID,
				ConversationID: conv.ID,
				Direction:      entities.DirectionOutbound,
				Content:        "x",
			})
			assert.NoError(t, err)
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

func TestPostgresDuplicateDelivery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s)

	contact, err := s.GetOrCreateContact(ctx, tenant.ID, entities.ChannelWhatsApp, "628111")
	require.NoError(t, err)
	again, err := s.GetOrCreateContact(ctx, tenant.ID, entities.ChannelWhatsApp, "628111")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, again.ID)

	conv, err := s.GetOrCreateOpenConversation(ctx, tenant.ID, contact)
	require.NoError(t, err)

	msg := func() *entities.Message {
		return &entities.Message{
			TenantID: tenant.ID, ConversationID: conv.ID, Direction: entities.DirectionInbound,
			Content: "hi", ExternalMessageID: "wamid.1",
		}
	}
	require.NoError(t, s.AppendMessage(ctx, msg()))
	assert.ErrorIs(t, s.AppendMessage(ctx, msg()), entities.ErrDuplicateDelivery)
}

func TestPostgresActivateDeactivatesPrevious(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s)

	a := &entities.ChannelIntegration{TenantID: tenant.ID, ChannelType: entities.ChannelTelegram, ExternalIdentifier: "111"}
	b := &entities.ChannelIntegration{TenantID: tenant.ID, ChannelType: entities.ChannelTelegram, ExternalIdentifier: "222"}
	require.NoError(t, s.CreateIntegration(ctx, a))
	require.NoError(t, s.CreateIntegration(ctx, b))

	require.NoError(t, s.ActivateIntegration(ctx, tenant.ID, a.ID))
	require.NoError(t, s.ActivateIntegration(ctx, tenant.ID, b.ID))

	gotA, err := s.GetIntegration(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := s.GetIntegration(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, gotA.Active)
	assert.True(t, gotB.Active)

	found, err := s.FindActiveIntegrations(ctx, entities.ChannelTelegram, "111")
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, s.SetTenantActive(ctx, tenant.ID, false))
	found, err = s.FindActiveIntegrations(ctx, entities.ChannelTelegram, "222")
	require.NoError(t, err)
	assert.Empty(t, found, "disabled tenants do not resolve")
}

func TestPostgresMemoryUpsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s)
	contact, err := s.GetOrCreateContact(ctx, tenant.ID, entities.ChannelWeb, "v")
	require.NoError(t, err)

	mem, err := s.GetMemory(ctx, tenant.ID, contact.ID, entities.ChannelWeb)
	require.NoError(t, err)
	assert.Nil(t, mem)

	require.NoError(t, s.SaveMemory(ctx, &entities.ConversationMemory{
		TenantID: tenant.ID, ContactID: contact.ID, ChannelType: entities.ChannelWeb,
		MessageCount: 3, LastIntent: "pricing",
	}))
	mem, err = s.GetMemory(ctx, tenant.ID, contact.ID, entities.ChannelWeb)
	require.NoError(t, err)
	require.NotNil(t, mem)
	assert.Equal(t, 3, mem.MessageCount)
	assert.Equal(t, "pricing", mem.LastIntent)
}
