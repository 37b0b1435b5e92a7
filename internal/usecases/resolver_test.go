package usecases

import (
	"context"
	"testing"
	"time"

	"chatdesk/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOpensCredentials(t *testing.T) {
	h := newHarness(t)
	tenant, _ := h.seedTenant(t, "acme", "site-acme")

	tenantID, integration, err := h.resolver.Resolve(context.Background(), entities.ChannelWeb, "site-acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, tenantID)
	assert.Equal(t, testSecret, integration.Credential(entities.CredWebhookSecret))
}

func TestResolveUnknownOrInactive(t *testing.T) {
	h := newHarness(t)
	tenant, integration := h.seedTenant(t, "acme", "site-acme")
	ctx := context.Background()

	_, _, err := h.resolver.Resolve(ctx, entities.ChannelWeb, "")
	assert.ErrorIs(t, err, entities.ErrTenantNotFound)
	_, _, err = h.resolver.Resolve(ctx, entities.ChannelTelegram, "site-acme")
	assert.ErrorIs(t, err, entities.ErrTenantNotFound)

	require.NoError(t, h.store.DeactivateIntegration(ctx, tenant.ID, integration.ID))
	_, _, err = h.resolver.Resolve(ctx, entities.ChannelWeb, "site-acme")
	assert.ErrorIs(t, err, entities.ErrTenantNotFound)

	require.NoError(t, h.store.ActivateIntegration(ctx, tenant.ID, integration.ID))
	require.NoError(t, h.store.SetTenantActive(ctx, tenant.ID, false))
	_, _, err = h.resolver.Resolve(ctx, entities.ChannelWeb, "site-acme")
	assert.ErrorIs(t, err, entities.ErrTenantNotFound)
}

func TestResolvePicksMostRecentlyUpdated(t *testing.T) {
	h := newHarness(t)
	older, _ := h.seedTenant(t, "older", "site-older")
	newer, _ := h.seedTenant(t, "newer", "site-newer")

	sealed, err := h.box.Seal(map[string]string{entities.CredWebhookSecret: "x"})
	require.NoError(t, err)
	now := time.Now().UTC()
	h.store.PutIntegration(entities.ChannelIntegration{
		TenantID: older.ID, ChannelType: entities.ChannelWeb, ExternalIdentifier: "shared",
		SealedCredentials: sealed, Active: true, UpdatedAt: now.Add(-time.Hour),
	})
	h.store.PutIntegration(entities.ChannelIntegration{
		TenantID: newer.ID, ChannelType: entities.ChannelWeb, ExternalIdentifier: "shared",
		SealedCredentials: sealed, Active: true, UpdatedAt: now,
	})

	tenantID, _, err := h.resolver.Resolve(context.Background(), entities.ChannelWeb, "shared")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, tenantID)
}

func TestResolveSeesRotatedCredentials(t *testing.T) {
	h := newHarness(t)
	tenant, _ := h.seedTenant(t, "acme", "site-acme")
	ctx := context.Background()

	sealed, err := h.box.Seal(map[string]string{entities.CredWebhookSecret: "rotated"})
	require.NoError(t, err)
	rotated := &entities.ChannelIntegration{
		TenantID: tenant.ID, ChannelType: entities.ChannelWeb, ExternalIdentifier: "site-acme", SealedCredentials: sealed,
	}
	require.NoError(t, h.store.CreateIntegration(ctx, rotated))
	require.NoError(t, h.store.ActivateIntegration(ctx, tenant.ID, rotated.ID))

	_, integration, err := h.resolver.Resolve(ctx, entities.ChannelWeb, "site-acme")
	require.NoError(t, err)
	assert.Equal(t, rotated.ID, integration.ID)
	assert.Equal(t, "rotated", integration.Credential(entities.CredWebhookSecret))
}
