package usecases

import (
	"context"
	"fmt"
	"strings"

	"chatdesk/internal/entities"
	"chatdesk/internal/infrastructure"
	"chatdesk/internal/interfaces"

	"github.com/rs/zerolog"
)

// WebhookRegistrar is implemented by adapters whose provider needs to be
// told where to deliver webhooks.
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, integration *entities.ChannelIntegration, publicURL string) (string, error)
}

// IntegrationService is the write side used by account linking: it seals
// provider credentials and toggles integrations.
type IntegrationService struct {
	store         interfaces.Store
	sealer        interfaces.CredentialSealer
	adapters      interfaces.AdapterLookup
	publicBaseURL string
	log           zerolog.Logger
}

func NewIntegrationService(store interfaces.Store, sealer interfaces.CredentialSealer, adapters interfaces.AdapterLookup, publicBaseURL string, log zerolog.Logger) *IntegrationService {
	return &IntegrationService{
		store:         store,
		sealer:        sealer,
		adapters:      adapters,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           log.With().Str("component", "integrations").Logger(),
	}
}

var requiredCredentials = map[entities.ChannelType][]string{
	entities.ChannelTelegram: {entities.CredBotToken, entities.CredWebhookSecret},
	entities.ChannelWhatsApp: {entities.CredAccessToken, entities.CredAppSecret},
	entities.ChannelWeb:      {entities.CredWebhookSecret, entities.CredCallbackURL},
}

// Create stores a new, inactive integration. For Telegram the external
// identifier defaults to the bot id embedded in the token.
func (s *IntegrationService) Create(ctx context.Context, tenantID string, channel entities.ChannelType, externalID string, creds map[string]string) (*entities.ChannelIntegration, error) {
	if _, ok := s.adapters.Get(channel); !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrUnknownChannel, channel)
	}
	for _, key := range requiredCredentials[channel] {
		if strings.TrimSpace(creds[key]) == "" {
			return nil, fmt.Errorf("%w: missing credential %q for %s", entities.ErrInvalidInput, key, channel)
		}
	}
	if externalID == "" && channel == entities.ChannelTelegram {
		externalID = infrastructure.BotIDFromToken(creds[entities.CredBotToken])
	}
	if externalID == "" {
		return nil, fmt.Errorf("%w: external identifier required for %s", entities.ErrInvalidInput, channel)
	}

	sealed, err := s.sealer.Seal(creds)
	if err != nil {
		return nil, fmt.Errorf("seal credentials: %w", err)
	}
	integration := &entities.ChannelIntegration{
		TenantID:           tenantID,
		ChannelType:        channel,
		ExternalIdentifier: externalID,
		SealedCredentials:  sealed,
	}
	if err := s.store.CreateIntegration(ctx, integration); err != nil {
		return nil, err
	}
	return integration, nil
}

func (s *IntegrationService) List(ctx context.Context, tenantID string) ([]entities.ChannelIntegration, error) {
	return s.store.ListIntegrations(ctx, tenantID)
}

// Activate makes the integration the tenant's only active one for its
// channel and, when the provider supports it, registers the webhook URL.
func (s *IntegrationService) Activate(ctx context.Context, tenantID, id string) (*entities.ChannelIntegration, error) {
	integration, err := s.store.GetIntegration(ctx, id)
	if err != nil {
		return nil, err
	}
	if integration.TenantID != tenantID {
		return nil, entities.ErrNotFound
	}
	if err := s.store.ActivateIntegration(ctx, tenantID, id); err != nil {
		return nil, err
	}
	integration.Active = true

	if err := s.registerWebhook(ctx, integration); err != nil {
		// The integration stays active; the provider can be pointed at the
		// webhook manually.
		s.log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("integration_id", id).
			Msg("webhook registration failed")
	}
	return integration, nil
}

func (s *IntegrationService) Deactivate(ctx context.Context, tenantID, id string) error {
	return s.store.DeactivateIntegration(ctx, tenantID, id)
}

func (s *IntegrationService) registerWebhook(ctx context.Context, integration *entities.ChannelIntegration) error {
	if s.publicBaseURL == "" {
		return nil
	}
	adapter, ok := s.adapters.Get(integration.ChannelType)
	if !ok {
		return nil
	}
	registrar, ok := adapter.(WebhookRegistrar)
	if !ok {
		return nil
	}
	creds, err := s.sealer.Open(integration.SealedCredentials)
	if err != nil {
		return fmt.Errorf("open credentials: %w", err)
	}
	integration.Credentials = creds
	defer func() { integration.Credentials = nil }()

	url := fmt.Sprintf("%s/webhooks/%s/%s", s.publicBaseURL, integration.ChannelType, integration.ExternalIdentifier)
	name, err := registrar.RegisterWebhook(ctx, integration, url)
	if err != nil {
		return err
	}
	s.log.Info().
		Str("tenant_id", integration.TenantID).
		Str("integration_id", integration.ID).
		Str("bot", name).
		Msg("webhook registered")
	return nil
}
