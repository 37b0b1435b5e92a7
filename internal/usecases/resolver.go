package usecases

import (
	"context"
	"fmt"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"

	"github.com/rs/zerolog"
)

// TenantResolver maps a provider identifier to the owning tenant. The
// tenant is never taken from the caller.
type TenantResolver struct {
	integrations interfaces.IntegrationStore
	sealer       interfaces.CredentialSealer
	log          zerolog.Logger
}

func NewTenantResolver(integrations interfaces.IntegrationStore, sealer interfaces.CredentialSealer, log zerolog.Logger) *TenantResolver {
	return &TenantResolver{
		integrations: integrations,
		sealer:       sealer,
		log:          log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the tenant and the active integration for the identifier,
// with credentials opened. Credentials are decrypted on every call so a
// rotation applies to the next webhook.
func (r *TenantResolver) Resolve(ctx context.Context, channel entities.ChannelType, externalID string) (string, *entities.ChannelIntegration, error) {
	if externalID == "" {
		return "", nil, entities.ErrTenantNotFound
	}
	matches, err := r.integrations.FindActiveIntegrations(ctx, channel, externalID)
	if err != nil {
		return "", nil, fmt.Errorf("find integrations: %w", err)
	}
	if len(matches) == 0 {
		return "", nil, entities.ErrTenantNotFound
	}
	if len(matches) > 1 {
		r.log.Warn().
			Str("channel", string(channel)).
			Str("external_id", externalID).
			Int("matches", len(matches)).
			Str("chosen_integration_id", matches[0].ID).
			Msg("identifier bound to more than one active integration, using most recent")
	}

	integration := matches[0]
	creds, err := r.sealer.Open(integration.SealedCredentials)
	if err != nil {
		return "", nil, fmt.Errorf("open credentials for integration %s: %w", integration.ID, err)
	}
	integration.Credentials = creds
	return integration.TenantID, &integration, nil
}
