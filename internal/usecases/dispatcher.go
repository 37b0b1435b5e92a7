package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type DispatchSettings struct {
	Attempts        int
	MaxElapsed      time.Duration
	InitialInterval time.Duration
}

// Dispatcher persists an outbound reply and delivers it through the
// channel adapter. Send failures end as delivery_failed rows and are never
// returned to the caller.
type Dispatcher struct {
	store    interfaces.Store
	adapters interfaces.AdapterLookup
	settings DispatchSettings
	log      zerolog.Logger
}

func NewDispatcher(store interfaces.Store, adapters interfaces.AdapterLookup, settings DispatchSettings, log zerolog.Logger) *Dispatcher {
	if settings.Attempts < 1 {
		settings.Attempts = 1
	}
	if settings.InitialInterval <= 0 {
		settings.InitialInterval = 500 * time.Millisecond
	}
	if settings.MaxElapsed <= 0 {
		settings.MaxElapsed = 30 * time.Second
	}
	return &Dispatcher{
		store:    store,
		adapters: adapters,
		settings: settings,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch returns an error only when the outbound message could not be
// persisted.
func (d *Dispatcher) Dispatch(ctx context.Context, integration *entities.ChannelIntegration, contact *entities.Contact, conv *entities.Conversation, text string) (*entities.Message, error) {
	log := d.log.With().
		Str("tenant_id", conv.TenantID).
		Str("conversation_id", conv.ID).
		Str("integration_id", integration.ID).
		Str("channel", string(integration.ChannelType)).
		Logger()

	out := &entities.Message{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		Direction:      entities.DirectionOutbound,
		Content:        text,
		DeliveryStatus: entities.DeliveryPending,
	}
	if err := d.store.AppendMessage(ctx, out); err != nil {
		return nil, fmt.Errorf("persist outbound message: %w", err)
	}
	conv.LastSeq = out.Seq

	status := entities.DeliverySent
	if err := d.send(ctx, integration, contact.ExternalUserID, text, log); err != nil {
		status = entities.DeliveryFailed
		log.Error().Err(err).Str("message_id", out.ID).Msg("reply delivery failed")
	}

	if err := d.store.UpdateDeliveryStatus(ctx, conv.TenantID, out.ID, status); err != nil {
		log.Warn().Err(err).Str("message_id", out.ID).Msg("delivery status not saved")
	}
	out.DeliveryStatus = status

	if status == entities.DeliverySent {
		if err := d.store.IncrementSent(ctx, conv.TenantID); err != nil {
			log.Warn().Err(err).Msg("usage counter not updated")
		}
	}
	return out, nil
}

func (d *Dispatcher) send(ctx context.Context, integration *entities.ChannelIntegration, to, text string, log zerolog.Logger) error {
	adapter, ok := d.adapters.Get(integration.ChannelType)
	if !ok {
		return fmt.Errorf("%w: %s", entities.ErrUnknownChannel, integration.ChannelType)
	}

	// MaxElapsed bounds the whole delivery, including an attempt in flight.
	ctx, cancel := context.WithTimeout(ctx, d.settings.MaxElapsed)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.settings.InitialInterval
	b.MaxElapsedTime = d.settings.MaxElapsed
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.settings.Attempts-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := adapter.Send(ctx, integration, to, text)
		if err != nil && errors.Is(err, entities.ErrPermanentSend) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("send failed, retrying")
	}
	return backoff.RetryNotify(op, policy, notify)
}
