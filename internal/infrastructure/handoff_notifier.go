package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"chatdesk/internal/entities"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const HandoffChannel = "chatdesk:handoff"

// RedisHandoffPublisher publishes handoff events for agent consoles.
type RedisHandoffPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisHandoffPublisher(client *redis.Client) *RedisHandoffPublisher {
	return &RedisHandoffPublisher{client: client, channel: HandoffChannel}
}

func (p *RedisHandoffPublisher) NotifyHandoff(ctx context.Context, event entities.HandoffEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal handoff event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish handoff event: %w", err)
	}
	return nil
}

// LogHandoffNotifier is used when no broker is configured.
type LogHandoffNotifier struct {
	log zerolog.Logger
}

func NewLogHandoffNotifier(log zerolog.Logger) *LogHandoffNotifier {
	return &LogHandoffNotifier{log: log.With().Str("component", "handoff").Logger()}
}

func (n *LogHandoffNotifier) NotifyHandoff(_ context.Context, event entities.HandoffEvent) error {
	n.log.Info().
		Str("tenant_id", event.TenantID).
		Str("conversation_id", event.ConversationID).
		Str("channel", string(event.ChannelType)).
		Str("reason", event.Reason).
		Str("priority", event.Priority).
		Msg("conversation handed off")
	return nil
}
