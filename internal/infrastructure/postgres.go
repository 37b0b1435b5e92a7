package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}
	if err := client.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return client, nil
}

var migrations = []struct {
	name string
	sql  string
}{
	{"tenants", `
		CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
	{"operators", `
		CREATE TABLE IF NOT EXISTS operators (
			id UUID PRIMARY KEY,
			username VARCHAR(64) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'agent',
			tenant_id UUID REFERENCES tenants(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
	{"channel_integrations", `
		CREATE TABLE IF NOT EXISTS channel_integrations (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			channel_type VARCHAR(20) NOT NULL,
			external_identifier VARCHAR(255) NOT NULL,
			credentials BYTEA,
			active BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS channel_integrations_one_active
			ON channel_integrations (tenant_id, channel_type) WHERE active;
		CREATE INDEX IF NOT EXISTS channel_integrations_lookup
			ON channel_integrations (channel_type, external_identifier) WHERE active;
	`},
	{"contacts", `
		CREATE TABLE IF NOT EXISTS contacts (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			channel_type VARCHAR(20) NOT NULL,
			external_user_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (tenant_id, channel_type, external_user_id)
		);
	`},
	{"conversations", `
		CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			contact_id UUID NOT NULL REFERENCES contacts(id),
			channel_type VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			intent VARCHAR(50) NOT NULL DEFAULT '',
			last_seq BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS conversations_one_open
			ON conversations (contact_id) WHERE status <> 'resolved';
		CREATE INDEX IF NOT EXISTS conversations_tenant_status
			ON conversations (tenant_id, status, updated_at DESC);
	`},
	{"messages", `
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			conversation_id UUID NOT NULL REFERENCES conversations(id),
			direction VARCHAR(10) NOT NULL,
			content TEXT NOT NULL,
			seq BIGINT NOT NULL,
			external_message_id VARCHAR(255),
			delivery_status VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (conversation_id, seq)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS messages_dedup
			ON messages (conversation_id, external_message_id)
			WHERE direction = 'inbound' AND external_message_id IS NOT NULL;
	`},
	{"conversation_memory", `
		CREATE TABLE IF NOT EXISTS conversation_memory (
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			contact_id UUID NOT NULL REFERENCES contacts(id),
			channel_type VARCHAR(20) NOT NULL,
			message_count INT NOT NULL DEFAULT 0,
			last_intent VARCHAR(50) NOT NULL DEFAULT '',
			context JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tenant_id, contact_id, channel_type)
		);
	`},
	{"knowledge_entries", `
		CREATE TABLE IF NOT EXISTS knowledge_entries (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			keywords TEXT[] NOT NULL DEFAULT '{}',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS knowledge_entries_tenant
			ON knowledge_entries (tenant_id, updated_at DESC) WHERE active;
	`},
	{"ai_rules", `
		CREATE TABLE IF NOT EXISTS ai_rules (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			priority INT NOT NULL DEFAULT 100,
			condition_text TEXT NOT NULL,
			directive_text TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
	{"message_usage", `
		CREATE TABLE IF NOT EXISTS message_usage (
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			date DATE NOT NULL,
			messages_sent INT NOT NULL DEFAULT 0,
			messages_received INT NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, date)
		);
	`},
}

// Migrate creates the schema. Every statement is idempotent.
func (p *PostgresClient) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := p.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("create %s: %w", m.name, err)
		}
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
