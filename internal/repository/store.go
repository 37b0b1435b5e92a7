package repository

import (
	"chatdesk/internal/interfaces"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore bundles the pgx repositories behind interfaces.Store.
type PostgresStore struct {
	*TenantRepository
	*IntegrationRepository
	*ConversationRepository
	*KnowledgeRepository
	*MemoryRepository
	*UsageRepository
	*OperatorRepository
}

var _ interfaces.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		TenantRepository:       NewTenantRepository(db),
		IntegrationRepository:  NewIntegrationRepository(db),
		ConversationRepository: NewConversationRepository(db),
		KnowledgeRepository:    NewKnowledgeRepository(db),
		MemoryRepository:       NewMemoryRepository(db),
		UsageRepository:        NewUsageRepository(db),
		OperatorRepository:     NewOperatorRepository(db),
	}
}
