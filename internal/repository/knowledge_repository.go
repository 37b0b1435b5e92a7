package repository

import (
	"context"
	"fmt"
	"time"

	"chatdesk/internal/entities"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KnowledgeRepository reads the tenant-scoped knowledge base and behavioral
// rules. The dashboard owns writes; Save* exist for seeding and tests.
type KnowledgeRepository struct {
	db *pgxpool.Pool
}

func NewKnowledgeRepository(db *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// ListKnowledge returns up to limit active entries, most recently updated
// first. A limit of zero or less returns all of them.
func (r *KnowledgeRepository) ListKnowledge(ctx context.Context, tenantID string, limit int) ([]entities.KnowledgeEntry, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, question, answer, keywords, active, updated_at
		FROM knowledge_entries
		WHERE tenant_id = $1 AND active
		ORDER BY updated_at DESC
		LIMIT $2
	`, tenantID, lim)
	if err != nil {
		return nil, fmt.Errorf("query knowledge: %w", err)
	}
	defer rows.Close()

	entries := []entities.KnowledgeEntry{}
	for rows.Next() {
		var e entities.KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Question, &e.Answer, &e.Keywords, &e.Active, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListRules returns active rules by ascending priority.
func (r *KnowledgeRepository) ListRules(ctx context.Context, tenantID string) ([]entities.AIRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, priority, condition_text, directive_text, active, updated_at
		FROM ai_rules
		WHERE tenant_id = $1 AND active
		ORDER BY priority ASC, updated_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := []entities.AIRule{}
	for rows.Next() {
		var rule entities.AIRule
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.Priority, &rule.Condition, &rule.Directive, &rule.Active, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *KnowledgeRepository) SaveKnowledge(ctx context.Context, e *entities.KnowledgeEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Keywords == nil {
		e.Keywords = []string{}
	}
	e.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO knowledge_entries (id, tenant_id, question, answer, keywords, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET question = EXCLUDED.question, answer = EXCLUDED.answer,
			keywords = EXCLUDED.keywords, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
		WHERE knowledge_entries.tenant_id = EXCLUDED.tenant_id
	`, e.ID, e.TenantID, e.Question, e.Answer, e.Keywords, e.Active, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save knowledge: %w", err)
	}
	return nil
}

func (r *KnowledgeRepository) SaveRule(ctx context.Context, rule *entities.AIRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO ai_rules (id, tenant_id, priority, condition_text, directive_text, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET priority = EXCLUDED.priority, condition_text = EXCLUDED.condition_text,
			directive_text = EXCLUDED.directive_text, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
		WHERE ai_rules.tenant_id = EXCLUDED.tenant_id
	`, rule.ID, rule.TenantID, rule.Priority, rule.Condition, rule.Directive, rule.Active, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	return nil
}
