package entities

import "time"

type KnowledgeEntry struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Keywords  []string  `json:"keywords"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AIRule is a tenant behavioral rule. Lower priority wins.
type AIRule struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Priority  int       `json:"priority"`
	Condition string    `json:"condition"`
	Directive string    `json:"directive"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}
