package entities

import "time"

// Tenant is the isolation boundary. Tenants are soft-disabled, never deleted.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact is an end customer as seen on one channel of one tenant.
type Contact struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenant_id"`
	ChannelType    ChannelType `json:"channel_type"`
	ExternalUserID string      `json:"external_user_id"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Operator is a person allowed to use the ops API. An empty TenantID
// means the operator is a platform admin.
type Operator struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	TenantID     string `json:"tenant_id,omitempty"`
}

const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

type DailyUsage struct {
	Date             time.Time `json:"date"`
	MessagesSent     int       `json:"messages_sent"`
	MessagesReceived int       `json:"messages_received"`
}
