package entities

import (
	"encoding/json"
	"time"
)

type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusHandedOff ConversationStatus = "handed_off"
	StatusResolved  ConversationStatus = "resolved"
)

type Conversation struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenant_id"`
	ContactID   string             `json:"contact_id"`
	ChannelType ChannelType        `json:"channel_type"`
	Status      ConversationStatus `json:"status"`
	Intent      string             `json:"intent,omitempty"`
	LastSeq     int64              `json:"last_seq"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type DeliveryStatus string

const (
	DeliveryNone    DeliveryStatus = ""
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "delivery_failed"
)

// Message content is immutable; only DeliveryStatus changes after insert,
// and only for outbound rows.
type Message struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	ConversationID    string         `json:"conversation_id"`
	Direction         Direction      `json:"direction"`
	Content           string         `json:"content"`
	Seq               int64          `json:"seq"`
	ExternalMessageID string         `json:"external_message_id,omitempty"`
	DeliveryStatus    DeliveryStatus `json:"delivery_status,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// ConversationMemory is keyed by (tenant, contact, channel).
type ConversationMemory struct {
	TenantID     string          `json:"tenant_id"`
	ContactID    string          `json:"contact_id"`
	ChannelType  ChannelType     `json:"channel_type"`
	MessageCount int             `json:"message_count"`
	LastIntent   string          `json:"last_intent,omitempty"`
	Context      json.RawMessage `json:"context,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// MemoryContext is the structured blob kept in ConversationMemory.Context.
type MemoryContext struct {
	LastTopic     string    `json:"last_topic,omitempty"`
	LastOutcome   string    `json:"last_outcome,omitempty"`
	LastReplyAt   time.Time `json:"last_reply_at,omitempty"`
	Interceptions int       `json:"interceptions,omitempty"`
}

type HandoffEvent struct {
	TenantID       string      `json:"tenant_id"`
	ConversationID string      `json:"conversation_id"`
	ContactID      string      `json:"contact_id"`
	ChannelType    ChannelType `json:"channel_type"`
	Reason         string      `json:"reason"`
	Priority       string      `json:"priority"`
	LastMessage    string      `json:"last_message"`
	CreatedAt      time.Time   `json:"created_at"`
}
