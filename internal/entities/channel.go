package entities

import "time"

type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelWeb      ChannelType = "web"
)

func (c ChannelType) Valid() bool {
	switch c {
	case ChannelTelegram, ChannelWhatsApp, ChannelWeb:
		return true
	}
	return false
}

// Credential keys understood by the channel adapters.
const (
	CredBotToken      = "bot_token"
	CredAccessToken   = "access_token"
	CredAppSecret     = "app_secret"
	CredWebhookSecret = "webhook_secret"
	CredCallbackURL   = "callback_url"
)

// ChannelIntegration binds one provider identifier to one tenant.
// SealedCredentials is what is stored; Credentials is only populated
// after the resolver opens it.
type ChannelIntegration struct {
	ID                 string            `json:"id"`
	TenantID           string            `json:"tenant_id"`
	ChannelType        ChannelType       `json:"channel_type"`
	ExternalIdentifier string            `json:"external_identifier"`
	SealedCredentials  []byte            `json:"-"`
	Credentials        map[string]string `json:"-"`
	Active             bool              `json:"active"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (i *ChannelIntegration) Credential(key string) string {
	if i == nil || i.Credentials == nil {
		return ""
	}
	return i.Credentials[key]
}

type AttachmentKind string

const (
	AttachmentNone     AttachmentKind = ""
	AttachmentImage    AttachmentKind = "image"
	AttachmentFile     AttachmentKind = "file"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentLocation AttachmentKind = "location"
	AttachmentSticker  AttachmentKind = "sticker"
	AttachmentContact  AttachmentKind = "contact"
	AttachmentOther    AttachmentKind = "other"
)

// UnboundMessage is an inbound message normalized from a provider payload,
// before it is bound to a tenant, contact or conversation.
type UnboundMessage struct {
	ExternalUserID    string         `json:"external_user_id"`
	ChannelType       ChannelType    `json:"channel_type"`
	ExternalMessageID string         `json:"external_message_id"`
	Text              string         `json:"text"`
	ReceivedAt        time.Time      `json:"received_at"`
	Attachment        AttachmentKind `json:"attachment,omitempty"`
}
