package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"
)

const WebSignatureHeader = "X-Webhook-Signature"

// WebAdapter serves the embeddable site widget. Inbound events are signed
// with the integration's webhook secret; replies are POSTed back to the
// integration's callback URL, signed the same way.
type WebAdapter struct {
	client *http.Client
}

func NewWebAdapter(client *http.Client) *WebAdapter {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &WebAdapter{client: client}
}

type webEvent struct {
	Type       string `json:"type"`
	SiteKey    string `json:"site_key"`
	MessageID  string `json:"message_id"`
	UserID     string `json:"user_id"`
	Text       string `json:"text"`
	SentAt     string `json:"sent_at"`
	Attachment *struct {
		Kind string `json:"kind"`
	} `json:"attachment"`
}

func (a *WebAdapter) Type() entities.ChannelType {
	return entities.ChannelWeb
}

func (a *WebAdapter) Identify(req *interfaces.WebhookRequest) (string, error) {
	if req.PathIdentifier != "" {
		return req.PathIdentifier, nil
	}
	var ev webEvent
	if err := json.Unmarshal(req.Body, &ev); err != nil {
		return "", fmt.Errorf("decode web event: %w", err)
	}
	if ev.SiteKey == "" {
		return "", entities.ErrUnidentified
	}
	return ev.SiteKey, nil
}

func (a *WebAdapter) Verify(req *interfaces.WebhookRequest, integration *entities.ChannelIntegration) error {
	if !verifyHexSignature(integration.Credential(entities.CredWebhookSecret), req.Header.Get(WebSignatureHeader), req.Body) {
		return entities.ErrVerificationFailed
	}
	return nil
}

func (a *WebAdapter) Normalize(req *interfaces.WebhookRequest) ([]entities.UnboundMessage, error) {
	var ev webEvent
	if err := json.Unmarshal(req.Body, &ev); err != nil {
		return nil, fmt.Errorf("decode web event: %w", err)
	}
	if ev.Type != "" && ev.Type != "message" {
		return nil, nil
	}
	if ev.UserID == "" || ev.MessageID == "" {
		return nil, nil
	}

	received := time.Now().UTC()
	if ev.SentAt != "" {
		if t, err := time.Parse(time.RFC3339, ev.SentAt); err == nil {
			received = t.UTC()
		}
	}
	kind := entities.AttachmentNone
	if ev.Attachment != nil {
		kind = webAttachment(ev.Attachment.Kind)
	}
	return []entities.UnboundMessage{{
		ExternalUserID:    ev.UserID,
		ChannelType:       entities.ChannelWeb,
		ExternalMessageID: ev.MessageID,
		Text:              ev.Text,
		ReceivedAt:        received,
		Attachment:        kind,
	}}, nil
}

func webAttachment(kind string) entities.AttachmentKind {
	switch strings.ToLower(kind) {
	case "":
		return entities.AttachmentNone
	case "image":
		return entities.AttachmentImage
	case "file", "file_upload", "document":
		return entities.AttachmentFile
	case "audio", "voice":
		return entities.AttachmentAudio
	case "video", "video_call":
		return entities.AttachmentVideo
	case "location":
		return entities.AttachmentLocation
	}
	return entities.AttachmentOther
}

func (a *WebAdapter) Send(ctx context.Context, integration *entities.ChannelIntegration, userID, text string) error {
	callback := integration.Credential(entities.CredCallbackURL)
	if callback == "" {
		return fmt.Errorf("%w: web callback url missing", entities.ErrPermanentSend)
	}
	payload := map[string]string{
		"type":     "reply",
		"site_key": integration.ExternalIdentifier,
		"user_id":  userID,
		"text":     text,
		"sent_at":  time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal reply: %v", entities.ErrPermanentSend, err)
	}
	return postJSON(ctx, a.client, callback, json.RawMessage(data), map[string]string{
		WebSignatureHeader: "sha256=" + SignBody(integration.Credential(entities.CredWebhookSecret), data),
	})
}
