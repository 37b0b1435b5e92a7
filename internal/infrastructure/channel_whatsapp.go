package infrastructure

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"
)

const whatsAppSignatureHeader = "X-Hub-Signature-256"

// WhatsAppAdapter speaks the WhatsApp Business Cloud API. The integration's
// external identifier is the phone number id.
type WhatsAppAdapter struct {
	baseURL     string
	verifyToken string
	client      *http.Client
}

func NewWhatsAppAdapter(baseURL, verifyToken string, client *http.Client) *WhatsAppAdapter {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &WhatsAppAdapter{
		baseURL:     strings.TrimRight(baseURL, "/"),
		verifyToken: verifyToken,
		client:      client,
	}
}

type whatsAppPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string            `json:"field"`
			Value whatsAppChangeVal `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type whatsAppChangeVal struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		PhoneNumberID      string `json:"phone_number_id"`
		DisplayPhoneNumber string `json:"display_phone_number"`
	} `json:"metadata"`
	Messages []whatsAppMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type whatsAppMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *whatsAppMedia `json:"image"`
	Document *whatsAppMedia `json:"document"`
	Video    *whatsAppMedia `json:"video"`
}

type whatsAppMedia struct {
	Caption string `json:"caption"`
}

func (a *WhatsAppAdapter) Type() entities.ChannelType {
	return entities.ChannelWhatsApp
}

func (a *WhatsAppAdapter) parse(body []byte) (*whatsAppPayload, error) {
	var p whatsAppPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode whatsapp payload: %w", err)
	}
	return &p, nil
}

func (a *WhatsAppAdapter) Identify(req *interfaces.WebhookRequest) (string, error) {
	if req.PathIdentifier != "" {
		return req.PathIdentifier, nil
	}
	p, err := a.parse(req.Body)
	if err != nil {
		return "", err
	}
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field == "messages" && change.Value.Metadata.PhoneNumberID != "" {
				return change.Value.Metadata.PhoneNumberID, nil
			}
		}
	}
	return "", entities.ErrUnidentified
}

func (a *WhatsAppAdapter) Verify(req *interfaces.WebhookRequest, integration *entities.ChannelIntegration) error {
	if !verifyHexSignature(integration.Credential(entities.CredAppSecret), req.Header.Get(whatsAppSignatureHeader), req.Body) {
		return entities.ErrVerificationFailed
	}
	return nil
}

// Challenge answers the GET subscription handshake.
func (a *WhatsAppAdapter) Challenge(query url.Values) (string, error) {
	if a.verifyToken == "" || query.Get("hub.mode") != "subscribe" {
		return "", entities.ErrVerificationFailed
	}
	if subtle.ConstantTimeCompare([]byte(query.Get("hub.verify_token")), []byte(a.verifyToken)) != 1 {
		return "", entities.ErrVerificationFailed
	}
	return query.Get("hub.challenge"), nil
}

func (a *WhatsAppAdapter) Normalize(req *interfaces.WebhookRequest) ([]entities.UnboundMessage, error) {
	p, err := a.parse(req.Body)
	if err != nil {
		return nil, err
	}

	var out []entities.UnboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, m := range change.Value.Messages {
				if m.ID == "" || m.From == "" {
					continue
				}
				out = append(out, entities.UnboundMessage{
					ExternalUserID:    m.From,
					ChannelType:       entities.ChannelWhatsApp,
					ExternalMessageID: m.ID,
					Text:              m.text(),
					ReceivedAt:        parseUnixString(m.Timestamp),
					Attachment:        whatsAppAttachment(m.Type),
				})
			}
		}
	}
	return out, nil
}

func (m whatsAppMessage) text() string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Image != nil:
		return m.Image.Caption
	case m.Document != nil:
		return m.Document.Caption
	case m.Video != nil:
		return m.Video.Caption
	}
	return ""
}

func whatsAppAttachment(kind string) entities.AttachmentKind {
	switch kind {
	case "text", "":
		return entities.AttachmentNone
	case "image":
		return entities.AttachmentImage
	case "document":
		return entities.AttachmentFile
	case "audio", "voice":
		return entities.AttachmentAudio
	case "video":
		return entities.AttachmentVideo
	case "location":
		return entities.AttachmentLocation
	case "sticker":
		return entities.AttachmentSticker
	case "contacts":
		return entities.AttachmentContact
	}
	return entities.AttachmentOther
}

func (a *WhatsAppAdapter) Send(ctx context.Context, integration *entities.ChannelIntegration, to, text string) error {
	token := integration.Credential(entities.CredAccessToken)
	if token == "" {
		return fmt.Errorf("%w: whatsapp access token missing", entities.ErrPermanentSend)
	}
	endpoint := fmt.Sprintf("%s/%s/messages", a.baseURL, url.PathEscape(integration.ExternalIdentifier))
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]string{
			"body": text,
		},
	}
	return postJSON(ctx, a.client, endpoint, payload, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func parseUnixString(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
