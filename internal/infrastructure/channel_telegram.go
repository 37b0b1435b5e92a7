package infrastructure

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramAdapter speaks the Telegram Bot API. The integration's external
// identifier is the numeric bot id, which is also the prefix of its token.
type TelegramAdapter struct {
	endpoint string
	client   *http.Client

	mu   sync.RWMutex
	bots map[string]*tgbotapi.BotAPI
}

func NewTelegramAdapter(endpoint string, client *http.Client) *TelegramAdapter {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &TelegramAdapter{
		endpoint: endpoint,
		client:   client,
		bots:     make(map[string]*tgbotapi.BotAPI),
	}
}

func (a *TelegramAdapter) Type() entities.ChannelType {
	return entities.ChannelTelegram
}

// Identify takes the bot id from the webhook path. Telegram updates carry
// no bot identifier of their own.
func (a *TelegramAdapter) Identify(req *interfaces.WebhookRequest) (string, error) {
	if req.PathIdentifier == "" {
		return "", entities.ErrUnidentified
	}
	return req.PathIdentifier, nil
}

func (a *TelegramAdapter) Verify(req *interfaces.WebhookRequest, integration *entities.ChannelIntegration) error {
	secret := integration.Credential(entities.CredWebhookSecret)
	got := req.Header.Get(telegramSecretHeader)
	if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return entities.ErrVerificationFailed
	}
	return nil
}

func (a *TelegramAdapter) Normalize(req *interfaces.WebhookRequest) ([]entities.UnboundMessage, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(req.Body, &update); err != nil {
		return nil, fmt.Errorf("decode telegram update: %w", err)
	}
	// Edits, callbacks and channel posts are not customer messages.
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil, nil
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	received := time.Unix(int64(msg.Date), 0).UTC()
	if msg.Date == 0 {
		received = time.Now().UTC()
	}
	return []entities.UnboundMessage{{
		ExternalUserID:    strconv.FormatInt(msg.Chat.ID, 10),
		ChannelType:       entities.ChannelTelegram,
		ExternalMessageID: strconv.Itoa(msg.MessageID),
		Text:              text,
		ReceivedAt:        received,
		Attachment:        telegramAttachment(msg),
	}}, nil
}

func telegramAttachment(msg *tgbotapi.Message) entities.AttachmentKind {
	switch {
	case len(msg.Photo) > 0:
		return entities.AttachmentImage
	case msg.Document != nil:
		return entities.AttachmentFile
	case msg.Voice != nil, msg.Audio != nil:
		return entities.AttachmentAudio
	case msg.Video != nil, msg.VideoNote != nil:
		return entities.AttachmentVideo
	case msg.Location != nil, msg.Venue != nil:
		return entities.AttachmentLocation
	case msg.Sticker != nil:
		return entities.AttachmentSticker
	case msg.Contact != nil:
		return entities.AttachmentContact
	}
	return entities.AttachmentNone
}

func (a *TelegramAdapter) Send(ctx context.Context, integration *entities.ChannelIntegration, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid chat id %q", entities.ErrPermanentSend, chatID)
	}
	token := integration.Credential(entities.CredBotToken)
	if token == "" {
		return fmt.Errorf("%w: telegram bot token missing", entities.ErrPermanentSend)
	}

	// The bot API client takes no context; give up on the call when ctx ends
	// and let its own HTTP timeout reap it.
	done := make(chan error, 1)
	go func() {
		bot, err := a.getOrCreateBot(token)
		if err == nil {
			_, err = bot.Send(tgbotapi.NewMessage(id, text))
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return a.classify(token, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterWebhook validates the token and points the bot at publicURL.
// It returns the bot username.
func (a *TelegramAdapter) RegisterWebhook(ctx context.Context, integration *entities.ChannelIntegration, publicURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token := integration.Credential(entities.CredBotToken)
	bot, err := a.getOrCreateBot(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	params := tgbotapi.Params{"url": publicURL}
	if secret := integration.Credential(entities.CredWebhookSecret); secret != "" {
		params["secret_token"] = secret
	}
	if _, err := bot.MakeRequest("setWebhook", params); err != nil {
		return "", fmt.Errorf("set webhook: %w", err)
	}
	return bot.Self.UserName, nil
}

// BotIDFromToken returns the numeric bot id prefix of a bot token.
func BotIDFromToken(token string) string {
	id, _, ok := strings.Cut(token, ":")
	if !ok {
		return ""
	}
	return id
}

func (a *TelegramAdapter) getOrCreateBot(token string) (*tgbotapi.BotAPI, error) {
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, a.endpoint, a.client)
	if err != nil {
		return nil, err
	}
	a.bots[token] = bot
	return bot, nil
}

func (a *TelegramAdapter) forget(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bots, token)
}

// classify marks errors the Bot API will keep returning as permanent.
// A 401 also evicts the cached bot so a rotated token is picked up.
func (a *TelegramAdapter) classify(token string, err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("telegram send: %w", err)
	}
	if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound {
		a.forget(token)
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("telegram rate limited, retry after %ds: %w", apiErr.RetryAfter, err)
	}
	if isPermanentStatus(apiErr.Code) {
		return fmt.Errorf("%w: telegram %d: %s", entities.ErrPermanentSend, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("telegram send: %w", err)
}
