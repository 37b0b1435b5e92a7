package usecases

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"chatdesk/internal/entities"
	"chatdesk/internal/infrastructure"
	"chatdesk/internal/interfaces"

	"github.com/rs/zerolog"
)

const (
	ReplyThrottled   = "You're sending messages very quickly. Please slow down a little so I can help you properly."
	ReplyTooLong     = "Your message is quite long. Could you please shorten it or split it into smaller questions?"
	ReplyNeedWords   = "Please describe your request in words so I can help you."
	ReplyUnsupported = "I can only answer text questions for now. Please type your question and I'll be glad to help."
)

// Interception reasons, also used as memory outcomes.
const (
	InterceptSpam        = "rate_limited"
	InterceptLength      = "too_long"
	InterceptShape       = "no_words"
	InterceptUnsupported = "unsupported_attachment"
)

type interception struct {
	reason string
	reply  string
}

// Interceptor answers messages that should never reach retrieval or
// generation.
type Interceptor struct {
	spam      interfaces.SpamCounter
	maxLength int
	log       zerolog.Logger
}

func NewInterceptor(spam interfaces.SpamCounter, maxLength int, log zerolog.Logger) *Interceptor {
	return &Interceptor{spam: spam, maxLength: maxLength, log: log}
}

// Check records the hit in the spam window and returns the static reply for
// the first rule that matches, or nil.
func (i *Interceptor) Check(ctx context.Context, turn *Turn) *interception {
	if i.spam != nil {
		allowed, err := i.spam.Allow(ctx, infrastructure.SpamKey(turn.TenantID, turn.Contact.ID))
		if err != nil {
			// Counter outages must not block replies.
			i.log.Warn().Err(err).Str("tenant_id", turn.TenantID).Msg("spam counter unavailable")
		} else if !allowed {
			return &interception{reason: InterceptSpam, reply: ReplyThrottled}
		}
	}

	text := strings.TrimSpace(turn.Inbound.Content)
	if i.maxLength > 0 && utf8.RuneCountInString(text) > i.maxLength {
		return &interception{reason: InterceptLength, reply: ReplyTooLong}
	}
	if turn.Attachment != entities.AttachmentNone && text == "" {
		return &interception{reason: InterceptUnsupported, reply: ReplyUnsupported}
	}
	if !hasWords(text) {
		return &interception{reason: InterceptShape, reply: ReplyNeedWords}
	}
	return nil
}

// hasWords reports whether s contains at least one letter or digit.
// Emoji, pictographs and punctuation alone do not count.
func hasWords(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
