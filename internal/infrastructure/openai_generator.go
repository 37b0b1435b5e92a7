package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"chatdesk/internal/entities"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

var (
	errNoAPIKey       = errors.New("generation service not configured")
	errEmptyChoices   = errors.New("completion has no choices")
	errEmptyContent   = errors.New("completion content is empty")
	errTruncatedReply = errors.New("completion was cut off by the content filter")
)

// OpenAIGenerator calls an OpenAI-compatible chat completions API under a
// hard timeout and reports the result as a tagged outcome.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	temperature float32
	log         zerolog.Logger
}

func NewOpenAIGenerator(apiKey, baseURL, model string, timeout time.Duration, log zerolog.Logger) *OpenAIGenerator {
	g := &OpenAIGenerator{
		model:       model,
		timeout:     timeout,
		temperature: 0.7,
		log:         log.With().Str("component", "generator").Logger(),
	}
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		g.client = openai.NewClientWithConfig(cfg)
	}
	return g
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req entities.GenerationRequest) entities.GenerationResult {
	if g.client == nil {
		return entities.GenerationResult{Outcome: entities.OutcomeUnavailable, Err: errNoAPIKey}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.Instructions},
			{Role: openai.ChatMessageRoleUser, Content: req.Input},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: g.temperature,
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := classifyGenerationError(ctx, err)
		g.log.Warn().Err(err).Str("outcome", string(outcome)).Dur("elapsed", elapsed).Msg("generation failed")
		return entities.GenerationResult{Outcome: outcome, Err: err}
	}

	if len(resp.Choices) == 0 {
		return entities.GenerationResult{Outcome: entities.OutcomeMalformed, Err: errEmptyChoices}
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return entities.GenerationResult{Outcome: entities.OutcomeMalformed, Err: errTruncatedReply}
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return entities.GenerationResult{Outcome: entities.OutcomeMalformed, Err: errEmptyContent}
	}

	g.log.Debug().Dur("elapsed", elapsed).Int("tokens", resp.Usage.TotalTokens).Msg("generation succeeded")
	return entities.GenerationResult{Outcome: entities.OutcomeSuccess, Text: text}
}

func classifyGenerationError(ctx context.Context, err error) entities.GenerationOutcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return entities.OutcomeTimeout
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return entities.OutcomeUnavailable
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return entities.OutcomeMalformed
	}
	return entities.OutcomeUnavailable
}
