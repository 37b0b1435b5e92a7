package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Env      string `validate:"oneof=development production test"`
	LogLevel string `validate:"oneof=trace debug info warn error"`
	HTTPAddr string `validate:"required"`
	// PublicBaseURL is where providers reach this service; webhooks are
	// registered under it on activation. Empty disables registration.
	PublicBaseURL string `validate:"omitempty,url"`

	StoreDriver string `validate:"oneof=memory postgres"`
	DatabaseURL string `validate:"required_if=StoreDriver postgres"`
	RedisURL    string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string `validate:"required"`

	GenerationTimeout      time.Duration `validate:"gt=0"`
	GenerationMaxTokens    int           `validate:"gt=0"`
	SpamLimit              int           `validate:"gt=0"`
	SpamWindow             time.Duration `validate:"gt=0"`
	MaxMessageLength       int           `validate:"gt=0"`
	KnowledgeFetchLimit    int           `validate:"gt=0"`
	KnowledgeTopK          int           `validate:"gt=0"`
	FallbackMatchThreshold int           `validate:"gt=0"`
	DispatchAttempts       int           `validate:"gte=1,lte=10"`
	DispatchMaxElapsed     time.Duration `validate:"gt=0"`

	WhatsAppVerifyToken string
	WhatsAppAPIBase     string `validate:"required,url"`
	TelegramAPIEndpoint string `validate:"required"`

	CredentialsKey string `validate:"required,min=16"`
	JWTSecret      string `validate:"required,min=16"`
	AdminUsername  string
	AdminPassword  string

	WebhookRate  float64 `validate:"gt=0"`
	WebhookBurst int     `validate:"gt=0"`
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Unset keys take defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}
	cfg := &Config{
		Env:      r.str("ENV", "development"),
		LogLevel: r.str("LOG_LEVEL", "info"),
		HTTPAddr: r.str("HTTP_ADDR", "0.0.0.0:8080"),

		PublicBaseURL: r.str("PUBLIC_BASE_URL", ""),

		StoreDriver: r.str("STORE_DRIVER", StorePostgres),
		DatabaseURL: r.str("DATABASE_URL", ""),
		RedisURL:    r.str("REDIS_URL", ""),

		OpenAIAPIKey:  r.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL: r.str("OPENAI_BASE_URL", ""),
		OpenAIModel:   r.str("OPENAI_MODEL", "gpt-4o-mini"),

		GenerationTimeout:      r.duration("GENERATION_TIMEOUT", 10*time.Second),
		GenerationMaxTokens:    r.int("GENERATION_MAX_TOKENS", 500),
		SpamLimit:              r.int("SPAM_LIMIT", 5),
		SpamWindow:             r.duration("SPAM_WINDOW", 10*time.Second),
		MaxMessageLength:       r.int("MAX_MESSAGE_LENGTH", 2000),
		KnowledgeFetchLimit:    r.int("KNOWLEDGE_FETCH_LIMIT", 50),
		KnowledgeTopK:          r.int("KNOWLEDGE_TOP_K", 5),
		FallbackMatchThreshold: r.int("FALLBACK_MATCH_THRESHOLD", 3),
		DispatchAttempts:       r.int("DISPATCH_ATTEMPTS", 3),
		DispatchMaxElapsed:     r.duration("DISPATCH_MAX_ELAPSED", 10*time.Second),

		WhatsAppVerifyToken: r.str("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAPIBase:     r.str("WHATSAPP_API_BASE", "https://graph.facebook.com/v18.0"),
		TelegramAPIEndpoint: r.str("TELEGRAM_API_ENDPOINT", "https://api.telegram.org/bot%s/%s"),

		CredentialsKey: r.str("CREDENTIALS_KEY", ""),
		JWTSecret:      r.str("JWT_SECRET", ""),
		AdminUsername:  r.str("ADMIN_USERNAME", ""),
		AdminPassword:  r.str("ADMIN_PASSWORD", ""),

		WebhookRate:  r.float("WEBHOOK_RATE", 5),
		WebhookBurst: r.int("WEBHOOK_BURST", 20),
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) str(key, def string) string {
	if v := r.getenv(key); v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("parse %s: %w", key, err)
	}
}
