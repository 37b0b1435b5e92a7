package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatdesk/internal/config"
	"chatdesk/internal/infrastructure"
	"chatdesk/internal/interfaces"
	"chatdesk/internal/interfaces/http"
	"chatdesk/internal/repository"
	"chatdesk/internal/repository/memstore"
	"chatdesk/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := infrastructure.NewLogger(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		store interfaces.Store
		ready func(ctx context.Context) error
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pgClient.Close()
		store = repository.NewPostgresStore(pgClient.Pool)
		ready = pgClient.Pool.Ping
		log.Info().Msg("using postgres store")
	default:
		store = memstore.New()
		log.Warn().Msg("using in-memory store; data is lost on restart")
	}

	// Spam counter and handoff notifications use Redis when configured.
	var (
		spam     interfaces.SpamCounter
		notifier interfaces.HandoffNotifier
	)
	if cfg.RedisURL != "" {
		rdb, err := infrastructure.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		spam = infrastructure.NewRedisSpamCounter(rdb, cfg.SpamLimit, cfg.SpamWindow)
		notifier = infrastructure.NewRedisHandoffPublisher(rdb)
	} else {
		memSpam := infrastructure.NewMemorySpamCounter(cfg.SpamLimit, cfg.SpamWindow)
		defer memSpam.Close()
		spam = memSpam
		notifier = infrastructure.NewLogHandoffNotifier(log)
	}

	// Channels
	providerClient := &nethttp.Client{Timeout: 15 * time.Second}
	adapters := infrastructure.NewAdapterRegistry()
	adapters.MustRegister(infrastructure.NewTelegramAdapter(cfg.TelegramAPIEndpoint, providerClient))
	adapters.MustRegister(infrastructure.NewWhatsAppAdapter(cfg.WhatsAppAPIBase, cfg.WhatsAppVerifyToken, providerClient))
	adapters.MustRegister(infrastructure.NewWebAdapter(providerClient))

	credentials := infrastructure.NewCredentialBox(cfg.CredentialsKey)
	locks := infrastructure.NewConversationLocks()
	generator := infrastructure.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.GenerationTimeout, log)
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set; every reply will use the fallback responder")
	}

	// Pipeline
	resolver := usecases.NewTenantResolver(store, credentials, log)
	router := usecases.NewConversationRouter(store, locks, log)
	engine := usecases.NewResponseEngine(
		store,
		generator,
		usecases.NewInterceptor(spam, cfg.MaxMessageLength, log),
		usecases.NewFallbackResponder(cfg.FallbackMatchThreshold),
		notifier,
		usecases.EngineSettings{
			KnowledgeFetchLimit: cfg.KnowledgeFetchLimit,
			KnowledgeTopK:       cfg.KnowledgeTopK,
			MaxTokens:           cfg.GenerationMaxTokens,
		},
		log,
	)
	dispatcher := usecases.NewDispatcher(store, adapters, usecases.DispatchSettings{
		Attempts:   cfg.DispatchAttempts,
		MaxElapsed: cfg.DispatchMaxElapsed,
	}, log)
	pipeline := usecases.NewPipeline(adapters, resolver, router, engine, dispatcher, log)

	// Ops API
	authUsecase := usecases.NewAuthUsecase(store, cfg.JWTSecret)
	if err := authUsecase.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Warn().Err(err).Msg("failed to ensure admin user")
	}
	dashboardUsecase := usecases.NewDashboardUsecase(store, locks)
	integrationService := usecases.NewIntegrationService(store, credentials, adapters, cfg.PublicBaseURL, log)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	http.SetupRoutes(r, http.Services{
		Pipeline:     pipeline,
		Adapters:     adapters,
		Auth:         authUsecase,
		Dashboard:    dashboardUsecase,
		Integrations: integrationService,
		Middleware:   http.NewMiddleware(authUsecase, log),
		WebhookRate:  rate.Limit(cfg.WebhookRate),
		WebhookBurst: cfg.WebhookBurst,
		Ready:        ready,
		Log:          log,
	})

	srv := &nethttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// Let in-flight conversations finish their replies.
	if err := pipeline.Wait(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("pipeline did not drain")
	}
}
