package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"
	"chatdesk/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MaxWebhookBody caps provider payloads.
const MaxWebhookBody = 1 << 20

// Ingester accepts one raw webhook call for a channel.
type Ingester interface {
	Ingest(ctx context.Context, channel entities.ChannelType, req *interfaces.WebhookRequest) (usecases.IngestResult, error)
}

// Services is everything the HTTP surface needs.
type Services struct {
	Pipeline     Ingester
	Adapters     interfaces.AdapterLookup
	Auth         *usecases.AuthUsecase
	Dashboard    *usecases.DashboardUsecase
	Integrations *usecases.IntegrationService
	Middleware   *Middleware

	WebhookRate  rate.Limit
	WebhookBurst int

	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
	Log   zerolog.Logger
}

type WebhookHandler struct {
	pipeline Ingester
	adapters interfaces.AdapterLookup
	log      zerolog.Logger
}

func NewWebhookHandler(pipeline Ingester, adapters interfaces.AdapterLookup, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline: pipeline,
		adapters: adapters,
		log:      log.With().Str("component", "webhooks").Logger(),
	}
}

func SetupRoutes(r *gin.Engine, s Services) {
	m := s.Middleware
	wh := NewWebhookHandler(s.Pipeline, s.Adapters, s.Log)
	admin := NewAdminHandler(s.Auth, s.Dashboard, s.Integrations, s.Log)

	r.Use(m.Recovery())
	r.Use(m.RequestLogger())
	r.Use(SecurityHeaders())

	r.GET("/healthz", healthz(s.Ready))

	// Provider webhooks. The tenant is derived from the channel identifier,
	// never from the payload.
	hooks := r.Group("/webhooks")
	hooks.Use(RequestSizeLimiter(MaxWebhookBody))
	hooks.Use(m.RateLimitPerIP(s.WebhookRate, s.WebhookBurst))
	{
		hooks.POST("/:channel", wh.Receive)
		hooks.POST("/:channel/:identifier", wh.Receive)
		hooks.GET("/:channel", wh.Challenge)
	}

	api := r.Group("/api")
	api.Use(RequestSizeLimiter(MaxWebhookBody))
	api.Use(m.CORSMiddleware())
	api.POST("/auth/login", m.RateLimitPerIP(s.WebhookRate, s.WebhookBurst), admin.Login)

	platform := api.Group("/admin")
	platform.Use(m.AuthRequired(), m.AdminOnly())
	{
		platform.POST("/tenants", admin.CreateTenant)
		platform.PUT("/tenants/:tenant_id/status", admin.SetTenantStatus)
		platform.POST("/operators", admin.CreateOperator)
	}

	tenant := api.Group("/tenants/:tenant_id")
	tenant.Use(m.AuthRequired(), m.TenantScope())
	{
		tenant.GET("/integrations", admin.ListIntegrations)
		tenant.POST("/integrations", admin.CreateIntegration)
		tenant.POST("/integrations/:id/activate", admin.ActivateIntegration)
		tenant.POST("/integrations/:id/deactivate", admin.DeactivateIntegration)

		tenant.GET("/conversations", admin.ListConversations)
		tenant.GET("/handoffs", admin.HandoffQueue)
		tenant.GET("/conversations/:id", admin.Transcript)
		tenant.POST("/conversations/:id/resolve", admin.ResolveConversation)
		tenant.POST("/conversations/:id/return", admin.ReturnToBot)

		tenant.GET("/usage", admin.Usage)

		tenant.GET("/knowledge", admin.ListKnowledge)
		tenant.POST("/knowledge", admin.SaveKnowledge)
		tenant.GET("/rules", admin.ListRules)
		tenant.POST("/rules", admin.SaveRule)
	}
}

func healthz(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Receive handles one provider callback. Providers retry on non-2xx, so
// anything that a retry cannot fix is acknowledged with 200.
func (h *WebhookHandler) Receive(c *gin.Context) {
	channel := entities.ChannelType(c.Param("channel"))
	log := h.log.With().Str("channel", string(channel)).Logger()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	identifier := c.Param("identifier")
	if identifier != "" && !ValidIdentifier(identifier) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown webhook"})
		return
	}
	h.warnOnClaimedTenant(body, log)

	req := &interfaces.WebhookRequest{
		Header:         c.Request.Header,
		Query:          c.Request.URL.Query(),
		Body:           body,
		PathIdentifier: identifier,
	}
	res, err := h.pipeline.Ingest(c.Request.Context(), channel, req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "accepted", "messages": res.Accepted})
	case errors.Is(err, entities.ErrUnknownChannel):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown channel"})
	case errors.Is(err, entities.ErrVerificationFailed):
		log.Warn().Str("ip", c.ClientIP()).Msg("webhook verification failed")
		c.JSON(http.StatusForbidden, gin.H{"error": "Verification failed"})
	case errors.Is(err, entities.ErrTenantNotFound):
		log.Warn().Str("identifier", identifier).Msg("no tenant for webhook")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case errors.Is(err, entities.ErrUnidentified):
		log.Info().Msg("payload without channel identifier")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		log.Error().Err(err).Msg("webhook rejected")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

// Challenge answers provider GET verification (WhatsApp hub.challenge).
func (h *WebhookHandler) Challenge(c *gin.Context) {
	adapter, ok := h.adapters.Get(entities.ChannelType(c.Param("channel")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown channel"})
		return
	}
	responder, ok := adapter.(interfaces.ChallengeResponder)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown channel"})
		return
	}
	answer, err := responder.Challenge(c.Request.URL.Query())
	if err != nil {
		h.log.Warn().Err(err).Str("channel", c.Param("channel")).Msg("challenge rejected")
		c.String(http.StatusForbidden, "forbidden")
		return
	}
	c.String(http.StatusOK, answer)
}

// warnOnClaimedTenant logs payloads that try to name their own tenant.
// The field is ignored either way.
func (h *WebhookHandler) warnOnClaimedTenant(body []byte, log zerolog.Logger) {
	var claimed struct {
		TenantID   json.RawMessage `json:"tenant_id"`
		BusinessID json.RawMessage `json:"business_id"`
	}
	if json.Unmarshal(body, &claimed) != nil {
		return
	}
	if len(claimed.TenantID) > 0 || len(claimed.BusinessID) > 0 {
		log.Warn().Msg("payload carries a tenant field; ignoring it")
	}
}
