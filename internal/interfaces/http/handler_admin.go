package http

import (
	"errors"
	"net/http"
	"strconv"

	"chatdesk/internal/entities"
	"chatdesk/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AdminHandler serves the operator API: tenants, integrations, the
// handoff queue, usage, and tenant knowledge.
type AdminHandler struct {
	auth         *usecases.AuthUsecase
	dashboard    *usecases.DashboardUsecase
	integrations *usecases.IntegrationService
	log          zerolog.Logger
}

func NewAdminHandler(auth *usecases.AuthUsecase, dashboard *usecases.DashboardUsecase, integrations *usecases.IntegrationService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		auth:         auth,
		dashboard:    dashboard,
		integrations: integrations,
		log:          log.With().Str("component", "ops_api").Logger(),
	}
}

// respondError maps domain errors to status codes. Unexpected errors are
// logged and hidden from the caller.
func (h *AdminHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entities.ErrNotFound), errors.Is(err, entities.ErrTenantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, entities.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, entities.ErrInvalidInput), errors.Is(err, entities.ErrUnknownChannel):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, entities.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Platform administration

func (h *AdminHandler) CreateTenant(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	name := SanitizeString(req.Name)
	if !ValidateLength(name, 1, MaxNameLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant name"})
		return
	}
	tenant, err := h.dashboard.CreateTenant(c.Request.Context(), name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tenant)
}

func (h *AdminHandler) SetTenantStatus(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.dashboard.SetTenantActive(c.Request.Context(), c.Param("tenant_id"), *req.Active); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": *req.Active})
}

func (h *AdminHandler) CreateOperator(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
		Role     string `json:"role" binding:"required,oneof=admin agent"`
		TenantID string `json:"tenant_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidUsername(req.Username) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username"})
		return
	}
	if req.Role == entities.RoleAgent && req.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Agents need a tenant"})
		return
	}
	op, err := h.auth.CreateOperator(c.Request.Context(), req.Username, req.Password, req.Role, req.TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}

// Channel integrations

func (h *AdminHandler) ListIntegrations(c *gin.Context) {
	list, err := h.integrations.List(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AdminHandler) CreateIntegration(c *gin.Context) {
	var req struct {
		ChannelType        string            `json:"channel_type" binding:"required"`
		ExternalIdentifier string            `json:"external_identifier"`
		Credentials        map[string]string `json:"credentials" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	channel := entities.ChannelType(req.ChannelType)
	if !channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown channel type"})
		return
	}
	if req.ExternalIdentifier != "" && !ValidIdentifier(req.ExternalIdentifier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid external identifier"})
		return
	}

	integration, err := h.integrations.Create(c.Request.Context(), c.Param("tenant_id"), channel, req.ExternalIdentifier, req.Credentials)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, integration)
}

func (h *AdminHandler) ActivateIntegration(c *gin.Context) {
	integration, err := h.integrations.Activate(c.Request.Context(), c.Param("tenant_id"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, integration)
}

func (h *AdminHandler) DeactivateIntegration(c *gin.Context) {
	if err := h.integrations.Deactivate(c.Request.Context(), c.Param("tenant_id"), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": false})
}

// Conversations

func (h *AdminHandler) ListConversations(c *gin.Context) {
	status := entities.ConversationStatus(c.Query("status"))
	switch status {
	case "", entities.StatusActive, entities.StatusHandedOff, entities.StatusResolved:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	convs, err := h.dashboard.ListConversations(c.Request.Context(), c.Param("tenant_id"), status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *AdminHandler) HandoffQueue(c *gin.Context) {
	convs, err := h.dashboard.HandoffQueue(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *AdminHandler) Transcript(c *gin.Context) {
	conv, msgs, err := h.dashboard.Transcript(c.Request.Context(), c.Param("tenant_id"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": msgs})
}

func (h *AdminHandler) ResolveConversation(c *gin.Context) {
	if err := h.dashboard.ResolveConversation(c.Request.Context(), c.Param("tenant_id"), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": entities.StatusResolved})
}

func (h *AdminHandler) ReturnToBot(c *gin.Context) {
	if err := h.dashboard.ReturnToBot(c.Request.Context(), c.Param("tenant_id"), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": entities.StatusActive})
}

// Usage

func (h *AdminHandler) Usage(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	usage, err := h.dashboard.UsageHistory(c.Request.Context(), c.Param("tenant_id"), days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// Knowledge and rules

func (h *AdminHandler) ListKnowledge(c *gin.Context) {
	entries, err := h.dashboard.ListKnowledge(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *AdminHandler) SaveKnowledge(c *gin.Context) {
	var req struct {
		ID       string   `json:"id"`
		Question string   `json:"question" binding:"required"`
		Answer   string   `json:"answer" binding:"required"`
		Keywords []string `json:"keywords"`
		Active   *bool    `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	entry := &entities.KnowledgeEntry{
		ID:       req.ID,
		TenantID: c.Param("tenant_id"),
		Question: SanitizeString(req.Question),
		Answer:   SanitizeString(req.Answer),
		Keywords: SanitizeKeywords(req.Keywords),
		Active:   req.Active == nil || *req.Active,
	}
	if !ValidateLength(entry.Question, 1, MaxQuestionLength) || !ValidateLength(entry.Answer, 1, MaxAnswerLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question or answer too long"})
		return
	}
	if err := h.dashboard.SaveKnowledge(c.Request.Context(), entry); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *AdminHandler) ListRules(c *gin.Context) {
	rules, err := h.dashboard.ListRules(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *AdminHandler) SaveRule(c *gin.Context) {
	var req struct {
		ID        string `json:"id"`
		Priority  int    `json:"priority" binding:"gte=0"`
		Condition string `json:"condition"`
		Directive string `json:"directive" binding:"required"`
		Active    *bool  `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	rule := &entities.AIRule{
		ID:        req.ID,
		TenantID:  c.Param("tenant_id"),
		Priority:  req.Priority,
		Condition: SanitizeString(req.Condition),
		Directive: SanitizeString(req.Directive),
		Active:    req.Active == nil || *req.Active,
	}
	if !ValidateLength(rule.Directive, 1, MaxRuleLength) || !ValidateLength(rule.Condition, 0, MaxRuleLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rule too long"})
		return
	}
	if err := h.dashboard.SaveRule(c.Request.Context(), rule); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}
