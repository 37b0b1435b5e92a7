package http

import (
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Context keys set by AuthRequired.
const (
	ctxOperatorID = "user_id"
	ctxRole       = "role"
	ctxTenantID   = "tenant_id"
)

// maxTrackedClients bounds the per-IP limiter table.
const maxTrackedClients = 10000

type TokenParser interface {
	ParseToken(token string) (*usecases.Claims, error)
}

type Middleware struct {
	auth TokenParser
	log  zerolog.Logger
}

func NewMiddleware(auth TokenParser, log zerolog.Logger) *Middleware {
	return &Middleware{auth: auth, log: log}
}

func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := m.auth.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ctxOperatorID, claims.OperatorID)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxTenantID, claims.TenantID)
		c.Next()
	}
}

// AdminOnly must follow AuthRequired.
func (m *Middleware) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != entities.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// TenantScope allows admins into any tenant and agents only into their own.
// It must follow AuthRequired on routes with a :tenant_id parameter.
func (m *Middleware) TenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		requested := c.Param("tenant_id")
		if c.GetString(ctxRole) == entities.RoleAdmin {
			c.Next()
			return
		}
		if requested == "" || requested != c.GetString(ctxTenantID) {
			// Same response as a missing tenant so ids cannot be probed.
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		c.Next()
	}
}

// RateLimitPerIP limits requests per client address. Each call gets its
// own limiter table, so route groups do not share budgets.
func (m *Middleware) RateLimitPerIP(r rate.Limit, b int) gin.HandlerFunc {
	var (
		mu           sync.Mutex
		rateLimiters = make(map[string]*rate.Limiter)
	)
	return func(c *gin.Context) {
		key := c.ClientIP()

		mu.Lock()
		limiter, exists := rateLimiters[key]
		if !exists {
			if len(rateLimiters) >= maxTrackedClients {
				rateLimiters = make(map[string]*rate.Limiter)
			}
			limiter = rate.NewLimiter(r, b)
			rateLimiters[key] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			m.log.Warn().Str("ip", key).Str("path", c.FullPath()).Msg("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// RequestLogger writes one structured line per request.
func (m *Middleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := m.log.Info()
		if status >= http.StatusInternalServerError {
			ev = m.log.Error()
		} else if status >= http.StatusBadRequest {
			ev = m.log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}

// Recovery turns a handler panic into a logged 500.
func (m *Middleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Str("path", c.Request.URL.Path).
					Msg("recovered from handler panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware allows Cross-Origin requests
func (m *Middleware) CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// RequestSizeLimiter caps the request body. Handlers see a
// *http.MaxBytesError when reading past the cap.
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
