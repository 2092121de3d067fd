package middleware

import (
	"net/http"
	"strings"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderAPIKey carries the plaintext API key for programmatic access.
	HeaderAPIKey = "X-API-Key"

	// Context keys
	CtxUserID     = "user_id"
	CtxAuthMethod = "auth_method"
	CtxAPIKey     = "api_key"
	CtxRequestID  = "request_id"

	// Auth methods
	AuthMethodSession = "session"
	AuthMethodAPIKey  = "api_key"
)

// RequestID assigns a request ID to every request and echoes it in the
// X-Request-ID response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Auth authenticates the request via a session JWT (Authorization: Bearer)
// or an API key (X-API-Key). Exactly one must succeed; API keys are checked
// only when no bearer token is present.
func Auth(tokenSvc ports.TokenService, keySvc ports.APIKeyService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenStr == "" {
				response.Error(c, apperror.ErrInvalidToken())
				c.Abort()
				return
			}
			claims, err := tokenSvc.Validate(tokenStr)
			if err != nil {
				response.Error(c, apperror.ErrInvalidToken())
				c.Abort()
				return
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxAuthMethod, AuthMethodSession)
			c.Next()
			return
		}

		if plaintext := c.GetHeader(HeaderAPIKey); plaintext != "" {
			key, err := keySvc.Validate(c.Request.Context(), plaintext)
			if err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
			c.Set(CtxUserID, key.UserID)
			c.Set(CtxAuthMethod, AuthMethodAPIKey)
			c.Set(CtxAPIKey, key)
			c.Next()
			return
		}

		response.Error(c, apperror.ErrAuthRequired())
		c.Abort()
	}
}

// RequirePermission enforces a permission when the request is authenticated
// with an API key. Session-authenticated users hold all permissions.
func RequirePermission(keySvc ports.APIKeyService, required domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if method, _ := c.Get(CtxAuthMethod); method != AuthMethodAPIKey {
			c.Next()
			return
		}
		keyVal, ok := c.Get(CtxAPIKey)
		if !ok {
			response.Error(c, apperror.ErrAuthRequired())
			c.Abort()
			return
		}
		key, ok := keyVal.(*domain.APIKey)
		if !ok {
			response.Error(c, apperror.ErrAuthRequired())
			c.Abort()
			return
		}
		if err := keySvc.Authorize(key, required); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// SessionOnly rejects API key authentication. Key management endpoints
// require a session JWT so a leaked key cannot mint or revoke keys.
func SessionOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if method, _ := c.Get(CtxAuthMethod); method != AuthMethodSession {
			response.Error(c, apperror.ErrAuthRequired())
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID extracts the authenticated user ID from the context.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(CtxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize returns middleware that limits the request body size.
// Once the limit is exceeded the reader returns an error and the request
// is rejected.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
