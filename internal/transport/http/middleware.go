package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pulsechat-server/internal/auth"
	"github.com/vovakirdan/pulsechat-server/internal/metrics"
	"github.com/vovakirdan/pulsechat-server/internal/ratelimit"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUserName is the context key for storing the display name.
	ContextKeyUserName = "user_name"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageLimiter throttles message posting per user.
type MessageLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	Remaining(ctx context.Context, identifier string, rule ratelimit.Rule) (int, error)
}

// HeaderRateLimitRemaining reports how many sends are left in the window.
const HeaderRateLimitRemaining = "X-RateLimit-Remaining"

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUserName, claims.Name)

		c.Next()
	}
}

// RateLimitMiddleware rejects callers over the rule with 429. A nil limiter
// lets everything through, and limiter errors fail open.
func RateLimitMiddleware(limiter MessageLimiter, rule ratelimit.Rule, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		userID := c.GetString(ContextKeyUserID)
		allowed, err := limiter.Allow(c.Request.Context(), userID, rule)
		if err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("rate limiter unavailable")
		}
		if !allowed {
			metrics.DroppedEventsTotal.WithLabelValues("rate_limited").Inc()
			c.Header(HeaderRateLimitRemaining, "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many messages, slow down"})
			return
		}

		if err == nil {
			if remaining, rerr := limiter.Remaining(c.Request.Context(), userID, rule); rerr == nil {
				c.Header(HeaderRateLimitRemaining, strconv.Itoa(remaining))
			}
		}

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		ev := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Str("user_id", c.GetString(ContextKeyUserID)).
			Msg("http request")
	}
}

// callerID returns the authenticated user id set by AuthMiddleware.
func callerID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyUserID)
	return id, id != ""
}
