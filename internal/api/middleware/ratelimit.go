package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sundaiclub/verifAI/internal/pkg/metrics"
)

// Limiter is the subset of the rate limiter the middleware needs.
type Limiter interface {
	Allow(ctx context.Context) (bool, error)
}

// RateLimit rejects requests with 429 when the shared token bucket is empty.
// Limiter errors fail open: an unreachable Redis must not take uploads down.
func RateLimit(limiter Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		allowed, err := limiter.Allow(c.Request.Context())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limiter check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitRejectedTotal.Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
