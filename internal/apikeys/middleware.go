package apikeys

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/response"
)

// HeaderAPIKey carries the raw key on partner data API requests.
const HeaderAPIKey = "X-API-Key"

// ContextAPIKey is the gin context key for the authenticated *models.APIKey.
const ContextAPIKey = "api_key"

// Authenticator resolves raw keys.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.APIKey, error)
}

// Limiter counts key usage.
type Limiter interface {
	Allow(ctx context.Context, key *models.APIKey) (Decision, error)
}

// RequireAPIKey authenticates X-API-Key, checks scope and applies the key's
// quotas. Quota backend failures are logged and the request is let through.
func RequireAPIKey(auth Authenticator, limiter Limiter, scope models.APIKeyScope, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderAPIKey)
		if raw == "" {
			response.Abort(c, logger, apperr.AuthenticationRequired())
			return
		}
		key, err := auth.Authenticate(c.Request.Context(), raw)
		if err != nil {
			response.Abort(c, logger, err)
			return
		}
		if !key.HasScope(scope) {
			response.Abort(c, logger, apperr.Forbidden("api key lacks the "+string(scope)+" scope"))
			return
		}

		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("api key quota unavailable, allowing request", zap.String("key_prefix", key.KeyPrefix), zap.Error(err))
		} else {
			c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				response.Abort(c, logger, apperr.RateLimited("api key rate limit exceeded"))
				return
			}
		}
		c.Set(ContextAPIKey, key)
		c.Next()
	}
}
