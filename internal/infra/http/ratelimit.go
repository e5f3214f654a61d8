package http

import (
	"net/http"
	"strconv"
	"time"

	"coreconnect/internal/domain"

	"github.com/gin-gonic/gin"
)

// enforceRateLimit applies the per-tenant fixed window. A limiter backend
// failure is fail-open unless configured otherwise; it is load shedding, not
// an authorization decision.
func (g *Guard) enforceRateLimit(c *gin.Context, id *domain.Identity) bool {
	if g.limiter == nil || g.cfg.RateLimitRequests <= 0 {
		return true
	}
	key := "tenant:" + id.TenantID
	decision, err := g.limiter.Allow(c.Request.Context(), key, g.cfg.RateLimitRequests, g.cfg.RateLimitWindow())
	if err != nil {
		if g.cfg.RateLimitFailClosed {
			writeErrorCode(c, http.StatusTooManyRequests, codeRateLimitBackend, "rate limiter unavailable")
			c.Abort()
			return false
		}
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded")
		c.Abort()
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
