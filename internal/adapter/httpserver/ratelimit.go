package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// RateLimitMiddleware enforces a per-owner, per-endpoint-class token bucket
// via limiter, and emits the X-RateLimit-* headers SPEC_FULL.md §4.6
// requires on every limiter decision, whether or not the request is allowed.
// When the limiter returns an error the request passes through without them.
func RateLimitMiddleware(limiter domain.RateLimiter, class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			owner := ownerFrom(r)
			decision, err := limiter.Allow(r.Context(), owner, class)
			if err != nil {
				// Fail open: a rate-limiter outage must not take the API down.
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := int(time.Until(decision.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, r, fmt.Errorf("%w: per-%s rate limit exceeded", domain.ErrRateLimited, class), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
