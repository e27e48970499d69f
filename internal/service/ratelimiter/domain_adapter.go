package ratelimiter

import (
	"time"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// DomainLimiter adapts RedisLuaLimiter's (key, cost)-shaped Limiter to the
// domain.RateLimiter port's (owner, class)-shaped one: SPEC_FULL.md §4.6
// buckets per owner+endpoint-class, while the underlying Lua script only
// knows about opaque bucket keys.
type DomainLimiter struct {
	limiter     *RedisLuaLimiter
	classBucket map[string]BucketConfig
}

// NewDomainLimiter builds a DomainLimiter. classPerMinute maps an endpoint
// class ("create", "trigger", "read", ...) to its per-minute allowance.
func NewDomainLimiter(limiter *RedisLuaLimiter, classPerMinute map[string]int) *DomainLimiter {
	classBucket := make(map[string]BucketConfig, len(classPerMinute))
	for class, perMin := range classPerMinute {
		classBucket[class] = NewBucketConfigFromPerMinute(perMin)
	}
	return &DomainLimiter{limiter: limiter, classBucket: classBucket}
}

// Allow implements domain.RateLimiter. It lazily registers a per-owner
// bucket the first time a given owner+class key is seen; the bucket's
// capacity/refill never changes after that, so this is a cheap idempotent
// map write rather than a real registration step.
func (d *DomainLimiter) Allow(ctx domain.Context, owner, class string) (domain.RateLimitDecision, error) {
	if d == nil || d.limiter == nil {
		return domain.RateLimitDecision{Allowed: true}, nil
	}
	cfg, ok := d.classBucket[class]
	if !ok {
		cfg = d.classBucket["default"]
	}
	if cfg.Capacity <= 0 {
		return domain.RateLimitDecision{Allowed: true}, nil
	}

	key := owner + ":" + class
	d.limiter.SetBucketConfig(key, cfg)

	allowed, capacity, remaining, retryAfter, err := d.limiter.AllowDetailed(ctx, key, 1)
	decision := domain.RateLimitDecision{
		Allowed:   allowed,
		Limit:     int(capacity),
		Remaining: int(remaining),
		ResetAt:   time.Now().Add(retryAfter),
	}
	if retryAfter == 0 && allowed {
		// Fully refilled bucket: report the next theoretical reset as one
		// refill tick away rather than "now", which would read oddly in a
		// X-RateLimit-Reset header.
		decision.ResetAt = time.Now().Add(time.Minute / time.Duration(max64(capacity, 1)))
	}
	return decision, err
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
