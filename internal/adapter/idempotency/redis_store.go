// Package idempotency implements domain.IdempotencyStore against Redis.
package idempotency

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

const keyPrefix = "idem:"

// RedisStore caches completed request outcomes keyed by
// owner+idempotency-key+endpoint, so a retried request with the same
// Idempotency-Key replays the original response instead of re-running the
// operation. A record's TTL is set per-Store call (SPEC_FULL.md §4.6 default
// 24h) via Redis key expiry, so cleanup needs no separate sweeper.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore builds a RedisStore.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

type record struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// Lookup implements domain.IdempotencyStore.
func (s *RedisStore) Lookup(ctx domain.Context, key string) (domain.IdempotencyRecord, bool, error) {
	if s == nil || s.rdb == nil {
		return domain.IdempotencyRecord{}, false, nil
	}
	raw, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("idempotency decode: %w", err)
	}
	return domain.IdempotencyRecord{
		Key:        key,
		StatusCode: rec.StatusCode,
		Headers:    rec.Headers,
		Body:       rec.Body,
		RecordedAt: rec.RecordedAt,
	}, true, nil
}

// Store implements domain.IdempotencyStore.
func (s *RedisStore) Store(ctx domain.Context, rec domain.IdempotencyRecord, ttl time.Duration) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(record{
		StatusCode: rec.StatusCode,
		Headers:    rec.Headers,
		Body:       rec.Body,
		RecordedAt: rec.RecordedAt,
	})
	if err != nil {
		return fmt.Errorf("idempotency encode: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := s.rdb.Set(ctx, keyPrefix+rec.Key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	return nil
}
