// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/semantic-orchestrator/internal/config"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger is the minimal interface for a Redis client capable of Ping.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns three readiness checks: the Postgres job
// store, Redis (rate limiter / idempotency store / scanner lease), and
// Kafka. The Kafka check only verifies a broker list was configured — the
// producer/consumer clients dial brokers lazily, so there is nothing else
// cheap to probe here.
func BuildReadinessChecks(cfg config.Config, pool Pinger, rdb RedisPinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	redisCheck := func(ctx context.Context) error {
		if rdb == nil {
			return fmt.Errorf("redis not configured")
		}
		return rdb.Ping(ctx)
	}
	kafkaCheck := func(_ context.Context) error {
		if len(cfg.KafkaBrokers) == 0 {
			return fmt.Errorf("no kafka brokers configured")
		}
		return nil
	}
	return dbCheck, redisCheck, kafkaCheck
}
