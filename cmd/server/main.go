// Command server starts the semantic-orchestrator HTTP API, its scan
// trigger loop, and the result-listener SSE fan-out.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/httpserver"
	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/idempotency"
	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/source"
	"github.com/fairyhunter13/semantic-orchestrator/internal/app"
	"github.com/fairyhunter13/semantic-orchestrator/internal/config"
	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
	"github.com/fairyhunter13/semantic-orchestrator/internal/listener"
	"github.com/fairyhunter13/semantic-orchestrator/internal/scanner"
	"github.com/fairyhunter13/semantic-orchestrator/internal/service/ratelimiter"
	"github.com/fairyhunter13/semantic-orchestrator/internal/usecase"
)

// redisPinger adapts *redis.Client to app.RedisPinger: redis.Client.Ping
// returns a *redis.StatusCmd, not a plain error.
type redisPinger struct{ *redis.Client }

func (r redisPinger) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

var allKinds = []domain.TransformKind{domain.KindCollection, domain.KindDataset, domain.KindVisualization}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid redis url", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close producer", slog.Any("error", err))
		}
	}()

	repo := postgres.NewTransformRepo(pool)
	transforms := usecase.NewTransformService(repo, producer)
	hub := listener.NewHub()

	enumerator := source.NoopEnumerator{}

	intervals := map[domain.TransformKind]time.Duration{
		domain.KindCollection: cfg.ScanIntervalCollection,
		domain.KindDataset:    cfg.ScanIntervalDataset,
	}
	for _, kind := range allKinds {
		kind := kind
		sc, err := scanner.New(scanner.Config{
			Brokers: cfg.KafkaBrokers, GroupID: "semantic-orchestrator-scanner-" + string(kind),
			Kind: kind, Repo: repo, Broker: producer, Enumerator: enumerator,
			Redis: rdb, LeaseTTL: cfg.ScanLeaseTTL, AckWait: cfg.ScanAckWait,
		})
		if err != nil {
			slog.Error("scanner init failed", slog.String("kind", string(kind)), slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := sc.Close(); err != nil {
				slog.Error("scanner close failed", slog.String("kind", string(kind)), slog.Any("error", err))
			}
		}()
		if interval, ok := intervals[kind]; ok {
			go sc.RunPeriodic(ctx, interval)
		}
		go func() {
			if err := sc.ConsumeTriggers(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("scanner trigger consumption stopped", slog.String("kind", string(kind)), slog.Any("error", err))
			}
		}()

		lst, err := listener.NewListener(cfg.KafkaBrokers, "semantic-orchestrator-listener-"+string(kind), kind, repo, hub)
		if err != nil {
			slog.Error("listener init failed", slog.String("kind", string(kind)), slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := lst.Close(); err != nil {
				slog.Error("listener close failed", slog.String("kind", string(kind)), slog.Any("error", err))
			}
		}()
		go func() {
			if err := lst.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("result listener stopped", slog.String("kind", string(kind)), slog.Any("error", err))
			}
		}()
	}

	luaLimiter := ratelimiter.NewRedisLuaLimiter(rdb, pool, nil)
	domainLimiter := ratelimiter.NewDomainLimiter(luaLimiter, map[string]int{
		"create":  cfg.RateLimitCreatePerMin,
		"trigger": cfg.RateLimitTriggerPerMin,
		"read":    cfg.RateLimitReadPerMin,
		"default": cfg.RateLimitDefaultPerMin,
	})
	idemStore := idempotency.NewRedisStore(rdb)

	dbCheck, redisCheck, kafkaCheck := app.BuildReadinessChecks(cfg, pool, redisPinger{rdb})
	srv := httpserver.NewServer(transforms, hub, dbCheck, redisCheck, kafkaCheck)
	handler := app.BuildRouter(cfg, srv, domainLimiter, idemStore)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
