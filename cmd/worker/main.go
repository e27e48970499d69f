// Command worker runs the per-kind job consumers, DLQ consumers, and the
// pending-batch republisher that backstops broker publish failures.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/semantic-orchestrator/internal/app"
	"github.com/fairyhunter13/semantic-orchestrator/internal/config"
	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
	"github.com/fairyhunter13/semantic-orchestrator/internal/worker"
)

var allKinds = []domain.TransformKind{domain.KindCollection, domain.KindDataset, domain.KindVisualization}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

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

	repo := postgres.NewTransformRepo(pool)

	producer, err := redpanda.NewProducerWithTransactionalID(cfg.KafkaBrokers, "semantic-orchestrator-worker-producer")
	if err != nil {
		slog.Error("queue producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	baseRetryCfg := domain.DefaultRetryConfig()
	cfgRetry := cfg.GetRetryConfig()
	retryCfg := domain.RetryConfig{
		MaxRetries:         cfgRetry.MaxRetries,
		InitialDelay:       cfgRetry.InitialDelay,
		MaxDelay:           cfgRetry.MaxDelay,
		Multiplier:         cfgRetry.Multiplier,
		Jitter:             cfgRetry.Jitter,
		RetryableErrors:    baseRetryCfg.RetryableErrors,
		NonRetryableErrors: baseRetryCfg.NonRetryableErrors,
	}
	retryManager := redpanda.NewRetryManager(producer, repo, retryCfg)

	registry := worker.NewRegistry()
	for _, kind := range allKinds {
		registry.Register(kind, worker.NoopHandler())
	}

	for _, kind := range allKinds {
		kind := kind
		scalingInterval := time.Duration(cfg.AdaptiveConcurrencyScalingIntervalSecs) * time.Second
		concurrency := worker.NewAdaptiveConcurrency(cfg.MaxConcurrentJobs(string(kind)), scalingInterval)
		defer concurrency.Stop()

		consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, "semantic-orchestrator-workers-"+string(kind), kind, repo, producer, registry, concurrency)
		if err != nil {
			slog.Error("consumer init failed", slog.String("kind", string(kind)), slog.Any("error", err))
			os.Exit(1)
		}
		consumer.WithRetryManager(retryManager)
		defer func() {
			if err := consumer.Close(); err != nil {
				slog.Error("consumer close failed", slog.String("kind", string(kind)), slog.Any("error", err))
			}
		}()

		dlqConsumer, err := redpanda.NewDLQConsumer(cfg.KafkaBrokers, "semantic-orchestrator-dlq-"+string(kind), kind, producer)
		if err != nil {
			slog.Error("dlq consumer init failed", slog.String("kind", string(kind)), slog.Any("error", err))
			os.Exit(1)
		}
		defer dlqConsumer.Stop()
		if err := dlqConsumer.Start(ctx); err != nil {
			slog.Error("dlq consumer start failed", slog.String("kind", string(kind)), slog.Any("error", err))
		}

		go func() {
			slog.Info("starting consumer", slog.String("kind", string(kind)))
			if err := consumer.Start(ctx); err != nil {
				slog.Error("consumer stopped", slog.String("kind", string(kind)), slog.Any("error", err))
			}
		}()

		republisher := app.NewPendingBatchRepublisher(repo, producer, kind, time.Minute)
		go republisher.Run(ctx)
	}

	slog.Info("worker started successfully, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("shutdown signal received, stopping worker")
}
