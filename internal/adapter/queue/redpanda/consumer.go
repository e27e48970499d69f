// Package redpanda provides Redpanda/Kafka queue integration.
//
// It handles message publishing and consumption for transform jobs. The
// package provides reliable message delivery with exactly-once semantics
// and supports horizontal scaling of workers across transform kinds.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	adapterobservability "github.com/fairyhunter13/semantic-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
	"github.com/fairyhunter13/semantic-orchestrator/internal/observability"
	"github.com/fairyhunter13/semantic-orchestrator/internal/worker"
)

// Consumer wraps a Kafka consumer group for one transform kind. It dispatches
// each unit of work through a kind-registered worker.Handler under an
// adaptive concurrency ceiling: a permit is acquired before a fetched
// record's payload is deserialized, and when none is free the fetch loop
// waits for one instead of skipping the record.
type Consumer struct {
	session *kgo.GroupTransactSession

	kind         domain.TransformKind
	repo         domain.TransformRepository
	broker       domain.Broker
	registry     *worker.Registry
	concurrency  *worker.AdaptiveConcurrency
	retryManager *RetryManager

	observableClient *observability.IntegratedObservableClient
	groupID          string
	topic            string

	adaptivePoller *AdaptivePoller
	shutdown       chan struct{}

	brokers         []string
	transactionalID string
}

// NewConsumer constructs a Consumer for one transform kind with exactly-once
// semantics.
func NewConsumer(brokers []string, groupID string, kind domain.TransformKind, repo domain.TransformRepository, broker domain.Broker, registry *worker.Registry, concurrency *worker.AdaptiveConcurrency) (*Consumer, error) {
	return NewConsumerWithTransactionalID(brokers, groupID, "semantic-orchestrator-consumer-"+string(kind), kind, repo, broker, registry, concurrency)
}

// NewConsumerWithTransactionalID constructs a Consumer with a custom
// transactional ID. Useful in tests to avoid conflicts between multiple
// consumers sharing the same brokers.
func NewConsumerWithTransactionalID(brokers []string, groupID string, transactionalID string, kind domain.TransformKind, repo domain.TransformRepository, broker domain.Broker, registry *worker.Registry, concurrency *worker.AdaptiveConcurrency) (*Consumer, error) {
	slog.Info("creating redpanda consumer", slog.Any("brokers", brokers), slog.String("group_id", groupID), slog.String("transactional_id", transactionalID), slog.String("kind", string(kind)))

	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}

	topic := WorkerTopic(kind)

	observableClient := observability.NewIntegratedObservableClient(
		observability.ConnectionTypeQueue,
		observability.OperationTypePoll,
		brokers[0],
		"semantic-orchestrator-worker",
		10*time.Second,
		1*time.Second,
		60*time.Second,
	)

	ctx := context.Background()
	tempClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		slog.Error("failed to create temp client for topic creation", slog.Any("error", err))
		return nil, fmt.Errorf("temp client: %w", err)
	}
	defer tempClient.Close()

	if err := createOptimizedTopicForParallelProcessing(ctx, tempClient, topic, 8, 1); err != nil {
		slog.Warn("failed to create optimized topic, falling back to standard topic creation",
			slog.String("topic", topic), slog.Any("error", err))
		if err := createTopicIfNotExists(ctx, tempClient, topic, 1, 1); err != nil {
			slog.Warn("failed to create topic, it may already exist", slog.String("topic", topic), slog.Any("error", err))
		}
	}

	kotelTracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(kotelTracer))

	opts := consumerOpts(brokers, transactionalID, groupID, topic, kotelService)
	session, err := kgo.NewGroupTransactSession(opts...)
	if err != nil {
		slog.Error("failed to create redpanda transactional session",
			slog.Any("error", err), slog.String("transactional_id", transactionalID), slog.String("group_id", groupID), slog.String("topic", topic))
		return nil, fmt.Errorf("redpanda transactional session: %w", err)
	}

	slog.Info("redpanda consumer created successfully", slog.String("kind", string(kind)), slog.String("topic", topic))
	return &Consumer{
		observableClient: observableClient,
		session:          session,
		kind:             kind,
		repo:             repo,
		broker:           broker,
		registry:         registry,
		concurrency:      concurrency,
		groupID:          groupID,
		topic:            topic,
		shutdown:         make(chan struct{}),
		brokers:          brokers,
		transactionalID:  transactionalID,
		adaptivePoller:   NewAdaptivePoller(100 * time.Millisecond),
	}, nil
}

func consumerOpts(brokers []string, transactionalID, groupID, topic string, kotelService *kotel.Kotel) []kgo.Opt {
	return []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.RequireStableFetchOffsets(),
		kgo.WithHooks(kotelService.Hooks()...),

		kgo.DialTimeout(10 * time.Second),
		kgo.RequestTimeoutOverhead(5 * time.Second),
		kgo.RetryTimeout(30 * time.Second),
		kgo.SessionTimeout(30 * time.Second),
		kgo.HeartbeatInterval(3 * time.Second),
		kgo.RebalanceTimeout(10 * time.Second),

		kgo.FetchMaxBytes(10 * 1024 * 1024),
		kgo.FetchMaxWait(10 * time.Second),
		kgo.FetchMinBytes(512),
		kgo.FetchMaxPartitionBytes(2 * 1024 * 1024),

		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(1 * time.Second),
	}
}

// WithRetryManager attaches a RetryManager used to decide retry-vs-DLQ
// routing for jobs whose handler reports a failed outcome. When nil, the
// consumer publishes a failed job straight to the DLQ without a retry attempt.
func (c *Consumer) WithRetryManager(rm *RetryManager) *Consumer {
	c.retryManager = rm
	return c
}

// Start begins consuming messages from the kind's worker topic, bounding
// concurrent job processing with the adaptive concurrency controller.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("starting redpanda consumer",
		slog.String("group_id", c.groupID), slog.String("topic", c.topic), slog.String("kind", string(c.kind)))

	go c.fetchLoop(ctx)

	<-ctx.Done()
	slog.Info("redpanda consumer shutting down due to context cancellation")
	close(c.shutdown)
	return ctx.Err()
}

// fetchLoop polls the broker and dispatches each record to its own goroutine
// once a concurrency permit is held, never deserializing a record it can't
// yet afford to process.
func (c *Consumer) fetchLoop(ctx context.Context) {
	pollCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		nextInterval := c.adaptivePoller.GetNextInterval()
		pollCount++

		var fetches kgo.Fetches
		err := c.observableClient.ExecuteWithMetrics(ctx, "poll_fetches", func(fetchCtx context.Context) error {
			if !c.isConnectionHealthy() {
				slog.Warn("connection unhealthy, attempting to reconnect")
				if err := c.reconnectToRedpanda(); err != nil {
					return fmt.Errorf("connection unhealthy: %w", err)
				}
			}
			fetches = c.session.PollFetches(fetchCtx)
			return nil
		})
		if err != nil {
			slog.Error("poll fetches failed", slog.Any("error", err))
			c.adaptivePoller.RecordFailure()
			time.Sleep(backoffFor(err, pollCount, nextInterval))
			continue
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				slog.Error("fetch error", slog.String("topic", fe.Topic), slog.Int("partition", int(fe.Partition)), slog.Any("error", fe.Err))
			}
			c.adaptivePoller.RecordFailure()
			time.Sleep(2 * time.Second)
			continue
		}

		if fetches.NumRecords() == 0 {
			c.adaptivePoller.RecordSuccess()
			time.Sleep(nextInterval)
			continue
		}
		c.adaptivePoller.RecordSuccess()

		fetches.EachRecord(func(record *kgo.Record) {
			// Wait for capacity; the next poll only happens once every record
			// of this fetch has been handed off.
			release, err := c.concurrency.AcquirePermit(ctx)
			if err != nil {
				return
			}
			go func(rec *kgo.Record) {
				defer release()
				c.processRecord(ctx, rec)
			}(record)
		})
	}
}

func backoffFor(err error, pollCount int, base time.Duration) time.Duration {
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") {
		d := time.Duration(pollCount) * 2 * time.Second
		if d > 10*time.Second {
			d = 10 * time.Second
		}
		return d
	}
	return base
}

// processRecord deserializes one job message, dispatches it to the
// registered handler for its kind, and publishes the terminal outcome.
func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "ProcessJob")
	defer span.End()

	var msg domain.JobMessage
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		slog.Error("failed to unmarshal job message",
			slog.Any("error", err), slog.String("topic", record.Topic), slog.Int64("offset", record.Offset))
		return
	}

	if msg.RequestID != "" {
		ctx = observability.ContextWithRequestID(ctx, msg.RequestID)
	}
	lg := observability.LoggerFromContext(ctx).With(
		slog.String("transform_id", msg.TransformID),
		slog.String("kind", string(msg.Kind)),
		slog.String("unit_key", msg.UnitKey),
	)
	ctx = observability.ContextWithLogger(ctx, lg)

	adapterobservability.StartProcessingJob(string(msg.Kind))

	already, err := c.repo.IsUnitProcessed(ctx, msg.TransformID, msg.UnitKey)
	if err == nil && already {
		lg.Info("unit already processed, skipping duplicate delivery")
		adapterobservability.CompleteJob(string(msg.Kind))
		return
	}

	result := c.registry.Dispatch(ctx, msg)

	if result.Outcome == domain.OutcomeSucceeded {
		if err := c.repo.UpsertProcessedUnit(ctx, domain.ProcessedUnit{
			TransformID: msg.TransformID,
			UnitKey:     msg.UnitKey,
			ProcessedAt: time.Now(),
			ResultRef:   result.ResultRef,
		}); err != nil {
			lg.Error("failed to record processed unit", slog.Any("error", err))
		}
		adapterobservability.CompleteJob(string(msg.Kind))
	} else {
		lg.Error("job handler reported failure", slog.String("error", result.Error))
		adapterobservability.FailJob(string(msg.Kind))
		c.handleFailure(ctx, lg, msg, result)
	}

	if err := c.broker.PublishResult(ctx, result); err != nil {
		lg.Error("failed to publish result", slog.Any("error", err))
	}
}

// handleFailure routes a failed job through the retry manager when one is
// configured, falling back to an immediate DLQ publish otherwise.
func (c *Consumer) handleFailure(ctx context.Context, lg *slog.Logger, msg domain.JobMessage, result domain.ResultMessage) {
	if c.retryManager == nil {
		if err := c.broker.PublishDLQ(ctx, msg.Kind, msg, result.Error); err != nil {
			lg.Error("failed to publish to DLQ without retry manager", slog.Any("error", err))
		}
		return
	}

	retryInfo := &domain.RetryInfo{
		LastAttemptAt: time.Now(),
		RetryStatus:   domain.RetryStatusNone,
		LastError:     result.Error,
		ErrorHistory:  []string{result.Error},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := c.retryManager.RetryJob(ctx, msg, retryInfo); err != nil {
		lg.Error("retry manager failed to handle job failure", slog.Any("error", err))
	}
}

// Close shuts down the consumer's broker session.
func (c *Consumer) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	if c.concurrency != nil {
		c.concurrency.Stop()
	}
	if c.shutdown != nil {
		select {
		case <-c.shutdown:
		default:
			close(c.shutdown)
		}
	}
	return nil
}

// GetHealthStatus returns the health status of the consumer.
func (c *Consumer) GetHealthStatus() map[string]interface{} {
	if c.observableClient == nil {
		return map[string]interface{}{"status": "unhealthy", "reason": "observable client not initialized"}
	}
	status := c.observableClient.GetHealthStatus()
	status["consumer_type"] = "redpanda"
	status["group_id"] = c.groupID
	status["topic"] = c.topic
	status["kind"] = string(c.kind)
	status["effective_concurrency"] = c.concurrency.EffectiveLimit()
	status["max_concurrency"] = c.concurrency.MaxLimit()
	return status
}

// isConnectionHealthy checks if the connection to Redpanda is healthy.
func (c *Consumer) isConnectionHealthy() bool {
	if c.session == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fetches := c.session.PollFetches(ctx)
	return len(fetches.Errors()) == 0
}

// reconnectToRedpanda attempts to reconnect to Redpanda, recreating the
// transactional session with the original configuration.
func (c *Consumer) reconnectToRedpanda() error {
	slog.Info("attempting to reconnect to Redpanda")
	if c.session != nil {
		c.session.Close()
	}

	kotelTracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(kotelTracer))
	opts := consumerOpts(c.brokers, c.transactionalID, c.groupID, c.topic, kotelService)

	session, err := kgo.NewGroupTransactSession(opts...)
	if err != nil {
		return fmt.Errorf("failed to recreate Redpanda session: %w", err)
	}
	c.session = session
	slog.Info("successfully reconnected to Redpanda")
	return nil
}

// IsHealthy returns true if the consumer is healthy.
func (c *Consumer) IsHealthy() bool {
	if c.observableClient == nil {
		return false
	}
	return c.observableClient.IsHealthy()
}
