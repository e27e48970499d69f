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
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// WorkerTopic returns the job topic for a transform kind: "workers.<kind>".
func WorkerTopic(kind domain.TransformKind) string {
	return "workers." + string(kind)
}

// StatusTopic returns the result/status topic for a transform kind:
// "transforms.<kind>.status".
func StatusTopic(kind domain.TransformKind) string {
	return "transforms." + string(kind) + ".status"
}

// TriggerTopic returns the scan-trigger topic for a transform kind:
// "scan.trigger.<kind>".
func TriggerTopic(kind domain.TransformKind) string {
	return "scan.trigger." + string(kind)
}

// DLQTopic returns the dead-letter topic for a transform kind: "dlq.<kind>".
func DLQTopic(kind domain.TransformKind) string {
	return "dlq." + string(kind)
}

// Producer wraps a Kafka producer and implements domain.Broker.
type Producer struct {
	client *kgo.Client
	// Channel-based approach for concurrent processing
	transactionChan chan struct{}
}

// NewProducer constructs a Producer with exactly-once semantics.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "semantic-orchestrator-producer")
}

// NewProducerWithTransactionalID constructs a Producer with a custom transactional ID.
// This is useful for testing to avoid conflicts between multiple producers.
func NewProducerWithTransactionalID(brokers []string, transactionalID string) (*Producer, error) {
	slog.Info("creating redpanda producer", slog.Any("brokers", brokers), slog.String("transactional_id", transactionalID))

	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		// Enable transactional producer for EOS semantics
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		slog.Error("failed to create redpanda client", slog.Any("error", err))
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	ctx := context.Background()
	for _, kind := range []domain.TransformKind{domain.KindCollection, domain.KindDataset, domain.KindVisualization} {
		ensureKindTopics(ctx, client, kind)
	}

	slog.Info("redpanda producer created successfully")
	return &Producer{
		client:          client,
		transactionChan: make(chan struct{}, 1), // Buffered channel for serializing transactions
	}, nil
}

func ensureKindTopics(ctx context.Context, client *kgo.Client, kind domain.TransformKind) {
	topics := []string{WorkerTopic(kind), StatusTopic(kind), TriggerTopic(kind), DLQTopic(kind)}
	for _, topic := range topics {
		if err := createOptimizedTopicForParallelProcessing(ctx, client, topic, 8, 1); err != nil {
			slog.Warn("failed to create optimized topic, falling back to standard topic creation",
				slog.String("topic", topic), slog.Any("error", err))
			if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
				slog.Warn("failed to create topic, it may already exist", slog.String("topic", topic), slog.Any("error", err))
			}
		}
	}
}

// PublishJob publishes a unit-of-work message to the worker topic for its kind.
func (p *Producer) PublishJob(ctx domain.Context, msg domain.JobMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	record := &kgo.Record{
		Topic: WorkerTopic(msg.Kind),
		Key:   []byte(msg.TransformID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "Msg-Id", Value: []byte(msg.MsgID)},
			{Key: "transform_id", Value: []byte(msg.TransformID)},
			{Key: "owner", Value: []byte(msg.Owner)},
			{Key: "kind", Value: []byte(msg.Kind)},
		},
	}
	if err := p.produceTransactional(ctx, record); err != nil {
		return err
	}
	observability.EnqueueJob(string(msg.Kind))
	return nil
}

// PublishResult publishes a terminal job outcome to the status topic for its kind.
func (p *Producer) PublishResult(ctx domain.Context, msg domain.ResultMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal result message: %w", err)
	}
	record := &kgo.Record{
		Topic: StatusTopic(msg.Kind),
		Key:   []byte(msg.TransformID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "transform_id", Value: []byte(msg.TransformID)},
			{Key: "owner", Value: []byte(msg.Owner)},
			{Key: "outcome", Value: []byte(msg.Outcome)},
		},
	}
	return p.produceTransactional(ctx, record)
}

// PublishTrigger publishes a scan trigger for a kind, optionally targeted at
// a single transform (targeted scans pass a non-empty transformID).
func (p *Producer) PublishTrigger(ctx domain.Context, kind domain.TransformKind, transformID, owner string) error {
	msgID := "scan-" + string(kind)
	if transformID != "" {
		msgID = msgID + "-" + transformID
	} else {
		msgID = msgID + "-periodic-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	payload := map[string]string{"kind": string(kind), "transform_id": transformID, "owner": owner}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	record := &kgo.Record{
		Topic: TriggerTopic(kind),
		Key:   []byte(kind),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "Msg-Id", Value: []byte(msgID)},
		},
	}
	return p.produceTransactional(ctx, record)
}

// PublishDLQ routes a job message to the kind's dead-letter topic with a
// failure reason attached.
func (p *Producer) PublishDLQ(ctx domain.Context, kind domain.TransformKind, msg domain.JobMessage, reason string) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal DLQ message: %w", err)
	}
	record := &kgo.Record{
		Topic: DLQTopic(kind),
		Key:   []byte(msg.TransformID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "Msg-Id", Value: []byte(msg.MsgID)},
			{Key: "reason", Value: []byte(reason)},
		},
	}
	return p.produceTransactional(ctx, record)
}

// produceTransactional wraps a single-record produce in a begin/commit
// transaction, serialized through transactionChan since a single kgo.Client
// cannot run concurrent transactions.
func (p *Producer) produceTransactional(ctx domain.Context, record *kgo.Record) error {
	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, e.Promise())

	if err := e.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("failed to abort transaction", slog.Any("error", abortErr))
		}
		return fmt.Errorf("produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	if p.transactionChan != nil {
		select {
		case <-p.transactionChan:
		default:
			close(p.transactionChan)
		}
	}
	return nil
}
