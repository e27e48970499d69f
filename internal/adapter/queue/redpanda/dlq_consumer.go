// Package redpanda implements DLQ consumption for reprocessing failed jobs.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// dlqCooldown is the minimum wait before reprocessing a job that was
// dead-lettered for an upstream rate-limit or timeout reason, so a
// recovering dependency isn't immediately hammered again.
const dlqCooldown = 30 * time.Second

// DLQConsumer consumes a kind's dead-letter topic and requeues jobs back
// onto its worker topic, honoring a cooldown window for upstream failures.
type DLQConsumer struct {
	client   *kgo.Client
	broker   domain.Broker
	kind     domain.TransformKind
	groupID  string
	topic    string
	shutdown chan struct{}
}

// NewDLQConsumer creates a new DLQ consumer for one transform kind.
func NewDLQConsumer(brokers []string, groupID string, kind domain.TransformKind, broker domain.Broker) (*DLQConsumer, error) {
	slog.Info("creating DLQ consumer", slog.Any("brokers", brokers), slog.String("group_id", groupID), slog.String("kind", string(kind)))

	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}

	topic := DLQTopic(kind)
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.RequireStableFetchOffsets(),
		kgo.FetchMaxBytes(1048576),
		kgo.FetchMaxWait(100 * time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxPartitionBytes(1048576),
		kgo.DialTimeout(30 * time.Second),
		kgo.RequestTimeoutOverhead(10 * time.Second),
		kgo.RetryTimeout(60 * time.Second),
		kgo.SessionTimeout(30 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		slog.Error("failed to create DLQ consumer client", slog.Any("error", err))
		return nil, fmt.Errorf("DLQ consumer client: %w", err)
	}

	return &DLQConsumer{
		client:   client,
		broker:   broker,
		kind:     kind,
		groupID:  groupID,
		topic:    topic,
		shutdown: make(chan struct{}),
	}, nil
}

// Start begins consuming DLQ messages.
func (dc *DLQConsumer) Start(ctx context.Context) error {
	slog.Info("starting DLQ consumer", slog.String("group_id", dc.groupID), slog.String("topic", dc.topic))
	go dc.loop(ctx)
	return nil
}

// Stop stops the DLQ consumer.
func (dc *DLQConsumer) Stop() {
	close(dc.shutdown)
	dc.client.Close()
}

func (dc *DLQConsumer) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-dc.shutdown:
			return
		default:
			fetchCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
			fetches := dc.client.PollFetches(fetchCtx)
			cancel()

			if errs := fetches.Errors(); len(errs) > 0 {
				for _, fe := range errs {
					slog.Error("DLQ fetch error", slog.String("topic", fe.Topic), slog.Any("error", fe.Err))
				}
				time.Sleep(2 * time.Second)
				continue
			}
			if fetches.NumRecords() == 0 {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			fetches.EachRecord(func(record *kgo.Record) {
				dc.processRecord(ctx, record)
			})
		}
	}
}

func (dc *DLQConsumer) processRecord(ctx context.Context, record *kgo.Record) {
	var msg domain.JobMessage
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		slog.Error("failed to unmarshal DLQ job message", slog.Any("error", err), slog.Int64("offset", record.Offset))
		return
	}

	reason := headerValue(record, "reason")
	if needsCooldown(reason) {
		go func(m domain.JobMessage, r string) {
			time.Sleep(dlqCooldown)
			dc.requeue(context.Background(), m, r)
		}(msg, reason)
		return
	}
	dc.requeue(ctx, msg, reason)
}

func (dc *DLQConsumer) requeue(ctx context.Context, msg domain.JobMessage, reason string) {
	if err := dc.broker.PublishJob(ctx, msg); err != nil {
		slog.Error("failed to requeue DLQ job", slog.String("msg_id", msg.MsgID), slog.Any("error", err))
		return
	}
	slog.Info("DLQ job requeued", slog.String("msg_id", msg.MsgID), slog.String("original_reason", reason))
}

func needsCooldown(reason string) bool {
	lowered := strings.ToLower(reason)
	return strings.Contains(lowered, "rate limit") ||
		strings.Contains(lowered, "timeout") ||
		strings.Contains(lowered, "deadline exceeded")
}

func headerValue(record *kgo.Record, key string) string {
	for _, h := range record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
