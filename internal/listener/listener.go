package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// Listener consumes one transform kind's status topic, records each
// terminal result for stats/audit purposes, and fans the update out to any
// SSE subscribers attached to the Hub.
//
// It runs as a plain (non-transactional) consumer group: result records
// are idempotent to record twice (RecordOutcome is an audit append, and a
// succeeded unit's processed_units row was already upserted synchronously
// by the worker before it published the result), so at-least-once delivery
// here only risks a slightly inflated audit count, never incorrect stats.
type Listener struct {
	client *kgo.Client
	repo   domain.TransformRepository
	hub    *Hub
	kind   domain.TransformKind
	topic  string
}

// NewListener builds a Listener for one transform kind.
func NewListener(brokers []string, groupID string, kind domain.TransformKind, repo domain.TransformRepository, hub *Hub) (*Listener, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	topic := redpanda.StatusTopic(kind)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchMaxWait(5*time.Second),
		kgo.AutoCommitInterval(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("listener client: %w", err)
	}
	return &Listener{client: client, repo: repo, hub: hub, kind: kind, topic: topic}, nil
}

// Start polls the status topic until ctx is canceled.
func (l *Listener) Start(ctx context.Context) error {
	slog.Info("starting result listener", slog.String("kind", string(l.kind)), slog.String("topic", l.topic))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetches := l.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, fe := range fetches.Errors() {
			slog.Error("listener fetch error", slog.String("topic", fe.Topic), slog.Any("error", fe.Err))
		}
		fetches.EachRecord(func(record *kgo.Record) {
			l.processRecord(ctx, record)
		})
	}
}

func (l *Listener) processRecord(ctx context.Context, record *kgo.Record) {
	var result domain.ResultMessage
	if err := json.Unmarshal(record.Value, &result); err != nil {
		slog.Error("result listener: unreadable result message", slog.Any("error", err))
		return
	}

	if err := l.repo.RecordOutcome(ctx, result); err != nil {
		slog.Error("result listener: record outcome failed",
			slog.String("transform_id", result.TransformID), slog.Any("error", err))
	}

	l.hub.Publish(domain.StatusEvent{
		TransformID: result.TransformID,
		Outcome:     result.Outcome,
		UnitKey:     result.UnitKey,
		Message:     result.Error,
		EmittedAt:   time.Now(),
	})
}

// Close releases the listener's client.
func (l *Listener) Close() error {
	if l.client != nil {
		l.client.Close()
	}
	return nil
}
