// Package scanner implements the periodic and targeted trigger system that
// discovers unprocessed units for active transforms and publishes jobs for
// them (SPEC_FULL.md §4.3).
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// maxUnitsPerScan bounds how many candidate units a single scan publishes,
// so one outsized transform can't starve the scan's ScanAckWait budget; the
// remainder is picked up on the transform's next tick.
const maxUnitsPerScan = 500

type triggerPayload struct {
	Kind        string `json:"kind"`
	TransformID string `json:"transform_id"`
	Owner       string `json:"owner"`
}

// Scanner runs one transform kind's scan loop: it publishes periodic
// full-scan triggers (for kinds that have a cadence), consumes both
// periodic and targeted triggers off the kind's trigger topic, and — having
// won the per-kind leader lease — enumerates unprocessed units and
// publishes jobs for them.
type Scanner struct {
	kind       domain.TransformKind
	repo       domain.TransformRepository
	broker     domain.Broker
	enumerator domain.SourceEnumerator
	lease      *leaser
	ackWait    time.Duration

	brokers []string
	groupID string
	client  *kgo.Client
}

// Config bundles Scanner construction parameters.
type Config struct {
	Brokers    []string
	GroupID    string
	Kind       domain.TransformKind
	Repo       domain.TransformRepository
	Broker     domain.Broker
	Enumerator domain.SourceEnumerator
	Redis      *redis.Client
	LeaseTTL   time.Duration
	AckWait    time.Duration
}

// New builds a Scanner for one transform kind.
func New(cfg Config) (*Scanner, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	topic := redpanda.TriggerTopic(cfg.Kind)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchMaxWait(5*time.Second),
		kgo.AutoCommitInterval(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("scanner client: %w", err)
	}
	ackWait := cfg.AckWait
	if ackWait <= 0 {
		ackWait = 10 * time.Minute
	}
	return &Scanner{
		kind: cfg.Kind, repo: cfg.Repo, broker: cfg.Broker, enumerator: cfg.Enumerator,
		lease: newLeaser(cfg.Redis, cfg.LeaseTTL), ackWait: ackWait,
		brokers: cfg.Brokers, groupID: cfg.GroupID, client: client,
	}, nil
}

// RunPeriodic publishes a full-scan (untargeted) trigger for this kind on a
// fixed interval until ctx is canceled. Visualization transforms have no
// periodic cadence (SPEC_FULL.md §4.3) — callers simply never invoke this
// for domain.KindVisualization.
func (s *Scanner) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		slog.Warn("scanner: no periodic interval configured, skipping", slog.String("kind", string(s.kind)))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.broker.PublishTrigger(ctx, s.kind, "", ""); err != nil {
				slog.Error("scanner: failed to publish periodic trigger", slog.String("kind", string(s.kind)), slog.Any("error", err))
			}
		}
	}
}

// ConsumeTriggers polls the kind's trigger topic and executes a scan for
// each trigger it wins the leader lease for, until ctx is canceled.
func (s *Scanner) ConsumeTriggers(ctx context.Context) error {
	slog.Info("scanner: consuming triggers", slog.String("kind", string(s.kind)))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetches := s.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, fe := range fetches.Errors() {
			slog.Error("scanner: fetch error", slog.String("topic", fe.Topic), slog.Any("error", fe.Err))
		}
		fetches.EachRecord(func(record *kgo.Record) {
			s.handleTrigger(ctx, record)
		})
	}
}

func (s *Scanner) handleTrigger(ctx context.Context, record *kgo.Record) {
	var trig triggerPayload
	if err := json.Unmarshal(record.Value, &trig); err != nil {
		slog.Error("scanner: unreadable trigger", slog.Any("error", err))
		return
	}

	leaseName := string(s.kind)
	if trig.TransformID != "" {
		leaseName = string(s.kind) + ":" + trig.TransformID
	}

	token, acquired, err := s.lease.acquire(ctx, leaseName)
	if err != nil {
		slog.Warn("scanner: lease acquisition error, skipping this trigger", slog.String("lease", leaseName), slog.Any("error", err))
		return
	}
	if !acquired {
		return // another replica already owns this scan window
	}
	defer s.lease.release(ctx, leaseName, token)

	scanCtx, cancel := context.WithTimeout(ctx, s.ackWait)
	defer cancel()

	stopRenew := make(chan struct{})
	go s.renewWhileRunning(scanCtx, leaseName, stopRenew)
	defer close(stopRenew)

	if trig.TransformID != "" {
		s.scanOne(scanCtx, trig.TransformID)
		return
	}
	s.scanAll(scanCtx)
}

func (s *Scanner) renewWhileRunning(ctx context.Context, leaseName string, stop <-chan struct{}) {
	ticker := time.NewTicker(s.lease.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.lease.renew(ctx, leaseName)
		}
	}
}

// scanAll enumerates every active transform of this kind and scans each.
func (s *Scanner) scanAll(ctx context.Context) {
	transforms, err := s.repo.ListActiveTransforms(ctx, s.kind)
	if err != nil {
		slog.Error("scanner: list active transforms failed", slog.String("kind", string(s.kind)), slog.Any("error", err))
		return
	}
	for _, t := range transforms {
		if ctx.Err() != nil {
			return
		}
		s.scanTransform(ctx, t)
	}
}

// scanOne loads and scans a single transform by ID, used for targeted
// (API-driven) triggers.
func (s *Scanner) scanOne(ctx context.Context, transformID string) {
	t, err := s.repo.Get(ctx, transformID)
	if err != nil {
		slog.Error("scanner: get transform failed", slog.String("transform_id", transformID), slog.Any("error", err))
		return
	}
	s.scanTransform(ctx, t)
}

func (s *Scanner) scanTransform(ctx context.Context, t domain.Transform) {
	if t.Status != domain.TransformActive {
		return
	}

	processed, err := s.repo.ListProcessedKeys(ctx, t.ID)
	if err != nil {
		slog.Error("scanner: list processed keys failed", slog.String("transform_id", t.ID), slog.Any("error", err))
		return
	}
	seen := make(map[string]struct{}, len(processed))
	for _, k := range processed {
		seen[k] = struct{}{}
	}

	cb := observability.GetCircuitBreaker("scanner.enumerator."+string(t.Kind), 5, 30*time.Second)

	published := 0
	pageToken := ""
	for published < maxUnitsPerScan {
		var units []string
		var next string
		err := cb.Call(func() error {
			var callErr error
			units, next, callErr = s.enumerator.ListUnits(ctx, t.SourceRef, pageToken)
			return callErr
		})
		if err != nil {
			slog.Error("scanner: enumerate units failed", slog.String("transform_id", t.ID), slog.Any("error", err))
			break
		}
		for _, unit := range units {
			if _, ok := seen[unit]; ok {
				continue
			}
			s.publishUnit(ctx, t, unit)
			published++
			if published >= maxUnitsPerScan {
				break
			}
		}
		if next == "" || len(units) == 0 {
			break
		}
		pageToken = next
	}

	if err := s.repo.TouchScanned(ctx, t.ID, time.Now()); err != nil {
		slog.Error("scanner: touch scanned failed", slog.String("transform_id", t.ID), slog.Any("error", err))
	}
}

func (s *Scanner) publishUnit(ctx context.Context, t domain.Transform, unitKey string) {
	msg := domain.JobMessage{
		MsgID:       string(t.Kind) + "-" + t.ID + "-" + unitKey,
		TransformID: t.ID,
		Kind:        t.Kind,
		Owner:       t.Owner,
		UnitKey:     unitKey,
		EmbedderID:  t.EmbedderID,
		RequestID:   uuid.NewString(),
		EnqueuedAt:  time.Now(),
	}
	if err := s.broker.PublishJob(ctx, msg); err != nil {
		slog.Warn("scanner: publish failed, persisting as pending batch",
			slog.String("transform_id", t.ID), slog.String("unit_key", unitKey), slog.Any("error", err))
		payload, marshalErr := json.Marshal(msg)
		if marshalErr != nil {
			slog.Error("scanner: failed to marshal job for pending batch", slog.Any("error", marshalErr))
			return
		}
		if _, err := s.repo.InsertPendingBatch(ctx, domain.PendingBatch{
			TransformID: t.ID, Kind: t.Kind, Payload: payload, CreatedAt: time.Now(),
		}); err != nil {
			slog.Error("scanner: failed to persist pending batch", slog.String("transform_id", t.ID), slog.Any("error", err))
		}
	}
}

// Close releases the scanner's consumer client.
func (s *Scanner) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
