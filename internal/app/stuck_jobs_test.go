package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

type fakeBatchRepo struct {
	batches       []domain.PendingBatch
	drainErr      error
	deleted       []string
	markedAttempt []string
}

func (r *fakeBatchRepo) Create(domain.Context, domain.Transform) (string, error) { return "", nil }
func (r *fakeBatchRepo) Get(domain.Context, string) (domain.Transform, error)    { return domain.Transform{}, nil }
func (r *fakeBatchRepo) Delete(domain.Context, string) error                    { return nil }
func (r *fakeBatchRepo) ListActiveTransforms(domain.Context, domain.TransformKind) ([]domain.Transform, error) {
	return nil, nil
}
func (r *fakeBatchRepo) TouchScanned(domain.Context, string, time.Time) error { return nil }
func (r *fakeBatchRepo) IsUnitProcessed(domain.Context, string, string) (bool, error) {
	return false, nil
}
func (r *fakeBatchRepo) UpsertProcessedUnit(domain.Context, domain.ProcessedUnit) error { return nil }
func (r *fakeBatchRepo) ListProcessedKeys(domain.Context, string) ([]string, error)    { return nil, nil }
func (r *fakeBatchRepo) InsertPendingBatch(domain.Context, domain.PendingBatch) (string, error) {
	return "", nil
}
func (r *fakeBatchRepo) DrainPendingBatches(_ domain.Context, _ domain.TransformKind, _ int) ([]domain.PendingBatch, error) {
	if r.drainErr != nil {
		return nil, r.drainErr
	}
	return r.batches, nil
}
func (r *fakeBatchRepo) DeletePendingBatch(_ domain.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}
func (r *fakeBatchRepo) MarkPendingBatchAttempt(_ domain.Context, id string, _ time.Time) error {
	r.markedAttempt = append(r.markedAttempt, id)
	return nil
}
func (r *fakeBatchRepo) Stats(domain.Context, string) (domain.TransformStats, error) {
	return domain.TransformStats{}, nil
}
func (r *fakeBatchRepo) RecordOutcome(domain.Context, domain.ResultMessage) error { return nil }

type fakeBatchBroker struct {
	published  []domain.JobMessage
	publishErr error
}

func (b *fakeBatchBroker) PublishJob(_ domain.Context, msg domain.JobMessage) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, msg)
	return nil
}
func (b *fakeBatchBroker) PublishResult(domain.Context, domain.ResultMessage) error { return nil }
func (b *fakeBatchBroker) PublishTrigger(domain.Context, domain.TransformKind, string, string) error {
	return nil
}
func (b *fakeBatchBroker) PublishDLQ(domain.Context, domain.TransformKind, domain.JobMessage, string) error {
	return nil
}

func TestNewPendingBatchRepublisher_Defaults(t *testing.T) {
	p := NewPendingBatchRepublisher(&fakeBatchRepo{}, &fakeBatchBroker{}, domain.KindCollection, 0)
	if p == nil {
		t.Fatalf("expected non-nil republisher")
	}
	if p.interval <= 0 {
		t.Fatalf("interval should default, got %v", p.interval)
	}
}

func TestNewPendingBatchRepublisher_NilDeps(t *testing.T) {
	if p := NewPendingBatchRepublisher(nil, &fakeBatchBroker{}, domain.KindCollection, time.Minute); p != nil {
		t.Fatalf("expected nil republisher with nil repo")
	}
	if p := NewPendingBatchRepublisher(&fakeBatchRepo{}, nil, domain.KindCollection, time.Minute); p != nil {
		t.Fatalf("expected nil republisher with nil broker")
	}
}

func TestPendingBatchRepublisher_SweepOnce_Republishes(t *testing.T) {
	payload, _ := json.Marshal(domain.JobMessage{MsgID: "m1", TransformID: "t1", Kind: domain.KindCollection, UnitKey: "u1"})
	repo := &fakeBatchRepo{batches: []domain.PendingBatch{{ID: "b1", TransformID: "t1", Kind: domain.KindCollection, Payload: payload}}}
	broker := &fakeBatchBroker{}
	p := &PendingBatchRepublisher{repo: repo, broker: broker, kind: domain.KindCollection, interval: time.Minute, limit: 10}

	p.sweepOnce(context.Background())

	if len(broker.published) != 1 || broker.published[0].MsgID != "m1" {
		t.Fatalf("expected republish of m1, got %+v", broker.published)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "b1" {
		t.Fatalf("expected batch b1 deleted, got %v", repo.deleted)
	}
}

func TestPendingBatchRepublisher_SweepOnce_PublishFailureKeepsBatch(t *testing.T) {
	payload, _ := json.Marshal(domain.JobMessage{MsgID: "m1", TransformID: "t1", Kind: domain.KindCollection})
	repo := &fakeBatchRepo{batches: []domain.PendingBatch{{ID: "b1", Payload: payload}}}
	broker := &fakeBatchBroker{publishErr: errors.New("broker down")}
	p := &PendingBatchRepublisher{repo: repo, broker: broker, kind: domain.KindCollection, interval: time.Minute, limit: 10}

	p.sweepOnce(context.Background())

	if len(repo.deleted) != 0 {
		t.Fatalf("expected batch to survive a failed republish, got deleted=%v", repo.deleted)
	}
	if len(repo.markedAttempt) != 1 || repo.markedAttempt[0] != "b1" {
		t.Fatalf("expected attempt marked on b1, got %v", repo.markedAttempt)
	}
}

func TestPendingBatchRepublisher_SweepOnce_DropsUnreadablePayload(t *testing.T) {
	repo := &fakeBatchRepo{batches: []domain.PendingBatch{{ID: "bad", Payload: []byte("not json")}}}
	broker := &fakeBatchBroker{}
	p := &PendingBatchRepublisher{repo: repo, broker: broker, kind: domain.KindCollection, interval: time.Minute, limit: 10}

	p.sweepOnce(context.Background())

	if len(broker.published) != 0 {
		t.Fatalf("expected no publish for unreadable payload")
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "bad" {
		t.Fatalf("expected unreadable batch dropped, got %v", repo.deleted)
	}
}

func TestPendingBatchRepublisher_Run_StopsOnContextDone(t *testing.T) {
	p := NewPendingBatchRepublisher(&fakeBatchRepo{}, &fakeBatchBroker{}, domain.KindCollection, 10*time.Millisecond)
	if p == nil {
		t.Fatalf("expected non-nil republisher")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(ch)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-ch:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("Run did not exit after context cancellation")
	}
}
