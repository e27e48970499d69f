package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// PendingBatchRepublisher drains a kind's pending_batches table — jobs that
// failed to publish, or whose in-process retry delay was cut short by a
// crash — and republishes them onto the worker topic. A batch is removed
// only once its republish succeeds, so a crash mid-sweep just leaves the
// row for the next tick to pick up.
type PendingBatchRepublisher struct {
	repo     domain.TransformRepository
	broker   domain.Broker
	kind     domain.TransformKind
	interval time.Duration
	limit    int
}

// NewPendingBatchRepublisher builds a republisher for one transform kind.
func NewPendingBatchRepublisher(repo domain.TransformRepository, broker domain.Broker, kind domain.TransformKind, interval time.Duration) *PendingBatchRepublisher {
	if repo == nil || broker == nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &PendingBatchRepublisher{repo: repo, broker: broker, kind: kind, interval: interval, limit: 100}
}

// Run drains pending batches on a fixed interval until ctx is canceled.
func (p *PendingBatchRepublisher) Run(ctx context.Context) {
	if p == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("pending batch republisher stopping", slog.String("kind", string(p.kind)))
			return
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *PendingBatchRepublisher) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("pendingbatch.republisher")
	ctx, span := tracer.Start(ctx, "PendingBatchRepublisher.sweepOnce")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(p.kind)))

	batches, err := p.repo.DrainPendingBatches(ctx, p.kind, p.limit)
	if err != nil {
		span.RecordError(err)
		slog.Error("pending batch drain failed", slog.String("kind", string(p.kind)), slog.Any("error", err))
		return
	}

	republished := 0
	for _, b := range batches {
		var msg domain.JobMessage
		if err := json.Unmarshal(b.Payload, &msg); err != nil {
			slog.Error("pending batch payload unreadable, dropping", slog.String("batch_id", b.ID), slog.Any("error", err))
			_ = p.repo.DeletePendingBatch(ctx, b.ID)
			continue
		}
		if err := p.broker.PublishJob(ctx, msg); err != nil {
			slog.Warn("pending batch republish failed, will retry next sweep",
				slog.String("batch_id", b.ID), slog.Any("error", err))
			_ = p.repo.MarkPendingBatchAttempt(ctx, b.ID, time.Now())
			continue
		}
		if err := p.repo.DeletePendingBatch(ctx, b.ID); err != nil {
			slog.Error("failed to delete republished pending batch", slog.String("batch_id", b.ID), slog.Any("error", err))
		}
		republished++
	}

	span.SetAttributes(
		attribute.Int("pendingbatch.drained", len(batches)),
		attribute.Int("pendingbatch.republished", republished),
	)
}
