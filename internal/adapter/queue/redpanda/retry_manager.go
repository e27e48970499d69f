// Package redpanda implements retry and DLQ management for resilient job processing.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// RetryManager decides whether a job that failed processing is requeued
// after a backoff delay or routed to its kind's dead-letter topic. A
// PendingBatch record is persisted for the retry window so a crash between
// the decision and the delayed republish does not silently lose the job.
type RetryManager struct {
	broker domain.Broker
	repo   domain.TransformRepository
	config domain.RetryConfig
}

// NewRetryManager creates a new retry manager.
func NewRetryManager(broker domain.Broker, repo domain.TransformRepository, config domain.RetryConfig) *RetryManager {
	return &RetryManager{broker: broker, repo: repo, config: config}
}

// RetryJob decides the fate of a job that failed processing.
func (rm *RetryManager) RetryJob(ctx context.Context, msg domain.JobMessage, retryInfo *domain.RetryInfo) error {
	// Upstream rate-limit and timeout failures bypass inline retry and go
	// straight to DLQ so the DLQ consumer can enforce a cooling window
	// before requeueing, rather than hammering a provider that has already
	// signaled backpressure.
	code := classifyFailureCode(retryInfo.LastError)
	if code == "UPSTREAM_RATE_LIMIT" || code == "UPSTREAM_TIMEOUT" {
		slog.Info("routing upstream failure to DLQ for cooldown",
			slog.String("msg_id", msg.MsgID), slog.String("error_code", code))
		return rm.moveToDLQ(ctx, msg, retryInfo.LastError)
	}

	if !retryInfo.ShouldRetry(fmt.Errorf("%s", retryInfo.LastError), rm.config) {
		return rm.moveToDLQ(ctx, msg, "job should not be retried: "+retryInfo.LastError)
	}
	if retryInfo.AttemptCount >= rm.config.MaxRetries {
		return rm.moveToDLQ(ctx, msg, "max retries reached: "+retryInfo.LastError)
	}

	delay := retryInfo.CalculateNextRetryDelay(rm.config)
	retryInfo.NextRetryAt = time.Now().Add(delay)
	retryInfo.MarkAsRetrying()
	retryInfo.UpdateRetryAttempt(nil)

	// The pending-batch payload is the whole marshaled JobMessage, not just
	// its kind-specific payload, so a republisher can reconstruct a
	// publishable message after a crash without any other state.
	encoded, encErr := json.Marshal(msg)
	if encErr != nil {
		slog.Error("failed to marshal job for pending retry", slog.String("msg_id", msg.MsgID), slog.Any("error", encErr))
	}
	batchID, err := rm.repo.InsertPendingBatch(ctx, domain.PendingBatch{
		TransformID: msg.TransformID,
		Kind:        msg.Kind,
		Payload:     encoded,
	})
	if err != nil {
		slog.Error("failed to persist pending retry", slog.String("msg_id", msg.MsgID), slog.Any("error", err))
	}

	go rm.scheduleRetry(context.Background(), msg, batchID, delay)

	slog.Info("job scheduled for retry",
		slog.String("msg_id", msg.MsgID), slog.Int("attempt", retryInfo.AttemptCount), slog.Duration("delay", delay))
	return nil
}

// scheduleRetry waits out the backoff delay, republishes the job, and clears
// its pending-batch record once the republish succeeds.
func (rm *RetryManager) scheduleRetry(ctx context.Context, msg domain.JobMessage, batchID string, delay time.Duration) {
	time.Sleep(delay)

	if err := rm.broker.PublishJob(ctx, msg); err != nil {
		slog.Error("failed to republish job for retry", slog.String("msg_id", msg.MsgID), slog.Any("error", err))
		return
	}
	if batchID == "" {
		return
	}
	if err := rm.repo.DeletePendingBatch(ctx, batchID); err != nil {
		slog.Error("failed to delete completed pending batch", slog.String("batch_id", batchID), slog.Any("error", err))
	}
}

// moveToDLQ routes a job message to its kind's dead-letter topic.
func (rm *RetryManager) moveToDLQ(ctx context.Context, msg domain.JobMessage, reason string) error {
	if err := rm.broker.PublishDLQ(ctx, msg.Kind, msg, reason); err != nil {
		return fmt.Errorf("publish to DLQ: %w", err)
	}
	slog.Info("job moved to DLQ", slog.String("msg_id", msg.MsgID), slog.String("reason", reason))
	return nil
}
