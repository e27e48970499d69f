package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the narrow transaction surface CleanupService needs: enough to run
// a delete and commit or roll it back. pgx.Tx satisfies it.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner opens a transaction.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// poolBeginner adapts a *pgxpool.Pool to Beginner: pgx.Tx already satisfies
// Tx's method set, but Go requires the wrapper for the interface to match.
type poolBeginner struct {
	pool *pgxpool.Pool
}

func (p poolBeginner) Begin(ctx context.Context) (Tx, error) {
	return p.pool.Begin(ctx)
}

// NewCleanupServiceFromPool builds a CleanupService against a live pgx pool.
func NewCleanupServiceFromPool(pool *pgxpool.Pool, retentionDays int) *CleanupService {
	return NewCleanupService(poolBeginner{pool: pool}, retentionDays)
}

// CleanupService deletes transforms (and their cascade-linked processed
// units and pending batches) once they've aged past the retention window.
type CleanupService struct {
	pool          Beginner
	RetentionDays int
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool Beginner, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{pool: pool, RetentionDays: retentionDays}
}

// CleanupOldData removes terminal transforms older than the retention
// window. processed_units and pending_batches cascade-delete with their
// owning transform, so nothing else needs to be touched here.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cleanup begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM transforms
		WHERE status IN ('completed', 'failed')
		AND created_at < $1
	`, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup delete transforms: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cleanup commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_transforms", tag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)

	return nil
}

// RunPeriodic starts a periodic cleanup job.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
