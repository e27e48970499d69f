package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// PgxPool is the narrow pgx surface the repositories depend on, letting
// *pgxpool.Pool and a transaction both satisfy the same interface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TransformRepo implements domain.TransformRepository against Postgres. A
// single table backs each of the three entities the interface manages:
// transforms, processed_units, pending_batches.
type TransformRepo struct {
	pool PgxPool
}

// NewTransformRepo builds a TransformRepo.
func NewTransformRepo(pool PgxPool) *TransformRepo {
	return &TransformRepo{pool: pool}
}

var tracer = otel.Tracer("repo.transforms")

func (r *TransformRepo) span(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, op)
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", op))
	return ctx, span
}

// Create inserts a new transform definition and returns its generated ID.
func (r *TransformRepo) Create(ctx context.Context, t domain.Transform) (string, error) {
	ctx, span := r.span(ctx, "transforms.create")
	defer span.End()

	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO transforms (kind, owner, status, source_ref, config_blob, embedder_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id
	`, t.Kind, t.Owner, t.Status, t.SourceRef, t.ConfigBlob, t.EmbedderID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	return id, nil
}

// Get fetches a single transform by ID.
func (r *TransformRepo) Get(ctx context.Context, id string) (domain.Transform, error) {
	ctx, span := r.span(ctx, "transforms.get")
	defer span.End()

	var t domain.Transform
	err := r.pool.QueryRow(ctx, `
		SELECT id, kind, owner, status, source_ref, config_blob, embedder_id, created_at, updated_at, last_scanned_at
		FROM transforms WHERE id = $1
	`, id).Scan(&t.ID, &t.Kind, &t.Owner, &t.Status, &t.SourceRef, &t.ConfigBlob, &t.EmbedderID, &t.CreatedAt, &t.UpdatedAt, &t.LastScannedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transform{}, domain.ErrNotFound
		}
		return domain.Transform{}, fmt.Errorf("get: %w", err)
	}
	return t, nil
}

// Delete removes a transform row. Processed units and pending batches
// cascade-delete with it.
func (r *TransformRepo) Delete(ctx context.Context, id string) error {
	ctx, span := r.span(ctx, "transforms.delete")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM transforms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActiveTransforms returns every active transform of a given kind, in the
// order scanners should sweep them.
func (r *TransformRepo) ListActiveTransforms(ctx context.Context, kind domain.TransformKind) ([]domain.Transform, error) {
	ctx, span := r.span(ctx, "transforms.list_active")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, owner, status, source_ref, config_blob, embedder_id, created_at, updated_at, last_scanned_at
		FROM transforms
		WHERE kind = $1 AND status = $2
		ORDER BY COALESCE(last_scanned_at, to_timestamp(0)) ASC
	`, kind, domain.TransformActive)
	if err != nil {
		return nil, fmt.Errorf("list_active: %w", err)
	}
	defer rows.Close()

	var out []domain.Transform
	for rows.Next() {
		var t domain.Transform
		if err := rows.Scan(&t.ID, &t.Kind, &t.Owner, &t.Status, &t.SourceRef, &t.ConfigBlob, &t.EmbedderID, &t.CreatedAt, &t.UpdatedAt, &t.LastScannedAt); err != nil {
			return nil, fmt.Errorf("list_active scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list_active rows: %w", err)
	}
	return out, nil
}

// TouchScanned records the time a scanner last swept a transform.
func (r *TransformRepo) TouchScanned(ctx context.Context, id string, at time.Time) error {
	ctx, span := r.span(ctx, "transforms.touch_scanned")
	defer span.End()

	_, err := r.pool.Exec(ctx, `UPDATE transforms SET last_scanned_at = $1, updated_at = now() WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("touch_scanned: %w", err)
	}
	return nil
}

// IsUnitProcessed reports whether a (transformID, unitKey) pair has already
// produced output, so a scanner or consumer can skip republishing it.
func (r *TransformRepo) IsUnitProcessed(ctx context.Context, transformID, unitKey string) (bool, error) {
	ctx, span := r.span(ctx, "processed_units.is_processed")
	defer span.End()

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM processed_units WHERE transform_id = $1 AND unit_key = $2)
	`, transformID, unitKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is_unit_processed: %w", err)
	}
	return exists, nil
}

// UpsertProcessedUnit records (or re-records) that a unit has been
// processed, so a later scan does not republish it.
func (r *TransformRepo) UpsertProcessedUnit(ctx context.Context, u domain.ProcessedUnit) error {
	ctx, span := r.span(ctx, "processed_units.upsert")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_units (transform_id, unit_key, processed_at, result_ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transform_id, unit_key)
		DO UPDATE SET processed_at = EXCLUDED.processed_at, result_ref = EXCLUDED.result_ref
	`, u.TransformID, u.UnitKey, u.ProcessedAt, u.ResultRef)
	if err != nil {
		return fmt.Errorf("upsert_processed_unit: %w", err)
	}
	return nil
}

// ListProcessedKeys returns every unit key already processed for a
// transform, for a scanner's in-memory membership check on a large sweep.
func (r *TransformRepo) ListProcessedKeys(ctx context.Context, transformID string) ([]string, error) {
	ctx, span := r.span(ctx, "processed_units.list_keys")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT unit_key FROM processed_units WHERE transform_id = $1`, transformID)
	if err != nil {
		return nil, fmt.Errorf("list_processed_keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list_processed_keys scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list_processed_keys rows: %w", err)
	}
	return keys, nil
}

// InsertPendingBatch persists a job payload that could not be published to
// the broker, returning the generated batch ID.
func (r *TransformRepo) InsertPendingBatch(ctx context.Context, b domain.PendingBatch) (string, error) {
	ctx, span := r.span(ctx, "pending_batches.insert")
	defer span.End()

	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO pending_batches (transform_id, kind, payload, attempts, created_at)
		VALUES ($1, $2, $3, 0, now())
		RETURNING id
	`, b.TransformID, b.Kind, b.Payload).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert_pending_batch: %w", err)
	}
	return id, nil
}

// DrainPendingBatches returns up to limit pending batches for a kind, oldest
// first, for a republisher to retry.
func (r *TransformRepo) DrainPendingBatches(ctx context.Context, kind domain.TransformKind, limit int) ([]domain.PendingBatch, error) {
	ctx, span := r.span(ctx, "pending_batches.drain")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT id, transform_id, kind, payload, attempts, created_at, last_tried_at
		FROM pending_batches
		WHERE kind = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("drain_pending_batches: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingBatch
	for rows.Next() {
		var b domain.PendingBatch
		if err := rows.Scan(&b.ID, &b.TransformID, &b.Kind, &b.Payload, &b.Attempts, &b.CreatedAt, &b.LastTriedAt); err != nil {
			return nil, fmt.Errorf("drain_pending_batches scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drain_pending_batches rows: %w", err)
	}
	return out, nil
}

// DeletePendingBatch removes a pending batch once it has been republished.
func (r *TransformRepo) DeletePendingBatch(ctx context.Context, id string) error {
	ctx, span := r.span(ctx, "pending_batches.delete")
	defer span.End()

	_, err := r.pool.Exec(ctx, `DELETE FROM pending_batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete_pending_batch: %w", err)
	}
	return nil
}

// MarkPendingBatchAttempt records a republish attempt against a pending
// batch without removing it, for batches that fail again.
func (r *TransformRepo) MarkPendingBatchAttempt(ctx context.Context, id string, at time.Time) error {
	ctx, span := r.span(ctx, "pending_batches.mark_attempt")
	defer span.End()

	_, err := r.pool.Exec(ctx, `UPDATE pending_batches SET attempts = attempts + 1, last_tried_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("mark_pending_batch_attempt: %w", err)
	}
	return nil
}

// Stats aggregates processed-unit, outcome, and pending-batch counts for a
// transform. UnitsDLQ is sourced from the dlq_events table rather than
// transform_outcomes: a job the broker dead-letters never reaches the status
// topic the Result Listener consumes, so RecordOutcome never sees it. No
// component in this repository inserts into dlq_events, so UnitsDLQ reads 0.
func (r *TransformRepo) Stats(ctx context.Context, transformID string) (domain.TransformStats, error) {
	ctx, span := r.span(ctx, "transforms.stats")
	defer span.End()

	stats := domain.TransformStats{TransformID: transformID}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT count(*) FROM processed_units WHERE transform_id = $1), 0),
			COALESCE((SELECT count(*) FROM transform_outcomes WHERE transform_id = $1 AND outcome = 'failed'), 0),
			COALESCE((SELECT count(*) FROM dlq_events WHERE transform_id = $1), 0),
			COALESCE((SELECT count(*) FROM pending_batches WHERE transform_id = $1), 0),
			(SELECT last_scanned_at FROM transforms WHERE id = $1)
	`, transformID).Scan(&stats.UnitsOK, &stats.UnitsFailed, &stats.UnitsDLQ, &stats.PendingBatch, &stats.LastScannedAt)
	if err != nil {
		return domain.TransformStats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// RecordOutcome appends a terminal result for audit/stats purposes. A unit
// that succeeds is also reflected in processed_units by the caller via
// UpsertProcessedUnit; this table exists so failed outcomes (which never
// touch processed_units) still count toward Stats.
func (r *TransformRepo) RecordOutcome(ctx context.Context, result domain.ResultMessage) error {
	ctx, span := r.span(ctx, "transform_outcomes.record")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO transform_outcomes (transform_id, kind, unit_key, owner, outcome, error, result_ref, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, result.TransformID, result.Kind, result.UnitKey, result.Owner, result.Outcome, result.Error, result.ResultRef, result.FinishedAt)
	if err != nil {
		return fmt.Errorf("record_outcome: %w", err)
	}
	return nil
}
