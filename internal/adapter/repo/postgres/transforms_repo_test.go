package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

func TestTransformRepo_Create_OK(t *testing.T) {
	pool := &fakePgxPool{row: fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "t1"
		return nil
	}}}
	repo := postgres.NewTransformRepo(pool)

	id, err := repo.Create(context.Background(), domain.Transform{Kind: domain.KindCollection, Owner: "acme", Status: domain.TransformActive})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "t1" {
		t.Fatalf("expected id t1, got %q", id)
	}
}

func TestTransformRepo_Create_Error(t *testing.T) {
	pool := &fakePgxPool{row: fakeRow{scan: func(dest ...any) error { return errors.New("boom") }}}
	repo := postgres.NewTransformRepo(pool)

	if _, err := repo.Create(context.Background(), domain.Transform{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTransformRepo_Get_NotFound(t *testing.T) {
	pool := &fakePgxPool{row: fakeRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewTransformRepo(pool)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransformRepo_Delete_NotFound(t *testing.T) {
	pool := &fakePgxPool{execTag: pgconn.NewCommandTag("DELETE 0")}
	repo := postgres.NewTransformRepo(pool)

	if err := repo.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransformRepo_Delete_OK(t *testing.T) {
	pool := &fakePgxPool{execTag: pgconn.NewCommandTag("DELETE 1")}
	repo := postgres.NewTransformRepo(pool)

	if err := repo.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestTransformRepo_ListActive_OK(t *testing.T) {
	now := time.Now()
	pool := &fakePgxPool{rows: &fakeRows{scans: []func(dest ...any) error{
		func(dest ...any) error {
			*(dest[0].(*string)) = "t1"
			*(dest[1].(*domain.TransformKind)) = domain.KindCollection
			*(dest[2].(*string)) = "acme"
			*(dest[3].(*domain.TransformStatus)) = domain.TransformActive
			*(dest[4].(*string)) = "src"
			*(dest[5].(*[]byte)) = nil
			*(dest[6].(*string)) = ""
			*(dest[7].(*time.Time)) = now
			*(dest[8].(*time.Time)) = now
			*(dest[9].(**time.Time)) = nil
			return nil
		},
	}}}
	repo := postgres.NewTransformRepo(pool)

	out, err := repo.ListActiveTransforms(context.Background(), domain.KindCollection)
	if err != nil {
		t.Fatalf("list_active: %v", err)
	}
	if len(out) != 1 || out[0].ID != "t1" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestTransformRepo_IsUnitProcessed(t *testing.T) {
	pool := &fakePgxPool{row: fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*bool)) = true
		return nil
	}}}
	repo := postgres.NewTransformRepo(pool)

	ok, err := repo.IsUnitProcessed(context.Background(), "t1", "u1")
	if err != nil {
		t.Fatalf("is_unit_processed: %v", err)
	}
	if !ok {
		t.Fatalf("expected true")
	}
}

func TestTransformRepo_UpsertProcessedUnit_OK(t *testing.T) {
	pool := &fakePgxPool{}
	repo := postgres.NewTransformRepo(pool)

	err := repo.UpsertProcessedUnit(context.Background(), domain.ProcessedUnit{TransformID: "t1", UnitKey: "u1", ProcessedAt: time.Now()})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestTransformRepo_ListProcessedKeys_OK(t *testing.T) {
	pool := &fakePgxPool{rows: &fakeRows{scans: []func(dest ...any) error{
		func(dest ...any) error { *(dest[0].(*string)) = "u1"; return nil },
		func(dest ...any) error { *(dest[0].(*string)) = "u2"; return nil },
	}}}
	repo := postgres.NewTransformRepo(pool)

	keys, err := repo.ListProcessedKeys(context.Background(), "t1")
	if err != nil {
		t.Fatalf("list_processed_keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

func TestTransformRepo_InsertPendingBatch_OK(t *testing.T) {
	pool := &fakePgxPool{row: fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "batch-1"
		return nil
	}}}
	repo := postgres.NewTransformRepo(pool)

	id, err := repo.InsertPendingBatch(context.Background(), domain.PendingBatch{TransformID: "t1", Kind: domain.KindCollection, Payload: []byte("x")})
	if err != nil {
		t.Fatalf("insert_pending_batch: %v", err)
	}
	if id != "batch-1" {
		t.Fatalf("unexpected id: %q", id)
	}
}

func TestTransformRepo_DrainPendingBatches_OK(t *testing.T) {
	now := time.Now()
	pool := &fakePgxPool{rows: &fakeRows{scans: []func(dest ...any) error{
		func(dest ...any) error {
			*(dest[0].(*string)) = "b1"
			*(dest[1].(*string)) = "t1"
			*(dest[2].(*domain.TransformKind)) = domain.KindDataset
			*(dest[3].(*[]byte)) = []byte("payload")
			*(dest[4].(*int)) = 1
			*(dest[5].(*time.Time)) = now
			*(dest[6].(**time.Time)) = nil
			return nil
		},
	}}}
	repo := postgres.NewTransformRepo(pool)

	out, err := repo.DrainPendingBatches(context.Background(), domain.KindDataset, 10)
	if err != nil {
		t.Fatalf("drain_pending_batches: %v", err)
	}
	if len(out) != 1 || out[0].ID != "b1" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestTransformRepo_DeletePendingBatch_OK(t *testing.T) {
	pool := &fakePgxPool{}
	repo := postgres.NewTransformRepo(pool)

	if err := repo.DeletePendingBatch(context.Background(), "b1"); err != nil {
		t.Fatalf("delete_pending_batch: %v", err)
	}
}

func TestTransformRepo_MarkPendingBatchAttempt_OK(t *testing.T) {
	pool := &fakePgxPool{}
	repo := postgres.NewTransformRepo(pool)

	if err := repo.MarkPendingBatchAttempt(context.Background(), "b1", time.Now()); err != nil {
		t.Fatalf("mark_pending_batch_attempt: %v", err)
	}
}

func TestTransformRepo_Stats_OK(t *testing.T) {
	pool := &fakePgxPool{row: fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*int64)) = 5
		*(dest[1].(*int64)) = 1
		*(dest[2].(*int64)) = 0
		*(dest[3].(*int64)) = 2
		*(dest[4].(**time.Time)) = nil
		return nil
	}}}
	repo := postgres.NewTransformRepo(pool)

	stats, err := repo.Stats(context.Background(), "t1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.UnitsOK != 5 || stats.PendingBatch != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTransformRepo_RecordOutcome_OK(t *testing.T) {
	pool := &fakePgxPool{}
	repo := postgres.NewTransformRepo(pool)

	err := repo.RecordOutcome(context.Background(), domain.ResultMessage{
		TransformID: "t1", Kind: domain.KindCollection, Outcome: domain.OutcomeSucceeded, FinishedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("record_outcome: %v", err)
	}
}

func TestTransformRepo_RecordOutcome_Error(t *testing.T) {
	pool := &fakePgxPool{execErr: errors.New("boom")}
	repo := postgres.NewTransformRepo(pool)

	err := repo.RecordOutcome(context.Background(), domain.ResultMessage{TransformID: "t1", FinishedAt: time.Now()})
	if err == nil {
		t.Fatalf("expected error")
	}
}
