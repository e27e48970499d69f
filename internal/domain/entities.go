// Package domain defines core entities, ports, and domain-specific errors for
// the transform orchestration substrate.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrGone              = errors.New("transform gone")
	ErrCapacity          = errors.New("at capacity")
	ErrInternal          = errors.New("internal error")
)

// TransformKind enumerates the polymorphic unit of work the substrate moves
// through the pipeline. Each kind has its own topic, scan cadence, and job
// handler, but shares the broker/store/worker machinery.
type TransformKind string

// Transform kind values.
const (
	// KindCollection turns raw documents into semantically coherent chunks.
	KindCollection TransformKind = "collection"
	// KindDataset turns chunks into vector embeddings.
	KindDataset TransformKind = "dataset"
	// KindVisualization derives a 2D/3D layout by clustering an embedding
	// space. Visualization scans are on-demand only, never periodic.
	KindVisualization TransformKind = "visualization"
)

// TransformStatus captures the lifecycle state of a transform definition.
type TransformStatus string

// Transform status values.
const (
	TransformActive   TransformStatus = "active"
	TransformPaused   TransformStatus = "paused"
	TransformDeleting TransformStatus = "deleting"
)

// Transform is the durable definition of a recurring or on-demand unit of
// work: "turn documents in source X into chunks", "embed chunks of
// collection Y", "visualize dataset Z". Scanners enumerate unprocessed units
// against a Transform; workers execute one unit at a time.
//
// Invariants: Kind in {collection, dataset, visualization}; ConfigBlob is
// opaque to the substrate (interpreted only by the kind-specific handler).
type Transform struct {
	ID            string
	Kind          TransformKind
	Owner         string
	Status        TransformStatus
	SourceRef     string // upstream collection/dataset identifier this transform reads from
	ConfigBlob    []byte // kind-specific configuration, opaque to the orchestration substrate
	EmbedderID    string // only meaningful for dataset transforms; empty otherwise
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastScannedAt *time.Time
}

// ProcessedUnit records that a single unit of work (one document chunk, one
// embedding batch member, one dataset snapshot) has already been produced
// for a transform, so a later scan does not republish it.
//
// Invariant: (TransformID, UnitKey) is unique; a scanner's "already
// processed" check is exactly a lookup against this uniqueness.
type ProcessedUnit struct {
	TransformID string
	UnitKey     string
	ProcessedAt time.Time
	ResultRef   string // pointer to where the unit's output landed (chunk id, vector id, ...)
}

// PendingBatch holds a job payload that failed to publish to the broker
// after exhausting publish retries, so the scanner does not silently lose
// work when the broker is briefly unavailable. A background republisher
// drains this table.
type PendingBatch struct {
	ID          string
	TransformID string
	Kind        TransformKind
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
	LastTriedAt *time.Time
}

// JobMessage is the payload published to a worker topic for one unit of
// work. MsgID is the broker-level dedup key: "<kind>-<transform-id>-<unit-key>".
type JobMessage struct {
	MsgID       string
	TransformID string
	Kind        TransformKind
	Owner       string
	UnitKey     string
	Payload     []byte
	EmbedderID  string
	RequestID   string
	EnqueuedAt  time.Time
}

// ResultOutcome is the terminal disposition of a processed job.
type ResultOutcome string

// Result outcome values.
const (
	OutcomeSucceeded ResultOutcome = "succeeded"
	OutcomeFailed    ResultOutcome = "failed"
)

// ResultMessage is the payload published by a worker once a job reaches a
// terminal state, consumed by the Result Listener to update job-store state
// and fan status out to subscribers.
type ResultMessage struct {
	TransformID string
	Kind        TransformKind
	UnitKey     string
	Owner       string
	Outcome     ResultOutcome
	Error       string
	ResultRef   string
	FinishedAt  time.Time
}

// StatusEvent is a single update in a transform's SSE status stream.
type StatusEvent struct {
	TransformID string
	Sequence    int64
	Outcome     ResultOutcome
	UnitKey     string
	Message     string
	EmittedAt   time.Time
}

// TransformStats summarizes processing progress for a transform, reported by
// the GET .../{id}/stats endpoint.
type TransformStats struct {
	TransformID   string
	UnitsOK       int64
	UnitsFailed   int64
	UnitsDLQ      int64
	PendingBatch  int64
	LastScannedAt *time.Time
}

// IdempotencyRecord caches a completed response for a request-path
// Idempotency-Key so a retried request replays the original outcome instead
// of re-triggering work. Body holds the raw response bytes captured from the
// first 2xx response.
type IdempotencyRecord struct {
	Key         string // {owner}:{idempotency-key}:{endpoint}
	StatusCode  int
	Headers     map[string]string
	Body        []byte
	RecordedAt  time.Time
}

// Repositories (ports)

// TransformRepository manages durable Transform definitions and their
// processed-unit/pending-batch bookkeeping.
type TransformRepository interface {
	Create(ctx Context, t Transform) (string, error)
	Get(ctx Context, id string) (Transform, error)
	Delete(ctx Context, id string) error
	ListActiveTransforms(ctx Context, kind TransformKind) ([]Transform, error)
	TouchScanned(ctx Context, id string, at time.Time) error

	IsUnitProcessed(ctx Context, transformID, unitKey string) (bool, error)
	UpsertProcessedUnit(ctx Context, u ProcessedUnit) error
	ListProcessedKeys(ctx Context, transformID string) ([]string, error)

	InsertPendingBatch(ctx Context, b PendingBatch) (string, error)
	DrainPendingBatches(ctx Context, kind TransformKind, limit int) ([]PendingBatch, error)
	DeletePendingBatch(ctx Context, id string) error
	MarkPendingBatchAttempt(ctx Context, id string, at time.Time) error

	Stats(ctx Context, transformID string) (TransformStats, error)
	RecordOutcome(ctx Context, result ResultMessage) error
}

// Broker (port)

// Broker abstracts durable publish/consume with message-ID deduplication,
// explicit ack/nak, and dead-letter routing across worker, status, and
// trigger topics.
type Broker interface {
	PublishJob(ctx Context, msg JobMessage) error
	PublishResult(ctx Context, msg ResultMessage) error
	PublishTrigger(ctx Context, kind TransformKind, transformID, owner string) error
	PublishDLQ(ctx Context, kind TransformKind, msg JobMessage, reason string) error
}

// SourceEnumerator (port)

// SourceEnumerator lists candidate unit keys for a transform's upstream
// source, paginated by an opaque page token. Concrete source backends
// (document stores, chunk collections, embedding spaces) are outside this
// substrate's scope; the scanner only ever talks to this port.
type SourceEnumerator interface {
	ListUnits(ctx Context, sourceRef, pageToken string) (units []string, nextPageToken string, err error)
}

// IdempotencyStore (port)

// IdempotencyStore caches completed responses keyed by Idempotency-Key.
type IdempotencyStore interface {
	Lookup(ctx Context, key string) (IdempotencyRecord, bool, error)
	Store(ctx Context, rec IdempotencyRecord, ttl time.Duration) error
}

// RateLimiter (port)

// RateLimitDecision is the outcome of a single rate-limit check.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter abstracts the token-bucket used to bound request-path load per
// owner/endpoint class.
type RateLimiter interface {
	Allow(ctx Context, owner, class string) (RateLimitDecision, error)
}

// Context is a type alias to stdlib context.Context for convenience across
// layers without forcing every package to import it directly.
type Context = context.Context
