// Package usecase implements the application-level operations the HTTP
// surface exposes, gluing the job store and broker ports together.
package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// TransformService implements the create/trigger/stats operations of the
// transform HTTP surface (SPEC_FULL.md §6). It intentionally does not
// expose a delete or list operation — nothing in the spec's HTTP surface
// calls for them, and deletion semantics (Status: deleting, cascading
// cleanup) belong to an operator path, not a tenant-facing one.
type TransformService struct {
	repo   domain.TransformRepository
	broker domain.Broker
}

// NewTransformService builds a TransformService.
func NewTransformService(repo domain.TransformRepository, broker domain.Broker) *TransformService {
	return &TransformService{repo: repo, broker: broker}
}

// CreateInput carries the fields a caller supplies when defining a new
// transform; ID/Status/timestamps are assigned here, not by the caller.
type CreateInput struct {
	Kind       domain.TransformKind
	Owner      string
	SourceRef  string
	ConfigBlob []byte
	EmbedderID string
}

// Create persists a new transform definition and immediately publishes a
// targeted scan trigger for it, so the first backfill does not wait for the
// next periodic tick.
func (s *TransformService) Create(ctx domain.Context, in CreateInput) (domain.Transform, error) {
	if in.Owner == "" || in.SourceRef == "" {
		return domain.Transform{}, fmt.Errorf("%w: owner and source_ref are required", domain.ErrInvalidArgument)
	}
	switch in.Kind {
	case domain.KindCollection, domain.KindDataset, domain.KindVisualization:
	default:
		return domain.Transform{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidArgument, in.Kind)
	}

	now := time.Now()
	t := domain.Transform{
		ID:         uuid.NewString(),
		Kind:       in.Kind,
		Owner:      in.Owner,
		Status:     domain.TransformActive,
		SourceRef:  in.SourceRef,
		ConfigBlob: in.ConfigBlob,
		EmbedderID: in.EmbedderID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	id, err := s.repo.Create(ctx, t)
	if err != nil {
		return domain.Transform{}, fmt.Errorf("create transform: %w", err)
	}
	t.ID = id

	if s.broker != nil {
		if err := s.broker.PublishTrigger(ctx, t.Kind, t.ID, t.Owner); err != nil {
			// A missed initial trigger is recovered by the next periodic
			// scan (collection/dataset) or a manual /trigger call
			// (visualization); creation itself still succeeds.
			return t, nil
		}
	}
	return t, nil
}

// Trigger publishes a targeted scan for an existing transform, scoped to its
// owner so a caller cannot trigger another tenant's transform.
func (s *TransformService) Trigger(ctx domain.Context, id, owner string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Owner != owner {
		return domain.ErrNotFound
	}
	if t.Status != domain.TransformActive {
		return fmt.Errorf("%w: transform is %s", domain.ErrConflict, t.Status)
	}
	return s.broker.PublishTrigger(ctx, t.Kind, t.ID, t.Owner)
}

// Stats returns aggregate processing progress for a transform, scoped to its
// owner.
func (s *TransformService) Stats(ctx domain.Context, id, owner string) (domain.TransformStats, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.TransformStats{}, err
	}
	if t.Owner != owner {
		return domain.TransformStats{}, domain.ErrNotFound
	}
	return s.repo.Stats(ctx, id)
}

// Get fetches a transform scoped to its owner, used by the SSE endpoint to
// authorize a subscription before attaching to the event hub.
func (s *TransformService) Get(ctx domain.Context, id, owner string) (domain.Transform, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Transform{}, err
	}
	if t.Owner != owner {
		return domain.Transform{}, domain.ErrNotFound
	}
	return t, nil
}
