package worker

import (
	"context"
	"testing"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

func TestNoopHandler_AlwaysSucceeds(t *testing.T) {
	h := NoopHandler()
	result := h.Handle(context.Background(), domain.JobMessage{TransformID: "t1", Kind: domain.KindCollection, UnitKey: "u1"})
	if result.Outcome != domain.OutcomeSucceeded {
		t.Fatalf("expected success outcome, got %+v", result)
	}
	if result.TransformID != "t1" || result.UnitKey != "u1" {
		t.Fatalf("expected identity fields preserved, got %+v", result)
	}
}
