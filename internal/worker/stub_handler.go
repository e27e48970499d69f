package worker

import (
	"time"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// NoopHandler always reports success for whatever unit it's given. Real
// chunking/embedding/clustering bodies are out of this substrate's scope
// (SPEC_FULL.md §1 Non-goals); this is the default registered for every
// kind so the worker runtime — dispatch, concurrency, ack/nak, DLQ routing
// — stays exercised end-to-end without a concrete handler implementation.
func NoopHandler() Handler {
	return HandlerFunc(func(_ domain.Context, msg domain.JobMessage) domain.ResultMessage {
		return domain.ResultMessage{
			TransformID: msg.TransformID,
			Kind:        msg.Kind,
			UnitKey:     msg.UnitKey,
			Owner:       msg.Owner,
			Outcome:     domain.OutcomeSucceeded,
			FinishedAt:  time.Now(),
		}
	})
}
