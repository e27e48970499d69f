package worker

import (
	"fmt"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// Handler executes one unit of work for a transform kind and returns the
// terminal outcome to publish. Concrete chunking/embedding/clustering
// bodies live behind this interface and are supplied by the caller; the
// worker runtime only knows how to dispatch by kind, enforce concurrency,
// and translate the outcome into ack/nak/DLQ routing.
type Handler interface {
	Handle(ctx domain.Context, msg domain.JobMessage) domain.ResultMessage
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx domain.Context, msg domain.JobMessage) domain.ResultMessage

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx domain.Context, msg domain.JobMessage) domain.ResultMessage {
	return f(ctx, msg)
}

// Registry dispatches a job message to the handler registered for its kind.
type Registry struct {
	handlers map[domain.TransformKind]Handler
}

// NewRegistry constructs an empty kind-dispatch registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.TransformKind]Handler)}
}

// Register attaches a handler for a transform kind, replacing any prior
// registration.
func (r *Registry) Register(kind domain.TransformKind, h Handler) {
	r.handlers[kind] = h
}

// Dispatch runs the handler registered for msg.Kind. A message for an
// unregistered kind fails fast with a fatal (non-retryable) error rather
// than silently succeeding.
func (r *Registry) Dispatch(ctx domain.Context, msg domain.JobMessage) domain.ResultMessage {
	h, ok := r.handlers[msg.Kind]
	if !ok {
		return domain.ResultMessage{
			TransformID: msg.TransformID,
			Kind:        msg.Kind,
			UnitKey:     msg.UnitKey,
			Owner:       msg.Owner,
			Outcome:     domain.OutcomeFailed,
			Error:       fmt.Sprintf("%v: no handler registered for kind %q", domain.ErrInvalidArgument, msg.Kind),
		}
	}
	return h.Handle(ctx, msg)
}
