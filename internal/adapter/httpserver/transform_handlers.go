package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
	"github.com/fairyhunter13/semantic-orchestrator/internal/usecase"
)

// ownerHeader carries the tenant identity an upstream gateway has already
// authenticated; this substrate does not itself implement authentication.
const ownerHeader = "X-Owner-Id"

func ownerFrom(r *http.Request) string {
	return SanitizeString(r.Header.Get(ownerHeader))
}

type createTransformRequest struct {
	SourceRef  string          `json:"source_ref"`
	ConfigBlob json.RawMessage `json:"config,omitempty"`
	EmbedderID string          `json:"embedder_id,omitempty"`
}

type transformResponse struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Owner      string `json:"owner"`
	Status     string `json:"status"`
	SourceRef  string `json:"source_ref"`
	EmbedderID string `json:"embedder_id,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toTransformResponse(t domain.Transform) transformResponse {
	return transformResponse{
		ID: t.ID, Kind: string(t.Kind), Owner: t.Owner, Status: string(t.Status),
		SourceRef: t.SourceRef, EmbedderID: t.EmbedderID,
		CreatedAt: t.CreatedAt.Format(time.RFC3339), UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateTransformHandler handles POST /api/{kind}-transforms.
func (s *Server) CreateTransformHandler(kind domain.TransformKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFrom(r)
		if owner == "" {
			writeError(w, r, fmt.Errorf("%w: %s header is required", domain.ErrInvalidArgument, ownerHeader), nil)
			return
		}

		var req createTransformRequest
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, r, fmt.Errorf("%w: malformed request body", domain.ErrInvalidArgument), nil)
				return
			}
		}

		t, err := s.Transforms.Create(r.Context(), usecase.CreateInput{
			Kind: kind, Owner: owner, SourceRef: req.SourceRef,
			ConfigBlob: []byte(req.ConfigBlob), EmbedderID: req.EmbedderID,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toTransformResponse(t))
	}
}

// TriggerTransformHandler handles POST /api/{kind}-transforms/{id}/trigger.
func (s *Server) TriggerTransformHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFrom(r)
		id := chi.URLParam(r, "id")
		if res := ValidateJobID(id); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid transform id", domain.ErrInvalidArgument), res.Errors)
			return
		}
		if err := s.Transforms.Trigger(r.Context(), id, owner); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
	}
}

// StatsTransformHandler handles GET /api/{kind}-transforms/{id}/stats.
func (s *Server) StatsTransformHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFrom(r)
		id := chi.URLParam(r, "id")
		if res := ValidateJobID(id); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid transform id", domain.ErrInvalidArgument), res.Errors)
			return
		}
		stats, err := s.Transforms.Stats(r.Context(), id, owner)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// EventsTransformHandler handles GET /api/{kind}-transforms/{id}/events, a
// Server-Sent Events stream of domain.StatusEvent updates for one transform.
// Delivery is best-effort: a client that misses events (buffer overflow, a
// missed connection) should resync via StatsTransformHandler rather than
// expect replay.
func (s *Server) EventsTransformHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFrom(r)
		id := chi.URLParam(r, "id")
		if res := ValidateJobID(id); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid transform id", domain.ErrInvalidArgument), res.Errors)
			return
		}
		if _, err := s.Transforms.Get(r.Context(), id, owner); err != nil {
			writeError(w, r, err, nil)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: streaming unsupported", domain.ErrInternal), nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		events, cancel := s.Hub.Subscribe(id)
		defer cancel()

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepalive.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Sequence, payload)
				flusher.Flush()
			}
		}
	}
}
