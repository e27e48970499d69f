package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
	"github.com/fairyhunter13/semantic-orchestrator/internal/listener"
	"github.com/fairyhunter13/semantic-orchestrator/internal/usecase"
)

type handlerFakeRepo struct {
	transforms map[string]domain.Transform
}

func newHandlerFakeRepo() *handlerFakeRepo { return &handlerFakeRepo{transforms: map[string]domain.Transform{}} }

func (r *handlerFakeRepo) Create(_ domain.Context, t domain.Transform) (string, error) {
	r.transforms[t.ID] = t
	return t.ID, nil
}
func (r *handlerFakeRepo) Get(_ domain.Context, id string) (domain.Transform, error) {
	t, ok := r.transforms[id]
	if !ok {
		return domain.Transform{}, domain.ErrNotFound
	}
	return t, nil
}
func (r *handlerFakeRepo) Delete(domain.Context, string) error { return nil }
func (r *handlerFakeRepo) ListActiveTransforms(domain.Context, domain.TransformKind) ([]domain.Transform, error) {
	return nil, nil
}
func (r *handlerFakeRepo) TouchScanned(domain.Context, string, time.Time) error         { return nil }
func (r *handlerFakeRepo) IsUnitProcessed(domain.Context, string, string) (bool, error) { return false, nil }
func (r *handlerFakeRepo) UpsertProcessedUnit(domain.Context, domain.ProcessedUnit) error {
	return nil
}
func (r *handlerFakeRepo) ListProcessedKeys(domain.Context, string) ([]string, error) { return nil, nil }
func (r *handlerFakeRepo) InsertPendingBatch(domain.Context, domain.PendingBatch) (string, error) {
	return "", nil
}
func (r *handlerFakeRepo) DrainPendingBatches(domain.Context, domain.TransformKind, int) ([]domain.PendingBatch, error) {
	return nil, nil
}
func (r *handlerFakeRepo) DeletePendingBatch(domain.Context, string) error                 { return nil }
func (r *handlerFakeRepo) MarkPendingBatchAttempt(domain.Context, string, time.Time) error { return nil }
func (r *handlerFakeRepo) Stats(domain.Context, string) (domain.TransformStats, error) {
	return domain.TransformStats{UnitsOK: 2}, nil
}
func (r *handlerFakeRepo) RecordOutcome(domain.Context, domain.ResultMessage) error { return nil }

type handlerFakeBroker struct{}

func (handlerFakeBroker) PublishJob(domain.Context, domain.JobMessage) error       { return nil }
func (handlerFakeBroker) PublishResult(domain.Context, domain.ResultMessage) error { return nil }
func (handlerFakeBroker) PublishTrigger(domain.Context, domain.TransformKind, string, string) error {
	return nil
}
func (handlerFakeBroker) PublishDLQ(domain.Context, domain.TransformKind, domain.JobMessage, string) error {
	return nil
}

func newTestServer() (*Server, *handlerFakeRepo) {
	repo := newHandlerFakeRepo()
	svc := usecase.NewTransformService(repo, handlerFakeBroker{})
	return NewServer(svc, listener.NewHub(), nil, nil, nil), repo
}

func withChiParam(r *http.Request, key, val string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, val)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(s string) *strings.Reader { return strings.NewReader(s) }

func TestCreateTransformHandler_RequiresOwner(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/collection-transforms", nil)
	rr := httptest.NewRecorder()
	srv.CreateTransformHandler(domain.KindCollection)(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without owner header, got %d", rr.Code)
	}
}

func TestCreateTransformHandler_OK(t *testing.T) {
	srv, _ := newTestServer()
	body := `{"source_ref":"src-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/collection-transforms", jsonBody(body))
	req.Header.Set(ownerHeader, "acme")
	rr := httptest.NewRecorder()
	srv.CreateTransformHandler(domain.KindCollection)(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp transformResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Owner != "acme" || resp.Kind != "collection" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestStatsTransformHandler_OwnerScoped(t *testing.T) {
	srv, repo := newTestServer()
	repo.transforms["t1"] = domain.Transform{ID: "t1", Owner: "acme"}

	req := httptest.NewRequest(http.MethodGet, "/api/collection-transforms/t1/stats", nil)
	req.Header.Set(ownerHeader, "acme")
	req = withChiParam(req, "id", "t1")
	rr := httptest.NewRecorder()
	srv.StatsTransformHandler()(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/collection-transforms/t1/stats", nil)
	req2.Header.Set(ownerHeader, "someone-else")
	req2 = withChiParam(req2, "id", "t1")
	rr2 := httptest.NewRecorder()
	srv.StatsTransformHandler()(rr2, req2)
	if rr2.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for mismatched owner, got %d", rr2.Code)
	}
}
