package httpserver

import (
	"bytes"
	"net/http"
	"time"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

// IdempotencyMiddleware replays a cached response when a request repeats an
// Idempotency-Key already seen for the same owner and route, so a client's
// network retry of a create/trigger call cannot double-execute it.
//
// Replay writes the cached status code, the cached Content-Type header and
// the raw body bytes captured from the first response. The body is buffered
// in full with no size cap, which is enough for this substrate's JSON bodies
// (SSE never carries an Idempotency-Key). Only 2xx responses are cached.
func IdempotencyMiddleware(store domain.IdempotencyStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}
			idemKey := r.Header.Get(idempotencyKeyHeader)
			if idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := ownerFrom(r) + ":" + idemKey + ":" + r.Method + " " + r.URL.Path
			if rec, hit, err := store.Lookup(r.Context(), key); err == nil && hit {
				for k, v := range rec.Headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("X-Idempotency-Replay", "true")
				w.WriteHeader(rec.StatusCode)
				_, _ = w.Write(rec.Body)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				headers := map[string]string{}
				if ct := rec.Header().Get("Content-Type"); ct != "" {
					headers["Content-Type"] = ct
				}
				_ = store.Store(r.Context(), domain.IdempotencyRecord{
					Key: key, StatusCode: rec.status, Headers: headers, Body: rec.body.Bytes(), RecordedAt: time.Now(),
				}, ttl)
			}
		})
	}
}

type recordingWriter struct {
	http.ResponseWriter
	status      int
	body        *bytes.Buffer
	wroteHeader bool
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
