// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/semantic-orchestrator/internal/adapter/httpserver"
	"github.com/fairyhunter13/semantic-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/semantic-orchestrator/internal/config"
	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"*"}
	}
	if s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
//
// limiter and idemStore may be nil (e.g. in tests without Redis); both
// middlewares fail open when their backing store is unset.
func BuildRouter(cfg config.Config, srv *httpserver.Server, limiter domain.RateLimiter, idemStore domain.IdempotencyStore) http.Handler {
	r := chi.NewRouter()
	// Security & instrumentation middleware
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*", "Idempotency-Key", "X-Owner-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	mountKind := func(wr chi.Router, kind domain.TransformKind, path string) {
		wr.Group(func(wr chi.Router) {
			wr.Use(httpserver.RateLimitMiddleware(limiter, "create"))
			wr.Use(httpserver.IdempotencyMiddleware(idemStore, cfg.IdempotencyTTL))
			wr.Post(path, srv.CreateTransformHandler(kind))
		})
		wr.Group(func(wr chi.Router) {
			wr.Use(httpserver.RateLimitMiddleware(limiter, "trigger"))
			wr.Use(httpserver.IdempotencyMiddleware(idemStore, cfg.IdempotencyTTL))
			wr.Post(path+"/{id}/trigger", srv.TriggerTransformHandler())
		})
		wr.Group(func(wr chi.Router) {
			wr.Use(httpserver.RateLimitMiddleware(limiter, "read"))
			wr.Get(path+"/{id}/stats", srv.StatsTransformHandler())
			wr.Get(path+"/{id}/events", srv.EventsTransformHandler())
		})
	}

	r.Route("/api", func(api chi.Router) {
		mountKind(api, domain.KindCollection, "/collection-transforms")
		mountKind(api, domain.KindDataset, "/dataset-transforms")
		mountKind(api, domain.KindVisualization, "/visualization-transforms")
	})

	return httpserver.SecurityHeaders(r)
}
