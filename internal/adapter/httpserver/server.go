package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/fairyhunter13/semantic-orchestrator/internal/listener"
	"github.com/fairyhunter13/semantic-orchestrator/internal/usecase"
)

// ReadinessCheck is one dependency probe used by ReadyzHandler.
type ReadinessCheck func(ctx context.Context) error

// Server holds the dependencies the transform HTTP surface needs: the
// application usecase, the SSE fan-out hub, and the three readiness probes
// (db/redis/kafka) app.BuildReadinessChecks assembles.
type Server struct {
	Transforms *usecase.TransformService
	Hub        *listener.Hub

	DBCheck    ReadinessCheck
	RedisCheck ReadinessCheck
	KafkaCheck ReadinessCheck
}

// NewServer builds a Server.
func NewServer(transforms *usecase.TransformService, hub *listener.Hub, dbCheck, redisCheck, kafkaCheck ReadinessCheck) *Server {
	return &Server{Transforms: transforms, Hub: hub, DBCheck: dbCheck, RedisCheck: redisCheck, KafkaCheck: kafkaCheck}
}

// HealthzHandler reports liveness only: the process is up and serving.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler reports readiness: every configured dependency probe must
// succeed within a short per-check deadline.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]ReadinessCheck{"database": s.DBCheck, "redis": s.RedisCheck, "kafka": s.KafkaCheck}
		result := make(map[string]string, len(checks))
		ready := true
		for name, check := range checks {
			if check == nil {
				result[name] = "not configured"
				continue
			}
			if err := check(ctx); err != nil {
				result[name] = err.Error()
				ready = false
				continue
			}
			result[name] = "ok"
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]interface{}{"ready": ready, "checks": result})
	}
}
