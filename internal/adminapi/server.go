// Package adminapi exposes the read-only observability surface for a
// running FetcherManager: health, metrics, queue snapshots and the
// effective policy. It is deliberately not a job-submission API; job
// partitioning and submission belong to the surrounding pipeline.
package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/politefetch/politefetch/internal/config"
	"github.com/politefetch/politefetch/internal/fetchmodel"
	"github.com/politefetch/politefetch/internal/hostqueue"
	"github.com/politefetch/politefetch/internal/telemetry/metrics"
)

// Server wires HTTP handlers to a QueueManager and the effective policy.
type Server struct {
	router chi.Router
	queues *hostqueue.QueueManager
	policy fetchmodel.FetcherPolicy
}

// New constructs a Server with middleware and routes.
func New(queues *hostqueue.QueueManager, policy fetchmodel.FetcherPolicy) *Server {
	s := &Server{queues: queues, policy: policy}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/queues", s.listQueues)
	r.Get("/policy", s.getPolicy)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queueSnapshot is the JSON shape returned per host by /queues.
type queueSnapshot struct {
	Key           string `json:"key"`
	BacklogSize   int    `json:"backlog_size"`
	ActiveWorkers int    `json:"active_workers"`
}

func (s *Server) listQueues(w http.ResponseWriter, _ *http.Request) {
	queues := s.queues.Queues()
	snapshots := make([]queueSnapshot, 0, len(queues))
	for _, q := range queues {
		depth := q.BacklogSize()
		metrics.SetQueueDepth(q.Key().Host(), depth)
		snapshots = append(snapshots, queueSnapshot{
			Key:           q.Key().String(),
			BacklogSize:   depth,
			ActiveWorkers: q.ActiveCount(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": snapshots})
}

func (s *Server) getPolicy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, config.ToPolicyRecord(s.policy))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
