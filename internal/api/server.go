package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/broker"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/config"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/ratelimit"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/telemetry"
)

// Server wires the producer-facing HTTP surface over the broker.
type Server struct {
	cfg     config.Config
	broker  *broker.Broker
	limiter *ratelimit.TokenBucket
	log     *slog.Logger
}

// New constructs the API server. limiter may be nil to disable intake
// rate limiting.
func New(cfg config.Config, b *broker.Broker, limiter *ratelimit.TokenBucket, log *slog.Logger) *Server {
	return &Server{cfg: cfg, broker: b, limiter: limiter, log: log}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api/queues/{queue}", func(r chi.Router) {
		r.Post("/jobs", s.handleEnqueue)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/status", s.handleGetStatus)
		r.Get("/metrics", s.handleQueueMetrics)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.broker.HealthCheck(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type enqueueRequest struct {
	Name         string          `json:"name"`
	Payload      json.RawMessage `json:"payload"`
	DelaySeconds int             `json:"delay_seconds,omitempty"`
	MaxAttempts  int             `json:"max_attempts,omitempty"`
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = queue
	}
	if req.Payload == nil {
		req.Payload = json.RawMessage(`{}`)
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = s.cfg.MaxAttempts
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), "rl:intake:"+projectFromRequest(r))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	opts := &broker.EnqueueOptions{MaxAttempts: req.MaxAttempts}
	if req.DelaySeconds > 0 {
		opts.Delay = time.Duration(req.DelaySeconds) * time.Second
	}
	jobID, err := s.broker.Enqueue(r.Context(), queue, req.Name, req.Payload, opts)
	if err != nil {
		s.writeBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: jobID, Queue: queue})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	id := chi.URLParam(r, "id")
	job, err := s.broker.GetJob(r.Context(), queue, id)
	if err != nil {
		s.writeBrokerError(w, err)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	id := chi.URLParam(r, "id")
	status, err := s.broker.GetStatus(r.Context(), queue, id)
	if err != nil {
		s.writeBrokerError(w, err)
		return
	}
	if status == "" {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleQueueMetrics(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	m, err := s.broker.GetMetrics(r.Context(), queue)
	if err != nil {
		s.writeBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if err := s.broker.Pause(r.Context(), queue); err != nil {
		s.writeBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if err := s.broker.Resume(r.Context(), queue); err != nil {
		s.writeBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) writeBrokerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broker.ErrQueueNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, broker.ErrNotInitialized):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.log.Error("broker operation failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func projectFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Project-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
