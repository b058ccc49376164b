// Package api exposes the pipeline over HTTP: task submission, status
// polling, health and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpctx/internal/metrics"
	"github.com/hyperifyio/serpctx/internal/model"
	"github.com/hyperifyio/serpctx/internal/pipeline"
	"github.com/hyperifyio/serpctx/internal/queue"
)

// Status strings reported to clients besides the current stage name.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Query    string `json:"query"`
	Region   string `json:"region"`
	Language string `json:"language"`
	Mode     string `json:"mode"`
	Limit    int    `json:"limit"`
	// Both spellings are accepted.
	OutputFormat      string `json:"output_format"`
	OutputFormatCamel string `json:"outputFormat"`
}

func (r SearchRequest) task() model.Task {
	format := r.OutputFormat
	if format == "" {
		format = r.OutputFormatCamel
	}
	return model.Task{
		Query:        r.Query,
		Region:       r.Region,
		Language:     r.Language,
		Mode:         model.Mode(r.Mode),
		Limit:        r.Limit,
		OutputFormat: model.OutputFormat(format),
	}
}

// TaskResponse is returned by both endpoints.
type TaskResponse struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Server routes requests to the pipeline and the broker.
type Server struct {
	pipeline *pipeline.Pipeline
	broker   *queue.Broker
	limiter  *ipLimiter
	mux      *http.ServeMux
}

// New returns a Server. perMinute bounds POST /search per client IP; zero
// disables rate limiting.
func New(p *pipeline.Pipeline, b *queue.Broker, perMinute int) *Server {
	s := &Server{pipeline: p, broker: b, mux: http.NewServeMux()}
	if perMinute > 0 {
		s.limiter = newIPLimiter(perMinute)
	}
	s.mux.HandleFunc("POST /search", s.handleSearch)
	s.mux.HandleFunc("GET /tasks/{id}", s.handleTask)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return instrument(s.mux)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	id, err := s.pipeline.Submit(r.Context(), s.broker, req.task())
	switch {
	case errors.Is(err, model.ErrInvalidTask):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("task dispatch failed")
		writeError(w, http.StatusInternalServerError, "failed to dispatch task")
		return
	}
	log.Info().Str("task_id", id).Str("query", req.Query).Msg("task accepted")
	writeJSON(w, http.StatusAccepted, TaskResponse{TaskID: id, Status: StatusPending})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.broker.Status(r.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("task_id", id).Msg("status lookup failed")
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	resp := TaskResponse{TaskID: id, Status: clientStatus(st)}
	switch st.State {
	case queue.StateSuccess:
		resp.Result = st.Result
	case queue.StateFailure:
		resp.Error = st.Error
		if resp.Error == "" {
			resp.Error = "task failed"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientStatus maps queue states onto pending, the current stage, completed
// or failed.
func clientStatus(st queue.Status) string {
	switch st.State {
	case queue.StateSuccess:
		return StatusCompleted
	case queue.StateFailure:
		return StatusFailed
	case queue.StatePending:
		if st.Stage == "" {
			return StatusPending
		}
	}
	if st.Stage != "" {
		return st.Stage
	}
	return st.State
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		_, route := next.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
