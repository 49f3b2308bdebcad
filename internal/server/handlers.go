package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"commentpulse/internal/jobs"
	"commentpulse/internal/queue"

	"github.com/go-chi/chi/v5"
)

// EnqueueRequest is the body of POST /api/analyses.
type EnqueueRequest struct {
	ContentID  string   `json:"content_id"`
	UserID     string   `json:"user_id"`
	CommentIDs []string `json:"comment_ids"`
}

// EnqueueResponse is returned once the job is scheduled.
type EnqueueResponse struct {
	JobID             string `json:"job_id"`
	EstimatedDuration string `json:"estimated_duration"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleEnqueue handles POST /api/analyses: validates prerequisites, creates
// a job and schedules its pipeline run.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ContentID) == "" {
		s.respondError(w, http.StatusBadRequest, "content_id is required")
		return
	}

	if err := s.orchestrator.ValidatePrerequisites(r.Context(), req.ContentID, req.UserID); err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	jobID, _, err := s.service.Enqueue(r.Context(), req.ContentID, req.UserID, req.CommentIDs)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			s.respondError(w, http.StatusServiceUnavailable, "analysis queue is full, try again later")
			return
		}
		s.log.Error("Failed to enqueue analysis", "content_id", req.ContentID, "error", err.Error())
		s.respondError(w, http.StatusInternalServerError, "failed to enqueue analysis")
		return
	}

	s.respondJSON(w, http.StatusAccepted, EnqueueResponse{
		JobID:             jobID,
		EstimatedDuration: s.orchestrator.EstimateDuration(len(req.CommentIDs)).String(),
	})
}

// handleGetJob handles GET /api/jobs/{id}, returning the job fields verbatim
// for status polling.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.lifecycle.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondJobError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

// handleRetryJob handles POST /api/jobs/{id}/retry: resets a FAILED job to
// PENDING and schedules a fresh run.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.lifecycle.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondJobError(w, err)
		return
	}

	if _, err := s.service.Resubmit(r.Context(), job, nil); err != nil {
		s.log.Error("Failed to resubmit retried job", "job_id", job.ID, "error", err.Error())
		s.respondError(w, http.StatusServiceUnavailable, "failed to schedule retried job")
		return
	}

	s.respondJSON(w, http.StatusOK, job)
}

// handleCancelJob handles POST /api/jobs/{id}/cancel. Cancelling is
// idempotent; the running pipeline observes the state between stages.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondJobError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

// handleGetResult handles GET /api/analyses/{id}.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.results.GetAnalysisResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.log.Error("Failed to load analysis result", "error", err.Error())
		s.respondError(w, http.StatusInternalServerError, "failed to load analysis result")
		return
	}
	if result == nil {
		s.respondError(w, http.StatusNotFound, "analysis result not found")
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// respondJobError maps lifecycle errors onto HTTP statuses.
func (s *Server) respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrRetryNotAllowed), errors.Is(err, jobs.ErrRetryLimitReached):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("Job operation failed", "error", err.Error())
		s.respondError(w, http.StatusInternalServerError, "job operation failed")
	}
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err.Error())
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
