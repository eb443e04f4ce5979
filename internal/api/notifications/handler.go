// Package notifications handles notification job endpoints.
package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tidewater-labs/plantpulse/internal/models"
	"github.com/tidewater-labs/plantpulse/internal/notifier"
)

// Service is the dispatcher surface the handler needs.
type Service interface {
	Job(jobID string) (*models.NotificationJob, error)
	Jobs(alertID string) []*models.NotificationJob
	ReportOutcome(jobID string, status models.JobStatus) error
}

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

func (h *Handler) jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		h.logger.Warn("json encode error", zap.Error(err))
	}
}

func (h *Handler) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		h.logger.Warn("json encode error", zap.Error(err))
	}
}

// JobResponse is the wire representation of a notification job.
type JobResponse struct {
	ID            string `json:"id"`
	AlertID       string `json:"alert_id"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient"`
	Event         string `json:"event"`
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	LastError     string `json:"last_error,omitempty"`
	CreatedAt     string `json:"created_at"`
	NextAttemptAt string `json:"next_attempt_at,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

// ListResponse wraps a list of jobs.
type ListResponse struct {
	Items []*JobResponse `json:"items"`
	Total int            `json:"total"`
}

func toResponse(j *models.NotificationJob) *JobResponse {
	resp := &JobResponse{
		ID:        j.ID,
		AlertID:   j.AlertID,
		Channel:   string(j.Channel),
		Recipient: j.Recipient,
		Event:     string(j.Event),
		Status:    string(j.Status),
		Attempts:  j.Attempts,
		LastError: j.LastError,
		CreatedAt: j.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !j.NextAttemptAt.IsZero() {
		resp.NextAttemptAt = j.NextAttemptAt.Format(time.RFC3339Nano)
	}
	return resp
}

// Handler handles notification endpoints.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(service Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// List handles GET /api/v1/notifications?alert_id=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	alertID := r.URL.Query().Get("alert_id")
	if alertID == "" {
		h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "alert_id query parameter is required")
		return
	}

	jobs := h.service.Jobs(alertID)
	items := make([]*JobResponse, len(jobs))
	for i, j := range jobs {
		items[i] = toResponse(j)
	}

	h.jsonOK(w, ListResponse{Items: items, Total: len(items)})
}

// Get handles GET /api/v1/notifications/{job_id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Job(chi.URLParam(r, "job_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, toResponse(job))
}

// outcomeRequest reports an external delivery result for a job.
type outcomeRequest struct {
	Status string `json:"status"`
}

// ReportOutcome handles POST /api/v1/notifications/{job_id}/outcome.
// Channel integrations that confirm delivery asynchronously call this
// to settle a pending attempt.
func (h *Handler) ReportOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	status, err := models.ParseJobStatus(req.Status)
	if err != nil || (status != models.JobSent && status != models.JobFailed) {
		h.jsonError(w, http.StatusBadRequest, "VALIDATION_FAILED", "status must be sent or failed")
		return
	}

	if err := h.service.ReportOutcome(chi.URLParam(r, "job_id"), status); err != nil {
		h.writeError(w, err)
		return
	}

	job, err := h.service.Job(chi.URLParam(r, "job_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, toResponse(job))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notifier.ErrJobNotFound):
		h.jsonError(w, http.StatusNotFound, "NOT_FOUND", "notification job not found")
	default:
		h.logger.Error("notification operation failed", zap.Error(err))
		h.jsonError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
