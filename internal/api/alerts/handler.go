// Package alerts handles alert lifecycle endpoints.
package alerts

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tidewater-labs/plantpulse/internal/alerting"
	"github.com/tidewater-labs/plantpulse/internal/models"
)

// Service is the alert lifecycle surface the handler needs.
type Service interface {
	List(filter models.AlertFilter) []*models.Alert
	Get(id string) (*models.Alert, error)
	Acknowledge(id, actor string) (*models.Alert, error)
	Resolve(id, actor string) (*models.Alert, error)
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

// AlertResponse is the wire representation of an alert.
type AlertResponse struct {
	ID                 string            `json:"id"`
	DeviceID           string            `json:"device_id"`
	SensorType         string            `json:"sensor_type"`
	FactoryID          string            `json:"factory_id,omitempty"`
	Severity           string            `json:"severity"`
	State              string            `json:"state"`
	Message            string            `json:"message"`
	OpenedAt           string            `json:"opened_at"`
	AcknowledgedAt     string            `json:"acknowledged_at,omitempty"`
	ResolvedAt         string            `json:"resolved_at,omitempty"`
	AcknowledgedBy     string            `json:"acknowledged_by,omitempty"`
	ResolvedBy         string            `json:"resolved_by,omitempty"`
	LastNotifiedAt     string            `json:"last_notified_at,omitempty"`
	OccurrenceCount    int               `json:"occurrence_count"`
	NotificationStatus map[string]string `json:"notification_status,omitempty"`
}

// ListResponse wraps a list of alerts.
type ListResponse struct {
	Items []*AlertResponse `json:"items"`
	Total int              `json:"total"`
}

func toResponse(a *models.Alert) *AlertResponse {
	resp := &AlertResponse{
		ID:              a.ID,
		DeviceID:        a.DeviceID,
		SensorType:      string(a.SensorType),
		FactoryID:       a.FactoryID,
		Severity:        a.Severity.String(),
		State:           string(a.State),
		Message:         a.Message,
		OpenedAt:        a.OpenedAt.Format(time.RFC3339Nano),
		AcknowledgedBy:  a.AcknowledgedBy,
		ResolvedBy:      a.ResolvedBy,
		OccurrenceCount: a.OccurrenceCount,
	}
	if a.AcknowledgedAt != nil {
		resp.AcknowledgedAt = a.AcknowledgedAt.Format(time.RFC3339Nano)
	}
	if a.ResolvedAt != nil {
		resp.ResolvedAt = a.ResolvedAt.Format(time.RFC3339Nano)
	}
	if !a.LastNotifiedAt.IsZero() {
		resp.LastNotifiedAt = a.LastNotifiedAt.Format(time.RFC3339Nano)
	}
	if len(a.NotificationStatus) > 0 {
		resp.NotificationStatus = make(map[string]string, len(a.NotificationStatus))
		for ch, st := range a.NotificationStatus {
			resp.NotificationStatus[string(ch)] = string(st)
		}
	}
	return resp
}

// Handler handles alert endpoints.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates an alerts handler.
func NewHandler(service Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// actionRequest carries the operator identity for lifecycle actions.
type actionRequest struct {
	Actor string `json:"actor"`
}

// List handles GET /api/v1/alerts with optional factory_id, severity,
// and state query filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var filter models.AlertFilter
	q := r.URL.Query()

	filter.FactoryID = q.Get("factory_id")

	if s := q.Get("severity"); s != "" {
		sev, err := models.ParseSeverity(s)
		if err != nil {
			h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid severity filter")
			return
		}
		filter.Severity = &sev
	}

	if s := q.Get("state"); s != "" {
		state, err := models.ParseAlertState(s)
		if err != nil {
			h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid state filter")
			return
		}
		filter.State = state
	}

	alerts := h.service.List(filter)
	items := make([]*AlertResponse, len(alerts))
	for i, a := range alerts {
		items[i] = toResponse(a)
	}

	h.jsonOK(w, ListResponse{Items: items, Total: len(items)})
}

// Get handles GET /api/v1/alerts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	alert, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, toResponse(alert))
}

// Acknowledge handles POST /api/v1/alerts/{id}/acknowledge.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.decodeActor(w, r)
	if !ok {
		return
	}

	alert, err := h.service.Acknowledge(chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, toResponse(alert))
}

// Resolve handles POST /api/v1/alerts/{id}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.decodeActor(w, r)
	if !ok {
		return
	}

	alert, err := h.service.Resolve(chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, toResponse(alert))
}

func (h *Handler) decodeActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return "", false
	}
	if req.Actor == "" {
		h.jsonError(w, http.StatusBadRequest, "VALIDATION_FAILED", "actor is required")
		return "", false
	}
	return req.Actor, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerting.ErrAlertNotFound):
		h.jsonError(w, http.StatusNotFound, "NOT_FOUND", "alert not found")
	case errors.Is(err, alerting.ErrInvalidTransition):
		h.jsonError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		h.logger.Error("alert operation failed", zap.Error(err))
		h.jsonError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
