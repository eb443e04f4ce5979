// Package readings handles sensor reading ingestion endpoints.
package readings

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tidewater-labs/plantpulse/internal/models"
	"github.com/tidewater-labs/plantpulse/internal/normalize"
	"github.com/tidewater-labs/plantpulse/internal/pipeline"
)

const maxBatchSize = 1000

// Ingestor accepts raw readings into the processing pipeline.
type Ingestor interface {
	Submit(raw normalize.RawReading) (*models.SensorReading, error)
	SubmitBatch(raws []normalize.RawReading) []pipeline.Result
}

// ClassificationSource exposes the latest per-series scoring state.
type ClassificationSource interface {
	Last(key models.SeriesKey) (models.Classification, bool)
	SampleCount(key models.SeriesKey) int
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

func (h *Handler) jsonData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		h.logger.Warn("json encode error", zap.Error(err))
	}
}

// IngestResponse is returned for an accepted reading.
type IngestResponse struct {
	DeviceID   string `json:"device_id"`
	SensorType string `json:"sensor_type"`
	Timestamp  string `json:"timestamp"`
	Status     string `json:"status"`
}

// BatchItemResult is the per-item outcome of a batch submission.
type BatchItemResult struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BatchResponse summarizes a batch submission.
type BatchResponse struct {
	Accepted int               `json:"accepted"`
	Rejected int               `json:"rejected"`
	Results  []BatchItemResult `json:"results"`
}

// ClassificationResponse describes the current state of one series.
type ClassificationResponse struct {
	DeviceID            string  `json:"device_id"`
	SensorType          string  `json:"sensor_type"`
	SampleCount         int     `json:"sample_count"`
	Severity            string  `json:"severity"`
	Score               float64 `json:"score"`
	Basis               string  `json:"basis"`
	Reason              string  `json:"reason,omitempty"`
	FailureHorizonHours float64 `json:"failure_horizon_hours,omitempty"`
}

// Handler handles reading ingestion and series inspection endpoints.
type Handler struct {
	ingestor Ingestor
	source   ClassificationSource
	logger   *zap.Logger
}

// NewHandler creates a readings handler.
func NewHandler(ingestor Ingestor, source ClassificationSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ingestor: ingestor, source: source, logger: logger}
}

// Ingest handles POST /api/v1/readings.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var raw normalize.RawReading
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	reading, err := h.ingestor.Submit(raw)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	h.jsonData(w, http.StatusAccepted, IngestResponse{
		DeviceID:   reading.DeviceID,
		SensorType: string(reading.SensorType),
		Timestamp:  reading.Timestamp.Format(time.RFC3339Nano),
		Status:     "accepted",
	})
}

// IngestBatch handles POST /api/v1/readings/batch. Items are accepted
// or rejected individually; a bad item never fails its siblings.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var raws []normalize.RawReading
	if err := json.NewDecoder(r.Body).Decode(&raws); err != nil {
		h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if len(raws) == 0 {
		h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "empty batch")
		return
	}
	if len(raws) > maxBatchSize {
		h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "batch exceeds maximum size")
		return
	}

	results := h.ingestor.SubmitBatch(raws)

	resp := BatchResponse{Results: make([]BatchItemResult, len(results))}
	for i, res := range results {
		item := BatchItemResult{Index: i, Status: "accepted"}
		if res.Err != nil {
			item.Status = "rejected"
			item.Error = res.Err.Error()
			resp.Rejected++
		} else {
			resp.Accepted++
		}
		resp.Results[i] = item
	}

	status := http.StatusAccepted
	if resp.Accepted == 0 {
		status = http.StatusBadRequest
	}
	h.jsonData(w, status, resp)
}

// GetClassification handles
// GET /api/v1/series/{device_id}/{sensor_type}/classification.
func (h *Handler) GetClassification(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")
	sensorType := chi.URLParam(r, "sensor_type")

	st, err := models.ParseSensorType(sensorType)
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown sensor type")
		return
	}

	key := models.SeriesKey{DeviceID: deviceID, SensorType: st}
	c, ok := h.source.Last(key)
	if !ok {
		h.jsonError(w, http.StatusNotFound, "NOT_FOUND", "no readings for series")
		return
	}

	h.jsonData(w, http.StatusOK, ClassificationResponse{
		DeviceID:            deviceID,
		SensorType:          sensorType,
		SampleCount:         h.source.SampleCount(key),
		Severity:            c.Severity.String(),
		Score:               c.Score,
		Basis:               string(c.Basis),
		Reason:              c.Reason,
		FailureHorizonHours: c.FailureHorizonHours,
	})
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, normalize.ErrMalformedReading):
		h.jsonError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, normalize.ErrOutOfOrderReading):
		h.jsonError(w, http.StatusUnprocessableEntity, "OUT_OF_ORDER", err.Error())
	case errors.Is(err, pipeline.ErrOverloaded):
		h.jsonError(w, http.StatusTooManyRequests, "OVERLOADED", "ingestion queue is full, retry later")
	default:
		h.logger.Error("reading submit failed", zap.Error(err))
		h.jsonError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
