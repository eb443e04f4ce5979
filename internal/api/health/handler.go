// Package health provides liveness and readiness endpoints for the API.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// readyTimeout bounds one full readiness sweep across all checkers.
const readyTimeout = 5 * time.Second

// Checker probes one dependency of the server.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler serves the health endpoints. Checkers are registered during
// startup; registering after serving begins is safe.
type Handler struct {
	logger *zap.Logger

	mu       sync.RWMutex
	checkers []Checker
}

// NewHandler creates a Handler. logger may be nil.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger}
}

// RegisterChecker adds a dependency probe to the readiness sweep.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// Report is the body of every health endpoint.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeReport(w http.ResponseWriter, status int, rep Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(rep)
}

// Health reports that the process is up. No dependencies are probed.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeReport(w, http.StatusOK, Report{Status: "ok"})
}

// Live is the liveness probe: 200 whenever the process can serve.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeReport(w, http.StatusOK, Report{Status: "live"})
}

// Ready is the readiness probe. It runs every registered checker and
// answers 503 with per-check detail when any dependency is down.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	rep := Report{Status: "ready", Checks: make(map[string]string, len(checkers))}
	for _, c := range checkers {
		start := time.Now()
		if err := c.Check(ctx); err != nil {
			rep.Checks[c.Name()] = err.Error()
			rep.Status = "not_ready"
			h.logger.Warn("readiness check failed",
				zap.String("check", c.Name()),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			continue
		}
		rep.Checks[c.Name()] = "ok"
	}

	status := http.StatusOK
	if rep.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeReport(w, status, rep)
}
