package api

import (
	"net/http"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// SummaryResponse is a coarse dashboard view of the plant.
type SummaryResponse struct {
	SeriesTracked int              `json:"series_tracked"`
	Alerts        AlertSummary     `json:"alerts"`
	Lifecycle     LifecycleSummary `json:"lifecycle"`
}

// AlertSummary counts alerts by state and, for unresolved alerts, by
// severity.
type AlertSummary struct {
	Open         int            `json:"open"`
	Acknowledged int            `json:"acknowledged"`
	Resolved     int            `json:"resolved"`
	BySeverity   map[string]int `json:"by_severity"`
}

// LifecycleSummary exposes cumulative alert transition counters.
type LifecycleSummary struct {
	Opened       int64 `json:"opened"`
	Escalated    int64 `json:"escalated"`
	Renotified   int64 `json:"renotified"`
	AutoResolved int64 `json:"auto_resolved"`
}

// handleSummary handles GET /api/v1/summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	all := s.deps.Manager.List(models.AlertFilter{})

	summary := AlertSummary{BySeverity: make(map[string]int)}
	for _, a := range all {
		switch a.State {
		case models.AlertOpen:
			summary.Open++
		case models.AlertAcknowledged:
			summary.Acknowledged++
		case models.AlertResolved:
			summary.Resolved++
		}
		if a.State != models.AlertResolved {
			summary.BySeverity[a.Severity.String()]++
		}
	}

	opened, escalated, _, renotified, autoResolved := s.deps.Manager.Stats()

	OK(w, SummaryResponse{
		SeriesTracked: s.deps.Scorer.SeriesCount(),
		Alerts:        summary,
		Lifecycle: LifecycleSummary{
			Opened:       opened,
			Escalated:    escalated,
			Renotified:   renotified,
			AutoResolved: autoResolved,
		},
	})
}
