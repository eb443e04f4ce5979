package alerting

import (
	"sort"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// sortAlertsByOpenedDesc orders alerts newest first, with ID as a
// stable tiebreaker.
func sortAlertsByOpenedDesc(alerts []*models.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].OpenedAt.Equal(alerts[j].OpenedAt) {
			return alerts[i].OpenedAt.After(alerts[j].OpenedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
}
