package models

import (
	"fmt"
	"time"
)

// AlertState is the lifecycle state of an alert.
type AlertState string

const (
	AlertOpen         AlertState = "open"
	AlertAcknowledged AlertState = "acknowledged"
	AlertResolved     AlertState = "resolved"
)

// ParseAlertState converts a string to an AlertState.
func ParseAlertState(s string) (AlertState, error) {
	switch AlertState(s) {
	case AlertOpen, AlertAcknowledged, AlertResolved:
		return AlertState(s), nil
	default:
		return "", fmt.Errorf("unknown alert state %q", s)
	}
}

// Alert represents one continuing anomalous condition for a
// (device, sensor type) pair. At most one non-resolved alert exists per
// pair at any time; new triggering readings while it is open update
// OccurrenceCount and may escalate severity rather than creating a
// second alert. A resolved alert is terminal; a new condition creates a
// fresh alert with a new ID.
type Alert struct {
	ID         string     `json:"id"`
	DeviceID   string     `json:"device_id"`
	SensorType SensorType `json:"sensor_type"`
	FactoryID  string     `json:"factory_id"`
	Severity   Severity   `json:"severity"`
	State      AlertState `json:"state"`
	Message    string     `json:"message"`

	OpenedAt        time.Time  `json:"opened_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	LastEscalatedAt time.Time  `json:"last_escalated_at"`
	LastNotifiedAt  time.Time  `json:"last_notified_at"`
	OccurrenceCount int        `json:"occurrence_count"`

	// Version is a logical clock bumped on every mutation, used for
	// optimistic concurrency between escalation and acknowledgement.
	Version int64 `json:"version"`

	// NotificationStatus holds the latest delivery outcome per channel
	// ("sent", "failed", "exhausted", ...), fed back by the dispatcher.
	NotificationStatus map[Channel]JobStatus `json:"notification_status,omitempty"`
}

// Key returns the alert's series key.
func (a *Alert) Key() SeriesKey {
	return SeriesKey{DeviceID: a.DeviceID, SensorType: a.SensorType}
}

// IsTerminal reports whether the alert can no longer transition.
func (a *Alert) IsTerminal() bool {
	return a.State == AlertResolved
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (a *Alert) Clone() *Alert {
	c := *a
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	if a.NotificationStatus != nil {
		c.NotificationStatus = make(map[Channel]JobStatus, len(a.NotificationStatus))
		for ch, st := range a.NotificationStatus {
			c.NotificationStatus[ch] = st
		}
	}
	return &c
}

// AlertFilter selects alerts for listing queries. Zero-valued fields
// match everything.
type AlertFilter struct {
	FactoryID string
	Severity  *Severity
	State     AlertState
}

// Matches reports whether the alert passes the filter.
func (f AlertFilter) Matches(a *Alert) bool {
	if f.FactoryID != "" && a.FactoryID != f.FactoryID {
		return false
	}
	if f.Severity != nil && a.Severity != *f.Severity {
		return false
	}
	if f.State != "" && a.State != f.State {
		return false
	}
	return true
}
