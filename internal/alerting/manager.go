// Package alerting owns the alert lifecycle: opening, deduplication,
// escalation, cooldown-gated re-notification, acknowledgement, and
// resolution.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tidewater-labs/plantpulse/internal/metrics"
	"github.com/tidewater-labs/plantpulse/internal/models"
)

// Errors returned by acknowledge/resolve.
var (
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Defaults for the manager configuration.
const (
	// DefaultRenotifyCooldown is the minimum interval between repeat
	// notifications for an unacknowledged open alert.
	DefaultRenotifyCooldown = 30 * time.Minute

	// DefaultAutoResolveCount is the number of consecutive `none`
	// classifications that auto-resolves an alert.
	DefaultAutoResolveCount = 3

	// DefaultEventBufferSize is the event channel buffer.
	DefaultEventBufferSize = 100
)

// Event is a notification-worthy alert transition, consumed by the
// dispatcher.
type Event struct {
	Type  models.AlertEvent
	Alert *models.Alert // clone; safe to retain
}

// Store persists alert records. Persistence failures degrade to logged
// warnings, never to pipeline faults.
type Store interface {
	SaveAlert(ctx context.Context, alert *models.Alert) error
}

// Config configures the Manager.
type Config struct {
	RenotifyCooldown time.Duration
	AutoResolveCount int
	EventBufferSize  int
}

func (c *Config) setDefaults() {
	if c.RenotifyCooldown <= 0 {
		c.RenotifyCooldown = DefaultRenotifyCooldown
	}
	if c.AutoResolveCount <= 0 {
		c.AutoResolveCount = DefaultAutoResolveCount
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
}

// keyState tracks the live (non-resolved) alert for one series and the
// streak of clean classifications driving auto-resolve.
type keyState struct {
	alert       *models.Alert
	clearStreak int
}

// ManagerStats tracks manager statistics using atomics for lock-free
// reads.
type ManagerStats struct {
	Opened        atomic.Int64
	Escalated     atomic.Int64
	Reinforced    atomic.Int64
	Renotified    atomic.Int64
	AutoResolved  atomic.Int64
	EventsDropped atomic.Int64
}

// Manager is the per-key alert state machine. Process calls for the
// same series key are serialized by the pipeline's partitioning;
// Acknowledge/Resolve arrive concurrently from the API and are ordered
// against Process by the manager's lock, with the alert's version
// counter recording the logical order.
type Manager struct {
	cfg    Config
	logger *zap.Logger
	store  Store

	mu    sync.RWMutex
	byKey map[models.SeriesKey]*keyState
	byID  map[string]*models.Alert

	events chan Event
	closed atomic.Bool
	stats  ManagerStats
}

// NewManager creates a Manager.
func NewManager(cfg Config, store Store, logger *zap.Logger) *Manager {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		store:  store,
		byKey:  make(map[models.SeriesKey]*keyState),
		byID:   make(map[string]*models.Alert),
		events: make(chan Event, cfg.EventBufferSize),
	}
}

// Events returns the channel of notification-worthy transitions.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Process applies a classified reading to the key's state machine.
func (m *Manager) Process(r *models.SensorReading, c models.Classification) {
	m.ProcessAt(r, c, time.Now().UTC())
}

// ProcessAt is Process with an injected clock, for deterministic tests.
func (m *Manager) ProcessAt(r *models.SensorReading, c models.Classification, now time.Time) {
	key := r.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	ks := m.byKey[key]

	if c.Severity < models.SeverityLow {
		if ks == nil {
			return
		}
		ks.clearStreak++
		if ks.clearStreak >= m.cfg.AutoResolveCount {
			m.resolveLocked(ks.alert, "auto", now)
			m.stats.AutoResolved.Add(1)
			metrics.AlertsResolved.WithLabelValues("auto").Inc()
		}
		return
	}

	message := fmt.Sprintf("%s anomaly on %s: %s", c.Severity, key, c.Reason)

	if ks == nil {
		alert := &models.Alert{
			ID:              uuid.NewString(),
			DeviceID:        r.DeviceID,
			SensorType:      r.SensorType,
			FactoryID:       r.FactoryID,
			Severity:        c.Severity,
			State:           models.AlertOpen,
			Message:         message,
			OpenedAt:        now,
			LastNotifiedAt:  now,
			OccurrenceCount: 1,
			Version:         1,
		}
		m.byKey[key] = &keyState{alert: alert}
		m.byID[alert.ID] = alert

		m.stats.Opened.Add(1)
		metrics.AlertsOpened.WithLabelValues(c.Severity.String()).Inc()
		metrics.AlertsOpen.Inc()
		m.logger.Info("alert opened",
			zap.String("alert_id", alert.ID),
			zap.String("series", key.String()),
			zap.String("severity", c.Severity.String()),
		)
		m.persistLocked(alert)
		m.emitLocked(Event{Type: models.EventOpened, Alert: alert.Clone()})
		return
	}

	alert := ks.alert
	ks.clearStreak = 0
	alert.OccurrenceCount++
	alert.Version++

	if c.Severity > alert.Severity {
		// Escalation: strictly higher severity. Never decreases; an
		// escalation while acknowledged re-opens the notification flow.
		alert.Severity = c.Severity
		alert.LastEscalatedAt = now
		alert.Message = message
		reopened := alert.State == models.AlertAcknowledged
		if reopened {
			alert.State = models.AlertOpen
		}
		alert.LastNotifiedAt = now

		m.stats.Escalated.Add(1)
		metrics.AlertsEscalated.Inc()
		m.logger.Info("alert escalated",
			zap.String("alert_id", alert.ID),
			zap.String("severity", c.Severity.String()),
			zap.Bool("reopened", reopened),
		)
		m.persistLocked(alert)
		m.emitLocked(Event{Type: models.EventEscalated, Alert: alert.Clone()})
		return
	}

	// Reinforcement: same or lower severity. Re-notify only when the
	// cooldown has elapsed on an unacknowledged alert.
	m.stats.Reinforced.Add(1)
	if alert.State == models.AlertOpen && now.Sub(alert.LastNotifiedAt) >= m.cfg.RenotifyCooldown {
		alert.LastNotifiedAt = now
		m.stats.Renotified.Add(1)
		m.persistLocked(alert)
		m.emitLocked(Event{Type: models.EventRenotify, Alert: alert.Clone()})
		return
	}
	m.persistLocked(alert)
}

// Acknowledge transitions an alert to acknowledged. Acknowledging an
// already-acknowledged alert is a no-op returning the current state.
func (m *Manager) Acknowledge(id, actor string) (*models.Alert, error) {
	return m.AcknowledgeAt(id, actor, time.Now().UTC())
}

// AcknowledgeAt is Acknowledge with an injected clock.
func (m *Manager) AcknowledgeAt(id, actor string, now time.Time) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.byID[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	switch alert.State {
	case models.AlertResolved:
		return nil, fmt.Errorf("%w: alert %s is resolved", ErrInvalidTransition, id)
	case models.AlertAcknowledged:
		return alert.Clone(), nil
	}

	alert.State = models.AlertAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = actor
	alert.Version++

	m.logger.Info("alert acknowledged",
		zap.String("alert_id", id),
		zap.String("actor", actor),
	)
	m.persistLocked(alert)
	return alert.Clone(), nil
}

// Resolve transitions an alert to resolved, terminally.
func (m *Manager) Resolve(id, actor string) (*models.Alert, error) {
	return m.ResolveAt(id, actor, time.Now().UTC())
}

// ResolveAt is Resolve with an injected clock.
func (m *Manager) ResolveAt(id, actor string, now time.Time) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.byID[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	if alert.State == models.AlertResolved {
		return nil, fmt.Errorf("%w: alert %s is already resolved", ErrInvalidTransition, id)
	}

	m.resolveLocked(alert, actor, now)
	metrics.AlertsResolved.WithLabelValues("manual").Inc()
	return alert.Clone(), nil
}

// resolveLocked finalizes an alert and frees its series key so a new
// condition opens a fresh alert. Must be called with the lock held.
func (m *Manager) resolveLocked(alert *models.Alert, actor string, now time.Time) {
	alert.State = models.AlertResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = actor
	alert.Version++
	delete(m.byKey, alert.Key())
	metrics.AlertsOpen.Dec()

	m.logger.Info("alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("actor", actor),
	)
	m.persistLocked(alert)
}

// PruneResolvedBefore drops resolved alerts from the in-memory index
// when their resolution is older than cutoff. The persistent rows are
// removed separately by the storage retention sweep. Returns the
// number pruned.
func (m *Manager) PruneResolvedBefore(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, alert := range m.byID {
		if alert.State == models.AlertResolved &&
			alert.ResolvedAt != nil && alert.ResolvedAt.Before(cutoff) {
			delete(m.byID, id)
			pruned++
		}
	}
	if pruned > 0 {
		m.logger.Info("pruned resolved alerts", zap.Int("count", pruned))
	}
	return pruned
}

// Get returns an alert by ID.
func (m *Manager) Get(id string) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alert, ok := m.byID[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return alert.Clone(), nil
}

// List returns alerts matching the filter, newest first.
func (m *Manager) List(filter models.AlertFilter) []*models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Alert
	for _, alert := range m.byID {
		if filter.Matches(alert) {
			out = append(out, alert.Clone())
		}
	}
	sortAlertsByOpenedDesc(out)
	return out
}

// OpenAlert returns the live alert for a series key, if any.
func (m *Manager) OpenAlert(key models.SeriesKey) (*models.Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ks, ok := m.byKey[key]
	if !ok {
		return nil, false
	}
	return ks.alert.Clone(), true
}

// IsNoiseAcknowledged reports whether the series has a low-severity
// alert that an operator acknowledged, allowing the scorer to fold
// such readings back into its baseline.
func (m *Manager) IsNoiseAcknowledged(key models.SeriesKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ks, ok := m.byKey[key]
	return ok && ks.alert.State == models.AlertAcknowledged &&
		ks.alert.Severity == models.SeverityLow
}

// SetNotificationStatus records a per-channel delivery outcome on the
// alert, fed back by the dispatcher.
func (m *Manager) SetNotificationStatus(alertID string, channel models.Channel, status models.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.byID[alertID]
	if !ok {
		return
	}
	if alert.NotificationStatus == nil {
		alert.NotificationStatus = make(map[models.Channel]models.JobStatus)
	}
	alert.NotificationStatus[channel] = status
	alert.Version++
	m.persistLocked(alert)
}

// Stats returns a snapshot of manager statistics.
func (m *Manager) Stats() (opened, escalated, reinforced, renotified, autoResolved int64) {
	return m.stats.Opened.Load(), m.stats.Escalated.Load(),
		m.stats.Reinforced.Load(), m.stats.Renotified.Load(),
		m.stats.AutoResolved.Load()
}

// Close closes the event channel. Safe to call concurrently with
// Process: the manager's lock orders the close against in-flight
// sends.
func (m *Manager) Close() {
	if m.closed.Swap(true) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.events)
}

// emitLocked sends an event without blocking; a full channel drops the
// event and counts it. Must be called with the lock held so sends
// cannot race Close.
func (m *Manager) emitLocked(ev Event) {
	if m.closed.Load() {
		return
	}
	select {
	case m.events <- ev:
	default:
		dropped := m.stats.EventsDropped.Add(1)
		if dropped == 1 || dropped%100 == 0 {
			m.logger.Warn("alert event channel full",
				zap.Int64("dropped_total", dropped))
		}
	}
}

// persistLocked saves the alert best-effort. Must be called with the
// lock held; the store call itself must not re-enter the manager.
func (m *Manager) persistLocked(alert *models.Alert) {
	if m.store == nil {
		return
	}
	clone := alert.Clone()
	if err := m.store.SaveAlert(context.Background(), clone); err != nil {
		m.logger.Warn("persist alert failed",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}
