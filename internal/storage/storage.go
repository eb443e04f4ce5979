// Package storage provides database storage interfaces and
// implementations.
package storage

import (
	"context"
	"time"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// Storage is the main interface for the durable alert/job store.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Alerts() AlertRepository
	Jobs() NotificationJobRepository
}

// AlertRepository defines operations for alert records.
type AlertRepository interface {
	// Save inserts or replaces an alert record.
	Save(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
	// DeleteResolvedBefore archives resolved alerts past the retention
	// window.
	DeleteResolvedBefore(ctx context.Context, before time.Time) (int64, error)
}

// NotificationJobRepository defines operations for notification job
// records.
type NotificationJobRepository interface {
	Save(ctx context.Context, job *models.NotificationJob) error
	GetByID(ctx context.Context, id string) (*models.NotificationJob, error)
	ListByAlert(ctx context.Context, alertID string) ([]*models.NotificationJob, error)
}

// ReadingStorage defines operations for the high-volume readings
// archive. Separate from Storage because readings have different
// access patterns (batch writes, time-series queries).
type ReadingStorage interface {
	Open() error
	Close() error
	Migrate() error
	Ping(ctx context.Context) error

	Readings() ReadingRepository
}

// ReadingRepository defines readings archive operations.
type ReadingRepository interface {
	// InsertBatch inserts readings in a single batch.
	InsertBatch(ctx context.Context, readings []*models.SensorReading) error

	// Query retrieves readings for one series within a time range,
	// oldest first, up to limit rows.
	Query(ctx context.Context, key models.SeriesKey, from, to time.Time, limit int) ([]*models.SensorReading, error)

	// Count returns the number of archived readings for a series.
	Count(ctx context.Context, key models.SeriesKey) (int64, error)
}
