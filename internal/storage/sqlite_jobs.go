package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

type sqliteJobRepo struct {
	db *sql.DB
}

func (r *sqliteJobRepo) Save(ctx context.Context, job *models.NotificationJob) error {
	query := `
		INSERT OR REPLACE INTO notification_jobs (id, alert_id, event, channel,
			recipient, subject, body, status, attempts, next_attempt_at,
			last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.AlertID, string(job.Event), string(job.Channel),
		job.Recipient, nullString(job.Subject), job.Body, string(job.Status),
		job.Attempts, nullTimeValue(job.NextAttemptAt),
		nullString(job.LastError), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save notification job: %w", err)
	}
	return nil
}

func (r *sqliteJobRepo) GetByID(ctx context.Context, id string) (*models.NotificationJob, error) {
	query := selectJobColumns + " FROM notification_jobs WHERE id = ?"
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

func (r *sqliteJobRepo) ListByAlert(ctx context.Context, alertID string) ([]*models.NotificationJob, error) {
	query := selectJobColumns + " FROM notification_jobs WHERE alert_id = ? ORDER BY created_at, id"
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("list notification jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.NotificationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const selectJobColumns = `
	SELECT id, alert_id, event, channel, recipient, subject, body, status,
		attempts, next_attempt_at, last_error, created_at, updated_at`

func scanJob(row rowScanner) (*models.NotificationJob, error) {
	var (
		job       models.NotificationJob
		event     string
		channel   string
		status    string
		subject   sql.NullString
		nextAt    sql.NullTime
		lastError sql.NullString
	)

	err := row.Scan(&job.ID, &job.AlertID, &event, &channel, &job.Recipient,
		&subject, &job.Body, &status, &job.Attempts, &nextAt, &lastError,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.Event = models.AlertEvent(event)
	if job.Channel, err = models.ParseChannel(channel); err != nil {
		return nil, fmt.Errorf("scan job %s: %w", job.ID, err)
	}
	if job.Status, err = models.ParseJobStatus(status); err != nil {
		return nil, fmt.Errorf("scan job %s: %w", job.ID, err)
	}
	job.Subject = subject.String
	if nextAt.Valid {
		job.NextAttemptAt = nextAt.Time
	}
	job.LastError = lastError.String
	return &job, nil
}
