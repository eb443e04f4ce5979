package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

type sqliteAlertRepo struct {
	db *sql.DB
}

func (r *sqliteAlertRepo) Save(ctx context.Context, alert *models.Alert) error {
	var statusJSON sql.NullString
	if len(alert.NotificationStatus) > 0 {
		data, err := json.Marshal(alert.NotificationStatus)
		if err != nil {
			return fmt.Errorf("marshal notification status: %w", err)
		}
		statusJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO alerts (id, device_id, sensor_type, factory_id,
			severity, state, message, opened_at, acknowledged_at, resolved_at,
			acknowledged_by, resolved_by, last_escalated_at, last_notified_at,
			occurrence_count, version, notification_status_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.DeviceID, string(alert.SensorType), alert.FactoryID,
		alert.Severity.String(), string(alert.State), alert.Message,
		alert.OpenedAt, nullTime(alert.AcknowledgedAt), nullTime(alert.ResolvedAt),
		nullString(alert.AcknowledgedBy), nullString(alert.ResolvedBy),
		nullTimeValue(alert.LastEscalatedAt), nullTimeValue(alert.LastNotifiedAt),
		alert.OccurrenceCount, alert.Version, statusJSON,
	)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := selectAlertColumns + " FROM alerts WHERE id = ?"
	return r.scanAlert(r.db.QueryRowContext(ctx, query, id))
}

func (r *sqliteAlertRepo) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	query := selectAlertColumns + " FROM alerts"
	var conds []string
	var args []interface{}

	if filter.FactoryID != "" {
		conds = append(conds, "factory_id = ?")
		args = append(args, filter.FactoryID)
	}
	if filter.Severity != nil {
		conds = append(conds, "severity = ?")
		args = append(args, filter.Severity.String())
	}
	if filter.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(filter.State))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY opened_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := r.scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (r *sqliteAlertRepo) DeleteResolvedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM alerts WHERE state = ? AND resolved_at < ?",
		string(models.AlertResolved), before,
	)
	if err != nil {
		return 0, fmt.Errorf("delete resolved alerts: %w", err)
	}
	return res.RowsAffected()
}

const selectAlertColumns = `
	SELECT id, device_id, sensor_type, factory_id, severity, state, message,
		opened_at, acknowledged_at, resolved_at, acknowledged_by, resolved_by,
		last_escalated_at, last_notified_at, occurrence_count, version,
		notification_status_json`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *sqliteAlertRepo) scanAlert(row *sql.Row) (*models.Alert, error) {
	alert, err := r.scanAlertRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return alert, err
}

func (r *sqliteAlertRepo) scanAlertRow(row rowScanner) (*models.Alert, error) {
	var (
		alert          models.Alert
		sensorType     string
		severity       string
		state          string
		ackAt, resAt   sql.NullTime
		escAt, notifAt sql.NullTime
		ackBy, resBy   sql.NullString
		statusJSON     sql.NullString
	)

	err := row.Scan(&alert.ID, &alert.DeviceID, &sensorType, &alert.FactoryID,
		&severity, &state, &alert.Message, &alert.OpenedAt, &ackAt, &resAt,
		&ackBy, &resBy, &escAt, &notifAt, &alert.OccurrenceCount, &alert.Version,
		&statusJSON)
	if err != nil {
		return nil, err
	}

	alert.SensorType = models.SensorType(sensorType)
	if alert.Severity, err = models.ParseSeverity(severity); err != nil {
		return nil, fmt.Errorf("scan alert %s: %w", alert.ID, err)
	}
	if alert.State, err = models.ParseAlertState(state); err != nil {
		return nil, fmt.Errorf("scan alert %s: %w", alert.ID, err)
	}
	if ackAt.Valid {
		t := ackAt.Time
		alert.AcknowledgedAt = &t
	}
	if resAt.Valid {
		t := resAt.Time
		alert.ResolvedAt = &t
	}
	alert.AcknowledgedBy = ackBy.String
	alert.ResolvedBy = resBy.String
	if escAt.Valid {
		alert.LastEscalatedAt = escAt.Time
	}
	if notifAt.Valid {
		alert.LastNotifiedAt = notifAt.Time
	}
	if statusJSON.Valid {
		if err := json.Unmarshal([]byte(statusJSON.String), &alert.NotificationStatus); err != nil {
			return nil, fmt.Errorf("unmarshal notification status for %s: %w", alert.ID, err)
		}
	}
	return &alert, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeValue(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
