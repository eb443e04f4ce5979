package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Alert records
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				device_id TEXT NOT NULL,
				sensor_type TEXT NOT NULL,
				factory_id TEXT NOT NULL,
				severity TEXT NOT NULL,
				state TEXT NOT NULL,
				message TEXT NOT NULL,
				opened_at DATETIME NOT NULL,
				acknowledged_at DATETIME,
				resolved_at DATETIME,
				acknowledged_by TEXT,
				resolved_by TEXT,
				last_escalated_at DATETIME,
				last_notified_at DATETIME,
				occurrence_count INTEGER NOT NULL DEFAULT 1,
				version INTEGER NOT NULL DEFAULT 1,
				notification_status_json TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_alerts_series ON alerts(device_id, sensor_type);
			CREATE INDEX IF NOT EXISTS idx_alerts_factory ON alerts(factory_id);
			CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts(state);

			-- Notification job records
			CREATE TABLE IF NOT EXISTS notification_jobs (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				event TEXT NOT NULL,
				channel TEXT NOT NULL,
				recipient TEXT NOT NULL,
				subject TEXT,
				body TEXT NOT NULL,
				status TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				next_attempt_at DATETIME,
				last_error TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_jobs_alert ON notification_jobs(alert_id);
			CREATE INDEX IF NOT EXISTS idx_jobs_status ON notification_jobs(status);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
