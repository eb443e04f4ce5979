package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings for the
// readings archive.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for reading retention.
	RetentionDays int
}

// ClickHouseStorage implements ReadingStorage for ClickHouse.
type ClickHouseStorage struct {
	config   *ClickHouseConfig
	db       *sql.DB
	readings *clickhouseReadingRepo
}

// NewClickHouseStorage creates a new ClickHouse readings archive.
func NewClickHouseStorage(config *ClickHouseConfig) *ClickHouseStorage {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 90
	}

	return &ClickHouseStorage{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseStorage) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	s.readings = &clickhouseReadingRepo{db: db}
	return nil
}

// Close closes the database connection.
func (s *ClickHouseStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the readings table if it doesn't exist.
func (s *ClickHouseStorage) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS readings (
			device_id String,
			sensor_type LowCardinality(String),
			value Float64,
			unit LowCardinality(String),
			timestamp DateTime64(3, 'UTC'),
			factory_id String,
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (device_id, sensor_type, timestamp)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create readings table: %w", err)
	}
	return nil
}

// Ping checks the connection health.
func (s *ClickHouseStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Readings returns the reading repository.
func (s *ClickHouseStorage) Readings() ReadingRepository {
	return s.readings
}

// clickhouseReadingRepo implements ReadingRepository for ClickHouse.
type clickhouseReadingRepo struct {
	db *sql.DB
}

// InsertBatch inserts readings using a batch insert.
func (r *clickhouseReadingRepo) InsertBatch(ctx context.Context, readings []*models.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (device_id, sensor_type, value, unit, timestamp, factory_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, reading := range readings {
		_, err := stmt.ExecContext(ctx,
			reading.DeviceID,
			string(reading.SensorType),
			reading.Value,
			reading.Unit,
			reading.Timestamp,
			reading.FactoryID,
		)
		if err != nil {
			return fmt.Errorf("insert reading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Query retrieves readings for one series in a time range.
func (r *clickhouseReadingRepo) Query(ctx context.Context, key models.SeriesKey, from, to time.Time, limit int) ([]*models.SensorReading, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, sensor_type, value, unit, timestamp, factory_id
		FROM readings
		WHERE device_id = ? AND sensor_type = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp
		LIMIT ?
	`, key.DeviceID, string(key.SensorType), from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.SensorReading
	for rows.Next() {
		var (
			reading    models.SensorReading
			sensorType string
		)
		if err := rows.Scan(&reading.DeviceID, &sensorType, &reading.Value,
			&reading.Unit, &reading.Timestamp, &reading.FactoryID); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		reading.SensorType = models.SensorType(sensorType)
		readings = append(readings, &reading)
	}
	return readings, rows.Err()
}

// Count returns the number of archived readings for a series.
func (r *clickhouseReadingRepo) Count(ctx context.Context, key models.SeriesKey) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT count() FROM readings WHERE device_id = ? AND sensor_type = ?",
		key.DeviceID, string(key.SensorType),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return count, nil
}
