// Package normalize converts raw device payloads into canonical
// sensor readings.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tidewater-labs/plantpulse/internal/metrics"
	"github.com/tidewater-labs/plantpulse/internal/models"
)

// Common errors returned by the normalizer.
var (
	// ErrMalformedReading means the payload shape or unit is invalid.
	// The reading is dropped, logged, and counted.
	ErrMalformedReading = errors.New("malformed reading")

	// ErrOutOfOrderReading means the timestamp regressed past the skew
	// tolerance for its series. The reading is dropped, not buffered.
	ErrOutOfOrderReading = errors.New("out-of-order reading")
)

// DefaultSkewTolerance is the maximum allowed timestamp regression
// before a reading is rejected as out-of-order.
const DefaultSkewTolerance = 5 * time.Minute

// RawReading is the loose payload shape devices submit. Timestamp
// accepts RFC 3339 or a unix epoch (seconds, fractional allowed);
// empty means receipt time.
type RawReading struct {
	DeviceID   string   `json:"device_id"`
	SensorType string   `json:"sensor_type"`
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
	Timestamp  string   `json:"timestamp,omitempty"`
	FactoryID  string   `json:"factory_id"`
}

// Normalizer validates raw payloads and produces immutable
// SensorReadings. It is a pure transform except for tracking the last
// accepted timestamp per series for the skew check.
type Normalizer struct {
	skew   time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	lastSeen map[models.SeriesKey]time.Time
}

// New creates a Normalizer. A zero skew uses DefaultSkewTolerance.
func New(skew time.Duration, logger *zap.Logger) *Normalizer {
	if skew <= 0 {
		skew = DefaultSkewTolerance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		skew:     skew,
		logger:   logger,
		lastSeen: make(map[models.SeriesKey]time.Time),
	}
}

// Normalize converts a raw payload into a SensorReading.
func (n *Normalizer) Normalize(raw RawReading) (*models.SensorReading, error) {
	return n.NormalizeAt(raw, time.Now().UTC())
}

// NormalizeAt converts a raw payload using the given receipt time for
// defaulted timestamps (useful for testing).
func (n *Normalizer) NormalizeAt(raw RawReading, now time.Time) (*models.SensorReading, error) {
	reading, err := n.validate(raw, now)
	if err != nil {
		metrics.ReadingsRejected.WithLabelValues("malformed").Inc()
		n.logger.Warn("dropped malformed reading",
			zap.String("device_id", raw.DeviceID),
			zap.String("sensor_type", raw.SensorType),
			zap.Error(err),
		)
		return nil, err
	}

	if err := n.checkSkew(reading); err != nil {
		metrics.ReadingsRejected.WithLabelValues("out_of_order").Inc()
		n.logger.Warn("dropped out-of-order reading",
			zap.String("series", reading.Key().String()),
			zap.Time("timestamp", reading.Timestamp),
			zap.Error(err),
		)
		return nil, err
	}

	return reading, nil
}

func (n *Normalizer) validate(raw RawReading, now time.Time) (*models.SensorReading, error) {
	if raw.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrMalformedReading)
	}
	if raw.FactoryID == "" {
		return nil, fmt.Errorf("%w: factory_id is required", ErrMalformedReading)
	}

	sensorType, err := models.ParseSensorType(raw.SensorType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}

	if raw.Value == nil {
		return nil, fmt.Errorf("%w: value is required", ErrMalformedReading)
	}
	value := *raw.Value
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%w: value is not finite", ErrMalformedReading)
	}

	unit := raw.Unit
	if unit == "" {
		unit = sensorType.CanonicalUnit()
	}
	if !sensorType.AcceptsUnit(unit) {
		return nil, fmt.Errorf("%w: unit %q is not valid for %s",
			ErrMalformedReading, raw.Unit, sensorType)
	}

	ts, err := parseTimestamp(raw.Timestamp, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}

	return &models.SensorReading{
		DeviceID:   raw.DeviceID,
		SensorType: sensorType,
		Value:      value,
		Unit:       sensorType.CanonicalUnit(),
		Timestamp:  ts,
		FactoryID:  raw.FactoryID,
	}, nil
}

// checkSkew rejects readings whose timestamp regressed past the skew
// tolerance for their series, and advances the per-series watermark.
func (n *Normalizer) checkSkew(r *models.SensorReading) error {
	key := r.Key()

	n.mu.Lock()
	defer n.mu.Unlock()

	last, ok := n.lastSeen[key]
	if ok && r.Timestamp.Before(last.Add(-n.skew)) {
		return fmt.Errorf("%w: timestamp %s is %s behind last accepted %s",
			ErrOutOfOrderReading,
			r.Timestamp.Format(time.RFC3339),
			last.Sub(r.Timestamp),
			last.Format(time.RFC3339),
		)
	}
	if r.Timestamp.After(last) {
		n.lastSeen[key] = r.Timestamp
	}
	return nil
}

// LastAccepted returns the skew watermark for a series, if any.
func (n *Normalizer) LastAccepted(key models.SeriesKey) (time.Time, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.lastSeen[key]
	return t, ok
}

func parseTimestamp(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if epoch, err := strconv.ParseFloat(s, 64); err == nil {
		sec, frac := math.Modf(epoch)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
