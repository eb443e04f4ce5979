package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

func fptr(v float64) *float64 { return &v }

func validRaw() RawReading {
	return RawReading{
		DeviceID:   "press-07",
		SensorType: "temperature",
		Value:      fptr(42.5),
		Unit:       "°C",
		Timestamp:  "2026-03-01T10:00:00Z",
		FactoryID:  "plant-a",
	}
}

func TestNormalizeValid(t *testing.T) {
	n := New(0, nil)
	now := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)

	r, err := n.NormalizeAt(validRaw(), now)
	if err != nil {
		t.Fatalf("NormalizeAt: %v", err)
	}

	if r.DeviceID != "press-07" {
		t.Errorf("DeviceID = %q, want press-07", r.DeviceID)
	}
	if r.SensorType != models.SensorTemperature {
		t.Errorf("SensorType = %q, want temperature", r.SensorType)
	}
	if r.Value != 42.5 {
		t.Errorf("Value = %v, want 42.5", r.Value)
	}
	if r.Unit != "°C" {
		t.Errorf("Unit = %q, want °C", r.Unit)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, want)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*RawReading)
	}{
		{
			name:   "missing device id",
			modify: func(r *RawReading) { r.DeviceID = "" },
		},
		{
			name:   "missing factory id",
			modify: func(r *RawReading) { r.FactoryID = "" },
		},
		{
			name:   "unknown sensor type",
			modify: func(r *RawReading) { r.SensorType = "barometer" },
		},
		{
			name:   "missing value",
			modify: func(r *RawReading) { r.Value = nil },
		},
		{
			name:   "wrong unit for sensor",
			modify: func(r *RawReading) { r.Unit = "bar" },
		},
		{
			name:   "unparseable timestamp",
			modify: func(r *RawReading) { r.Timestamp = "yesterday" },
		},
	}

	n := New(0, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.modify(&raw)

			_, err := n.NormalizeAt(raw, now)
			if !errors.Is(err, ErrMalformedReading) {
				t.Errorf("error = %v, want ErrMalformedReading", err)
			}
		})
	}
}

func TestNormalizeDefaultsUnitAndTimestamp(t *testing.T) {
	n := New(0, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	raw := validRaw()
	raw.Unit = ""
	raw.Timestamp = ""

	r, err := n.NormalizeAt(raw, now)
	if err != nil {
		t.Fatalf("NormalizeAt: %v", err)
	}
	if r.Unit != "°C" {
		t.Errorf("Unit = %q, want canonical °C", r.Unit)
	}
	if !r.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want receipt time %v", r.Timestamp, now)
	}
}

func TestNormalizeEpochTimestamp(t *testing.T) {
	n := New(0, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	raw := validRaw()
	raw.Timestamp = "1767225600.5" // 2026-01-01T00:00:00.5Z

	r, err := n.NormalizeAt(raw, now)
	if err != nil {
		t.Fatalf("NormalizeAt: %v", err)
	}
	want := time.Date(2026, 1, 1, 0, 0, 0, 500000000, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, want)
	}
}

func TestSkewRejectsRegression(t *testing.T) {
	n := New(5*time.Minute, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := validRaw()
	first.Timestamp = "2026-03-01T11:00:00Z"
	if _, err := n.NormalizeAt(first, now); err != nil {
		t.Fatalf("first reading: %v", err)
	}

	// Within the tolerance window: accepted.
	within := validRaw()
	within.Timestamp = "2026-03-01T10:56:00Z"
	if _, err := n.NormalizeAt(within, now); err != nil {
		t.Fatalf("reading within skew: %v", err)
	}

	// Past the tolerance window: rejected.
	late := validRaw()
	late.Timestamp = "2026-03-01T10:54:00Z"
	_, err := n.NormalizeAt(late, now)
	if !errors.Is(err, ErrOutOfOrderReading) {
		t.Errorf("error = %v, want ErrOutOfOrderReading", err)
	}
}

func TestSkewWatermarkOnlyAdvances(t *testing.T) {
	n := New(5*time.Minute, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := models.SeriesKey{DeviceID: "press-07", SensorType: models.SensorTemperature}

	first := validRaw()
	first.Timestamp = "2026-03-01T11:00:00Z"
	if _, err := n.NormalizeAt(first, now); err != nil {
		t.Fatalf("first reading: %v", err)
	}

	// An accepted but slightly late reading must not regress the
	// watermark.
	within := validRaw()
	within.Timestamp = "2026-03-01T10:58:00Z"
	if _, err := n.NormalizeAt(within, now); err != nil {
		t.Fatalf("reading within skew: %v", err)
	}

	last, ok := n.LastAccepted(key)
	if !ok {
		t.Fatal("LastAccepted: no watermark")
	}
	want := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if !last.Equal(want) {
		t.Errorf("watermark = %v, want %v", last, want)
	}
}

func TestSkewIsPerSeries(t *testing.T) {
	n := New(5*time.Minute, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := validRaw()
	first.Timestamp = "2026-03-01T11:00:00Z"
	if _, err := n.NormalizeAt(first, now); err != nil {
		t.Fatalf("first reading: %v", err)
	}

	// Same timestamp regression on another device is fine.
	other := validRaw()
	other.DeviceID = "press-08"
	other.Timestamp = "2026-03-01T09:00:00Z"
	if _, err := n.NormalizeAt(other, now); err != nil {
		t.Errorf("other series should not share the watermark: %v", err)
	}
}
