// Package models contains the core data structures for PlantPulse.
package models

import (
	"fmt"
	"time"
)

// SensorType identifies the physical quantity a sensor measures.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorHumidity    SensorType = "humidity"
	SensorVibration   SensorType = "vibration"
	SensorPressure    SensorType = "pressure"
	SensorNoise       SensorType = "noise"
	SensorTension     SensorType = "tension"
)

// canonicalUnits maps each sensor type to its canonical unit and the
// accepted aliases seen in raw device payloads.
var canonicalUnits = map[SensorType]struct {
	Unit    string
	Aliases []string
}{
	SensorTemperature: {"°C", []string{"C", "celsius", "degC"}},
	SensorHumidity:    {"%", []string{"percent", "%RH", "RH"}},
	SensorVibration:   {"mm/s", []string{"mms", "mm/sec"}},
	SensorPressure:    {"bar", []string{"Bar", "BAR"}},
	SensorNoise:       {"dB", []string{"db", "dBA"}},
	SensorTension:     {"V", []string{"volt", "volts"}},
}

// ParseSensorType converts a string to a SensorType.
func ParseSensorType(s string) (SensorType, error) {
	switch SensorType(s) {
	case SensorTemperature, SensorHumidity, SensorVibration,
		SensorPressure, SensorNoise, SensorTension:
		return SensorType(s), nil
	default:
		return "", fmt.Errorf("unknown sensor type %q", s)
	}
}

// CanonicalUnit returns the canonical unit for the sensor type.
func (t SensorType) CanonicalUnit() string {
	return canonicalUnits[t].Unit
}

// AcceptsUnit reports whether the given unit string is the canonical
// unit or a known alias for the sensor type.
func (t SensorType) AcceptsUnit(unit string) bool {
	cu, ok := canonicalUnits[t]
	if !ok {
		return false
	}
	if unit == cu.Unit {
		return true
	}
	for _, a := range cu.Aliases {
		if unit == a {
			return true
		}
	}
	return false
}

// SensorReading is a canonical timestamped measurement from one sensor.
// Readings are immutable once created.
type SensorReading struct {
	DeviceID   string     `json:"device_id"`
	SensorType SensorType `json:"sensor_type"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit"`
	Timestamp  time.Time  `json:"timestamp"`
	FactoryID  string     `json:"factory_id"`
}

// SeriesKey identifies the ordered stream of readings for one
// (device, sensor type) pair.
type SeriesKey struct {
	DeviceID   string
	SensorType SensorType
}

// Key returns the reading's series key.
func (r *SensorReading) Key() SeriesKey {
	return SeriesKey{DeviceID: r.DeviceID, SensorType: r.SensorType}
}

// String renders the key as "device/sensor" for logs and metrics labels.
func (k SeriesKey) String() string {
	return k.DeviceID + "/" + string(k.SensorType)
}
