package models

import (
	"encoding/json"
	"testing"
)

func TestSeverityOrdering(t *testing.T) {
	ordered := []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(ordered); i++ {
		if !(ordered[i] > ordered[i-1]) {
			t.Errorf("%s should rank above %s", ordered[i], ordered[i-1])
		}
		if !ordered[i].AtLeast(ordered[i-1]) {
			t.Errorf("%s.AtLeast(%s) = false", ordered[i], ordered[i-1])
		}
	}
	if SeverityLow.AtLeast(SeverityHigh) {
		t.Error("low.AtLeast(high) = true")
	}
}

func TestSeverityCap(t *testing.T) {
	tests := []struct {
		s, max, want Severity
	}{
		{SeverityCritical, SeverityMedium, SeverityMedium},
		{SeverityLow, SeverityMedium, SeverityLow},
		{SeverityMedium, SeverityMedium, SeverityMedium},
	}
	for _, tt := range tests {
		if got := tt.s.Cap(tt.max); got != tt.want {
			t.Errorf("%s.Cap(%s) = %s, want %s", tt.s, tt.max, got, tt.want)
		}
	}
}

func TestSeverityJSONRoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %s: %v", s, err)
		}

		var back Severity
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != s {
			t.Errorf("round trip = %s, want %s", back, s)
		}
	}
}

func TestParseSeverityRejectsUnknown(t *testing.T) {
	if _, err := ParseSeverity("catastrophic"); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func TestSensorTypeUnits(t *testing.T) {
	tests := []struct {
		sensor SensorType
		unit   string
		want   bool
	}{
		{SensorTemperature, "°C", true},
		{SensorTemperature, "celsius", true},
		{SensorTemperature, "K", false},
		{SensorHumidity, "%", true},
		{SensorHumidity, "RH", true},
		{SensorVibration, "mm/s", true},
		{SensorPressure, "bar", true},
		{SensorPressure, "psi", false},
		{SensorNoise, "dBA", true},
		{SensorTension, "V", true},
		{SensorTension, "A", false},
	}
	for _, tt := range tests {
		if got := tt.sensor.AcceptsUnit(tt.unit); got != tt.want {
			t.Errorf("%s.AcceptsUnit(%q) = %v, want %v", tt.sensor, tt.unit, got, tt.want)
		}
	}
}

func TestAlertFilterMatches(t *testing.T) {
	med := SeverityMedium
	alert := &Alert{
		FactoryID: "plant-a",
		Severity:  SeverityMedium,
		State:     AlertOpen,
	}

	tests := []struct {
		name   string
		filter AlertFilter
		want   bool
	}{
		{"empty filter matches", AlertFilter{}, true},
		{"factory match", AlertFilter{FactoryID: "plant-a"}, true},
		{"factory mismatch", AlertFilter{FactoryID: "plant-b"}, false},
		{"severity match", AlertFilter{Severity: &med}, true},
		{"state match", AlertFilter{State: AlertOpen}, true},
		{"state mismatch", AlertFilter{State: AlertResolved}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(alert); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
