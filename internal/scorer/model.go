package scorer

import (
	"math"
	"time"
)

// minStdDev is the floor applied to the model's standard deviation so a
// perfectly flat series still yields finite deviation scores.
const minStdDev = 1e-6

// SeriesModel holds the incremental statistics for one series. It is
// owned exclusively by the Scorer and mutated only by sequential
// Observe calls for that series, never concurrently for the same key.
type SeriesModel struct {
	count    int
	mean     float64
	variance float64
	alpha    float64

	// Trend state for the failure-horizon estimate.
	lastValue    float64
	lastTime     time.Time
	slopePerHour float64
}

// newSeriesModel creates a model with the given EWMA weight.
func newSeriesModel(alpha float64) *SeriesModel {
	return &SeriesModel{alpha: alpha}
}

// Count returns the number of samples absorbed into the model.
func (m *SeriesModel) Count() int {
	return m.count
}

// Mean returns the exponentially weighted mean.
func (m *SeriesModel) Mean() float64 {
	return m.mean
}

// StdDev returns the exponentially weighted standard deviation,
// floored at minStdDev.
func (m *SeriesModel) StdDev() float64 {
	sd := math.Sqrt(m.variance)
	if sd < minStdDev {
		return minStdDev
	}
	return sd
}

// Deviation returns |value-mean| in standard deviations. It does not
// mutate the model, so re-scoring the same value is deterministic.
func (m *SeriesModel) Deviation(value float64) float64 {
	return math.Abs(value-m.mean) / m.StdDev()
}

// Observe absorbs a value into the statistics. The first sample seeds
// the mean directly.
func (m *SeriesModel) Observe(value float64, at time.Time) {
	if m.count == 0 {
		m.mean = value
		m.variance = 0
	} else {
		diff := value - m.mean
		incr := m.alpha * diff
		m.mean += incr
		m.variance = (1 - m.alpha) * (m.variance + diff*incr)
	}
	m.observeTrend(value, at)
	m.count++
}

// observeTrend updates the exponentially weighted slope (units/hour)
// used for the failure-horizon estimate.
func (m *SeriesModel) observeTrend(value float64, at time.Time) {
	if m.count > 0 && at.After(m.lastTime) {
		dtHours := at.Sub(m.lastTime).Hours()
		if dtHours > 0 {
			slope := (value - m.lastValue) / dtHours
			m.slopePerHour = (1-m.alpha)*m.slopePerHour + m.alpha*slope
		}
	}
	m.lastValue = value
	m.lastTime = at
}

// HoursToLimit estimates hours until the trend crosses the given
// limit. Returns 0 when the series is not trending toward it.
func (m *SeriesModel) HoursToLimit(limit float64) float64 {
	if m.count < 2 || m.slopePerHour == 0 {
		return 0
	}
	remaining := limit - m.mean
	hours := remaining / m.slopePerHour
	if hours <= 0 || math.IsInf(hours, 0) || math.IsNaN(hours) {
		return 0
	}
	return hours
}
