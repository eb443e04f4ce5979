// Package scorer maintains per-series statistical models and
// classifies sensor readings for anomalous behavior.
package scorer

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tidewater-labs/plantpulse/internal/metrics"
	"github.com/tidewater-labs/plantpulse/internal/models"
)

// Defaults for the scoring configuration.
const (
	// DefaultMinSamples is the history required before statistical
	// scoring activates. Below it only hard limits apply and severity
	// is capped at medium.
	DefaultMinSamples = 30

	// DefaultAlpha is the EWMA weight for mean/variance updates.
	DefaultAlpha = 0.1
)

// SigmaThresholds are the severity boundaries in standard deviations.
// The mapping is monotonic: a larger deviation never yields a lower
// severity.
type SigmaThresholds struct {
	Low      float64
	Medium   float64
	High     float64
	Critical float64
}

// DefaultSigmaThresholds returns the default boundaries.
func DefaultSigmaThresholds() SigmaThresholds {
	return SigmaThresholds{Low: 2, Medium: 3, High: 4, Critical: 6}
}

// Validate checks that the boundaries are positive and ordered.
func (t SigmaThresholds) Validate() error {
	if t.Low <= 0 {
		return fmt.Errorf("low threshold must be positive")
	}
	if t.Medium <= t.Low || t.High <= t.Medium || t.Critical <= t.High {
		return fmt.Errorf("thresholds must be strictly increasing (low < medium < high < critical)")
	}
	return nil
}

// severity maps a deviation in standard deviations to a severity.
func (t SigmaThresholds) severity(dev float64) models.Severity {
	switch {
	case dev >= t.Critical:
		return models.SeverityCritical
	case dev >= t.High:
		return models.SeverityHigh
	case dev >= t.Medium:
		return models.SeverityMedium
	case dev >= t.Low:
		return models.SeverityLow
	default:
		return models.SeverityNone
	}
}

// HardLimits are static per-sensor-type bounds supplied by config.
// A breach classifies critical regardless of statistics (capped at
// medium before minimum history is reached).
type HardLimits struct {
	Min *float64
	Max *float64
}

// breach returns the fraction by which value exceeds the limits
// (0 when within bounds) and the breached bound.
func (h HardLimits) breach(value float64) (frac float64, limit float64, breached bool) {
	if h.Max != nil && value > *h.Max {
		over := value - *h.Max
		base := *h.Max
		if base == 0 {
			base = 1
		}
		return over / base, *h.Max, true
	}
	if h.Min != nil && value < *h.Min {
		under := *h.Min - value
		base := *h.Min
		if base == 0 {
			base = 1
		}
		if base < 0 {
			base = -base
		}
		return under / base, *h.Min, true
	}
	return 0, 0, false
}

// Config configures the Scorer.
type Config struct {
	// MinSamples gates statistical scoring; zero means DefaultMinSamples.
	MinSamples int

	// Alpha is the EWMA weight; zero means DefaultAlpha.
	Alpha float64

	// Thresholds are the sigma boundaries, per sensor type with a
	// fallback default.
	Thresholds map[models.SensorType]SigmaThresholds

	// DefaultThresholds apply to sensor types absent from Thresholds.
	DefaultThresholds SigmaThresholds

	// HardLimits are static bounds per sensor type.
	HardLimits map[models.SensorType]HardLimits
}

func (c *Config) setDefaults() {
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		c.Alpha = DefaultAlpha
	}
	zero := SigmaThresholds{}
	if c.DefaultThresholds == zero {
		c.DefaultThresholds = DefaultSigmaThresholds()
	}
}

// NoiseAckFunc reports whether a low-severity condition on the series
// has been acknowledged as noise, allowing low readings back into the
// baseline statistics.
type NoiseAckFunc func(models.SeriesKey) bool

// Scorer classifies readings against per-series models. Calls for the
// same series key must be serialized by the caller (the pipeline's
// single-writer-per-key discipline); calls across keys are safe.
type Scorer struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	models   map[models.SeriesKey]*SeriesModel
	last     map[models.SeriesKey]models.Classification
	ackNoise NoiseAckFunc
}

// New creates a Scorer.
func New(cfg Config, logger *zap.Logger) *Scorer {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		cfg:    cfg,
		logger: logger,
		models: make(map[models.SeriesKey]*SeriesModel),
		last:   make(map[models.SeriesKey]models.Classification),
	}
}

// SetNoiseAcknowledged installs the callback consulted before folding
// low-severity readings into the baseline.
func (s *Scorer) SetNoiseAcknowledged(fn NoiseAckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ackNoise = fn
}

// UpdateThresholds swaps the sigma thresholds and hard limits, used by
// config hot reload. Callers pass whole replacement maps; installed
// maps are never mutated in place. Existing series models are
// untouched.
func (s *Scorer) UpdateThresholds(thresholds map[models.SensorType]SigmaThresholds, def SigmaThresholds, limits map[models.SensorType]HardLimits) {
	zero := SigmaThresholds{}
	if def == zero {
		def = DefaultSigmaThresholds()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Thresholds = thresholds
	s.cfg.DefaultThresholds = def
	s.cfg.HardLimits = limits
}

// Score classifies a reading and conditionally updates the series
// model. Readings classified medium or above never update statistics,
// so anomalies cannot poison the baseline.
func (s *Scorer) Score(r *models.SensorReading) models.Classification {
	key := r.Key()

	s.mu.Lock()
	model, ok := s.models[key]
	if !ok {
		model = newSeriesModel(s.cfg.Alpha)
		s.models[key] = model
		metrics.SeriesTracked.Set(float64(len(s.models)))
	}
	ackNoise := s.ackNoise
	cfg := s.cfg
	s.mu.Unlock()

	c := s.classify(r, model, cfg)

	update := c.Severity == models.SeverityNone ||
		(c.Severity == models.SeverityLow && ackNoise != nil && ackNoise(key))
	if update {
		model.Observe(r.Value, r.Timestamp)
	}

	s.mu.Lock()
	s.last[key] = c
	s.mu.Unlock()

	metrics.ClassificationsTotal.WithLabelValues(c.Severity.String()).Inc()
	return c
}

// classify is deterministic given the model state; it never mutates
// the model.
func (s *Scorer) classify(r *models.SensorReading, model *SeriesModel, cfg Config) models.Classification {
	limits := cfg.HardLimits[r.SensorType]
	frac, limit, breached := limits.breach(r.Value)

	thresholds, ok := cfg.Thresholds[r.SensorType]
	if !ok {
		thresholds = cfg.DefaultThresholds
	}

	if model.Count() < cfg.MinSamples {
		c := models.Classification{
			Severity: models.SeverityNone,
			Basis:    models.BasisInsufficientHistory,
			Reason: fmt.Sprintf("only %d of %d samples for statistical scoring",
				model.Count(), cfg.MinSamples),
		}
		if breached {
			// Static limits are the only signal available; severity is
			// capped at medium until enough history exists.
			c.Severity = models.SeverityCritical.Cap(models.SeverityMedium)
			c.Score = frac * 100
			c.Basis = models.BasisStaticLimit
			c.Reason = fmt.Sprintf("value %.4g breaches static limit %.4g (%.1f%% over) with insufficient history",
				r.Value, limit, frac*100)
		}
		return c
	}

	if breached {
		return models.Classification{
			Severity:            models.SeverityCritical,
			Score:               frac * 100,
			Basis:               models.BasisStaticLimit,
			Reason:              fmt.Sprintf("value %.4g breaches static limit %.4g (%.1f%% over)", r.Value, limit, frac*100),
			FailureHorizonHours: s.horizon(model, limits),
		}
	}

	dev := model.Deviation(r.Value)
	return models.Classification{
		Severity:            thresholds.severity(dev),
		Score:               dev,
		Basis:               models.BasisStatistical,
		Reason:              fmt.Sprintf("value %.4g deviates %.2fσ from mean %.4g", r.Value, dev, model.Mean()),
		FailureHorizonHours: s.horizon(model, limits),
	}
}

// horizon estimates hours until the trend crosses the nearest hard
// limit. Informational only.
func (s *Scorer) horizon(model *SeriesModel, limits HardLimits) float64 {
	var best float64
	if limits.Max != nil {
		best = model.HoursToLimit(*limits.Max)
	}
	if limits.Min != nil {
		if h := model.HoursToLimit(*limits.Min); h > 0 && (best == 0 || h < best) {
			best = h
		}
	}
	return best
}

// Last returns the most recent classification for a series.
func (s *Scorer) Last(key models.SeriesKey) (models.Classification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.last[key]
	return c, ok
}

// SeriesCount returns the number of distinct series observed.
func (s *Scorer) SeriesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models)
}

// SampleCount returns the number of samples absorbed for a series.
func (s *Scorer) SampleCount(key models.SeriesKey) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.models[key]; ok {
		return m.Count()
	}
	return 0
}
