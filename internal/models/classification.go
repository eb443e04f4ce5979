package models

// ClassificationBasis says which scoring path produced a classification.
type ClassificationBasis string

const (
	// BasisStatistical means the EWMA model had enough history and the
	// score is a deviation in standard deviations.
	BasisStatistical ClassificationBasis = "statistical"

	// BasisStaticLimit means a configured hard limit drove the score.
	BasisStaticLimit ClassificationBasis = "static_limit"

	// BasisInsufficientHistory means the series had too few samples for
	// statistical scoring. Not an error; severity is capped at medium.
	BasisInsufficientHistory ClassificationBasis = "insufficient_history"
)

// Classification is the result of scoring one reading.
type Classification struct {
	Severity Severity            `json:"severity"`
	Score    float64             `json:"score"`
	Reason   string              `json:"reason"`
	Basis    ClassificationBasis `json:"basis"`

	// FailureHorizonHours is a coarse trend estimate of hours until the
	// series crosses its nearest hard limit. Zero when no trend toward a
	// limit exists. Informational only; never drives alerting.
	FailureHorizonHours float64 `json:"failure_horizon_hours,omitempty"`
}
