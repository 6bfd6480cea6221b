package models

import "time"

// DriftTest identifies the statistical test (or the reason no test ran)
// behind a per-feature drift result.
type DriftTest string

const (
	DriftTestKS        DriftTest = "ks_test"
	DriftTestChiSquare DriftTest = "chi_square_test"

	// Reason codes for features reported without a computed test. A column
	// present on one side only is reported as drifted, never silently
	// skipped; an untestable column is reported as untested, never assumed
	// non-drifted.
	DriftReasonMissingInReference DriftTest = "missing_in_reference"
	DriftReasonMissingInCurrent   DriftTest = "missing_in_current"
	DriftReasonInsufficientData   DriftTest = "insufficient_data"
)

// FeatureDrift is the per-feature outcome of a drift check.
type FeatureDrift struct {
	Feature   string    `json:"feature"`
	Test      DriftTest `json:"test"`
	Statistic float64   `json:"statistic"`
	PValue    float64   `json:"p_value"`
	Drifted   bool      `json:"is_drift"`
	Tested    bool      `json:"tested"`
}

// DriftSummary aggregates per-feature results into one verdict.
type DriftSummary struct {
	TotalFeatures    int     `json:"total_features"`
	TestedFeatures   int     `json:"tested_features"`
	UntestedFeatures int     `json:"untested_features"`
	NumDrifted       int     `json:"num_drifted"`
	DriftPercentage  float64 `json:"drift_percentage"`
	OverallDrift     bool    `json:"overall_drift"`
}

// DriftReport is the value object produced by one drift check. The core does
// not persist it; the caller decides whether to log or store it.
type DriftReport struct {
	Timestamp       time.Time               `json:"timestamp"`
	Scores          map[string]FeatureDrift `json:"drift_scores"`
	DriftedFeatures []string                `json:"drifted_features"`
	Summary         DriftSummary            `json:"summary"`
}

// FeatureStats holds descriptive statistics for one column of one
// distribution.
type FeatureStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// StatsComparison pairs reference and current descriptive statistics for a
// feature, independent of any hypothesis test.
type StatsComparison struct {
	Reference     FeatureStats `json:"reference"`
	Current       FeatureStats `json:"current"`
	MeanChangePct float64      `json:"mean_change_pct"`
	StdChangePct  float64      `json:"std_change_pct"`
}
