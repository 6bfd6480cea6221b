package drift

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/predictops/mlcp/internal/observability"
	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

// DetectorConfig contains configuration for drift detection
type DetectorConfig struct {
	// Alpha is the significance threshold: a feature drifts when its
	// p-value falls below it.
	Alpha float64 `json:"alpha" yaml:"alpha" mapstructure:"alpha"`

	// MinSampleSize is the minimum samples required on each side before a
	// test is computed. Features below it are reported as untested.
	MinSampleSize int `json:"min_sample_size" yaml:"min_sample_size" mapstructure:"min_sample_size"`

	// DriftThresholdFraction controls aggregation: overall drift is raised
	// when the drifted fraction of evaluable features strictly exceeds it.
	// Zero means any single drifted feature triggers overall drift.
	DriftThresholdFraction float64 `json:"drift_threshold_fraction" yaml:"drift_threshold_fraction" mapstructure:"drift_threshold_fraction"`
}

// NewDefaultDetectorConfig returns the default detection configuration.
func NewDefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		Alpha:                  0.05,
		MinSampleSize:          2,
		DriftThresholdFraction: 0,
	}
}

// Validate validates the detector configuration.
func (c *DetectorConfig) Validate() error {
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "alpha must be between 0 and 1")
	}
	if c.MinSampleSize < 2 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "min sample size must be at least 2")
	}
	if c.DriftThresholdFraction < 0 || c.DriftThresholdFraction >= 1 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "drift threshold fraction must be in [0, 1)")
	}
	return nil
}

// Detector compares a reference feature distribution (typically the training
// snapshot) against candidate distributions from production. Detection is a
// pure read-only function of its inputs and safe to run concurrently.
type Detector struct {
	reference *models.FeatureSet
	config    *DetectorConfig
	logger    *logrus.Logger
}

// NewDetector creates a drift detector bound to a reference distribution.
func NewDetector(reference *models.FeatureSet, config *DetectorConfig, logger *logrus.Logger) (*Detector, error) {
	if reference == nil || reference.Len() == 0 {
		return nil, errors.NewInvalidArgumentError("reference feature set is required")
	}
	if config == nil {
		config = NewDefaultDetectorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Detector{
		reference: reference,
		config:    config,
		logger:    logger,
	}, nil
}

// Detect runs the per-feature tests and aggregates a verdict. Numeric
// features use a two-sample Kolmogorov-Smirnov test; categorical features
// use a chi-square goodness-of-fit comparison. A failed or untestable
// feature never aborts the rest of the batch.
func (d *Detector) Detect(current *models.FeatureSet, numericFeatures, categoricalFeatures []string) (*models.DriftReport, error) {
	if current == nil || current.Len() == 0 {
		return nil, errors.NewInvalidArgumentError("current feature set is required")
	}
	if len(numericFeatures)+len(categoricalFeatures) == 0 {
		return nil, errors.NewInvalidArgumentError("no features specified")
	}

	report := &models.DriftReport{
		Timestamp: time.Now().UTC(),
		Scores:    make(map[string]models.FeatureDrift),
	}

	for _, feature := range numericFeatures {
		report.Scores[feature] = d.detectNumeric(current, feature)
	}
	for _, feature := range categoricalFeatures {
		report.Scores[feature] = d.detectCategorical(current, feature)
	}

	d.summarize(report)

	observability.DriftChecks.Inc()
	observability.DriftedFeatures.Add(float64(report.Summary.NumDrifted))

	d.logger.WithFields(logrus.Fields{
		"num_drifted":    report.Summary.NumDrifted,
		"total_features": report.Summary.TotalFeatures,
		"overall_drift":  report.Summary.OverallDrift,
	}).Info("Drift detection completed")

	return report, nil
}

func (d *Detector) detectNumeric(current *models.FeatureSet, feature string) models.FeatureDrift {
	if fd, done := d.checkPresence(current, feature); done {
		return fd
	}

	refValues := d.reference.NumericColumn(feature)
	curValues := current.NumericColumn(feature)
	if len(refValues) < d.config.MinSampleSize || len(curValues) < d.config.MinSampleSize {
		return d.untested(feature, len(refValues), len(curValues))
	}

	result := twoSampleKS(refValues, curValues, d.config.Alpha)
	return models.FeatureDrift{
		Feature:   feature,
		Test:      models.DriftTestKS,
		Statistic: result.Statistic,
		PValue:    result.PValue,
		Drifted:   result.PValue < d.config.Alpha,
		Tested:    true,
	}
}

func (d *Detector) detectCategorical(current *models.FeatureSet, feature string) models.FeatureDrift {
	if fd, done := d.checkPresence(current, feature); done {
		return fd
	}

	refValues := d.reference.CategoricalColumn(feature)
	curValues := current.CategoricalColumn(feature)
	if len(refValues) < d.config.MinSampleSize || len(curValues) < d.config.MinSampleSize {
		return d.untested(feature, len(refValues), len(curValues))
	}

	result := chiSquareGoodnessOfFit(refValues, curValues)
	return models.FeatureDrift{
		Feature:   feature,
		Test:      models.DriftTestChiSquare,
		Statistic: result.Statistic,
		PValue:    result.PValue,
		Drifted:   result.PValue < d.config.Alpha,
		Tested:    true,
	}
}

// checkPresence handles columns missing from one side. These are reported as
// drifted with a reason code instead of being silently skipped.
func (d *Detector) checkPresence(current *models.FeatureSet, feature string) (models.FeatureDrift, bool) {
	refHas := d.reference.HasColumn(feature)
	curHas := current.HasColumn(feature)

	switch {
	case refHas && curHas:
		return models.FeatureDrift{}, false
	case !refHas && !curHas:
		return models.FeatureDrift{
			Feature: feature,
			Test:    models.DriftReasonInsufficientData,
		}, true
	case !refHas:
		return models.FeatureDrift{
			Feature: feature,
			Test:    models.DriftReasonMissingInReference,
			Drifted: true,
		}, true
	default:
		return models.FeatureDrift{
			Feature: feature,
			Test:    models.DriftReasonMissingInCurrent,
			Drifted: true,
		}, true
	}
}

func (d *Detector) untested(feature string, refCount, curCount int) models.FeatureDrift {
	d.logger.WithFields(logrus.Fields{
		"feature":          feature,
		"reference_count":  refCount,
		"current_count":    curCount,
		"min_sample_size":  d.config.MinSampleSize,
	}).Warn("Feature untestable, too few samples")

	return models.FeatureDrift{
		Feature: feature,
		Test:    models.DriftReasonInsufficientData,
	}
}

func (d *Detector) summarize(report *models.DriftReport) {
	var drifted, untested, tested int
	for _, fd := range report.Scores {
		if fd.Tested {
			tested++
		}
		if fd.Drifted {
			drifted++
			report.DriftedFeatures = append(report.DriftedFeatures, fd.Feature)
		}
		if !fd.Tested && !fd.Drifted {
			untested++
		}
	}
	sort.Strings(report.DriftedFeatures)

	total := len(report.Scores)
	// Evaluable features carry a verdict: a computed test result or a
	// missing-column flag. Untestable features stay out of the fraction.
	evaluable := total - untested

	var pct float64
	if total > 0 {
		pct = float64(drifted) / float64(total) * 100
	}

	overall := false
	if evaluable > 0 {
		overall = float64(drifted) > d.config.DriftThresholdFraction*float64(evaluable)
	}

	report.Summary = models.DriftSummary{
		TotalFeatures:    total,
		TestedFeatures:   tested,
		UntestedFeatures: untested,
		NumDrifted:       drifted,
		DriftPercentage:  pct,
		OverallDrift:     overall,
	}
}

// StatisticsSummary computes descriptive statistics per feature for both
// distributions, independent of any hypothesis test. Features absent from
// either side are skipped.
func (d *Detector) StatisticsSummary(current *models.FeatureSet, numericFeatures []string) (map[string]models.StatsComparison, error) {
	if current == nil {
		return nil, errors.NewInvalidArgumentError("current feature set is required")
	}

	summary := make(map[string]models.StatsComparison)
	for _, feature := range numericFeatures {
		refValues := d.reference.NumericColumn(feature)
		curValues := current.NumericColumn(feature)
		if len(refValues) == 0 || len(curValues) == 0 {
			continue
		}

		refStats := describe(refValues)
		curStats := describe(curValues)

		summary[feature] = models.StatsComparison{
			Reference:     refStats,
			Current:       curStats,
			MeanChangePct: changePct(refStats.Mean, curStats.Mean),
			StdChangePct:  changePct(refStats.StdDev, curStats.StdDev),
		}
	}
	return summary, nil
}

func describe(values []float64) models.FeatureStats {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	var stdDev float64
	if len(values) > 1 {
		stdDev = stat.StdDev(values, nil)
	}

	return models.FeatureStats{
		Mean:   stat.Mean(values, nil),
		StdDev: stdDev,
		Min:    min,
		Max:    max,
		Count:  len(values),
	}
}

func changePct(ref, cur float64) float64 {
	if ref == 0 {
		return 0
	}
	return (cur - ref) / ref * 100
}

// Reference returns the bound reference distribution.
func (d *Detector) Reference() *models.FeatureSet {
	return d.reference
}

// Alpha returns the configured significance threshold.
func (d *Detector) Alpha() float64 {
	return d.config.Alpha
}

// String describes the detector for logs.
func (d *Detector) String() string {
	return fmt.Sprintf("drift.Detector(alpha=%g, reference_rows=%d)", d.config.Alpha, d.reference.Len())
}
