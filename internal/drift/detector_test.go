package drift

import (
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictops/mlcp/pkg/models"
)

func numericSet(t *testing.T, group, column string, values []float64) *models.FeatureSet {
	t.Helper()
	records := make([]models.FeatureRecord, len(values))
	for i, v := range values {
		records[i] = models.FeatureRecord{Values: map[string]interface{}{column: v}}
	}
	return models.NewFeatureSet(group, records)
}

func categoricalSet(t *testing.T, group, column string, values []string) *models.FeatureSet {
	t.Helper()
	records := make([]models.FeatureRecord, len(values))
	for i, v := range values {
		records[i] = models.FeatureRecord{Values: map[string]interface{}{column: v}}
	}
	return models.NewFeatureSet(group, records)
}

func constant(value float64, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = value
	}
	return values
}

func TestNewDetectorValidation(t *testing.T) {
	_, err := NewDetector(nil, nil, nil)
	assert.Error(t, err)

	ref := numericSet(t, "reference", "pm25", constant(10, 5))
	_, err = NewDetector(ref, &DetectorConfig{Alpha: 2, MinSampleSize: 2}, nil)
	assert.Error(t, err)

	det, err := NewDetector(ref, nil, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 0.05, det.Alpha())
}

func TestDetectIdenticalDistributionsNoDrift(t *testing.T) {
	values := constant(0, 200)
	rng := rand.New(rand.NewSource(42))
	for i := range values {
		values[i] = rng.NormFloat64()*10 + 50
	}

	ref := numericSet(t, "reference", "pm25", values)
	cur := numericSet(t, "production", "pm25", values)

	det, err := NewDetector(ref, nil, nil)
	require.NoError(t, err)

	report, err := det.Detect(cur, []string{"pm25"}, nil)
	require.NoError(t, err)

	fd := report.Scores["pm25"]
	assert.Equal(t, models.DriftTestKS, fd.Test)
	assert.True(t, fd.Tested)
	assert.False(t, fd.Drifted)
	assert.Equal(t, 1.0, fd.PValue)
	assert.False(t, report.Summary.OverallDrift)
}

func TestDetectShiftedConstantDrifts(t *testing.T) {
	ref := numericSet(t, "reference", "pm25", constant(10, 50))
	cur := numericSet(t, "production", "pm25", constant(100, 50))

	det, err := NewDetector(ref, nil, nil)
	require.NoError(t, err)

	report, err := det.Detect(cur, []string{"pm25"}, nil)
	require.NoError(t, err)

	fd := report.Scores["pm25"]
	assert.True(t, fd.Drifted)
	assert.True(t, fd.Tested)
	assert.Equal(t, 1.0, fd.Statistic)
	assert.Less(t, fd.PValue, 0.05)
	assert.True(t, report.Summary.OverallDrift)
	assert.Equal(t, []string{"pm25"}, report.DriftedFeatures)
}

func TestDetectMissingColumns(t *testing.T) {
	ref := numericSet(t, "reference", "pm25", constant(10, 10))
	cur := numericSet(t, "production", "no2", constant(30, 10))

	det, err := NewDetector(ref, nil, nil)
	require.NoError(t, err)

	report, err := det.Detect(cur, []string{"pm25", "no2"}, nil)
	require.NoError(t, err)

	// pm25 vanished from production; no2 appeared out of nowhere. Both are
	// flagged with reason codes, not skipped.
	assert.Equal(t, models.DriftReasonMissingInCurrent, report.Scores["pm25"].Test)
	assert.True(t, report.Scores["pm25"].Drifted)
	assert.Equal(t, models.DriftReasonMissingInReference, report.Scores["no2"].Test)
	assert.True(t, report.Scores["no2"].Drifted)
	assert.Equal(t, 2, report.Summary.NumDrifted)
	assert.Equal(t, 0, report.Summary.TestedFeatures)
}

func TestDetectInsufficientDataMarksUntested(t *testing.T) {
	ref := numericSet(t, "reference", "pm25", constant(10, 50))
	cur := numericSet(t, "production", "pm25", constant(10, 1))

	det, err := NewDetector(ref, nil, nil)
	require.NoError(t, err)

	report, err := det.Detect(cur, []string{"pm25"}, nil)
	require.NoError(t, err)

	fd := report.Scores["pm25"]
	assert.Equal(t, models.DriftReasonInsufficientData, fd.Test)
	assert.False(t, fd.Tested)
	assert.False(t, fd.Drifted)
	assert.Equal(t, 1, report.Summary.UntestedFeatures)
	assert.False(t, report.Summary.OverallDrift)
}

func TestUntestableFeatureDoesNotAbortBatch(t *testing.T) {
	refRecords := make([]models.FeatureRecord, 50)
	for i := range refRecords {
		refRecords[i] = models.FeatureRecord{Values: map[string]interface{}{
			"pm25": 10.0,
		}}
	}
	// Only one reference row carries humidity, below the minimum.
	refRecords[0].Values["humidity"] = 0.4

	curRecords := make([]models.FeatureRecord, 50)
	for i := range curRecords {
		curRecords[i] = models.FeatureRecord{Values: map[string]interface{}{
			"pm25":     100.0,
			"humidity": 0.8,
		}}
	}

	det, err := NewDetector(models.NewFeatureSet("reference", refRecords), nil, nil)
	require.NoError(t, err)

	report, err := det.Detect(models.NewFeatureSet("production", curRecords), []string{"pm25", "humidity"}, nil)
	require.NoError(t, err)

	assert.True(t, report.Scores["pm25"].Drifted)
	assert.Equal(t, models.DriftReasonInsufficientData, report.Scores["humidity"].Test)
	assert.True(t, report.Summary.OverallDrift)
}

func TestDetectCategoricalDrift(t *testing.T) {
	refValues := make([]string, 0, 100)
	curValues := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			refValues = append(refValues, "Good")
		} else {
			refValues = append(refValues, "Moderate")
		}
		// Production shifted almost entirely to one category.
		if i < 95 {
			curValues = append(curValues, "Good")
		} else {
			curValues = append(curValues, "Moderate")
		}
	}

	ref := categoricalSet(t, "reference", "aqi_category", refValues)
	cur := categoricalSet(t, "production", "aqi_category", curValues)

	det, err := NewDetector(ref, nil, nil)
	require.NoError(t, err)

	report, err := det.Detect(cur, nil, []string{"aqi_category"})
	require.NoError(t, err)

	fd := report.Scores["aqi_category"]
	assert.Equal(t, models.DriftTestChiSquare, fd.Test)
	assert.True(t, fd.Tested)
	assert.True(t, fd.Drifted)
}

func TestDetectCategoricalStable(t *testing.T) {
	values := []string{"Good", "Good", "Moderate", "Good", "Moderate", "Good", "Good", "Moderate", "Good", "Good"}

	ref := categoricalSet(t, "reference", "aqi_category", values)
	cur := categoricalSet(t, "production", "aqi_category", values)

	det, err := NewDetector(ref, nil, nil)
	require.NoError(t, err)

	report, err := det.Detect(cur, nil, []string{"aqi_category"})
	require.NoError(t, err)

	fd := report.Scores["aqi_category"]
	assert.True(t, fd.Tested)
	assert.False(t, fd.Drifted)
}

func TestDriftThresholdFraction(t *testing.T) {
	refRecords := make([]models.FeatureRecord, 50)
	curRecords := make([]models.FeatureRecord, 50)
	for i := range refRecords {
		refRecords[i] = models.FeatureRecord{Values: map[string]interface{}{
			"a": 10.0, "b": 10.0, "c": 10.0,
		}}
		curRecords[i] = models.FeatureRecord{Values: map[string]interface{}{
			"a": 100.0, "b": 10.0, "c": 10.0,
		}}
	}

	// One of three features drifts: below a majority threshold.
	config := NewDefaultDetectorConfig()
	config.DriftThresholdFraction = 0.5

	det, err := NewDetector(models.NewFeatureSet("reference", refRecords), config, nil)
	require.NoError(t, err)

	report, err := det.Detect(models.NewFeatureSet("production", curRecords), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.NumDrifted)
	assert.False(t, report.Summary.OverallDrift)

	// The default policy flags the same report.
	defaultDet, err := NewDetector(models.NewFeatureSet("reference", refRecords), nil, nil)
	require.NoError(t, err)
	defaultReport, err := defaultDet.Detect(models.NewFeatureSet("production", curRecords), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	assert.True(t, defaultReport.Summary.OverallDrift)
}

func TestStatisticsSummary(t *testing.T) {
	ref := numericSet(t, "reference", "pm25", []float64{10, 20, 30, 40})
	cur := numericSet(t, "production", "pm25", []float64{20, 40, 60, 80})

	det, err := NewDetector(ref, nil, nil)
	require.NoError(t, err)

	summary, err := det.StatisticsSummary(cur, []string{"pm25", "absent"})
	require.NoError(t, err)
	require.Contains(t, summary, "pm25")
	assert.NotContains(t, summary, "absent")

	cmp := summary["pm25"]
	assert.Equal(t, 25.0, cmp.Reference.Mean)
	assert.Equal(t, 50.0, cmp.Current.Mean)
	assert.Equal(t, 10.0, cmp.Reference.Min)
	assert.Equal(t, 80.0, cmp.Current.Max)
	assert.Equal(t, 4, cmp.Reference.Count)
	assert.InDelta(t, 100.0, cmp.MeanChangePct, 1e-9)
}

func TestDetectRejectsEmptyInput(t *testing.T) {
	ref := numericSet(t, "reference", "pm25", constant(10, 10))
	det, err := NewDetector(ref, nil, nil)
	require.NoError(t, err)

	_, err = det.Detect(nil, []string{"pm25"}, nil)
	assert.Error(t, err)

	_, err = det.Detect(numericSet(t, "p", "pm25", constant(1, 5)), nil, nil)
	assert.Error(t, err)
}

func TestSaveReportAndHistory(t *testing.T) {
	ref := numericSet(t, "reference", "pm25", constant(10, 50))
	cur := numericSet(t, "production", "pm25", constant(100, 50))

	det, err := NewDetector(ref, nil, nil)
	require.NoError(t, err)

	report, err := det.Detect(cur, []string{"pm25"}, nil)
	require.NoError(t, err)

	path := t.TempDir() + "/reports/drift_reports.json"

	_, err = History(path)
	assert.Error(t, err)

	require.NoError(t, SaveReport(report, path))
	require.NoError(t, SaveReport(report, path))

	history, err := History(path)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Summary.NumDrifted)
}
