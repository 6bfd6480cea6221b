package drift

import (
	"math"
	"sort"
)

// ksResult holds the outcome of a two-sample Kolmogorov-Smirnov test.
type ksResult struct {
	Statistic     float64
	PValue        float64
	CriticalValue float64
	N1            int
	N2            int
}

// twoSampleKS tests the null hypothesis that two samples are drawn from the
// same continuous distribution. The statistic is the maximum absolute
// difference between the empirical CDFs; the p-value uses the asymptotic
// approximation 2*exp(-2*lambda^2).
func twoSampleKS(sample1, sample2 []float64, alpha float64) ksResult {
	n1, n2 := len(sample1), len(sample2)

	sorted1 := make([]float64, n1)
	sorted2 := make([]float64, n2)
	copy(sorted1, sample1)
	copy(sorted2, sample2)
	sort.Float64s(sorted1)
	sort.Float64s(sorted2)

	maxDiff := ksStatistic(sorted1, sorted2)

	return ksResult{
		Statistic:     maxDiff,
		PValue:        ksPValue(maxDiff, n1, n2),
		CriticalValue: ksCriticalValue(n1, n2, alpha),
		N1:            n1,
		N2:            n2,
	}
}

// ksStatistic walks both sorted samples and tracks the largest gap between
// the empirical CDFs.
func ksStatistic(sorted1, sorted2 []float64) float64 {
	n1, n2 := len(sorted1), len(sorted2)
	var maxDiff float64

	i1, i2 := 0, 0
	for i1 < n1 || i2 < n2 {
		var x float64
		switch {
		case i1 >= n1:
			x = sorted2[i2]
		case i2 >= n2:
			x = sorted1[i1]
		default:
			x = math.Min(sorted1[i1], sorted2[i2])
		}

		for i1 < n1 && sorted1[i1] <= x {
			i1++
		}
		for i2 < n2 && sorted2[i2] <= x {
			i2++
		}

		cdf1 := float64(i1) / float64(n1)
		cdf2 := float64(i2) / float64(n2)
		if diff := math.Abs(cdf1 - cdf2); diff > maxDiff {
			maxDiff = diff
		}
	}

	return maxDiff
}

// ksPValue is the asymptotic two-sample approximation, clamped to [0, 1].
func ksPValue(dMax float64, n1, n2 int) float64 {
	if dMax <= 0 {
		return 1.0
	}

	ne := float64(n1*n2) / float64(n1+n2)
	lambda := dMax * math.Sqrt(ne)
	pValue := 2 * math.Exp(-2*lambda*lambda)

	return math.Max(0, math.Min(1, pValue))
}

// ksCriticalValue uses the standard c(alpha) table for the two-sample test.
func ksCriticalValue(n1, n2 int, alpha float64) float64 {
	var cAlpha float64
	switch {
	case alpha <= 0.01:
		cAlpha = 1.63
	case alpha <= 0.05:
		cAlpha = 1.36
	case alpha <= 0.10:
		cAlpha = 1.22
	default:
		cAlpha = 1.36
	}

	return cAlpha * math.Sqrt((float64(n1)+float64(n2))/(float64(n1)*float64(n2)))
}
