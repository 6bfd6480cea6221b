package drift

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// chiSquareResult holds the outcome of a chi-square goodness-of-fit
// comparison between two frequency tables.
type chiSquareResult struct {
	Statistic  float64
	PValue     float64
	DegreesOfF int
	Categories int
}

// chiSquareGoodnessOfFit compares current category frequencies against the
// reference frequencies over the union of observed categories. Reference
// counts are rescaled to the current sample size so the expected table sums
// to the observed total. A category observed in current but never in the
// reference has an expected count of zero; any observations there are
// unexplainable under the null, so the p-value collapses to zero.
func chiSquareGoodnessOfFit(reference, current []string) chiSquareResult {
	refCounts := countCategories(reference)
	curCounts := countCategories(current)

	categories := categoryUnion(refCounts, curCounts)
	refTotal := float64(len(reference))
	curTotal := float64(len(current))

	var statistic float64
	zeroExpectedObserved := false

	for _, cat := range categories {
		observed := float64(curCounts[cat])
		expected := float64(refCounts[cat]) / refTotal * curTotal
		if expected == 0 {
			if observed > 0 {
				zeroExpectedObserved = true
			}
			continue
		}
		diff := observed - expected
		statistic += diff * diff / expected
	}

	df := len(categories) - 1
	if df < 1 {
		df = 1
	}

	var pValue float64
	if zeroExpectedObserved {
		pValue = 0
	} else {
		chiSq := distuv.ChiSquared{K: float64(df)}
		pValue = 1 - chiSq.CDF(statistic)
		pValue = math.Max(0, math.Min(1, pValue))
	}

	return chiSquareResult{
		Statistic:  statistic,
		PValue:     pValue,
		DegreesOfF: df,
		Categories: len(categories),
	}
}

func countCategories(values []string) map[string]int {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	return counts
}

func categoryUnion(a, b map[string]int) []string {
	seen := make(map[string]struct{})
	for cat := range a {
		seen[cat] = struct{}{}
	}
	for cat := range b {
		seen[cat] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for cat := range seen {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	return categories
}
