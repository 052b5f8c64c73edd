package metrics

import (
	"math"
)

// CoverageScore returns the fraction of realized values falling inside their
// prediction interval.
func CoverageScore(y, lower, upper []float64) float64 {
	if len(y) == 0 || len(y) != len(lower) || len(y) != len(upper) {
		return math.NaN()
	}
	covered := 0
	for i := range y {
		if y[i] >= lower[i] && y[i] <= upper[i] {
			covered++
		}
	}
	return float64(covered) / float64(len(y))
}

// MeanWidthScore returns the average interval width.
func MeanWidthScore(lower, upper []float64) float64 {
	if len(lower) == 0 || len(lower) != len(upper) {
		return math.NaN()
	}
	sum := 0.0
	for i := range lower {
		sum += upper[i] - lower[i]
	}
	return sum / float64(len(lower))
}
