package stats

import (
	"math"
	"sort"
)

// Interpolation selects how an empirical quantile lands between order statistics.
type Interpolation int

const (
	// Lower takes the order statistic at the floor of the virtual index.
	Lower Interpolation = iota
	// Higher takes the order statistic at the ceiling of the virtual index.
	Higher
)

// Quantile returns the empirical q-quantile of values. The conformal interval rules
// need both endpoint conventions: Lower for lower bounds, Higher for upper bounds.
// q is clamped to [0, 1]. Panics on an empty input are avoided by returning NaN.
func Quantile(values []float64, q float64, interp Interpolation) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	h := q * float64(len(sorted)-1)
	var idx int
	if interp == Lower {
		idx = int(math.Floor(h))
	} else {
		idx = int(math.Ceil(h))
	}
	return sorted[idx]
}

// QuantileSorted is Quantile over values already in ascending order, without copying.
func QuantileSorted(sorted []float64, q float64, interp Interpolation) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	h := q * float64(len(sorted)-1)
	if interp == Lower {
		return sorted[int(math.Floor(h))]
	}
	return sorted[int(math.Ceil(h))]
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// DropNaN returns the non-NaN entries of values and how many were dropped.
func DropNaN(values []float64) ([]float64, int) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out, len(values) - len(out)
}

func MinMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
