package regression

import (
	"conformal/pkg/stats"
)

// Aggregation modes for combining per-fold predictions.
const (
	AggNone   = ""
	AggMean   = "mean"
	AggMedian = "median"
)

func validAggregation(agg string) bool {
	switch agg {
	case AggNone, AggMean, AggMedian:
		return true
	}
	return false
}

// Aggregate combines values with the named aggregation function. An unset
// aggregation is an error here: callers that tolerate it must check first.
func Aggregate(agg string, values []float64) (float64, error) {
	switch agg {
	case AggMean:
		return stats.Mean(values), nil
	case AggMedian:
		return stats.Median(values), nil
	}
	return 0, ErrNoAggregation
}

// aggregateOrMean is the internal aggregation used to merge the out-of-fold
// predictions attached to one training sample. With K-fold or leave-one-out
// splitting each sample has exactly one such prediction, so the choice is
// irrelevant there; under subsampling an unset aggregation degrades to mean.
func aggregateOrMean(agg string, values []float64) float64 {
	if agg == AggMedian {
		return stats.Median(values)
	}
	return stats.Mean(values)
}
