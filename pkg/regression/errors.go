package regression

import "errors"

// Validation failures are surfaced at the start of Fit, before any fold fitting,
// so a Regressor is never left partially fitted.
var (
	ErrInvalidMethod      = errors.New("invalid method: allowed values are naive, base, plus, minmax")
	ErrInvalidAggregation = errors.New("invalid aggregation function: allowed values are mean, median or empty")
	ErrInvalidCV          = errors.New("invalid cv argument")
	ErrInvalidAlpha       = errors.New("alpha must be strictly between 0 and 1")
	ErrNotFitted          = errors.New("estimator not fitted, call Fit first")
	ErrNoAggregation      = errors.New("aggregation function called but not defined")
)
