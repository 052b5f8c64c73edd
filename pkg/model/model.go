package model

import (
	"conformal/pkg/common"
)

// Model is a point-prediction estimator. Fit replaces any previous state; weights may
// be nil for unweighted fitting. Clone returns a fresh unfitted copy so each fold can
// own an independent estimator instance.
type Model interface {
	Fit(x common.Matrix, y []float64, weights []float64) error
	Predict(x common.Matrix) []float64
	Clone() Model
}
