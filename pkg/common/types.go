package common

import (
	"errors"
	"fmt"
)

var ErrLenMismatch = errors.New("feature matrix and target vector have different lengths")

// Matrix is a row-major feature matrix: Matrix[i] is the feature vector of sample i.
type Matrix [][]float64

func (m Matrix) Rows() int {
	return len(m)
}

func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Subset returns the rows of m selected by idx, sharing the underlying row slices.
func (m Matrix) Subset(idx []int) Matrix {
	out := make(Matrix, len(idx))
	for i, j := range idx {
		out[i] = m[j]
	}
	return out
}

// Column builds a single-feature matrix from a vector. Convenient for toy datasets.
func Column(xs []float64) Matrix {
	out := make(Matrix, len(xs))
	for i, x := range xs {
		out[i] = []float64{x}
	}
	return out
}

func SubsetVec(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

// CheckXY validates that X and y describe the same number of samples.
func CheckXY(x Matrix, y []float64) error {
	if x.Rows() != len(y) {
		return fmt.Errorf("X has %d rows, y has %d values: %w", x.Rows(), len(y), ErrLenMismatch)
	}
	if x.Rows() == 0 {
		return errors.New("empty training set")
	}
	return nil
}
