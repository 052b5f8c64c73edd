package model

import (
	"conformal/pkg/common"
)

// MeanModel predicts the (weighted) mean of the training targets for every input.
// Useful as a trivially inspectable baseline in tests.
type MeanModel struct {
	Value  float64
	fitted bool
}

func NewMeanModel() *MeanModel {
	return &MeanModel{}
}

func (mm *MeanModel) Clone() Model {
	return NewMeanModel()
}

func (mm *MeanModel) Fit(x common.Matrix, y []float64, weights []float64) error {
	if err := common.CheckXY(x, y); err != nil {
		return err
	}
	var sum, wsum float64
	for i, v := range y {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		sum += w * v
		wsum += w
	}
	if wsum == 0 {
		mm.Value = 0
	} else {
		mm.Value = sum / wsum
	}
	mm.fitted = true
	return nil
}

func (mm *MeanModel) Fitted() bool {
	return mm.fitted
}

func (mm *MeanModel) Predict(x common.Matrix) []float64 {
	out := make([]float64, x.Rows())
	for i := range out {
		out[i] = mm.Value
	}
	return out
}
