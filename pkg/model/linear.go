package model

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"conformal/pkg/common"
)

// LinearModel fits ordinary (optionally weighted) least squares with an intercept.
// The normal-equation fallback keeps rank-deficient toy inputs solvable.
type LinearModel struct {
	Intercept float64
	Coef      []float64
	fitted    bool
}

func NewLinearModel() *LinearModel {
	return &LinearModel{}
}

func (lm *LinearModel) Clone() Model {
	return NewLinearModel()
}

func (lm *LinearModel) Fit(x common.Matrix, y []float64, weights []float64) error {
	if err := common.CheckXY(x, y); err != nil {
		return err
	}
	n, d := x.Rows(), x.Cols()

	// Row scaling by sqrt(w) makes the solution invariant under any constant
	// positive weight vector.
	a := mat.NewDense(n, d+1, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		s := 1.0
		if weights != nil {
			if weights[i] < 0 {
				return errors.New("negative sample weight")
			}
			s = math.Sqrt(weights[i])
		}
		a.Set(i, 0, s)
		for j := 0; j < d; j++ {
			a.Set(i, j+1, s*x[i][j])
		}
		b.SetVec(i, s*y[i])
	}

	beta, err := solveLeastSquares(a, b, d+1)
	if err != nil {
		return err
	}

	lm.Intercept = beta.AtVec(0)
	lm.Coef = make([]float64, d)
	for j := 0; j < d; j++ {
		lm.Coef[j] = beta.AtVec(j + 1)
	}
	lm.fitted = true
	return nil
}

func solveLeastSquares(a *mat.Dense, b *mat.VecDense, p int) (*mat.VecDense, error) {
	var qr mat.QR
	qr.Factorize(a)

	dst := mat.NewDense(p, 1, nil)
	if err := qr.SolveTo(dst, false, b); err == nil {
		beta := mat.NewVecDense(p, nil)
		for j := 0; j < p; j++ {
			beta.SetVec(j, dst.At(j, 0))
		}
		return beta, nil
	}

	// Rank-deficient design: solve ridge-regularized normal equations instead.
	var ata mat.Dense
	ata.Mul(a.T(), a)
	for j := 0; j < p; j++ {
		ata.Set(j, j, ata.At(j, j)+1e-10)
	}
	var atb mat.VecDense
	atb.MulVec(a.T(), b)

	beta := mat.NewVecDense(p, nil)
	if err := beta.SolveVec(&ata, &atb); err != nil {
		return nil, errors.New("singular design matrix")
	}
	return beta, nil
}

func (lm *LinearModel) Fitted() bool {
	return lm.fitted
}

func (lm *LinearModel) Predict(x common.Matrix) []float64 {
	out := make([]float64, x.Rows())
	if !lm.fitted {
		return out
	}
	for i, row := range x {
		v := lm.Intercept
		for j, c := range lm.Coef {
			v += c * row[j]
		}
		out[i] = v
	}
	return out
}
