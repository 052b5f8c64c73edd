package regression

// Intervals holds conformal interval bounds for a batch of query points:
// Lower[i][k] and Upper[i][k] bound query point i at miscoverage level Alphas[k].
type Intervals struct {
	Alphas []float64
	Lower  [][]float64
	Upper  [][]float64
}

func NewIntervals(n int, alphas []float64) *Intervals {
	iv := &Intervals{
		Alphas: append([]float64(nil), alphas...),
		Lower:  make([][]float64, n),
		Upper:  make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		iv.Lower[i] = make([]float64, len(alphas))
		iv.Upper[i] = make([]float64, len(alphas))
	}
	return iv
}

func (iv *Intervals) Len() int {
	return len(iv.Lower)
}

func (iv *Intervals) NumAlphas() int {
	return len(iv.Alphas)
}

// Bounds returns the lower and upper bound of point i at alpha index k.
func (iv *Intervals) Bounds(i, k int) (float64, float64) {
	return iv.Lower[i][k], iv.Upper[i][k]
}

// Columns returns the lower and upper bound vectors for alpha index k.
func (iv *Intervals) Columns(k int) ([]float64, []float64) {
	lower := make([]float64, iv.Len())
	upper := make([]float64, iv.Len())
	for i := range iv.Lower {
		lower[i] = iv.Lower[i][k]
		upper[i] = iv.Upper[i][k]
	}
	return lower, upper
}
