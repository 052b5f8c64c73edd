package regression

import (
	"fmt"
	"sort"
	"sync"

	"conformal/pkg/common"
	"conformal/pkg/stats"
)

// TimeSeriesRegressor extends Regressor with a rolling calibration window and
// the adaptive conformal inference control loop: PartialFit rolls freshly
// observed residuals into the window and AdaptConformalInference nudges the
// effective miscoverage level after each realized outcome, so empirical
// coverage tracks the target even under distribution shift.
//
// The window holds signed residuals so the interval endpoints can sit at
// asymmetric quantile levels. Adaptation steps must be issued in time order;
// the internal mutex makes concurrent use safe but never reorders steps.
type TimeSeriesRegressor struct {
	Regressor

	mu        sync.Mutex
	window    *scoreWindow
	effective map[float64]float64
}

func NewTimeSeries(opts Options) *TimeSeriesRegressor {
	return &TimeSeriesRegressor{Regressor: *New(opts)}
}

// Fit fits the underlying conformal regressor and seeds the calibration
// window with the signed held-out residuals. Any adaptive state from a
// previous fit is discarded.
func (ts *TimeSeriesRegressor) Fit(x common.Matrix, y []float64, weights []float64) error {
	if err := ts.Regressor.Fit(x, y, weights); err != nil {
		return err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.window = newScoreWindow(len(ts.signed))
	for _, s := range ts.signed {
		ts.window.Add(s) // NaN entries are skipped
	}
	ts.effective = make(map[float64]float64)
	return nil
}

// PartialFit scores new observations against the current point predictions and
// rolls them into the calibration window, evicting the oldest scores. The fold
// estimators and their residual history are untouched.
func (ts *TimeSeriesRegressor) PartialFit(x common.Matrix, y []float64) error {
	if !ts.fitted {
		return ErrNotFitted
	}
	if err := common.CheckXY(x, y); err != nil {
		return err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if x.Rows() > ts.window.cap {
		return fmt.Errorf("got %d new samples for a calibration window of %d", x.Rows(), ts.window.cap)
	}
	pred := ts.pointPredict(x)
	for i := range y {
		ts.window.Add(y[i] - pred[i])
	}
	return nil
}

// AdaptConformalInference performs one ACI step per observation: the realized
// value is checked against the interval issued at the current effective level,
// and the level moves by gamma against the coverage error. Only levels already
// requested through PredictIntervals are adapted.
func (ts *TimeSeriesRegressor) AdaptConformalInference(x common.Matrix, y []float64, gamma float64) error {
	if !ts.fitted {
		return ErrNotFitted
	}
	if err := common.CheckXY(x, y); err != nil {
		return err
	}
	if gamma < 0 {
		return fmt.Errorf("gamma must be non-negative, got %v", gamma)
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	pred := ts.pointPredict(x)
	for _, target := range ts.sortedTargets() {
		eff := ts.effective[target]
		for i := range y {
			lo, hi := ts.windowBounds(pred[i], eff, eff/2)
			miss := 0.0
			if y[i] < lo || y[i] > hi {
				miss = 1.0
			}
			eff = clampAlpha(eff + gamma*(target-miss))
		}
		ts.effective[target] = eff
	}
	return nil
}

// PredictIntervals issues intervals at the adapted effective level of each
// requested alpha, registering levels not seen before. With optimizeBeta the
// split of the miscoverage budget between the two tails is chosen to minimize
// interval width instead of being halved.
func (ts *TimeSeriesRegressor) PredictIntervals(x common.Matrix, alphas []float64, ensemble, optimizeBeta bool) ([]float64, *Intervals, error) {
	if !ts.fitted {
		return nil, nil, ErrNotFitted
	}
	if err := checkAlphas(alphas); err != nil {
		return nil, nil, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	point := ts.pointPredictEnsemble(x, ensemble)
	iv := NewIntervals(x.Rows(), alphas)
	for k, a := range alphas {
		eff, ok := ts.effective[a]
		if !ok {
			eff = a
			ts.effective[a] = eff
		}
		beta := eff / 2
		if optimizeBeta {
			beta = ts.optimalBeta(eff)
		}
		for i, p := range point {
			iv.Lower[i][k], iv.Upper[i][k] = ts.windowBounds(p, eff, beta)
		}
	}
	return point, iv, nil
}

// windowBounds shifts a point prediction by the window residual quantiles at
// levels beta and 1-alpha+beta.
func (ts *TimeSeriesRegressor) windowBounds(point, alpha, beta float64) (float64, float64) {
	lo := point + ts.window.Quantile(beta, stats.Lower)
	hi := point + ts.window.Quantile(1-alpha+beta, stats.Higher)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// optimalBeta grid-searches the lower-tail share of the miscoverage budget
// that minimizes interval width at the current window contents.
func (ts *TimeSeriesRegressor) optimalBeta(alpha float64) float64 {
	sorted := ts.window.Sorted()
	if len(sorted) == 0 {
		return alpha / 2
	}
	const steps = 100
	best := alpha / 2
	bestWidth := stats.QuantileSorted(sorted, 1-alpha+best, stats.Higher) -
		stats.QuantileSorted(sorted, best, stats.Lower)
	for i := 0; i <= steps; i++ {
		beta := alpha * float64(i) / steps
		width := stats.QuantileSorted(sorted, 1-alpha+beta, stats.Higher) -
			stats.QuantileSorted(sorted, beta, stats.Lower)
		if width < bestWidth {
			best, bestWidth = beta, width
		}
	}
	return best
}

func (ts *TimeSeriesRegressor) pointPredict(x common.Matrix) []float64 {
	return ts.pointPredictEnsemble(x, ts.agg != AggNone)
}

func (ts *TimeSeriesRegressor) pointPredictEnsemble(x common.Matrix, ensemble bool) []float64 {
	if ensemble && ts.agg != AggNone && len(ts.folds) > 0 {
		foldPreds := make([][]float64, len(ts.folds))
		for fi, f := range ts.folds {
			foldPreds[fi] = f.est.Predict(x)
		}
		return ts.ensemblePoint(foldPreds, x.Rows())
	}
	return ts.single.Predict(x)
}

func (ts *TimeSeriesRegressor) sortedTargets() []float64 {
	targets := make([]float64, 0, len(ts.effective))
	for a := range ts.effective {
		targets = append(targets, a)
	}
	sort.Float64s(targets)
	return targets
}

// EffectiveAlpha returns the adapted level currently in force for a target
// alpha, and whether the target has been registered by a predict call.
func (ts *TimeSeriesRegressor) EffectiveAlpha(target float64) (float64, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	eff, ok := ts.effective[target]
	return eff, ok
}

// WindowLen returns the number of scores currently in the calibration window.
func (ts *TimeSeriesRegressor) WindowLen() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.window == nil {
		return 0
	}
	return ts.window.Len()
}

// clampAlpha keeps the adapted level inside the open unit interval.
func clampAlpha(a float64) float64 {
	const eps = 1e-10
	if a < eps {
		return eps
	}
	if a > 1-eps {
		return 1 - eps
	}
	return a
}
