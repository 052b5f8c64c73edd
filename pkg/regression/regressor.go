package regression

import (
	"fmt"
	"log"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"conformal/pkg/common"
	"conformal/pkg/model"
	"conformal/pkg/split"
	"conformal/pkg/stats"
)

// Conformal interval methods.
const (
	MethodNaive  = "naive"
	MethodBase   = "base"
	MethodPlus   = "plus"
	MethodMinMax = "minmax"
)

// Options configures a Regressor. Zero values select the defaults: a linear
// estimator, the plus method, no aggregation, 5-fold splitting and one worker.
type Options struct {
	Estimator model.Model
	Method    string
	Agg       string
	CV        split.Strategy
	Workers   int
}

// CVFromInt maps the conventional integer shorthand to a splitting strategy:
// -1 is leave-one-out, k >= 2 is k-fold. Anything else is invalid.
func CVFromInt(k int) (split.Strategy, error) {
	if k == -1 {
		return split.LeaveOneOut{}, nil
	}
	if k >= 2 {
		return split.KFold{K: k}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidCV, k)
}

type foldFit struct {
	est  model.Model
	fold split.Fold
}

// Regressor wraps a point-prediction estimator and produces conformal
// prediction intervals calibrated from held-out residuals.
type Regressor struct {
	method  string
	agg     string
	cv      split.Strategy
	workers int
	prefit  bool

	single model.Model
	folds  []foldFit

	// scores[j] is the conformity score of training sample j; NaN when the
	// sample was never held out. signed[j] keeps the sign of the residual for
	// the rolling window of the time-series regressor. valFolds[j] lists the
	// folds that held sample j out.
	scores   []float64
	signed   []float64
	valFolds [][]int

	trainX common.Matrix
	trainY []float64
	fitted bool
}

func New(opts Options) *Regressor {
	method := opts.Method
	if method == "" {
		method = MethodPlus
	}
	cv := opts.CV
	if cv == nil {
		cv = split.KFold{K: 5}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	est := opts.Estimator
	if est == nil {
		est = model.NewLinearModel()
	}
	_, prefit := cv.(split.Prefit)
	return &Regressor{
		method:  method,
		agg:     opts.Agg,
		cv:      cv,
		workers: workers,
		prefit:  prefit,
		single:  est,
	}
}

func (r *Regressor) validate() error {
	switch r.method {
	case MethodNaive, MethodBase, MethodPlus, MethodMinMax:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidMethod, r.method)
	}
	if !validAggregation(r.agg) {
		return fmt.Errorf("%w: got %q", ErrInvalidAggregation, r.agg)
	}
	if _, sub := r.cv.(split.Subsample); sub && r.agg == AggNone {
		log.Printf("[Warning] no aggregation function set with resampling cv; out-of-bag predictions will be averaged")
	}
	return nil
}

type fittedReporter interface {
	Fitted() bool
}

// Fit fits the full-data estimator and one estimator per fold, then records the
// held-out conformity score of every training sample. All parameter validation
// happens before any fitting work.
func (r *Regressor) Fit(x common.Matrix, y []float64, weights []float64) error {
	if err := r.validate(); err != nil {
		return err
	}
	if err := common.CheckXY(x, y); err != nil {
		return err
	}
	if weights != nil && len(weights) != len(y) {
		return fmt.Errorf("sample_weight has %d values for %d samples", len(weights), len(y))
	}
	n := x.Rows()

	if r.prefit {
		if fr, ok := r.single.(fittedReporter); ok && !fr.Fitted() {
			return fmt.Errorf("%w: cv is prefit but the estimator reports unfitted", ErrNotFitted)
		}
		return r.calibratePrefit(x, y)
	}

	folds, err := r.cv.Splits(n)
	if err != nil {
		return err
	}

	single := r.single.Clone()
	if err := single.Fit(x, y, weights); err != nil {
		return err
	}

	fits := make([]foldFit, len(folds))
	if r.method != MethodNaive {
		g := new(errgroup.Group)
		limit := r.workers
		if limit <= 0 {
			limit = runtime.GOMAXPROCS(0)
		}
		g.SetLimit(limit)
		for i, f := range folds {
			i, f := i, f
			g.Go(func() error {
				est := r.single.Clone()
				var w []float64
				if weights != nil {
					w = common.SubsetVec(weights, f.Train)
				}
				if err := est.Fit(x.Subset(f.Train), common.SubsetVec(y, f.Train), w); err != nil {
					return fmt.Errorf("fold %d: %w", i, err)
				}
				fits[i] = foldFit{est: est, fold: f}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	r.trainX = x
	r.trainY = y
	r.single = single
	if r.method == MethodNaive {
		r.folds = nil
		r.valFolds = nil
		r.signed = signedResiduals(y, single.Predict(x))
		r.scores = absValues(r.signed)
	} else {
		r.folds = fits
		r.computeScores(x, y)
	}
	r.fitted = true
	return nil
}

func (r *Regressor) calibratePrefit(x common.Matrix, y []float64) error {
	r.trainX = x
	r.trainY = y
	r.folds = nil
	r.valFolds = nil
	r.signed = signedResiduals(y, r.single.Predict(x))
	r.scores = absValues(r.signed)
	r.fitted = true
	return nil
}

// computeScores assigns each training sample the aggregated prediction of the
// fold estimators that never saw it, and its absolute residual against that.
func (r *Regressor) computeScores(x common.Matrix, y []float64) {
	n := len(y)
	r.valFolds = make([][]int, n)
	for fi, f := range r.folds {
		for _, j := range f.fold.Val {
			r.valFolds[j] = append(r.valFolds[j], fi)
		}
	}

	// Per-fold predictions on the samples each fold held out.
	oof := make([][]float64, len(r.folds))
	for fi, f := range r.folds {
		oof[fi] = f.est.Predict(x.Subset(f.fold.Val))
	}
	oofAt := make([]map[int]float64, len(r.folds))
	for fi, f := range r.folds {
		oofAt[fi] = make(map[int]float64, len(f.fold.Val))
		for k, j := range f.fold.Val {
			oofAt[fi][j] = oof[fi][k]
		}
	}

	r.scores = make([]float64, n)
	r.signed = make([]float64, n)
	missing := 0
	for j := 0; j < n; j++ {
		if len(r.valFolds[j]) == 0 {
			r.scores[j] = math.NaN()
			r.signed[j] = math.NaN()
			missing++
			continue
		}
		preds := make([]float64, 0, len(r.valFolds[j]))
		for _, fi := range r.valFolds[j] {
			preds = append(preds, oofAt[fi][j])
		}
		r.signed[j] = y[j] - aggregateOrMean(r.agg, preds)
		r.scores[j] = math.Abs(r.signed[j])
	}
	if missing > 0 {
		log.Printf("[Warning] at least one point of the training set was in every resampling: %d conformity scores are undefined and excluded from the quantiles", missing)
	}
}

func signedResiduals(y, pred []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] - pred[i]
	}
	return out
}

func absValues(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Abs(v)
	}
	return out
}

// Predict returns ensemble point predictions without intervals.
func (r *Regressor) Predict(x common.Matrix) ([]float64, error) {
	if !r.fitted {
		return nil, ErrNotFitted
	}
	return r.single.Predict(x), nil
}

// PredictIntervals returns the point predictions and, for every requested
// miscoverage level, the conformal interval bounds. With ensemble set and an
// aggregation configured, the returned point prediction is the aggregation of
// the fold estimators' predictions instead of the full-data estimator's.
func (r *Regressor) PredictIntervals(x common.Matrix, alphas []float64, ensemble bool) ([]float64, *Intervals, error) {
	if !r.fitted {
		return nil, nil, ErrNotFitted
	}
	if err := checkAlphas(alphas); err != nil {
		return nil, nil, err
	}

	nTest := x.Rows()
	point := r.single.Predict(x)

	var foldPreds [][]float64
	if len(r.folds) > 0 {
		foldPreds = make([][]float64, len(r.folds))
		for fi, f := range r.folds {
			foldPreds[fi] = f.est.Predict(x)
		}
	}

	if ensemble && r.agg != AggNone && len(foldPreds) > 0 {
		point = r.ensemblePoint(foldPreds, nTest)
	}

	iv := NewIntervals(nTest, alphas)
	clean, _ := stats.DropNaN(r.scores)

	switch {
	case r.method == MethodNaive || r.prefit || len(r.folds) == 0:
		r.absoluteIntervals(point, clean, iv)
	case r.method == MethodBase:
		r.absoluteIntervals(point, clean, iv)
	case r.method == MethodPlus:
		r.plusIntervals(foldPreds, nTest, iv)
	case r.method == MethodMinMax:
		r.minmaxIntervals(foldPreds, nTest, clean, iv)
	}
	return point, iv, nil
}

func (r *Regressor) ensemblePoint(foldPreds [][]float64, nTest int) []float64 {
	point := make([]float64, nTest)
	buf := make([]float64, len(foldPreds))
	for i := 0; i < nTest; i++ {
		for fi := range foldPreds {
			buf[fi] = foldPreds[fi][i]
		}
		v, err := Aggregate(r.agg, buf)
		if err != nil {
			// Callers guard on r.agg before choosing the ensemble path.
			return point
		}
		point[i] = v
	}
	return point
}

// absoluteIntervals centers a symmetric score quantile on the point prediction
// (the naive, base and prefit rules).
func (r *Regressor) absoluteIntervals(point, scores []float64, iv *Intervals) {
	for k, a := range iv.Alphas {
		q := stats.Quantile(scores, 1-a, stats.Higher)
		for i, p := range point {
			iv.Lower[i][k] = p - q
			iv.Upper[i][k] = p + q
		}
	}
}

// plusIntervals forms, for every training sample, the candidate bound given by
// its leave-out estimator's prediction shifted by its conformity score, then
// takes quantiles across candidates.
func (r *Regressor) plusIntervals(foldPreds [][]float64, nTest int, iv *Intervals) {
	for i := 0; i < nTest; i++ {
		var lowerCand, upperCand []float64
		for j, score := range r.scores {
			if math.IsNaN(score) {
				continue
			}
			preds := make([]float64, 0, len(r.valFolds[j]))
			for _, fi := range r.valFolds[j] {
				preds = append(preds, foldPreds[fi][i])
			}
			p := aggregateOrMean(r.agg, preds)
			lowerCand = append(lowerCand, p-score)
			upperCand = append(upperCand, p+score)
		}
		for k, a := range iv.Alphas {
			iv.Lower[i][k] = stats.Quantile(lowerCand, a, stats.Lower)
			iv.Upper[i][k] = stats.Quantile(upperCand, 1-a, stats.Higher)
		}
	}
}

// minmaxIntervals spans the full spread of the fold estimators, widened by the
// score quantile. The widest of the four rules.
func (r *Regressor) minmaxIntervals(foldPreds [][]float64, nTest int, scores []float64, iv *Intervals) {
	buf := make([]float64, len(foldPreds))
	for k, a := range iv.Alphas {
		q := stats.Quantile(scores, 1-a, stats.Higher)
		for i := 0; i < nTest; i++ {
			for fi := range foldPreds {
				buf[fi] = foldPreds[fi][i]
			}
			lo, hi := stats.MinMax(buf)
			iv.Lower[i][k] = lo - q
			iv.Upper[i][k] = hi + q
		}
	}
}

func checkAlphas(alphas []float64) error {
	if len(alphas) == 0 {
		return fmt.Errorf("%w: no levels requested", ErrInvalidAlpha)
	}
	for _, a := range alphas {
		if a <= 0 || a >= 1 {
			return fmt.Errorf("%w: got %v", ErrInvalidAlpha, a)
		}
	}
	return nil
}

// Fitted reports whether Fit has completed successfully.
func (r *Regressor) Fitted() bool {
	return r.fitted
}

// Single returns the full-data estimator.
func (r *Regressor) Single() model.Model {
	return r.single
}

// FoldEstimators returns the per-fold estimator copies.
func (r *Regressor) FoldEstimators() []model.Model {
	out := make([]model.Model, len(r.folds))
	for i, f := range r.folds {
		out[i] = f.est
	}
	return out
}

// Scores returns the conformity scores recorded at fit time, NaN entries included.
func (r *Regressor) Scores() []float64 {
	return r.scores
}

// Method returns the configured conformal method.
func (r *Regressor) Method() string {
	return r.method
}
