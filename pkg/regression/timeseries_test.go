package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conformal/pkg/common"
	"conformal/pkg/split"
)

func fittedTimeSeries(t *testing.T) (*TimeSeriesRegressor, common.Matrix, []float64) {
	t.Helper()
	x, y := makeRegression(80, 3, 1.0, 1)
	ts := NewTimeSeries(Options{Method: MethodBase, Agg: AggMean, CV: split.KFold{K: 4, Shuffle: true, Seed: 1}})
	require.NoError(t, ts.Fit(x, y, nil))
	return ts, x, y
}

func TestTimeSeriesFitSeedsWindow(t *testing.T) {
	ts, _, y := fittedTimeSeries(t)
	assert.Equal(t, len(y), ts.WindowLen())
}

func TestTimeSeriesRefitResetsState(t *testing.T) {
	ts, x, y := fittedTimeSeries(t)

	_, _, err := ts.PredictIntervals(x.Subset([]int{0}), []float64{0.1}, true, false)
	require.NoError(t, err)
	require.NoError(t, ts.AdaptConformalInference(x.Subset([]int{0}), []float64{1e6}, 0.05))

	eff, ok := ts.EffectiveAlpha(0.1)
	require.True(t, ok)
	require.Less(t, eff, 0.1)

	require.NoError(t, ts.Fit(x, y, nil))
	_, ok = ts.EffectiveAlpha(0.1)
	assert.False(t, ok, "refit must discard adaptive state")
}

func TestPartialFitRollsWindow(t *testing.T) {
	ts, x, y := fittedTimeSeries(t)
	before := ts.WindowLen()

	require.NoError(t, ts.PartialFit(x.Subset([]int{0, 1, 2}), y[:3]))
	assert.Equal(t, before, ts.WindowLen(), "window stays at capacity, oldest scores evicted")
}

func TestPartialFitTooManySamples(t *testing.T) {
	ts, _, _ := fittedTimeSeries(t)
	x, y := makeRegression(200, 3, 1.0, 2)
	err := ts.PartialFit(x, y)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calibration window")
}

func TestPartialFitBeforeFit(t *testing.T) {
	ts := NewTimeSeries(Options{})
	x, y := toyData()
	assert.ErrorIs(t, ts.PartialFit(x, y), ErrNotFitted)
}

func TestAdaptWidensAfterMiss(t *testing.T) {
	ts, x, _ := fittedTimeSeries(t)
	probe := x.Subset([]int{0})

	_, _, err := ts.PredictIntervals(probe, []float64{0.1}, true, false)
	require.NoError(t, err)

	// A wildly wrong outcome is a coverage miss: the effective level must
	// drop, widening subsequent intervals.
	require.NoError(t, ts.AdaptConformalInference(probe, []float64{1e6}, 0.05))
	eff, ok := ts.EffectiveAlpha(0.1)
	require.True(t, ok)
	assert.InDelta(t, 0.1+0.05*(0.1-1), eff, 1e-12)
}

func TestAdaptNarrowsAfterHit(t *testing.T) {
	ts, x, _ := fittedTimeSeries(t)
	probe := x.Subset([]int{0})

	point, _, err := ts.PredictIntervals(probe, []float64{0.1}, true, false)
	require.NoError(t, err)

	// An outcome equal to the point prediction is always covered.
	require.NoError(t, ts.AdaptConformalInference(probe, []float64{point[0]}, 0.05))
	eff, ok := ts.EffectiveAlpha(0.1)
	require.True(t, ok)
	assert.InDelta(t, 0.1+0.05*0.1, eff, 1e-12)
}

func TestAdaptStaysInsideUnitInterval(t *testing.T) {
	ts, x, _ := fittedTimeSeries(t)
	probe := x.Subset([]int{0})

	_, _, err := ts.PredictIntervals(probe, []float64{0.1}, true, false)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, ts.AdaptConformalInference(probe, []float64{1e6}, 0.5))
	}
	eff, _ := ts.EffectiveAlpha(0.1)
	assert.Greater(t, eff, 0.0)
	assert.Less(t, eff, 1.0)
}

func TestAdaptBeforePredictIsNoop(t *testing.T) {
	ts, x, y := fittedTimeSeries(t)
	require.NoError(t, ts.AdaptConformalInference(x.Subset([]int{0}), y[:1], 0.05))
	_, ok := ts.EffectiveAlpha(0.1)
	assert.False(t, ok)
}

func TestAdaptNegativeGamma(t *testing.T) {
	ts, x, y := fittedTimeSeries(t)
	err := ts.AdaptConformalInference(x.Subset([]int{0}), y[:1], -0.1)
	require.Error(t, err)
}

func TestOptimizeBetaNeverWidens(t *testing.T) {
	ts, x, _ := fittedTimeSeries(t)
	probe := x.Subset([]int{0, 1, 2, 3, 4})

	_, ivSym, err := ts.PredictIntervals(probe, []float64{0.1}, true, false)
	require.NoError(t, err)
	_, ivOpt, err := ts.PredictIntervals(probe, []float64{0.1}, true, true)
	require.NoError(t, err)

	for i := 0; i < ivSym.Len(); i++ {
		wSym := ivSym.Upper[i][0] - ivSym.Lower[i][0]
		wOpt := ivOpt.Upper[i][0] - ivOpt.Lower[i][0]
		assert.LessOrEqual(t, wOpt, wSym+1e-12)
		assert.LessOrEqual(t, ivOpt.Lower[i][0], ivOpt.Upper[i][0])
	}
}

func TestTimeSeriesDeterministic(t *testing.T) {
	x, y := makeRegression(60, 3, 1.0, 1)
	build := func() *TimeSeriesRegressor {
		ts := NewTimeSeries(Options{Method: MethodBase, Agg: AggMean, CV: split.KFold{K: 3, Shuffle: true, Seed: 1}})
		require.NoError(t, ts.Fit(x, y, nil))
		return ts
	}
	a, b := build(), build()

	pa, iva, err := a.PredictIntervals(x, []float64{0.1}, true, true)
	require.NoError(t, err)
	pb, ivb, err := b.PredictIntervals(x, []float64{0.1}, true, true)
	require.NoError(t, err)

	assert.Equal(t, pa, pb)
	assert.Equal(t, iva.Lower, ivb.Lower)
	assert.Equal(t, iva.Upper, ivb.Upper)
}

func TestTimeSeriesPredictBeforeFit(t *testing.T) {
	ts := NewTimeSeries(Options{})
	x, _ := toyData()
	_, _, err := ts.PredictIntervals(x, []float64{0.1}, false, false)
	assert.ErrorIs(t, err, ErrNotFitted)
}
