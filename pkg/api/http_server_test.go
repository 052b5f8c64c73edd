package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"conformal/pkg/common"
	"conformal/pkg/monitor"
	"conformal/pkg/regression"
	"conformal/pkg/split"
)

func fittedServer(t *testing.T) *Server {
	t.Helper()

	n := 60
	x := make(common.Matrix, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := float64(i) / 10
		x[i] = []float64{v}
		y[i] = 3 + 2*v
		if i%2 == 0 {
			y[i] += 0.5
		} else {
			y[i] -= 0.5
		}
	}

	reg := regression.NewTimeSeries(regression.Options{
		Method: regression.MethodBase,
		Agg:    regression.AggMean,
		CV:     split.KFold{K: 4, Shuffle: true, Seed: 1},
	})
	if err := reg.Fit(x, y, nil); err != nil {
		t.Fatalf("fit: %v", err)
	}
	return NewServer(reg, monitor.NewPredictionStats(), 0.1, 0.04)
}

func TestHandlePredictReturnsIntervals(t *testing.T) {
	s := fittedServer(t)

	body := `{"features":[2.0],"alphas":[0.05,0.1]}`
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.handlePredict(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Point     float64 `json:"point"`
		Intervals []struct {
			Alpha float64 `json:"alpha"`
			Lower float64 `json:"lower"`
			Upper float64 `json:"upper"`
		} `json:"intervals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(resp.Intervals))
	}
	for _, iv := range resp.Intervals {
		if iv.Lower > resp.Point || iv.Upper < resp.Point {
			t.Fatalf("point %v outside [%v, %v] at alpha %v", resp.Point, iv.Lower, iv.Upper, iv.Alpha)
		}
	}
}

func TestHandlePredictRejectsGet(t *testing.T) {
	s := fittedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/predict", nil)
	rec := httptest.NewRecorder()
	s.handlePredict(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleAdaptUpdatesStats(t *testing.T) {
	s := fittedServer(t)

	// Register the target level first, as a client would.
	predBody := `{"features":[2.0]}`
	predReq := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(predBody))
	s.handlePredict(httptest.NewRecorder(), predReq)

	body := `{"features":[2.0],"realized":7.2}`
	req := httptest.NewRequest(http.MethodPost, "/api/adapt", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleAdapt(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Covered        bool    `json:"covered"`
		EffectiveAlpha float64 `json:"effective_alpha"`
		WindowLen      int     `json:"window_len"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EffectiveAlpha <= 0 || resp.EffectiveAlpha >= 1 {
		t.Fatalf("effective alpha out of range: %v", resp.EffectiveAlpha)
	}

	_, adapts, hits, misses := s.stats.Snapshot()
	if adapts != 1 {
		t.Fatalf("expected 1 adapt recorded, got %d", adapts)
	}
	if hits+misses != 1 {
		t.Fatalf("expected 1 outcome recorded, got hits=%d misses=%d", hits, misses)
	}
}

func TestHandleStatsReportsCounters(t *testing.T) {
	s := fittedServer(t)
	s.stats.RecordPredict()
	s.stats.RecordOutcome(true)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.handleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Predicts          uint64  `json:"predicts"`
		Hits              uint64  `json:"hits"`
		EmpiricalCoverage float64 `json:"empirical_coverage"`
		WindowLen         int     `json:"window_len"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Predicts != 1 || resp.Hits != 1 {
		t.Fatalf("unexpected counters: %+v", resp)
	}
	if resp.EmpiricalCoverage != 1.0 {
		t.Fatalf("expected coverage 1.0, got %v", resp.EmpiricalCoverage)
	}
	if resp.WindowLen == 0 {
		t.Fatal("expected a seeded calibration window")
	}
}

func TestHandleMetricsExposesPrometheusFormat(t *testing.T) {
	s := fittedServer(t)
	s.stats.RecordPredict()
	s.stats.RecordOutcome(false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	want := []string{
		"conformal_predicts_total",
		"conformal_adapts_total",
		"conformal_hits_total",
		"conformal_misses_total",
		"conformal_empirical_coverage",
		"conformal_effective_alpha",
		"conformal_window_scores",
	}
	for _, m := range want {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metrics output to contain %q, body=%s", m, body)
		}
	}
}
