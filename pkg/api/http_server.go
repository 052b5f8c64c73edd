package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"conformal/pkg/common"
	"conformal/pkg/monitor"
	"conformal/pkg/regression"
)

// Server exposes the fitted time-series regressor over HTTP for
// dashboards and ad-hoc tooling. The binary protocol remains the
// high-throughput path.
type Server struct {
	reg   *regression.TimeSeriesRegressor
	stats *monitor.PredictionStats
	alpha float64
	gamma float64
}

func NewServer(reg *regression.TimeSeriesRegressor, stats *monitor.PredictionStats, alpha, gamma float64) *Server {
	return &Server{reg: reg, stats: stats, alpha: alpha, gamma: gamma}
}

func (s *Server) Start(port string) {
	http.HandleFunc("/api/predict", s.handlePredict)
	http.HandleFunc("/api/adapt", s.handleAdapt)
	http.HandleFunc("/api/stats", s.handleStats)
	http.HandleFunc("/metrics", s.handleMetrics)

	log.Printf("[API] Server listening on %s ...", port)
	log.Fatal(http.ListenAndServe(port, nil))
}

type intervalJSON struct {
	Alpha float64 `json:"alpha"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Features     []float64 `json:"features"`
		Alphas       []float64 `json:"alphas"`
		Ensemble     bool      `json:"ensemble"`
		OptimizeBeta bool      `json:"optimize_beta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}
	if len(req.Alphas) == 0 {
		req.Alphas = []float64{s.alpha}
	}

	x := common.Matrix{req.Features}
	point, iv, err := s.reg.PredictIntervals(x, req.Alphas, req.Ensemble, req.OptimizeBeta)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.stats.RecordPredict()

	intervals := make([]intervalJSON, len(req.Alphas))
	for k, a := range req.Alphas {
		lo, hi := iv.Bounds(0, k)
		intervals[k] = intervalJSON{Alpha: a, Lower: lo, Upper: hi}
	}

	resp := map[string]interface{}{
		"point":     point[0],
		"intervals": intervals,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleAdapt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Features []float64 `json:"features"`
		Realized float64   `json:"realized"`
		Gamma    *float64  `json:"gamma"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}
	gamma := s.gamma
	if req.Gamma != nil {
		gamma = *req.Gamma
	}

	x := common.Matrix{req.Features}
	y := []float64{req.Realized}

	// Coverage is judged against the interval in force before the
	// realized value touches the window or the level.
	_, iv, err := s.reg.PredictIntervals(x, []float64{s.alpha}, true, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lo, hi := iv.Bounds(0, 0)
	covered := req.Realized >= lo && req.Realized <= hi
	s.stats.RecordOutcome(covered)

	if err := s.reg.AdaptConformalInference(x, y, gamma); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.reg.PartialFit(x, y); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.stats.RecordAdapt()

	eff, _ := s.reg.EffectiveAlpha(s.alpha)
	resp := map[string]interface{}{
		"covered":         covered,
		"effective_alpha": eff,
		"window_len":      s.reg.WindowLen(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")

	predicts, adapts, hits, misses := s.stats.Snapshot()
	eff, registered := s.reg.EffectiveAlpha(s.alpha)

	resp := map[string]interface{}{
		"predicts":           predicts,
		"adapts":             adapts,
		"hits":               hits,
		"misses":             misses,
		"empirical_coverage": s.stats.EmpiricalCoverage(),
		"target_alpha":       s.alpha,
		"effective_alpha":    eff,
		"alpha_registered":   registered,
		"window_len":         s.reg.WindowLen(),
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	predicts, adapts, hits, misses := s.stats.Snapshot()
	eff, _ := s.reg.EffectiveAlpha(s.alpha)

	fmt.Fprintf(w, "# HELP conformal_predicts_total Interval predictions served.\n")
	fmt.Fprintf(w, "# TYPE conformal_predicts_total counter\n")
	fmt.Fprintf(w, "conformal_predicts_total %d\n", predicts)
	fmt.Fprintf(w, "# HELP conformal_adapts_total Adaptation steps applied.\n")
	fmt.Fprintf(w, "# TYPE conformal_adapts_total counter\n")
	fmt.Fprintf(w, "conformal_adapts_total %d\n", adapts)
	fmt.Fprintf(w, "# HELP conformal_hits_total Realized values inside their interval.\n")
	fmt.Fprintf(w, "# TYPE conformal_hits_total counter\n")
	fmt.Fprintf(w, "conformal_hits_total %d\n", hits)
	fmt.Fprintf(w, "# HELP conformal_misses_total Realized values outside their interval.\n")
	fmt.Fprintf(w, "# TYPE conformal_misses_total counter\n")
	fmt.Fprintf(w, "conformal_misses_total %d\n", misses)
	fmt.Fprintf(w, "# HELP conformal_empirical_coverage Observed coverage fraction.\n")
	fmt.Fprintf(w, "# TYPE conformal_empirical_coverage gauge\n")
	fmt.Fprintf(w, "conformal_empirical_coverage %g\n", s.stats.EmpiricalCoverage())
	fmt.Fprintf(w, "# HELP conformal_effective_alpha Adapted miscoverage level in force.\n")
	fmt.Fprintf(w, "# TYPE conformal_effective_alpha gauge\n")
	fmt.Fprintf(w, "conformal_effective_alpha %g\n", eff)
	fmt.Fprintf(w, "# HELP conformal_window_scores Residuals in the calibration window.\n")
	fmt.Fprintf(w, "# TYPE conformal_window_scores gauge\n")
	fmt.Fprintf(w, "conformal_window_scores %d\n", s.reg.WindowLen())
}
