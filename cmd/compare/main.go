package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"time"

	"conformal/pkg/common"
	"conformal/pkg/config"
	"conformal/pkg/dataset"
	"conformal/pkg/metrics"
	"conformal/pkg/regression"
	"conformal/pkg/split"
	"conformal/pkg/store"
)

// Rolling one-step-ahead evaluation of adaptive conformal inference on a
// dated series: fit on the history, then for each test step feed back the
// previous observation, step the level, and predict a width-optimized
// interval for the next point.
func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	runID := flag.String("run", "", "run identifier for stored results (default: timestamped)")
	maxSteps := flag.Int("steps", 0, "cap on evaluation steps (0 = full test set)")
	refPath := flag.String("ref", "", "reference bounds CSV (step,lower,upper) to compare against")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[Compare] Config error: %v", err)
	}
	if cfg.Data.Path == "" {
		log.Fatal("[Compare] data.path is required")
	}

	ds, err := dataset.LoadSpotPrices(cfg.Data.Path)
	if err != nil {
		log.Fatalf("[Compare] Load dataset: %v", err)
	}
	ds, err = ds.FilterHour(cfg.Data.Hour)
	if err != nil {
		log.Fatalf("[Compare] Filter hour: %v", err)
	}

	cutoff, err := time.Parse("2006-01-02", cfg.Data.TrainBefore)
	if err != nil {
		log.Fatalf("[Compare] Parse train_before: %v", err)
	}
	train, test := ds.SplitByDate(cutoff)

	// Fit on the most recent half of the history so the calibration
	// window reflects current conditions.
	train = trainTail(train)
	log.Printf("[Compare] %d training rows, %d test rows at hour %d",
		train.Len(), test.Len(), cfg.Data.Hour)

	reg := regression.NewTimeSeries(regression.Options{
		Method:  cfg.Model.Method,
		Agg:     cfg.Model.Agg,
		CV:      split.KFold{K: cfg.Model.CVFolds, Shuffle: true, Seed: cfg.Model.Seed},
		Workers: cfg.Model.Workers,
	})
	if err := reg.Fit(train.X, train.Y, nil); err != nil {
		log.Fatalf("[Compare] Fit: %v", err)
	}

	alpha := cfg.Model.Alphas[0]
	gamma := cfg.Adapt.Gamma
	alphas := []float64{alpha}

	steps := test.Len()
	if *maxSteps > 0 && *maxSteps < steps {
		steps = *maxSteps
	}

	id := *runID
	if id == "" {
		id = fmt.Sprintf("aci_%s_h%d_%s", cfg.Model.Method, cfg.Data.Hour,
			time.Now().Format("20060102T150405"))
	}
	id = store.SanitizeRunID(id)

	results := make([]store.StepResult, 0, steps)
	lower := make([]float64, steps)
	upper := make([]float64, steps)
	realized := make([]float64, steps)

	for step := 0; step < steps; step++ {
		if step > 0 {
			prevX := common.Matrix{test.X[step-1]}
			prevY := []float64{test.Y[step-1]}
			if err := reg.AdaptConformalInference(prevX, prevY, gamma); err != nil {
				log.Fatalf("[Compare] Adapt at step %d: %v", step, err)
			}
			if err := reg.PartialFit(prevX, prevY); err != nil {
				log.Fatalf("[Compare] PartialFit at step %d: %v", step, err)
			}
		}

		x := common.Matrix{test.X[step]}
		optimize := cfg.Adapt.OptimizeBeta && step > 0
		point, iv, err := reg.PredictIntervals(x, alphas, true, optimize)
		if err != nil {
			log.Fatalf("[Compare] Predict at step %d: %v", step, err)
		}
		lo, hi := iv.Bounds(0, 0)
		eff, _ := reg.EffectiveAlpha(alpha)

		lower[step], upper[step], realized[step] = lo, hi, test.Y[step]
		results = append(results, store.StepResult{
			RunID:          id,
			Step:           step,
			Point:          point[0],
			Lower:          lo,
			Upper:          hi,
			Realized:       test.Y[step],
			EffectiveAlpha: eff,
		})

		if step%50 == 0 {
			log.Printf("[Compare] Step %d/%d: point=%.2f [%.2f, %.2f] eff_alpha=%.4f",
				step, steps, point[0], lo, hi, eff)
		}
	}

	db, err := store.Open(cfg.Data.ResultsDB)
	if err != nil {
		log.Fatalf("[Compare] Open results db: %v", err)
	}
	defer db.Close()
	if err := db.BatchWriteSteps(results); err != nil {
		log.Fatalf("[Compare] Store results: %v", err)
	}

	coverage := metrics.CoverageScore(realized, lower, upper)
	width := metrics.MeanWidthScore(lower, upper)
	fmt.Printf("Run %s: %d steps, target coverage %.2f\n", id, steps, 1-alpha)
	fmt.Printf("  empirical coverage: %.4f\n", coverage)
	fmt.Printf("  mean width:         %.4f\n", width)

	if *refPath != "" {
		compareReference(*refPath, lower, upper)
	}
}

// trainTail keeps the second half of the training rows.
func trainTail(ds *dataset.Dataset) *dataset.Dataset {
	half := ds.Len() / 2
	return &dataset.Dataset{
		Dates:    ds.Dates[half:],
		X:        ds.X[half:],
		Y:        ds.Y[half:],
		Features: ds.Features,
	}
}

// compareReference prints the mean absolute gap to published bounds.
func compareReference(path string, lower, upper []float64) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("[Compare] Open reference: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if _, err := r.Read(); err != nil {
		log.Fatalf("[Compare] Reference header: %v", err)
	}

	var sumLo, sumHi float64
	n := 0
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		step, err := strconv.Atoi(rec[0])
		if err != nil || step >= len(lower) {
			continue
		}
		refLo, err1 := strconv.ParseFloat(rec[1], 64)
		refHi, err2 := strconv.ParseFloat(rec[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		sumLo += math.Abs(lower[step] - refLo)
		sumHi += math.Abs(upper[step] - refHi)
		n++
	}
	if n == 0 {
		log.Println("[Compare] No comparable reference rows")
		return
	}
	fmt.Printf("  reference gap:      lower %.4f, upper %.4f over %d steps\n",
		sumLo/float64(n), sumHi/float64(n), n)
}
