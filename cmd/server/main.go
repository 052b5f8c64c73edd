package main

import (
	"flag"
	"log"
	"time"

	"conformal/pkg/api"
	"conformal/pkg/config"
	"conformal/pkg/dataset"
	"conformal/pkg/monitor"
	"conformal/pkg/network"
	"conformal/pkg/regression"
	"conformal/pkg/split"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[Server] Config error: %v", err)
	}
	if cfg.Data.Path == "" {
		log.Fatal("[Server] data.path is required: a training CSV with Date and Spot columns")
	}

	ds, err := dataset.LoadSpotPrices(cfg.Data.Path)
	if err != nil {
		log.Fatalf("[Server] Load dataset: %v", err)
	}
	ds, err = ds.FilterHour(cfg.Data.Hour)
	if err != nil {
		log.Fatalf("[Server] Filter hour: %v", err)
	}

	cutoff, err := time.Parse("2006-01-02", cfg.Data.TrainBefore)
	if err != nil {
		log.Fatalf("[Server] Parse train_before: %v", err)
	}
	train, test := ds.SplitByDate(cutoff)
	log.Printf("[Server] Loaded %d rows at hour %d (%d train, %d test)",
		ds.Len(), cfg.Data.Hour, train.Len(), test.Len())

	var cv split.Strategy
	if cfg.Model.CVFolds == -1 {
		cv = split.LeaveOneOut{}
	} else {
		cv = split.KFold{K: cfg.Model.CVFolds, Shuffle: true, Seed: cfg.Model.Seed}
	}

	reg := regression.NewTimeSeries(regression.Options{
		Method:  cfg.Model.Method,
		Agg:     cfg.Model.Agg,
		CV:      cv,
		Workers: cfg.Model.Workers,
	})

	start := time.Now()
	if err := reg.Fit(train.X, train.Y, nil); err != nil {
		log.Fatalf("[Server] Fit: %v", err)
	}
	log.Printf("[Server] Fitted in %v (window of %d residuals)", time.Since(start), reg.WindowLen())

	stats := monitor.NewPredictionStats()
	alpha := cfg.Model.Alphas[0]

	tcp := network.NewTCPServer(reg, stats, alpha)
	go func() {
		if err := tcp.Start(cfg.Server.TCPAddr); err != nil {
			log.Fatalf("[Server] TCP: %v", err)
		}
	}()

	httpSrv := api.NewServer(reg, stats, alpha, cfg.Adapt.Gamma)
	httpSrv.Start(cfg.Server.Addr)
}
