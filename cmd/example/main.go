package main

import (
	"fmt"
	"log"
	"time"

	"conformal/pkg/client"
	"conformal/pkg/protocol"
)

func main() {
	fmt.Println("Connecting to prediction server...")
	cli, err := client.Dial("localhost:9090")
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer cli.Close()

	// Features for the spot-price model at hour 0: hour, day-of-week
	// one-hot, 24h and 168h price lags, consumption forecast.
	features := make([]float64, 56)
	features[1+2] = 1 // dow_2
	for i := 0; i < 24; i++ {
		features[8+i] = 42.0  // lag_24_*
		features[32+i] = 40.0 // lag_168_*
	}
	features[55] = 55000 // conso

	fmt.Println("Requesting 90% interval...")
	start := time.Now()
	resp, err := cli.Predict(&protocol.PredictRequest{
		Features: features,
		Alphas:   []float64{0.1},
		Ensemble: true,
	})
	if err != nil {
		log.Fatalf("Predict failed: %v", err)
	}
	fmt.Printf("Point %.2f, interval [%.2f, %.2f] (in %v)\n",
		resp.Point, resp.Lower[0], resp.Upper[0], time.Since(start))

	realized := resp.Point + 1.8
	fmt.Printf("Feeding back realized value %.2f...\n", realized)
	if err := cli.Adapt(&protocol.AdaptRequest{
		Features: features,
		Realized: realized,
		Gamma:    0.04,
	}); err != nil {
		log.Fatalf("Adapt failed: %v", err)
	}

	stats, err := cli.Stats()
	if err != nil {
		log.Fatalf("Stats failed: %v", err)
	}
	fmt.Printf("Server stats: %d predicts, %d adapts, %d hits, %d misses\n",
		stats.Predicts, stats.Adapts, stats.Hits, stats.Misses)
}
