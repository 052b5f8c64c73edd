package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Model  ModelConfig  `yaml:"model"`
	Adapt  AdaptConfig  `yaml:"adapt"`
	Data   DataConfig   `yaml:"data"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`     // HTTP Listen Address (e.g. :8080)
	TCPAddr string `yaml:"tcp_addr"` // TCP Listen Address (e.g. :9090)
}

type ModelConfig struct {
	Method  string    `yaml:"method"`   // naive | base | plus | minmax
	Agg     string    `yaml:"agg"`      // mean | median | "" (none)
	CVFolds int       `yaml:"cv_folds"` // -1 = leave-one-out, k >= 2 = k-fold
	Seed    int64     `yaml:"seed"`
	Alphas  []float64 `yaml:"alphas"`
	Workers int       `yaml:"workers"`
}

type AdaptConfig struct {
	Gamma        float64 `yaml:"gamma"`
	OptimizeBeta bool    `yaml:"optimize_beta"`
}

type DataConfig struct {
	Path        string `yaml:"path"`         // training CSV
	Hour        int    `yaml:"hour"`         // hour-of-day filter for the spot-price series
	TrainBefore string `yaml:"train_before"` // date boundary (YYYY-MM-DD) between train and test
	ResultsDB   string `yaml:"results_db"`   // sqlite file for run results
}

func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:    ":8080",
			TCPAddr: ":9090",
		},
		Model: ModelConfig{
			Method:  "plus",
			Agg:     "mean",
			CVFolds: 5,
			Seed:    1,
			Alphas:  []float64{0.1},
			Workers: 1,
		},
		Adapt: AdaptConfig{
			Gamma: 0.04,
		},
		Data: DataConfig{
			Hour:        0,
			TrainBefore: "2019-01-01",
			ResultsDB:   "conformal_runs.db",
		},
	}

	if configPath == "" {
		for _, p := range []string{"configs/conformal.yaml", "conformal.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, err
				}
				applyDefaults(cfg)
				return cfg, nil
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Model.Method == "" {
		cfg.Model.Method = "plus"
	}
	if cfg.Model.CVFolds == 0 {
		cfg.Model.CVFolds = 5
	}
	if len(cfg.Model.Alphas) == 0 {
		cfg.Model.Alphas = []float64{0.1}
	}
	if cfg.Model.Workers <= 0 {
		cfg.Model.Workers = 1
	}
	if cfg.Adapt.Gamma <= 0 {
		cfg.Adapt.Gamma = 0.04
	}
	if cfg.Data.ResultsDB == "" {
		cfg.Data.ResultsDB = "conformal_runs.db"
	}
}
