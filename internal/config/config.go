// Package config loads the engine configuration from YAML with defaults
// applied for anything left unset.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	Backtest BacktestConfig `yaml:"backtest"`
	Data     DataConfig     `yaml:"data"`
	Output   OutputConfig   `yaml:"output"`
}

// BacktestConfig controls the simulation engine.
type BacktestConfig struct {
	Cash               float64 `yaml:"cash"`
	MinHistory         int     `yaml:"min_history"`
	MaxWorkers         int     `yaml:"max_workers"`
	TradingDaysPerYear int     `yaml:"trading_days_per_year"`
}

// DataConfig controls the price data source.
type DataConfig struct {
	Dir            string  `yaml:"dir"`             // CSV directory, one file per symbol
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`  // 0 disables rate limiting
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	CircuitBreaker bool    `yaml:"circuit_breaker"`
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backtest: BacktestConfig{
			Cash:               1_000_000,
			MinHistory:         30,
			TradingDaysPerYear: 252,
		},
		Data: DataConfig{
			Dir:            "data",
			RateLimitBurst: 1,
		},
		Output: OutputConfig{
			Dir: "out",
		},
	}
}

// Load reads a YAML configuration file, filling defaults for missing
// fields.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Backtest.Cash <= 0 {
		return fmt.Errorf("backtest.cash must be positive, got %v", c.Backtest.Cash)
	}
	if c.Backtest.MinHistory < 0 {
		return fmt.Errorf("backtest.min_history cannot be negative, got %d", c.Backtest.MinHistory)
	}
	if c.Backtest.MaxWorkers < 0 {
		return fmt.Errorf("backtest.max_workers cannot be negative, got %d", c.Backtest.MaxWorkers)
	}
	if c.Data.RateLimitRPS < 0 {
		return fmt.Errorf("data.rate_limit_rps cannot be negative, got %v", c.Data.RateLimitRPS)
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir cannot be empty")
	}
	return nil
}
