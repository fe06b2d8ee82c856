// Package config loads the application configuration from YAML and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matrixjoeq/xquant/internal/domain"
)

const dateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the xquant toolchain.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Universe []string `yaml:"universe"`
	Backtest Backtest `yaml:"backtest"`
	Gather   Gather   `yaml:"gather"`
	Sweep    Sweep    `yaml:"sweep"`
}

// Storage selects the bar-store backend and its paths.
type Storage struct {
	Backend    string `yaml:"backend"` // "sqlite", "parquet" or "memory"
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Backtest holds the strategy parameters and the simulation range.
type Backtest struct {
	Variant              string  `yaml:"variant"` // price adjustment: none, forward, backward
	Start                string  `yaml:"start"`
	End                  string  `yaml:"end"`
	LookbackPeriod       int     `yaml:"lookback_period"`
	TopNHoldings         int     `yaml:"top_n_holdings"`
	PositionSize         float64 `yaml:"position_size"`
	RebalanceFreq        string  `yaml:"rebalance_freq"`
	MaxPositionSize      float64 `yaml:"max_position_size"`
	StopLossPct          float64 `yaml:"stop_loss_pct"`
	TrailingStopPct      float64 `yaml:"trailing_stop_pct"`
	MinMomentumThreshold float64 `yaml:"min_momentum_threshold"`
	TransactionCost      float64 `yaml:"transaction_cost"`
	MinCashBuffer        float64 `yaml:"min_cash_buffer"`
	InitialCapital       float64 `yaml:"initial_capital"`
}

// Gather holds parameters for the daily-bar gathering job.
type Gather struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Sweep defines the parameter grid for optimization runs.
type Sweep struct {
	Lookbacks []int `yaml:"lookbacks"`
	TopNs     []int `yaml:"top_ns"`
	Workers   int   `yaml:"workers"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: Storage{Backend: "sqlite", DataDir: "data", SQLitePath: "data/xquant.db"},
		Logging: Logging{Level: "info", Format: "json"},
		Backtest: Backtest{
			Variant:              string(domain.VariantNone),
			LookbackPeriod:       20,
			TopNHoldings:         3,
			PositionSize:         0.95,
			RebalanceFreq:        string(domain.FreqMonthly),
			MaxPositionSize:      0.4,
			StopLossPct:          -0.08,
			TrailingStopPct:      0.12,
			MinMomentumThreshold: 0.02,
			TransactionCost:      0.0006,
			MinCashBuffer:        0.05,
			InitialCapital:       1_000_000,
		},
		Gather: Gather{BatchSize: 200, RateLimitPerMin: 200},
		Sweep:  Sweep{Workers: 4},
	}
}

// Load reads the YAML configuration file at the given path over the defaults
// and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Derivations
// ---------------------------------------------------------------------------

// Params converts the backtest section to validated strategy parameters.
func (b Backtest) Params() (domain.Params, error) {
	p := domain.Params{
		LookbackPeriod:       b.LookbackPeriod,
		TopNHoldings:         b.TopNHoldings,
		PositionSize:         b.PositionSize,
		RebalanceFreq:        domain.Frequency(b.RebalanceFreq),
		MaxPositionSize:      b.MaxPositionSize,
		StopLossPct:          b.StopLossPct,
		TrailingStopPct:      b.TrailingStopPct,
		MinMomentumThreshold: b.MinMomentumThreshold,
		TransactionCost:      b.TransactionCost,
		MinCashBuffer:        b.MinCashBuffer,
		InitialCapital:       b.InitialCapital,
	}
	if err := p.Validate(); err != nil {
		return domain.Params{}, err
	}
	return p, nil
}

// Range parses the configured simulation range.
func (b Backtest) Range() (start, end time.Time, err error) {
	start, err = time.Parse(dateLayout, b.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: backtest start %q", domain.ErrInvalidParameter, b.Start)
	}
	end, err = time.Parse(dateLayout, b.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: backtest end %q", domain.ErrInvalidParameter, b.End)
	}
	return start, end, nil
}

// AdjustVariant parses the configured price-adjustment variant.
func (b Backtest) AdjustVariant() (domain.Variant, error) {
	v := domain.Variant(b.Variant)
	if !v.Valid() {
		return "", fmt.Errorf("%w: adjustment variant %q", domain.ErrInvalidParameter, b.Variant)
	}
	return v, nil
}
