// Package config defines all configuration for the backtester.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// fields overridable via HLBT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// maxRangeDays caps a run's date range.
const maxRangeDays = 366

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Coin    string        `mapstructure:"coin"`
	From    string        `mapstructure:"from"` // YYYYMMDD, inclusive
	To      string        `mapstructure:"to"`   // YYYYMMDD, exclusive
	Data    DataConfig    `mapstructure:"data"`
	API     APIConfig     `mapstructure:"api"`
	Sim     SimConfig     `mapstructure:"sim"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DataConfig locates the historical event files.
type DataConfig struct {
	EventsRoot    string `mapstructure:"events_root"`
	IOConcurrency int    `mapstructure:"io_concurrency"`
}

// APIConfig holds the Hyperliquid info endpoint for funding history.
type APIConfig struct {
	InfoBaseURL string `mapstructure:"info_base_url"`
}

// SimConfig tunes the playback engine.
//
//   - InitialCapital: starting cash.
//   - MakerFeeBps: maker fee in basis points; negative means a rebate.
//   - TakerFeeBps: taker fee in basis points.
//   - SlippageBps: taker fill price worsening in basis points.
//   - TradeCooldownMin: minimum minutes between entries (exits are exempt).
//   - IndicatorsParallel: update indicators concurrently, one goroutine
//     each; only pays off for large indicator sets, so it is off by default.
//   - CloseAtEnd: flatten any open position at the last mid.
//   - FundingDegraded: on funding-fetch failure, run with a zero-rate
//     schedule instead of aborting.
type SimConfig struct {
	InitialCapital     float64 `mapstructure:"initial_capital"`
	MakerFeeBps        float64 `mapstructure:"maker_fee_bps"`
	TakerFeeBps        float64 `mapstructure:"taker_fee_bps"`
	SlippageBps        float64 `mapstructure:"slippage_bps"`
	TradeCooldownMin   int     `mapstructure:"trade_cooldown_min"`
	IndicatorsParallel bool    `mapstructure:"indicators_parallel"`
	CloseAtEnd         bool    `mapstructure:"close_at_end"`
	FundingDegraded    bool    `mapstructure:"funding_degraded"`
}

// StoreConfig sets where results are persisted.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
	OutDir string `mapstructure:"out_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with HLBT_* env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("HLBT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data.io_concurrency", 8)
	v.SetDefault("api.info_base_url", "https://api.hyperliquid.xyz")
	v.SetDefault("sim.initial_capital", 10000)
	v.SetDefault("sim.taker_fee_bps", 4.5)
	v.SetDefault("sim.maker_fee_bps", 1.5)
	v.SetDefault("sim.trade_cooldown_min", 15)
	v.SetDefault("sim.close_at_end", true)
	v.SetDefault("store.db_path", "results/results.db")
	v.SetDefault("store.out_dir", "results")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if err := types.ValidateCoin(c.Coin); err != nil {
		return err
	}
	from, err := ParseDate(c.From)
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}
	to, err := ParseDate(c.To)
	if err != nil {
		return fmt.Errorf("to: %w", err)
	}
	if !to.After(from) {
		return fmt.Errorf("to %s must be after from %s", c.To, c.From)
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return fmt.Errorf("date range %s..%s exceeds one year", c.From, c.To)
	}
	if c.Data.EventsRoot == "" {
		return fmt.Errorf("data.events_root is required")
	}
	if c.Data.IOConcurrency < 0 {
		return fmt.Errorf("data.io_concurrency must be >= 0")
	}
	if c.Sim.InitialCapital <= 0 {
		return fmt.Errorf("sim.initial_capital must be > 0")
	}
	if c.Sim.TakerFeeBps < 0 {
		return fmt.Errorf("sim.taker_fee_bps must be >= 0")
	}
	if c.Sim.SlippageBps < 0 {
		return fmt.Errorf("sim.slippage_bps must be >= 0")
	}
	if c.Sim.TradeCooldownMin < 0 {
		return fmt.Errorf("sim.trade_cooldown_min must be >= 0")
	}
	return nil
}

// ParseDate parses an 8-digit YYYYMMDD date in UTC.
func ParseDate(s string) (time.Time, error) {
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("date %q must be 8 digits (YYYYMMDD)", s)
	}
	t, err := time.ParseInLocation("20060102", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	return t, nil
}

// Range returns the run's [start, end) window as millisecond timestamps.
// Validate must have passed.
func (c *Config) Range() (startMs, endMs uint64) {
	from, _ := ParseDate(c.From)
	to, _ := ParseDate(c.To)
	return uint64(from.UnixMilli()), uint64(to.UnixMilli()) - 1
}

// Cooldown returns the entry cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Sim.TradeCooldownMin) * time.Minute
}
