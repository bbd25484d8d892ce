package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	TradingConfig    TradingConfig    `json:"trading"`
	ModelConfig      ModelConfig      `json:"model"`
	RiskConfig       RiskConfig       `json:"risk"`
	MarketDataConfig MarketDataConfig `json:"market_data"`
	EngineConfig     EngineConfig     `json:"engine"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	LoggingConfig    LoggingConfig    `json:"logging"`

	// DataDir is the root for checkpoints, training markers and signal files.
	DataDir string `json:"data_dir"`
}

// TradingConfig holds the strategy parameters shared by the signal
// generator and the decision engine.
type TradingConfig struct {
	Coins              []string  `json:"coins"`                // e.g. ["BTC", "ETH"]
	Timeframes         []string  `json:"timeframes"`           // e.g. ["1h", "4h", "1d"]
	TradeStartLevel    int       `json:"trade_start_level"`    // minimum signal strength (1-7) to open
	StartAllocationPct float64   `json:"start_allocation_pct"` // % of account per entry
	DCAMultiplier      float64   `json:"dca_multiplier"`       // size multiplier per DCA level
	DCALevels          []float64 `json:"dca_levels"`           // negative % drops from avg cost
	MaxDCABuysPer24h   int       `json:"max_dca_buys_per_24h"`
	PMStartPctNoDCA    float64   `json:"pm_start_pct_no_dca"`   // profit % arming trailing, no DCA
	PMStartPctWithDCA  float64   `json:"pm_start_pct_with_dca"` // profit % arming trailing, after DCA
	TrailingGapPct     float64   `json:"trailing_gap_pct"`      // stop distance below peak
}

// ModelConfig holds pattern memory and training parameters.
type ModelConfig struct {
	LookbackCandles      int     `json:"lookback_candles"`
	PatternMemorySize    int     `json:"pattern_memory_size"`
	LearningRate         float64 `json:"learning_rate"`
	DistanceTolerancePct float64 `json:"distance_tolerance_pct"`
	TrainingStaleDays    int     `json:"training_stale_days"`
	TrainingCandles      int     `json:"training_candles"` // candles per training run
}

type RiskConfig struct {
	MaxPositionSizePct float64 `json:"max_position_size_pct"` // cap per position, % of account
	UseKellyCriterion  bool    `json:"use_kelly_criterion"`
	KellyFraction      float64 `json:"kelly_fraction"`
}

type MarketDataConfig struct {
	BaseURL        string `json:"base_url"`
	CandleCacheTTL int    `json:"candle_cache_ttl"` // seconds
	UseStream      bool   `json:"use_stream"`       // keep cache warm via websocket
	StreamURL      string `json:"stream_url"`
}

// EngineConfig holds the loop timings.
type EngineConfig struct {
	SignalIntervalSec   int `json:"signal_interval_sec"`   // signal generator tick
	DecisionIntervalSec int `json:"decision_interval_sec"` // decision engine tick
	ErrorBackoffSec     int `json:"error_backoff_sec"`     // delay after a failed tick
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or console
	Output string `json:"output"` // stdout, stderr, or file path
}

// Load reads configuration from the given JSON file and applies
// environment variable overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with all defaults applied.
func Default() *Config {
	return &Config{
		DataDir: "data",
		TradingConfig: TradingConfig{
			Coins:              []string{"BTC", "ETH", "XRP", "BNB", "DOGE"},
			Timeframes:         []string{"1h", "4h", "1d"},
			TradeStartLevel:    3,
			StartAllocationPct: 0.5,
			DCAMultiplier:      2.0,
			DCALevels:          []float64{-2.5, -5.0, -10.0, -20.0, -30.0},
			MaxDCABuysPer24h:   2,
			PMStartPctNoDCA:    5.0,
			PMStartPctWithDCA:  2.5,
			TrailingGapPct:     0.5,
		},
		ModelConfig: ModelConfig{
			LookbackCandles:      100,
			PatternMemorySize:    10000,
			LearningRate:         0.25,
			DistanceTolerancePct: 0.25,
			TrainingStaleDays:    14,
			TrainingCandles:      500,
		},
		RiskConfig: RiskConfig{
			MaxPositionSizePct: 10.0,
			UseKellyCriterion:  true,
			KellyFraction:      0.25,
		},
		MarketDataConfig: MarketDataConfig{
			BaseURL:        "https://api.binance.com",
			CandleCacheTTL: 60,
			UseStream:      false,
			StreamURL:      "wss://stream.binance.com:9443/ws",
		},
		EngineConfig: EngineConfig{
			SignalIntervalSec:   30,
			DecisionIntervalSec: 15,
			ErrorBackoffSec:     60,
		},
		DatabaseConfig: DatabaseConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5432,
			User:     "trader",
			Database: "trader",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		LoggingConfig: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PT_COINS"); v != "" {
		coins := strings.Split(v, ",")
		for i := range coins {
			coins[i] = strings.ToUpper(strings.TrimSpace(coins[i]))
		}
		cfg.TradingConfig.Coins = coins
	}
	if v := os.Getenv("PT_TRADE_START_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TradingConfig.TradeStartLevel = n
		}
	}
	if v := os.Getenv("PT_DB_PASSWORD"); v != "" {
		cfg.DatabaseConfig.Password = v
	}
	if v := os.Getenv("PT_REDIS_ADDR"); v != "" {
		cfg.RedisConfig.Addr = v
		cfg.RedisConfig.Enabled = true
	}
	if v := os.Getenv("PT_LOG_LEVEL"); v != "" {
		cfg.LoggingConfig.Level = v
	}
}

// Validate checks parameter ranges that would otherwise fail silently
// deep inside the pipeline.
func (c *Config) Validate() error {
	if len(c.TradingConfig.Coins) == 0 {
		return fmt.Errorf("config: at least one coin required")
	}
	if len(c.TradingConfig.Timeframes) == 0 {
		return fmt.Errorf("config: at least one timeframe required")
	}
	if c.TradingConfig.TradeStartLevel < 1 || c.TradingConfig.TradeStartLevel > 7 {
		return fmt.Errorf("config: trade_start_level must be 1-7, got %d", c.TradingConfig.TradeStartLevel)
	}
	for i, lvl := range c.TradingConfig.DCALevels {
		if lvl >= 0 {
			return fmt.Errorf("config: dca_levels[%d] must be negative, got %.2f", i, lvl)
		}
		if i > 0 && lvl >= c.TradingConfig.DCALevels[i-1] {
			return fmt.Errorf("config: dca_levels must be strictly decreasing")
		}
	}
	if c.ModelConfig.LookbackCandles < 2 {
		return fmt.Errorf("config: lookback_candles must be >= 2")
	}
	if c.ModelConfig.PatternMemorySize < 1 {
		return fmt.Errorf("config: pattern_memory_size must be >= 1")
	}
	if c.RiskConfig.MaxPositionSizePct <= 0 || c.RiskConfig.MaxPositionSizePct > 100 {
		return fmt.Errorf("config: max_position_size_pct must be in (0, 100]")
	}
	return nil
}

// CoinDir returns the per-coin data directory.
func (c *Config) CoinDir(coin string) string {
	return filepath.Join(c.DataDir, strings.ToUpper(coin))
}

// ModelPath returns the checkpoint file for a (coin, timeframe) pair.
func (c *Config) ModelPath(coin, timeframe string) string {
	return filepath.Join(c.CoinDir(coin), fmt.Sprintf("model_%s.bin", timeframe))
}

// TrainingMarkerPath returns the per-coin training completion marker file.
func (c *Config) TrainingMarkerPath(coin string) string {
	return filepath.Join(c.CoinDir(coin), "last_training_time.txt")
}
