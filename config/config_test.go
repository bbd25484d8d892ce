package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.TradingConfig.TradeStartLevel != 3 {
		t.Errorf("expected trade_start_level 3, got %d", cfg.TradingConfig.TradeStartLevel)
	}
	if cfg.ModelConfig.TrainingStaleDays != 14 {
		t.Errorf("expected training_stale_days 14, got %d", cfg.ModelConfig.TrainingStaleDays)
	}
	if cfg.TradingConfig.MaxDCABuysPer24h != 2 {
		t.Errorf("expected max_dca_buys_per_24h 2, got %d", cfg.TradingConfig.MaxDCABuysPer24h)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(cfg.TradingConfig.Coins) == 0 {
		t.Error("expected default coins")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"trading": {"coins": ["SOL"], "timeframes": ["1h"], "trade_start_level": 5,
		"start_allocation_pct": 1.0, "dca_multiplier": 2.0, "dca_levels": [-5, -10],
		"max_dca_buys_per_24h": 1, "pm_start_pct_no_dca": 5, "pm_start_pct_with_dca": 2.5,
		"trailing_gap_pct": 1}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.TradingConfig.Coins) != 1 || cfg.TradingConfig.Coins[0] != "SOL" {
		t.Errorf("expected coins [SOL], got %v", cfg.TradingConfig.Coins)
	}
	if cfg.TradingConfig.TradeStartLevel != 5 {
		t.Errorf("expected trade_start_level 5, got %d", cfg.TradingConfig.TradeStartLevel)
	}
	// Sections absent from the file keep their defaults.
	if cfg.ModelConfig.LookbackCandles != 100 {
		t.Errorf("expected default lookback 100, got %d", cfg.ModelConfig.LookbackCandles)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PT_COINS", "btc, eth")
	t.Setenv("PT_TRADE_START_LEVEL", "4")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.TradingConfig.Coins) != 2 || cfg.TradingConfig.Coins[0] != "BTC" || cfg.TradingConfig.Coins[1] != "ETH" {
		t.Errorf("expected [BTC ETH], got %v", cfg.TradingConfig.Coins)
	}
	if cfg.TradingConfig.TradeStartLevel != 4 {
		t.Errorf("expected trade_start_level 4, got %d", cfg.TradingConfig.TradeStartLevel)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no coins", func(c *Config) { c.TradingConfig.Coins = nil }},
		{"no timeframes", func(c *Config) { c.TradingConfig.Timeframes = nil }},
		{"start level too high", func(c *Config) { c.TradingConfig.TradeStartLevel = 8 }},
		{"positive dca level", func(c *Config) { c.TradingConfig.DCALevels = []float64{5} }},
		{"non-decreasing dca levels", func(c *Config) { c.TradingConfig.DCALevels = []float64{-10, -5} }},
		{"tiny lookback", func(c *Config) { c.ModelConfig.LookbackCandles = 1 }},
		{"zero max position", func(c *Config) { c.RiskConfig.MaxPositionSizePct = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestModelPath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/pt"

	got := cfg.ModelPath("btc", "1h")
	want := filepath.Join("/tmp/pt", "BTC", "model_1h.bin")
	if got != want {
		t.Errorf("ModelPath = %q, want %q", got, want)
	}
}
