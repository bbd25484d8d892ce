package risk

import (
	"testing"

	"pattern-trading-bot/config"
)

func sizingConfigs() (config.TradingConfig, config.RiskConfig) {
	trading := config.Default().TradingConfig
	trading.StartAllocationPct = 0.5
	riskCfg := config.Default().RiskConfig
	riskCfg.MaxPositionSizePct = 10
	riskCfg.UseKellyCriterion = false
	return trading, riskCfg
}

func TestEntryNotionalBaseAllocation(t *testing.T) {
	trading, riskCfg := sizingConfigs()

	// 0.5% of 10000 = 50.
	if got := EntryNotional(10000, trading, riskCfg); got != 50 {
		t.Errorf("notional = %f, want 50", got)
	}
}

func TestEntryNotionalKellyScaling(t *testing.T) {
	trading, riskCfg := sizingConfigs()
	riskCfg.UseKellyCriterion = true
	riskCfg.KellyFraction = 0.25

	if got := EntryNotional(10000, trading, riskCfg); got != 12.5 {
		t.Errorf("notional = %f, want 12.5 with kelly 0.25", got)
	}
}

func TestEntryNotionalCapped(t *testing.T) {
	trading, riskCfg := sizingConfigs()
	trading.StartAllocationPct = 50 // would be half the account
	riskCfg.MaxPositionSizePct = 10

	if got := EntryNotional(10000, trading, riskCfg); got != 1000 {
		t.Errorf("notional = %f, want capped at 1000", got)
	}
}

func TestEntryNotionalFloor(t *testing.T) {
	trading, riskCfg := sizingConfigs()

	// 0.5% of 100 = 0.5, under the 1.0 floor.
	if got := EntryNotional(100, trading, riskCfg); got != 1 {
		t.Errorf("notional = %f, want floored at 1", got)
	}
}

func TestDCANotionalMultiplier(t *testing.T) {
	trading, riskCfg := sizingConfigs()
	level := DCALevel{LevelIndex: 2, SizeMultiplier: 4}

	// Base 50 * multiplier 4 = 200.
	if got := DCANotional(10000, level, trading, riskCfg); got != 200 {
		t.Errorf("notional = %f, want 200", got)
	}
}

func TestDCANotionalCapped(t *testing.T) {
	trading, riskCfg := sizingConfigs()
	trading.StartAllocationPct = 5
	level := DCALevel{LevelIndex: 4, SizeMultiplier: 16}

	// Base 500 * 16 = 8000, capped at 10% = 1000.
	if got := DCANotional(10000, level, trading, riskCfg); got != 1000 {
		t.Errorf("notional = %f, want capped at 1000", got)
	}
}
