package risk

import (
	"testing"
	"time"

	"pattern-trading-bot/config"
)

func tradingConfig() config.TradingConfig {
	cfg := config.Default().TradingConfig
	cfg.DCALevels = []float64{-5, -10}
	cfg.DCAMultiplier = 2.0
	return cfg
}

func TestLadderFromAvgCost(t *testing.T) {
	levels := Ladder(100, tradingConfig())

	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if levels[0].TriggerPrice != 95 || levels[1].TriggerPrice != 90 {
		t.Errorf("trigger prices = %f, %f, want 95, 90", levels[0].TriggerPrice, levels[1].TriggerPrice)
	}
	if levels[0].SizeMultiplier != 1 || levels[1].SizeMultiplier != 2 {
		t.Errorf("multipliers = %f, %f, want 1, 2", levels[0].SizeMultiplier, levels[1].SizeMultiplier)
	}
}

func TestNextLevelAtPrice94(t *testing.T) {
	levels := Ladder(100, tradingConfig())

	level, ok := NextLevel(levels, 0, 94)
	if !ok {
		t.Fatal("price 94 must trigger level 0 (trigger 95)")
	}
	if level.LevelIndex != 0 {
		t.Errorf("levelIndex = %d, want 0; level 1 (trigger 90) is not reached", level.LevelIndex)
	}
}

func TestNextLevelSkipsConsumed(t *testing.T) {
	levels := Ladder(100, tradingConfig())

	// Level 0 already consumed; price hasn't reached level 1 yet.
	if _, ok := NextLevel(levels, 1, 94); ok {
		t.Error("no level should trigger between consumed level 0 and untriggered level 1")
	}

	level, ok := NextLevel(levels, 1, 89)
	if !ok || level.LevelIndex != 1 {
		t.Errorf("price 89 must trigger level 1, got ok=%v level=%+v", ok, level)
	}
}

func TestNextLevelAllConsumed(t *testing.T) {
	levels := Ladder(100, tradingConfig())
	if _, ok := NextLevel(levels, 2, 50); ok {
		t.Error("a fully consumed ladder must never trigger")
	}
}

func TestNextLevelPriceAboveAllTriggers(t *testing.T) {
	levels := Ladder(100, tradingConfig())
	if _, ok := NextLevel(levels, 0, 99); ok {
		t.Error("price above every trigger must not DCA")
	}
}

func TestDCATracker24hCap(t *testing.T) {
	tracker := NewDCATracker(2)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	if !tracker.Allowed("BTCUSDT") {
		t.Fatal("fresh symbol must be allowed")
	}
	tracker.Record("BTCUSDT")
	tracker.Record("BTCUSDT")

	if tracker.Allowed("BTCUSDT") {
		t.Error("two buys in the window must exhaust a cap of 2")
	}
	if tracker.Count("BTCUSDT") != 2 {
		t.Errorf("count = %d, want 2", tracker.Count("BTCUSDT"))
	}

	// 23 hours later the oldest buy is still inside the window.
	now = now.Add(23 * time.Hour)
	if tracker.Allowed("BTCUSDT") {
		t.Error("cap must hold while both buys are inside 24h")
	}

	// 25 hours after the first buy both have aged out.
	now = now.Add(2 * time.Hour)
	if !tracker.Allowed("BTCUSDT") {
		t.Error("aged-out buys must free the cap")
	}
	if tracker.Count("BTCUSDT") != 0 {
		t.Errorf("count after aging = %d, want 0", tracker.Count("BTCUSDT"))
	}
}

func TestDCATrackerPerSymbol(t *testing.T) {
	tracker := NewDCATracker(1)
	tracker.Record("BTCUSDT")

	if tracker.Allowed("BTCUSDT") {
		t.Error("BTCUSDT should be capped")
	}
	if !tracker.Allowed("ETHUSDT") {
		t.Error("ETHUSDT must not share BTCUSDT's history")
	}
}

func TestDCATrackerClear(t *testing.T) {
	tracker := NewDCATracker(1)
	tracker.Record("BTCUSDT")
	tracker.Clear("BTCUSDT")

	if !tracker.Allowed("BTCUSDT") {
		t.Error("cleared symbol must start fresh")
	}
}
