package risk

import (
	"testing"

	"pattern-trading-bot/config"
	"pattern-trading-bot/internal/exchange"
)

func trailingTradingConfig() config.TradingConfig {
	cfg := config.Default().TradingConfig
	cfg.PMStartPctNoDCA = 5.0
	cfg.PMStartPctWithDCA = 2.5
	cfg.TrailingGapPct = 1.0
	return cfg
}

func positionAt(symbol string, price, pnlPct float64, dcaCount int) exchange.Position {
	return exchange.Position{
		Symbol:           symbol,
		CurrentPrice:     price,
		UnrealizedPnlPct: pnlPct,
		DCACount:         dcaCount,
	}
}

func TestTrailingArmsAndTriggers(t *testing.T) {
	tracker := NewTrailingStopTracker(trailingTradingConfig())

	// Price at 106, 6% profit: arms with peak 106, stop 104.94.
	d := tracker.Update(positionAt("BTCUSDT", 106, 6, 0))
	if !d.Armed {
		t.Fatal("6% profit must arm at a 5% threshold")
	}
	if d.Triggered {
		t.Error("price at the peak must not trigger")
	}
	if diff := d.StopPrice - 104.94; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("stopPrice = %f, want 104.94", d.StopPrice)
	}

	// Drop to 105: above the stop, no exit.
	d = tracker.Update(positionAt("BTCUSDT", 105, 5, 0))
	if d.Triggered {
		t.Error("105 is above the 104.94 stop")
	}
	if d.Peak != 106 {
		t.Errorf("peak = %f, must stay at 106", d.Peak)
	}

	// Drop to 104: at or below the stop, exit.
	d = tracker.Update(positionAt("BTCUSDT", 104, 4, 0))
	if !d.Triggered {
		t.Error("104 is below the 104.94 stop, exit must trigger")
	}
}

func TestTrailingArmedLatches(t *testing.T) {
	tracker := NewTrailingStopTracker(trailingTradingConfig())

	tracker.Update(positionAt("BTCUSDT", 106, 6, 0))

	// Profit falls back under the arming threshold; armed must latch.
	d := tracker.Update(positionAt("BTCUSDT", 104.5, 4.5, 0))
	if !d.Armed {
		t.Error("armed state must latch once reached")
	}
	if !d.Triggered {
		t.Error("104.5 is below the 104.94 stop")
	}
}

func TestTrailingNotArmedBelowThreshold(t *testing.T) {
	tracker := NewTrailingStopTracker(trailingTradingConfig())

	d := tracker.Update(positionAt("BTCUSDT", 104, 4, 0))
	if d.Armed {
		t.Error("4% profit must not arm at a 5% threshold")
	}
	if d.Triggered {
		t.Error("unarmed tracker must never trigger")
	}

	// Price collapse without arming still never triggers.
	d = tracker.Update(positionAt("BTCUSDT", 90, -10, 0))
	if d.Triggered {
		t.Error("trailing stop is not a hard stop loss")
	}
}

func TestTrailingDCAThreshold(t *testing.T) {
	tracker := NewTrailingStopTracker(trailingTradingConfig())

	// 3% profit with a DCA'd position arms at the 2.5% threshold.
	d := tracker.Update(positionAt("BTCUSDT", 103, 3, 1))
	if !d.Armed {
		t.Error("DCA'd position must arm at the lower threshold")
	}

	tracker2 := NewTrailingStopTracker(trailingTradingConfig())
	d = tracker2.Update(positionAt("BTCUSDT", 103, 3, 0))
	if d.Armed {
		t.Error("3% profit without DCA must not arm at 5%")
	}
}

func TestTrailingPeakMonotone(t *testing.T) {
	tracker := NewTrailingStopTracker(trailingTradingConfig())

	tracker.Update(positionAt("BTCUSDT", 106, 6, 0))
	tracker.Update(positionAt("BTCUSDT", 105, 5, 0))
	d := tracker.Update(positionAt("BTCUSDT", 108, 8, 0))
	if d.Peak != 108 {
		t.Errorf("peak = %f, want 108", d.Peak)
	}

	d = tracker.Update(positionAt("BTCUSDT", 107.5, 7.5, 0))
	if d.Peak != 108 {
		t.Errorf("peak must never decrease, got %f", d.Peak)
	}
	// Stop follows the higher peak.
	want := 108 * 0.99
	if diff := d.StopPrice - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("stopPrice = %f, want %f", d.StopPrice, want)
	}
}

func TestTrailingClearResets(t *testing.T) {
	tracker := NewTrailingStopTracker(trailingTradingConfig())

	tracker.Update(positionAt("BTCUSDT", 110, 10, 0))
	tracker.Clear("BTCUSDT")

	// A fresh position after the clear starts unarmed with a new peak.
	d := tracker.Update(positionAt("BTCUSDT", 100, 0, 0))
	if d.Armed {
		t.Error("cleared symbol must start unarmed")
	}
	if d.Peak != 100 {
		t.Errorf("peak = %f, want 100 for a fresh position", d.Peak)
	}
}

func TestTrailingPerSymbolIsolation(t *testing.T) {
	tracker := NewTrailingStopTracker(trailingTradingConfig())

	tracker.Update(positionAt("BTCUSDT", 110, 10, 0))
	d := tracker.Update(positionAt("ETHUSDT", 50, 1, 0))
	if d.Armed {
		t.Error("ETHUSDT must not inherit BTCUSDT's armed state")
	}
	if d.Peak != 50 {
		t.Errorf("ETHUSDT peak = %f, want 50", d.Peak)
	}
}
