// Package risk holds the position-management rules the decision engine
// consults each tick: DCA laddering, trailing stops, and order sizing.
package risk

import (
	"math"
	"sync"
	"time"

	"pattern-trading-bot/config"
)

// DCALevel is one rung of the averaging-down ladder, derived per tick from
// the position's average cost. Never persisted.
type DCALevel struct {
	LevelIndex     int
	TriggerPct     float64 // negative drop from average cost
	TriggerPrice   float64
	SizeMultiplier float64
}

// Ladder computes the full DCA ladder for a position's average cost basis.
// Levels must be configured strictly decreasing (validated at load).
func Ladder(avgCostBasis float64, cfg config.TradingConfig) []DCALevel {
	levels := make([]DCALevel, len(cfg.DCALevels))
	for i, pct := range cfg.DCALevels {
		levels[i] = DCALevel{
			LevelIndex:     i,
			TriggerPct:     pct,
			TriggerPrice:   avgCostBasis * (1 + pct/100),
			SizeMultiplier: math.Pow(cfg.DCAMultiplier, float64(i)),
		}
	}
	return levels
}

// NextLevel picks the first ladder level the position has not consumed yet
// and whose trigger price the current price has reached. Levels below
// dcaCount were consumed earlier in this ladder pass.
func NextLevel(levels []DCALevel, dcaCount int, currentPrice float64) (DCALevel, bool) {
	for _, level := range levels {
		if level.LevelIndex < dcaCount {
			continue
		}
		if currentPrice <= level.TriggerPrice {
			return level, true
		}
		// Levels are ordered by depth; if this one has not triggered,
		// deeper ones cannot have either.
		break
	}
	return DCALevel{}, false
}

// DCATracker enforces the rolling 24h cap on DCA buys per symbol. The
// history lives in process memory only; a restart forgets it.
type DCATracker struct {
	mu      sync.Mutex
	history map[string][]time.Time
	maxPer  int
	window  time.Duration

	now func() time.Time
}

func NewDCATracker(maxPer24h int) *DCATracker {
	return &DCATracker{
		history: make(map[string][]time.Time),
		maxPer:  maxPer24h,
		window:  24 * time.Hour,
		now:     time.Now,
	}
}

// Allowed reports whether the symbol is under its 24h DCA cap. Pruning
// happens on every check so old buys age out naturally.
func (t *DCATracker) Allowed(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(symbol)
	return len(t.history[symbol]) < t.maxPer
}

// Record appends a DCA buy timestamp for the symbol.
func (t *DCATracker) Record(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(symbol)
	t.history[symbol] = append(t.history[symbol], t.now())
}

// Clear drops the symbol's history, called when its position closes.
func (t *DCATracker) Clear(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, symbol)
}

// Count returns the number of DCA buys inside the current window.
func (t *DCATracker) Count(symbol string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(symbol)
	return len(t.history[symbol])
}

func (t *DCATracker) prune(symbol string) {
	cutoff := t.now().Add(-t.window)
	kept := t.history[symbol][:0]
	for _, ts := range t.history[symbol] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(t.history, symbol)
		return
	}
	t.history[symbol] = kept
}
