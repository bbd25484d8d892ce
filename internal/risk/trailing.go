package risk

import (
	"sync"

	"pattern-trading-bot/config"
	"pattern-trading-bot/internal/exchange"
)

// trailingState is the per-symbol peak tracker. The peak is monotone
// non-decreasing while the position is open, and the armed flag latches
// until the position closes.
type trailingState struct {
	peak  float64
	armed bool
}

// TrailingDecision is the outcome of one trailing-stop evaluation.
type TrailingDecision struct {
	Symbol    string
	Peak      float64
	StopPrice float64 // meaningful only when armed
	Armed     bool
	Triggered bool
}

// TrailingStopTracker arms a trailing stop once a position's profit clears
// its starting threshold and triggers a full exit when the price falls back
// to the stop. State is in-memory only; a restart re-arms from scratch.
type TrailingStopTracker struct {
	cfg config.TradingConfig

	mu     sync.Mutex
	states map[string]*trailingState
}

func NewTrailingStopTracker(cfg config.TradingConfig) *TrailingStopTracker {
	return &TrailingStopTracker{
		cfg:    cfg,
		states: make(map[string]*trailingState),
	}
}

// Update folds the position's current price into the tracker and reports
// whether the stop fired. DCA'd positions arm at a smaller profit margin
// because their average cost already came down.
func (t *TrailingStopTracker) Update(pos exchange.Position) TrailingDecision {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[pos.Symbol]
	if !ok {
		state = &trailingState{peak: pos.CurrentPrice}
		t.states[pos.Symbol] = state
	}
	if pos.CurrentPrice > state.peak {
		state.peak = pos.CurrentPrice
	}

	if !state.armed {
		threshold := t.cfg.PMStartPctNoDCA
		if pos.DCACount > 0 {
			threshold = t.cfg.PMStartPctWithDCA
		}
		if pos.UnrealizedPnlPct >= threshold {
			state.armed = true
		}
	}

	decision := TrailingDecision{
		Symbol: pos.Symbol,
		Peak:   state.peak,
		Armed:  state.armed,
	}
	if state.armed {
		decision.StopPrice = state.peak * (1 - t.cfg.TrailingGapPct/100)
		decision.Triggered = pos.CurrentPrice <= decision.StopPrice
	}
	return decision
}

// Clear removes the symbol's tracker, called when its position closes.
func (t *TrailingStopTracker) Clear(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, symbol)
}
