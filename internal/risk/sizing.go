package risk

import (
	"pattern-trading-bot/config"
)

// minNotional is the smallest order the engine will place, in quote
// currency units.
const minNotional = 1.0

// EntryNotional sizes a fresh entry: a base allocation of the account,
// optionally scaled by the Kelly fraction, capped at the per-position
// limit, floored at the exchange minimum.
func EntryNotional(accountValue float64, trading config.TradingConfig, riskCfg config.RiskConfig) float64 {
	notional := accountValue * trading.StartAllocationPct / 100
	if riskCfg.UseKellyCriterion {
		notional *= riskCfg.KellyFraction
	}

	cap := accountValue * riskCfg.MaxPositionSizePct / 100
	if notional > cap {
		notional = cap
	}
	if notional < minNotional {
		notional = minNotional
	}
	return notional
}

// DCANotional scales the base entry size by the ladder level's multiplier,
// subject to the same cap and floor.
func DCANotional(accountValue float64, level DCALevel, trading config.TradingConfig, riskCfg config.RiskConfig) float64 {
	notional := EntryNotional(accountValue, trading, riskCfg) * level.SizeMultiplier

	cap := accountValue * riskCfg.MaxPositionSizePct / 100
	if notional > cap {
		notional = cap
	}
	if notional < minNotional {
		notional = minNotional
	}
	return notional
}
