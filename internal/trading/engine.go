// Package trading runs the decision loop that turns signals and position
// state into order instructions.
package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pattern-trading-bot/config"
	"pattern-trading-bot/internal/events"
	"pattern-trading-bot/internal/exchange"
	"pattern-trading-bot/internal/risk"
	"pattern-trading-bot/internal/signals"
)

// OrderRecorder persists executed orders. Optional.
type OrderRecorder interface {
	SaveOrder(ctx context.Context, order exchange.Order) error
}

// Engine is the per-tick decision loop. Each symbol is a small state
// machine, flat or open, and gets at most one action per tick: exit checks
// run first, then DCA, and entries only apply to flat symbols.
type Engine struct {
	cfg      *config.Config
	store    signals.SignalStore
	exchange exchange.Exchange
	trailing *risk.TrailingStopTracker
	dca      *risk.DCATracker
	bus      *events.EventBus
	repo     OrderRecorder
	logger   zerolog.Logger
}

func NewEngine(cfg *config.Config, store signals.SignalStore, ex exchange.Exchange, bus *events.EventBus, repo OrderRecorder, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		exchange: ex,
		trailing: risk.NewTrailingStopTracker(cfg.TradingConfig),
		dca:      risk.NewDCATracker(cfg.TradingConfig.MaxDCABuysPer24h),
		bus:      bus,
		repo:     repo,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Run ticks the engine until the context is cancelled. A failed tick backs
// off longer than the regular interval before retrying.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.EngineConfig.DecisionIntervalSec) * time.Second
	backoff := time.Duration(e.cfg.EngineConfig.ErrorBackoffSec) * time.Second

	e.logger.Info().Dur("interval", interval).Msg("decision loop started")

	for {
		wait := interval
		if err := e.Tick(ctx); err != nil {
			e.logger.Error().Err(err).Dur("backoff", backoff).Msg("tick failed")
			wait = backoff
		}

		select {
		case <-ctx.Done():
			e.logger.Info().Msg("decision loop stopped")
			return
		case <-time.After(wait):
		}
	}
}

// Tick evaluates every configured coin once. A coin's failure is logged and
// does not touch the other coins; only failures to read shared account
// state fail the whole tick.
func (e *Engine) Tick(ctx context.Context) error {
	positions, err := e.exchange.GetPositions(ctx)
	if err != nil {
		return err
	}
	account, err := e.exchange.GetAccount(ctx)
	if err != nil {
		return err
	}

	for _, coin := range e.cfg.TradingConfig.Coins {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		symbol := coin + "USDT"
		if err := e.decide(ctx, coin, symbol, positions, account); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("decision failed")
			if e.bus != nil {
				e.bus.Publish(events.Event{
					Type: events.EventError,
					Data: map[string]interface{}{"symbol": symbol, "error": err.Error()},
				})
			}
		}
	}
	return nil
}

func (e *Engine) decide(ctx context.Context, coin, symbol string, positions map[string]exchange.Position, account exchange.Account) error {
	if pos, open := positions[symbol]; open {
		if done, err := e.checkExit(ctx, pos); done || err != nil {
			return err
		}
		return e.checkDCA(ctx, pos, account)
	}
	return e.checkEntry(ctx, coin, symbol, account)
}

// checkExit evaluates the trailing stop. It reports done=true when an exit
// order was placed, consuming the symbol's action for this tick.
func (e *Engine) checkExit(ctx context.Context, pos exchange.Position) (bool, error) {
	decision := e.trailing.Update(pos)
	if !decision.Triggered {
		return false, nil
	}

	order, err := e.exchange.PlaceMarketOrder(ctx, pos.Symbol, exchange.Sell, pos.MarketValue, exchange.TagTrailingStop)
	if err != nil {
		return true, err
	}

	e.trailing.Clear(pos.Symbol)
	e.dca.Clear(pos.Symbol)

	e.logger.Info().Str("symbol", pos.Symbol).
		Float64("peak", decision.Peak).
		Float64("stop", decision.StopPrice).
		Float64("price", pos.CurrentPrice).
		Float64("pnl_pct", pos.UnrealizedPnlPct).
		Msg("trailing stop exit")

	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type: events.EventTrailingStopHit,
			Data: map[string]interface{}{
				"symbol": pos.Symbol,
				"peak":   decision.Peak,
				"stop":   decision.StopPrice,
			},
		})
		e.bus.Publish(events.Event{
			Type: events.EventPositionClosed,
			Data: map[string]interface{}{"symbol": pos.Symbol, "realized_pnl": pos.RealizedPnl},
		})
	}

	e.recordOrder(ctx, order)
	return true, nil
}

func (e *Engine) checkDCA(ctx context.Context, pos exchange.Position, account exchange.Account) error {
	if !e.dca.Allowed(pos.Symbol) {
		return nil
	}

	levels := risk.Ladder(pos.AvgCostBasis, e.cfg.TradingConfig)
	level, ok := risk.NextLevel(levels, pos.DCACount, pos.CurrentPrice)
	if !ok {
		return nil
	}

	notional := risk.DCANotional(account.TotalValue, level, e.cfg.TradingConfig, e.cfg.RiskConfig)
	order, err := e.exchange.PlaceMarketOrder(ctx, pos.Symbol, exchange.Buy, notional, exchange.TagDCA)
	if err != nil {
		return err
	}
	e.dca.Record(pos.Symbol)

	e.logger.Info().Str("symbol", pos.Symbol).
		Int("level", level.LevelIndex).
		Float64("trigger", level.TriggerPrice).
		Float64("notional", notional).
		Msg("dca buy")

	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type: events.EventDCATriggered,
			Data: map[string]interface{}{
				"symbol":   pos.Symbol,
				"level":    level.LevelIndex,
				"notional": notional,
			},
		})
		e.bus.PublishOrder(pos.Symbol, string(exchange.Buy), string(exchange.TagDCA), notional)
	}

	e.recordOrder(ctx, order)
	return nil
}

func (e *Engine) checkEntry(ctx context.Context, coin, symbol string, account exchange.Account) error {
	signal, ok, err := e.store.Latest(ctx, coin)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if signal.LongStrength < e.cfg.TradingConfig.TradeStartLevel || signal.ShortStrength != 0 {
		return nil
	}

	notional := risk.EntryNotional(account.TotalValue, e.cfg.TradingConfig, e.cfg.RiskConfig)
	order, err := e.exchange.PlaceMarketOrder(ctx, symbol, exchange.Buy, notional, exchange.TagEntry)
	if err != nil {
		return err
	}

	e.logger.Info().Str("symbol", symbol).
		Int("long", signal.LongStrength).
		Int("short", signal.ShortStrength).
		Float64("notional", notional).
		Msg("entry")

	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type: events.EventPositionOpened,
			Data: map[string]interface{}{"symbol": symbol, "notional": notional},
		})
		e.bus.PublishOrder(symbol, string(exchange.Buy), string(exchange.TagEntry), notional)
	}

	e.recordOrder(ctx, order)
	return nil
}

func (e *Engine) recordOrder(ctx context.Context, order exchange.Order) {
	if e.repo == nil {
		return
	}
	if err := e.repo.SaveOrder(ctx, order); err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID).Msg("order not recorded")
	}
}
