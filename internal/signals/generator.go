package signals

import (
	"context"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pattern-trading-bot/config"
	"pattern-trading-bot/internal/events"
	"pattern-trading-bot/internal/marketdata"
	"pattern-trading-bot/internal/neural"
)

const (
	maxNeighbors   = 10 // nearest neighbors feeding a prediction
	confidenceBase = 50 // match count at which confidence saturates
)

// Generator turns live candles into per-coin directional signals by
// matching the current pattern against the trained memories.
type Generator struct {
	cfg    *config.Config
	market marketdata.MarketData
	store  SignalStore
	bus    *events.EventBus
	logger zerolog.Logger

	mu       sync.Mutex
	memories map[string]map[string]*neural.PatternMemory // coin -> timeframe -> memory

	now func() time.Time
}

func NewGenerator(cfg *config.Config, market marketdata.MarketData, store SignalStore, bus *events.EventBus, logger zerolog.Logger) *Generator {
	g := &Generator{
		cfg:      cfg,
		market:   market,
		store:    store,
		bus:      bus,
		logger:   logger.With().Str("component", "signals").Logger(),
		memories: make(map[string]map[string]*neural.PatternMemory),
		now:      time.Now,
	}
	g.ReloadMemories()
	return g
}

// ReloadMemories re-reads every (coin, timeframe) checkpoint from disk.
// Called at startup and after a training run completes. A missing or broken
// checkpoint leaves that pair without predictions.
func (g *Generator) ReloadMemories() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, coin := range g.cfg.TradingConfig.Coins {
		if _, ok := g.memories[coin]; !ok {
			g.memories[coin] = make(map[string]*neural.PatternMemory)
		}
		for _, timeframe := range g.cfg.TradingConfig.Timeframes {
			mem := neural.NewPatternMemory(g.cfg.ModelConfig.PatternMemorySize)
			path := g.cfg.ModelPath(coin, timeframe)
			if err := mem.Load(path); err != nil {
				g.logger.Warn().Err(err).Str("coin", coin).Str("timeframe", timeframe).
					Msg("checkpoint load failed, pair disabled")
				delete(g.memories[coin], timeframe)
				continue
			}
			if mem.Len() == 0 {
				delete(g.memories[coin], timeframe)
				continue
			}
			g.memories[coin][timeframe] = mem
			g.logger.Debug().Str("coin", coin).Str("timeframe", timeframe).
				Int("patterns", mem.Len()).Msg("memory loaded")
		}
	}
}

func (g *Generator) memory(coin, timeframe string) (*neural.PatternMemory, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	byTimeframe, ok := g.memories[coin]
	if !ok {
		return nil, false
	}
	mem, ok := byTimeframe[timeframe]
	return mem, ok
}

// trainingFresh reports whether the coin's last completed training run is
// within the staleness threshold. A missing or unreadable marker counts as
// stale. Trading on a model trained in an old market regime is worse than
// not trading.
func (g *Generator) trainingFresh(coin string) bool {
	data, err := os.ReadFile(g.cfg.TrainingMarkerPath(coin))
	if err != nil {
		return false
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		g.logger.Warn().Str("coin", coin).Msg("malformed training marker, treating as stale")
		return false
	}
	age := g.now().Sub(time.Unix(ts, 0))
	return age <= time.Duration(g.cfg.ModelConfig.TrainingStaleDays)*24*time.Hour
}

// GenerateSignal aggregates per-timeframe predictions for one coin. A stale
// or untrained model yields (nil, nil): skip, not an error.
func (g *Generator) GenerateSignal(ctx context.Context, coin string) (*NeuralSignal, error) {
	if !g.trainingFresh(coin) {
		g.logger.Debug().Str("coin", coin).Msg("model stale or untrained, skipping")
		return nil, nil
	}

	symbol := coin + "USDT"
	lookback := g.cfg.ModelConfig.LookbackCandles
	predictions := make(map[string]Prediction)

	var fetchErr error
	fetched := 0

	for _, timeframe := range g.cfg.TradingConfig.Timeframes {
		mem, ok := g.memory(coin, timeframe)
		if !ok {
			continue
		}

		candles, err := g.market.GetCandles(ctx, symbol, timeframe, lookback+1)
		if err != nil {
			// One timeframe's outage only costs its vote.
			fetchErr = err
			g.logger.Warn().Err(err).Str("coin", coin).Str("timeframe", timeframe).
				Msg("candle fetch failed, timeframe skipped")
			continue
		}
		fetched++

		pred, ok := g.predict(mem, symbol, timeframe, candles)
		if !ok {
			continue
		}
		predictions[timeframe] = pred
	}

	// A symbol-wide outage is still an error.
	if fetched == 0 && fetchErr != nil {
		return nil, fetchErr
	}

	signal := aggregate(coin, symbol, predictions, g.cfg.TradingConfig.TradeStartLevel, g.now())
	return &signal, nil
}

// predict matches the current live pattern against one timeframe's memory.
func (g *Generator) predict(mem *neural.PatternMemory, symbol, timeframe string, candles []marketdata.Candle) (Prediction, bool) {
	lookback := g.cfg.ModelConfig.LookbackCandles

	closeChanges, _, _, ok := neural.ExtractChanges(candles, lookback)
	if !ok {
		return Prediction{}, false
	}
	currentPrice := candles[0].Close
	if currentPrice <= 0 {
		return Prediction{}, false
	}

	matches := mem.FindSimilar(closeChanges, g.cfg.ModelConfig.DistanceTolerancePct)
	if len(matches) == 0 {
		return Prediction{}, false
	}

	top := matches
	if len(top) > maxNeighbors {
		top = top[:maxNeighbors]
	}

	var closeSum, highSum, lowSum, weightSum float64
	for _, match := range top {
		p := match.Pattern
		if len(p.CloseChanges) == 0 {
			continue
		}
		w := p.Weight * (1.0 / (1.0 + match.Distance)) * (1.0 + p.SuccessRate())
		closeSum += p.CloseChanges[0] * w
		if len(p.HighChanges) > 0 {
			highSum += p.HighChanges[0] * w
		}
		if len(p.LowChanges) > 0 {
			lowSum += p.LowChanges[0] * w
		}
		weightSum += w
	}
	if weightSum == 0 {
		return Prediction{}, false
	}

	closePct := closeSum / weightSum
	highPct := highSum / weightSum
	lowPct := lowSum / weightSum

	return Prediction{
		Symbol:              symbol,
		Timeframe:           timeframe,
		Timestamp:           g.now(),
		PredictedClose:      currentPrice * (1 + closePct/100),
		PredictedHigh:       currentPrice * (1 + highPct/100),
		PredictedLow:        currentPrice * (1 + lowPct/100),
		PredictedClosePct:   closePct,
		Confidence:          math.Min(1.0, float64(len(matches))/confidenceBase),
		MatchedPatternCount: len(matches),
		SignalStrength:      strengthBucket(math.Abs(closePct)),
	}, true
}

// aggregate folds per-timeframe predictions into one directional signal.
// Each prediction votes its strength into the bullish or bearish total, and
// both totals are normalized back onto the 0-7 scale.
func aggregate(coin, symbol string, predictions map[string]Prediction, tradeStartLevel int, now time.Time) NeuralSignal {
	signal := NeuralSignal{
		Coin:        coin,
		Symbol:      symbol,
		Timestamp:   now,
		Predictions: predictions,
		SignalType:  SignalNeutral,
	}
	if len(predictions) == 0 {
		return signal
	}

	var longTotal, shortTotal int
	var confidenceSum float64
	for _, pred := range predictions {
		if pred.Bullish() {
			longTotal += pred.SignalStrength
		} else {
			shortTotal += pred.SignalStrength
		}
		confidenceSum += pred.Confidence
	}

	n := float64(len(predictions))
	signal.LongStrength = normalizeStrength(longTotal, len(predictions))
	signal.ShortStrength = normalizeStrength(shortTotal, len(predictions))
	signal.Confidence = confidenceSum / n

	switch {
	case signal.LongStrength > signal.ShortStrength && signal.LongStrength >= tradeStartLevel:
		signal.SignalType = SignalLong
	case signal.ShortStrength > signal.LongStrength && signal.ShortStrength >= tradeStartLevel:
		signal.SignalType = SignalShort
	}
	return signal
}

func normalizeStrength(total, numPredictions int) int {
	normalized := math.Round(float64(total) / (float64(numPredictions) * 7) * 7)
	return int(math.Min(7, normalized))
}

// Run generates and publishes signals for every configured coin on a fixed
// interval until the context is cancelled. Per-coin failures are logged and
// do not affect the other coins.
func (g *Generator) Run(ctx context.Context) {
	interval := time.Duration(g.cfg.EngineConfig.SignalIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.logger.Info().Dur("interval", interval).Msg("signal loop started")
	g.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			g.logger.Info().Msg("signal loop stopped")
			return
		case <-ticker.C:
			g.Tick(ctx)
		}
	}
}

// Tick runs one generation pass over all configured coins.
func (g *Generator) Tick(ctx context.Context) {
	for _, coin := range g.cfg.TradingConfig.Coins {
		if ctx.Err() != nil {
			return
		}

		signal, err := g.GenerateSignal(ctx, coin)
		if err != nil {
			g.logger.Warn().Err(err).Str("coin", coin).Msg("signal generation failed")
			continue
		}
		if signal == nil {
			continue
		}

		if err := g.store.Put(ctx, *signal); err != nil {
			g.logger.Warn().Err(err).Str("coin", coin).Msg("signal publish failed")
		}
		if g.bus != nil {
			g.bus.PublishSignal(signal.Symbol, string(signal.SignalType),
				signal.LongStrength, signal.ShortStrength, signal.Confidence)
		}

		g.logger.Debug().Str("coin", coin).
			Int("long", signal.LongStrength).
			Int("short", signal.ShortStrength).
			Str("type", string(signal.SignalType)).
			Msg("signal generated")
	}
}
