package neural

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pattern-trading-bot/config"
	"pattern-trading-bot/internal/events"
	"pattern-trading-bot/internal/marketdata"
)

const (
	checkpointEvery   = 100 // candles between checkpoint saves
	predictNeighbors  = 10  // neighbors feeding the prediction
	feedbackNeighbors = 5   // neighbors whose weights get feedback
)

// TrainingState tracks progress and statistics of one (coin, timeframe)
// training run.
type TrainingState struct {
	Coin             string     `json:"coin"`
	Timeframe        string     `json:"timeframe"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CandlesProcessed int        `json:"candles_processed"`
	PatternsLearned  int        `json:"patterns_learned"`
	PatternsUpdated  int        `json:"patterns_updated"`
	SuccessRate      float64    `json:"success_rate"`
	IsTraining       bool       `json:"is_training"`
	LastCheckpoint   *time.Time `json:"last_checkpoint,omitempty"`
}

// RunRecorder persists completed training runs. Optional.
type RunRecorder interface {
	RecordTrainingRun(ctx context.Context, state TrainingState) error
}

// Trainer walks historical candle windows, learns patterns into per
// (coin, timeframe) memories and tunes pattern weights against realized
// outcomes.
type Trainer struct {
	cfg    *config.Config
	market marketdata.MarketData
	bus    *events.EventBus
	repo   RunRecorder
	logger zerolog.Logger

	mu       sync.Mutex
	memories map[string]map[string]*PatternMemory // coin -> timeframe -> memory
	states   map[string]map[string]*TrainingState
}

func NewTrainer(cfg *config.Config, market marketdata.MarketData, bus *events.EventBus, repo RunRecorder, logger zerolog.Logger) *Trainer {
	return &Trainer{
		cfg:      cfg,
		market:   market,
		bus:      bus,
		repo:     repo,
		logger:   logger.With().Str("component", "trainer").Logger(),
		memories: make(map[string]map[string]*PatternMemory),
		states:   make(map[string]map[string]*TrainingState),
	}
}

// memory returns the pattern memory for a (coin, timeframe) pair, loading
// its checkpoint on first use.
func (t *Trainer) memory(coin, timeframe string) *PatternMemory {
	t.mu.Lock()
	defer t.mu.Unlock()

	byTimeframe, ok := t.memories[coin]
	if !ok {
		byTimeframe = make(map[string]*PatternMemory)
		t.memories[coin] = byTimeframe
	}

	mem, ok := byTimeframe[timeframe]
	if !ok {
		mem = NewPatternMemory(t.cfg.ModelConfig.PatternMemorySize)
		path := t.cfg.ModelPath(coin, timeframe)
		if err := mem.Load(path); err != nil {
			t.logger.Warn().Err(err).Str("coin", coin).Str("timeframe", timeframe).
				Msg("checkpoint load failed, starting empty")
		} else if mem.Len() > 0 {
			t.logger.Info().Str("coin", coin).Str("timeframe", timeframe).
				Int("patterns", mem.Len()).Msg("checkpoint loaded")
		}
		byTimeframe[timeframe] = mem
	}
	return mem
}

func (t *Trainer) setState(coin, timeframe string, state *TrainingState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[coin]; !ok {
		t.states[coin] = make(map[string]*TrainingState)
	}
	t.states[coin][timeframe] = state
}

// States returns a read-only snapshot of all training states.
func (t *Trainer) States() map[string]map[string]TrainingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]map[string]TrainingState, len(t.states))
	for coin, byTimeframe := range t.states {
		out[coin] = make(map[string]TrainingState, len(byTimeframe))
		for tf, state := range byTimeframe {
			out[coin][tf] = *state
		}
	}
	return out
}

// TrainTimeframe trains one (coin, timeframe) pair over candleCount
// historical windows. Cancellation is checked between iterations and never
// loses already-checkpointed patterns.
func (t *Trainer) TrainTimeframe(ctx context.Context, coin, timeframe string, candleCount int) (*TrainingState, error) {
	state := &TrainingState{
		Coin:       coin,
		Timeframe:  timeframe,
		StartedAt:  time.Now(),
		IsTraining: true,
	}
	t.setState(coin, timeframe, state)

	mem := t.memory(coin, timeframe)
	lookback := t.cfg.ModelConfig.LookbackCandles
	tolerance := t.cfg.ModelConfig.DistanceTolerancePct
	learningRate := t.cfg.ModelConfig.LearningRate
	modelPath := t.cfg.ModelPath(coin, timeframe)
	symbol := coin + "USDT"

	if t.bus != nil {
		t.bus.PublishTraining(events.EventTrainingStarted, coin, timeframe, 0)
	}
	t.logger.Info().Str("coin", coin).Str("timeframe", timeframe).
		Int("candles", candleCount).Msg("training started")

	candles, err := t.market.GetCandles(ctx, symbol, timeframe, candleCount+lookback+100)
	if err != nil {
		state.IsTraining = false
		return state, err
	}
	if len(candles) < lookback+2 {
		state.IsTraining = false
		return state, fmt.Errorf("training %s %s: only %d candles available, need %d",
			coin, timeframe, len(candles), lookback+2)
	}

	goodUpdates, totalUpdates := 0, 0
	interrupted := false

	for i := 0; i < candleCount; i++ {
		if ctx.Err() != nil {
			t.logger.Info().Str("coin", coin).Str("timeframe", timeframe).
				Int("processed", state.CandlesProcessed).Msg("training interrupted")
			interrupted = true
			break
		}

		if i+lookback+2 > len(candles) {
			break
		}
		window := window{candles: candles[i : i+lookback+2]}

		// The pattern covers the window minus its single oldest candle;
		// window[0] is the realized future of window[1].
		closeChanges, highChanges, lowChanges, ok := ExtractChanges(window.pattern(), lookback)
		if !ok {
			continue
		}

		future, current := window.future(), window.current()
		actualChange := (future.Close - current.Close) / current.Close * 100

		similar := mem.FindSimilar(closeChanges, tolerance)
		if len(similar) > 0 {
			predicted := weightedPrediction(similar, predictNeighbors)

			top := similar
			if len(top) > feedbackNeighbors {
				top = top[:feedbackNeighbors]
			}
			for _, match := range top {
				if updateWeights(match.Pattern, actualChange, predicted, learningRate) {
					goodUpdates++
				}
				totalUpdates++
				state.PatternsUpdated++
			}
			// Feedback mutates stored patterns in place; it is not a new
			// sighting and must not touch hit counts or access order.
			mem.MarkDirty()
		}

		mem.Add(NewPattern(timeframe, closeChanges, highChanges, lowChanges))
		state.PatternsLearned++
		state.CandlesProcessed++

		if state.CandlesProcessed%checkpointEvery == 0 {
			if err := mem.Save(modelPath); err != nil {
				t.logger.Error().Err(err).Msg("checkpoint save failed")
			} else {
				now := time.Now()
				state.LastCheckpoint = &now
				t.logger.Info().Str("coin", coin).Str("timeframe", timeframe).
					Int("processed", state.CandlesProcessed).
					Int("patterns", mem.Len()).Msg("checkpoint")
			}
		}
	}

	if err := mem.Save(modelPath); err != nil {
		state.IsTraining = false
		return state, err
	}

	state.IsTraining = false
	if totalUpdates > 0 {
		state.SuccessRate = float64(goodUpdates) / float64(totalUpdates)
	}

	if interrupted {
		return state, ctx.Err()
	}

	now := time.Now()
	state.CompletedAt = &now

	// The freshness marker gates live signal generation; it is only
	// written when a run completes.
	if err := t.writeTrainingMarker(coin); err != nil {
		t.logger.Error().Err(err).Str("coin", coin).Msg("training marker write failed")
	}

	if t.repo != nil {
		if err := t.repo.RecordTrainingRun(ctx, *state); err != nil {
			t.logger.Warn().Err(err).Msg("training run not recorded")
		}
	}
	if t.bus != nil {
		t.bus.PublishTraining(events.EventTrainingCompleted, coin, timeframe, state.PatternsLearned)
	}

	t.logger.Info().Str("coin", coin).Str("timeframe", timeframe).
		Int("processed", state.CandlesProcessed).
		Int("patterns", mem.Len()).
		Float64("success_rate", state.SuccessRate).
		Dur("took", time.Since(state.StartedAt)).
		Msg("training completed")

	return state, nil
}

// TrainCoin trains all configured timeframes for a coin sequentially. A
// failed timeframe is logged and does not abort the remaining ones.
func (t *Trainer) TrainCoin(ctx context.Context, coin string) map[string]*TrainingState {
	states := make(map[string]*TrainingState)

	for _, timeframe := range t.cfg.TradingConfig.Timeframes {
		if ctx.Err() != nil {
			break
		}
		state, err := t.TrainTimeframe(ctx, coin, timeframe, t.cfg.ModelConfig.TrainingCandles)
		states[timeframe] = state
		if err != nil && ctx.Err() == nil {
			t.logger.Error().Err(err).Str("coin", coin).Str("timeframe", timeframe).
				Msg("training run failed")
		}
	}
	return states
}

// TrainAll trains all configured coins sequentially.
func (t *Trainer) TrainAll(ctx context.Context) map[string]map[string]*TrainingState {
	all := make(map[string]map[string]*TrainingState)
	for _, coin := range t.cfg.TradingConfig.Coins {
		if ctx.Err() != nil {
			break
		}
		all[coin] = t.TrainCoin(ctx, coin)
	}
	return all
}

func (t *Trainer) writeTrainingMarker(coin string) error {
	path := t.cfg.TrainingMarkerPath(coin)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data := []byte(strconv.FormatInt(time.Now().Unix(), 10))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// window is one training step's view of the candle history, newest-first.
type window struct {
	candles []marketdata.Candle
}

// pattern is the window minus its single oldest candle.
func (w window) pattern() []marketdata.Candle { return w.candles[:len(w.candles)-1] }

// future is the candle whose move the window's pattern "predicts".
func (w window) future() marketdata.Candle { return w.candles[0] }

// current is the newest candle the prediction is made from.
func (w window) current() marketdata.Candle { return w.candles[1] }

// weightedPrediction averages the next-step close change of the nearest
// neighbors, weighted by pattern weight decayed with distance.
func weightedPrediction(matches []Match, cap int) float64 {
	if len(matches) > cap {
		matches = matches[:cap]
	}

	var weightedSum, weightSum float64
	for _, match := range matches {
		if len(match.Pattern.CloseChanges) == 0 {
			continue
		}
		w := match.Pattern.Weight * (1.0 / (1.0 + match.Distance))
		weightedSum += match.Pattern.CloseChanges[0] * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}

// updateWeights applies the three-bucket reinforcement rule. This is a
// deliberate heuristic, not gradient descent: error under 10% strengthens
// the pattern, over 25% weakens it, in between leaves it alone. Reports
// whether the prediction landed in the good bucket.
func updateWeights(p *Pattern, actualChange, predictedChange, learningRate float64) bool {
	var errorPct float64
	if actualChange != 0 {
		errorPct = math.Abs((actualChange - predictedChange) / actualChange * 100)
	}

	switch {
	case errorPct < 10:
		p.Weight = math.Min(2.0, p.Weight+learningRate)
		p.SuccessCount++
		return true
	case errorPct > 25:
		p.Weight = math.Max(-2.0, p.Weight-learningRate)
	}
	return false
}
