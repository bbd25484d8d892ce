package neural

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"pattern-trading-bot/internal/marketdata"
)

// Pattern is a fixed-length sequence of percentage price changes over
// consecutive candles, used as a similarity-search key. Owned exclusively
// by the PatternMemory that stores it.
type Pattern struct {
	Timeframe    string    `msgpack:"timeframe"`
	Hash         string    `msgpack:"hash"`
	CloseChanges []float64 `msgpack:"close_changes"`
	HighChanges  []float64 `msgpack:"high_changes"`
	LowChanges   []float64 `msgpack:"low_changes"`
	Weight       float64   `msgpack:"weight"`
	CreatedAt    time.Time `msgpack:"created_at"`
	LastSeen     time.Time `msgpack:"last_seen"`
	HitCount     int       `msgpack:"hit_count"`
	SuccessCount int       `msgpack:"success_count"`
}

// SuccessRate is the fraction of hits that led to a good prediction.
func (p *Pattern) SuccessRate() float64 {
	return float64(p.SuccessCount) / math.Max(1, float64(p.HitCount))
}

// PatternHash digests the 2-decimal-rounded close-change sequence. Patterns
// that round to the same sequence are the same entity.
func PatternHash(closeChanges []float64) string {
	parts := make([]string, len(closeChanges))
	for i, c := range closeChanges {
		parts[i] = fmt.Sprintf("%.2f", math.Round(c*100)/100)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// ExtractChanges computes the close/high/low percentage-change sequences
// from newest-first candles. It needs lookback+1 candles; changes[0] is the
// most recent step.
func ExtractChanges(candles []marketdata.Candle, lookback int) (closeChanges, highChanges, lowChanges []float64, ok bool) {
	if len(candles) < lookback+1 {
		return nil, nil, nil, false
	}

	closeChanges = make([]float64, 0, lookback)
	highChanges = make([]float64, 0, lookback)
	lowChanges = make([]float64, 0, lookback)

	for i := 0; i < lookback; i++ {
		curr, prev := candles[i], candles[i+1]
		if prev.Close == 0 {
			return nil, nil, nil, false
		}

		closeChanges = append(closeChanges, (curr.Close-prev.Close)/prev.Close*100)
		if prev.High > 0 {
			highChanges = append(highChanges, (curr.High-prev.High)/prev.High*100)
		} else {
			highChanges = append(highChanges, 0)
		}
		if prev.Low > 0 {
			lowChanges = append(lowChanges, (curr.Low-prev.Low)/prev.Low*100)
		} else {
			lowChanges = append(lowChanges, 0)
		}
	}

	return closeChanges, highChanges, lowChanges, true
}

// NewPattern builds a pattern from extracted change sequences.
func NewPattern(timeframe string, closeChanges, highChanges, lowChanges []float64) *Pattern {
	now := time.Now()
	return &Pattern{
		Timeframe:    timeframe,
		Hash:         PatternHash(closeChanges),
		CloseChanges: closeChanges,
		HighChanges:  highChanges,
		LowChanges:   lowChanges,
		Weight:       1.0,
		CreatedAt:    now,
		LastSeen:     now,
	}
}
