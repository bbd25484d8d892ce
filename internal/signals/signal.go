package signals

import (
	"time"
)

// SignalType is the overall direction of an aggregated signal.
type SignalType string

const (
	SignalLong    SignalType = "LONG"
	SignalShort   SignalType = "SHORT"
	SignalNeutral SignalType = "NEUTRAL"
)

// Prediction is one timeframe's view of the next candle. Derived on every
// tick, never persisted.
type Prediction struct {
	Symbol              string    `json:"symbol"`
	Timeframe           string    `json:"timeframe"`
	Timestamp           time.Time `json:"timestamp"`
	PredictedClose      float64   `json:"predicted_close"`
	PredictedHigh       float64   `json:"predicted_high"`
	PredictedLow        float64   `json:"predicted_low"`
	PredictedClosePct   float64   `json:"predicted_close_pct"`
	Confidence          float64   `json:"confidence"`
	MatchedPatternCount int       `json:"matched_pattern_count"`
	SignalStrength      int       `json:"signal_strength"`
}

// Bullish reports whether the prediction expects the close to rise.
func (p Prediction) Bullish() bool { return p.PredictedClosePct > 0 }

// NeuralSignal is the per-coin aggregation of all timeframe predictions.
type NeuralSignal struct {
	Coin          string                `json:"coin"`
	Symbol        string                `json:"symbol"`
	Timestamp     time.Time             `json:"timestamp"`
	LongStrength  int                   `json:"long_strength"`
	ShortStrength int                   `json:"short_strength"`
	Predictions   map[string]Prediction `json:"predictions"`
	SignalType    SignalType            `json:"signal_type"`
	Confidence    float64               `json:"confidence"`
}

// strengthBucket maps an absolute predicted close change (in percent) onto
// the 0-7 strength scale. The bucket edges are fixed.
func strengthBucket(absClosePct float64) int {
	switch {
	case absClosePct < 0.25:
		return 0
	case absClosePct < 0.5:
		return 1
	case absClosePct < 1:
		return 2
	case absClosePct < 2:
		return 3
	case absClosePct < 3:
		return 4
	case absClosePct < 5:
		return 5
	case absClosePct < 7:
		return 6
	default:
		return 7
	}
}
