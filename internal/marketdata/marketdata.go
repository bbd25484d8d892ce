package marketdata

import (
	"context"
	"fmt"
	"time"
)

// Candle is a single OHLCV candle. Immutable once read from a provider.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Valid reports whether the candle satisfies the basic OHLC invariants.
func (c Candle) Valid() bool {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 || c.Volume < 0 {
		return false
	}
	if c.High < c.Open || c.High < c.Close || c.High < c.Low {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close {
		return false
	}
	return true
}

// MarketData provides historical and recent candles. Implementations must
// return candles newest-first.
type MarketData interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}

// DataFetchError wraps a failed provider call. It is recoverable: callers
// skip the affected symbol/tick and retry next cycle.
type DataFetchError struct {
	Symbol    string
	Timeframe string
	Err       error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetching candles for %s %s: %v", e.Symbol, e.Timeframe, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }
