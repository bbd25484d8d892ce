package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingSource struct {
	calls   int
	candles []Candle
	err     error
}

func (s *countingSource) GetCandles(_ context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	s.calls++
	if s.err != nil {
		return nil, &DataFetchError{Symbol: symbol, Timeframe: timeframe, Err: s.err}
	}
	if len(s.candles) > limit {
		return s.candles[:limit], nil
	}
	return s.candles, nil
}

func testCandles(n int) []Candle {
	candles := make([]Candle, n)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = Candle{Timestamp: ts.Add(-time.Duration(i) * time.Hour), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	}
	return candles
}

func TestCacheServesWithinTTL(t *testing.T) {
	source := &countingSource{candles: testCandles(10)}
	cache := NewCachedMarketData(source, time.Minute)

	ctx := context.Background()
	if _, err := cache.GetCandles(ctx, "BTCUSDT", "1h", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GetCandles(ctx, "BTCUSDT", "1h", 10); err != nil {
		t.Fatal(err)
	}

	if source.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", source.calls)
	}
}

func TestCacheRefetchesAfterTTL(t *testing.T) {
	source := &countingSource{candles: testCandles(10)}
	cache := NewCachedMarketData(source, time.Minute)

	now := time.Now()
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	cache.GetCandles(ctx, "BTCUSDT", "1h", 10)

	now = now.Add(2 * time.Minute)
	cache.GetCandles(ctx, "BTCUSDT", "1h", 10)

	if source.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", source.calls)
	}
}

func TestCacheKeyedPerSymbolTimeframe(t *testing.T) {
	source := &countingSource{candles: testCandles(10)}
	cache := NewCachedMarketData(source, time.Minute)

	ctx := context.Background()
	cache.GetCandles(ctx, "BTCUSDT", "1h", 10)
	cache.GetCandles(ctx, "BTCUSDT", "4h", 10)
	cache.GetCandles(ctx, "ETHUSDT", "1h", 10)

	if source.calls != 3 {
		t.Errorf("expected 3 upstream calls, got %d", source.calls)
	}
}

func TestCacheLargerLimitRefetches(t *testing.T) {
	source := &countingSource{candles: testCandles(50)}
	cache := NewCachedMarketData(source, time.Minute)

	ctx := context.Background()
	cache.GetCandles(ctx, "BTCUSDT", "1h", 10)

	got, err := cache.GetCandles(ctx, "BTCUSDT", "1h", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 30 {
		t.Errorf("expected 30 candles, got %d", len(got))
	}
	if source.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", source.calls)
	}
}

func TestCacheInvalidate(t *testing.T) {
	source := &countingSource{candles: testCandles(10)}
	cache := NewCachedMarketData(source, time.Minute)

	ctx := context.Background()
	cache.GetCandles(ctx, "BTCUSDT", "1h", 10)
	cache.Invalidate("BTCUSDT", "1h")
	cache.GetCandles(ctx, "BTCUSDT", "1h", 10)

	if source.calls != 2 {
		t.Errorf("expected refetch after invalidate, got %d calls", source.calls)
	}
}

func TestCachePropagatesFetchError(t *testing.T) {
	source := &countingSource{err: errors.New("boom")}
	cache := NewCachedMarketData(source, time.Minute)

	_, err := cache.GetCandles(context.Background(), "BTCUSDT", "1h", 10)
	var fetchErr *DataFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected DataFetchError, got %v", err)
	}
	if fetchErr.Symbol != "BTCUSDT" {
		t.Errorf("expected symbol in error, got %q", fetchErr.Symbol)
	}
}

func TestCandleValid(t *testing.T) {
	good := Candle{Open: 100, High: 105, Low: 95, Close: 102, Volume: 1}
	if !good.Valid() {
		t.Error("expected valid candle")
	}

	bad := Candle{Open: 100, High: 99, Low: 95, Close: 102, Volume: 1}
	if bad.Valid() {
		t.Error("high below close should be invalid")
	}
}
