package marketdata

import (
	"context"
	"sync"
	"time"
)

type cacheKey struct {
	Symbol    string
	Timeframe string
}

type cacheEntry struct {
	candles   []Candle
	limit     int
	updatedAt time.Time
}

// CachedMarketData wraps a provider with a short per-(symbol, timeframe) TTL
// to bound external call volume. Entries are replaced wholesale on refresh,
// never merged.
type CachedMarketData struct {
	source  MarketData
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[cacheKey]*cacheEntry
	now     func() time.Time
}

func NewCachedMarketData(source MarketData, ttl time.Duration) *CachedMarketData {
	return &CachedMarketData{
		source:  source,
		ttl:     ttl,
		entries: make(map[cacheKey]*cacheEntry),
		now:     time.Now,
	}
}

// GetCandles returns cached candles when fresh, otherwise fetches from the
// underlying provider. A cached entry only serves requests for at most the
// limit it was fetched with.
func (c *CachedMarketData) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	key := cacheKey{Symbol: symbol, Timeframe: timeframe}

	c.mu.RLock()
	entry, ok := c.entries[key]
	if ok && entry.limit >= limit && c.now().Sub(entry.updatedAt) < c.ttl {
		candles := entry.candles
		c.mu.RUnlock()
		if len(candles) > limit {
			candles = candles[:limit]
		}
		return candles, nil
	}
	c.mu.RUnlock()

	candles, err := c.source.GetCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = &cacheEntry{candles: candles, limit: limit, updatedAt: c.now()}
	c.mu.Unlock()

	return candles, nil
}

// Invalidate drops the cached entry for a (symbol, timeframe) pair so the
// next read refetches. Used by the kline stream when a candle closes.
func (c *CachedMarketData) Invalidate(symbol, timeframe string) {
	c.mu.Lock()
	delete(c.entries, cacheKey{Symbol: symbol, Timeframe: timeframe})
	c.mu.Unlock()
}
