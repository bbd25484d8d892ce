package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// BinanceClient fetches candles from the Binance spot REST API.
type BinanceClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBinanceClient(baseURL string) *BinanceClient {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &BinanceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetCandles fetches klines for a symbol and returns them newest-first.
func (c *BinanceClient) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &DataFetchError{Symbol: symbol, Timeframe: timeframe, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DataFetchError{Symbol: symbol, Timeframe: timeframe, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DataFetchError{Symbol: symbol, Timeframe: timeframe, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &DataFetchError{
			Symbol:    symbol,
			Timeframe: timeframe,
			Err:       fmt.Errorf("API error: %s", string(body)),
		}
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, &DataFetchError{Symbol: symbol, Timeframe: timeframe, Err: err}
	}

	candles := make([]Candle, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 6 {
			continue
		}
		openTime, ok := raw[0].(float64)
		if !ok {
			continue
		}
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(int64(openTime)),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
		})
	}

	// Binance returns oldest-first; the pipeline works newest-first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
