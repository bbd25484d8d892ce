package marketdata

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// KlineStream subscribes to Binance kline streams and invalidates the
// candle cache whenever a candle closes, so the next read sees fresh data
// without waiting for the TTL to expire.
type KlineStream struct {
	mu        sync.Mutex
	streamURL string
	cache     *CachedMarketData
	conn      *websocket.Conn
	stopChan  chan struct{}
	isRunning bool
	logger    zerolog.Logger
}

type klineEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Kline     struct {
			Interval string `json:"i"`
			IsFinal  bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func NewKlineStream(streamURL string, cache *CachedMarketData, logger zerolog.Logger) *KlineStream {
	return &KlineStream{
		streamURL: streamURL,
		cache:     cache,
		stopChan:  make(chan struct{}),
		logger:    logger.With().Str("component", "kline-stream").Logger(),
	}
}

// Start opens the combined stream for the given symbols and timeframes and
// reads it until Stop is called. Reconnects with backoff on failures.
func (s *KlineStream) Start(symbols, timeframes []string) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	streams := make([]string, 0, len(symbols)*len(timeframes))
	for _, sym := range symbols {
		for _, tf := range timeframes {
			streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), tf))
		}
	}
	if len(streams) == 0 {
		return fmt.Errorf("kline stream: no subscriptions")
	}

	endpoint := fmt.Sprintf("%s/stream?streams=%s",
		strings.TrimSuffix(s.streamURL, "/ws"), strings.Join(streams, "/"))

	go s.connectLoop(endpoint)

	s.logger.Info().Int("streams", len(streams)).Msg("kline stream started")
	return nil
}

// Stop closes the stream connection.
func (s *KlineStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)

	if s.conn != nil {
		s.conn.Close()
	}
	s.logger.Info().Msg("kline stream stopped")
}

func (s *KlineStream) connectLoop(endpoint string) {
	backoff := time.Second

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
		if err != nil {
			s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("stream connect failed")
			select {
			case <-s.stopChan:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		backoff = time.Second

		s.readLoop(conn)
		conn.Close()
	}
}

func (s *KlineStream) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn().Err(err).Msg("stream read error, reconnecting")
			return
		}
		s.handleMessage(message)
	}
}

func (s *KlineStream) handleMessage(message []byte) {
	var event klineEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return
	}
	if event.Data.EventType != "kline" || !event.Data.Kline.IsFinal {
		return
	}

	s.cache.Invalidate(event.Data.Symbol, event.Data.Kline.Interval)
	s.logger.Debug().
		Str("symbol", event.Data.Symbol).
		Str("timeframe", event.Data.Kline.Interval).
		Msg("candle closed, cache invalidated")
}
