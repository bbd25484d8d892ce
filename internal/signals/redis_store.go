package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// signalKeyPrefix namespaces signal keys. Format: signal:{coin}
	signalKeyPrefix = "signal"

	// signalTTL bounds how long a published signal stays readable. Stale
	// signals must expire rather than drive decisions hours later.
	signalTTL = 15 * time.Minute
)

// RedisStore publishes signals to Redis so other processes can consume
// them, with an in-memory fallback when Redis is unreachable.
type RedisStore struct {
	client   *redis.Client
	fallback *MemoryStore
}

// NewRedisStore wraps a Redis client. A nil client degrades to memory-only.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, fallback: NewMemoryStore()}
}

func signalKey(coin string) string {
	return fmt.Sprintf("%s:%s", signalKeyPrefix, coin)
}

func (s *RedisStore) Put(ctx context.Context, signal NeuralSignal) error {
	// The fallback always holds the latest signal so a Redis outage never
	// leaves the decision engine blind.
	if err := s.fallback.Put(ctx, signal); err != nil {
		return err
	}
	if s.client == nil {
		return nil
	}

	data, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("marshaling signal for %s: %w", signal.Coin, err)
	}
	if err := s.client.Set(ctx, signalKey(signal.Coin), data, signalTTL).Err(); err != nil {
		return fmt.Errorf("publishing signal for %s: %w", signal.Coin, err)
	}
	return nil
}

func (s *RedisStore) Latest(ctx context.Context, coin string) (NeuralSignal, bool, error) {
	if s.client == nil {
		return s.fallback.Latest(ctx, coin)
	}

	data, err := s.client.Get(ctx, signalKey(coin)).Bytes()
	if err == redis.Nil {
		return NeuralSignal{}, false, nil
	}
	if err != nil {
		return s.fallback.Latest(ctx, coin)
	}

	var signal NeuralSignal
	if err := json.Unmarshal(data, &signal); err != nil {
		return NeuralSignal{}, false, fmt.Errorf("decoding signal for %s: %w", coin, err)
	}
	return signal, true, nil
}
