package signals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pattern-trading-bot/config"
)

// SignalStore publishes the latest signal per coin and serves it back to
// the decision engine. Put replaces the previous signal wholesale.
type SignalStore interface {
	Put(ctx context.Context, signal NeuralSignal) error
	Latest(ctx context.Context, coin string) (NeuralSignal, bool, error)
}

// MemoryStore keeps the latest signal per coin in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	signals map[string]NeuralSignal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signals: make(map[string]NeuralSignal)}
}

func (s *MemoryStore) Put(_ context.Context, signal NeuralSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[signal.Coin] = signal
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, coin string) (NeuralSignal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	signal, ok := s.signals[coin]
	return signal, ok, nil
}

// All returns a snapshot of the latest signal for every coin.
func (s *MemoryStore) All() map[string]NeuralSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]NeuralSignal, len(s.signals))
	for coin, signal := range s.signals {
		out[coin] = signal
	}
	return out
}

// FileStore mirrors each signal into per-coin strength files readable by
// external consumers, on top of an in-memory latest map. Writes are atomic
// via temp file and rename.
type FileStore struct {
	mem *MemoryStore
	cfg *config.Config
}

func NewFileStore(cfg *config.Config) *FileStore {
	return &FileStore{mem: NewMemoryStore(), cfg: cfg}
}

func (s *FileStore) Put(ctx context.Context, signal NeuralSignal) error {
	if err := s.mem.Put(ctx, signal); err != nil {
		return err
	}

	dir := s.cfg.CoinDir(signal.Coin)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("signal dir %s: %w", dir, err)
	}
	if err := writeAtomic(filepath.Join(dir, "long_signal.txt"), signal.LongStrength); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, "short_signal.txt"), signal.ShortStrength)
}

func (s *FileStore) Latest(ctx context.Context, coin string) (NeuralSignal, bool, error) {
	return s.mem.Latest(ctx, coin)
}

func writeAtomic(path string, strength int) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d", strength)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
