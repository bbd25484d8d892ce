package signals

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pattern-trading-bot/config"
)

func sampleSignal(coin string, long, short int) NeuralSignal {
	return NeuralSignal{
		Coin:          coin,
		Symbol:        coin + "USDT",
		Timestamp:     time.Now(),
		LongStrength:  long,
		ShortStrength: short,
		SignalType:    SignalLong,
	}
}

func TestMemoryStoreReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, ok, _ := store.Latest(ctx, "BTC"); ok {
		t.Error("empty store must report no signal")
	}

	if err := store.Put(ctx, sampleSignal("BTC", 4, 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, sampleSignal("BTC", 2, 1)); err != nil {
		t.Fatal(err)
	}

	signal, ok, err := store.Latest(ctx, "BTC")
	if err != nil || !ok {
		t.Fatalf("expected a signal, ok=%v err=%v", ok, err)
	}
	if signal.LongStrength != 2 || signal.ShortStrength != 1 {
		t.Errorf("latest put must win, got %d/%d", signal.LongStrength, signal.ShortStrength)
	}
}

func TestMemoryStoreAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(ctx, sampleSignal("BTC", 4, 0))
	store.Put(ctx, sampleSignal("ETH", 0, 5))

	all := store.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(all))
	}
	if all["ETH"].ShortStrength != 5 {
		t.Errorf("ETH shortStrength = %d, want 5", all["ETH"].ShortStrength)
	}

	// Snapshot, not a live view.
	delete(all, "BTC")
	if _, ok, _ := store.Latest(ctx, "BTC"); !ok {
		t.Error("mutating the snapshot must not affect the store")
	}
}

func TestFileStoreWritesStrengthFiles(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	store := NewFileStore(cfg)

	if err := store.Put(ctx, sampleSignal("BTC", 4, 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	long, err := os.ReadFile(filepath.Join(cfg.CoinDir("BTC"), "long_signal.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(long) != "4" {
		t.Errorf("long_signal.txt = %q, want %q", long, "4")
	}
	short, err := os.ReadFile(filepath.Join(cfg.CoinDir("BTC"), "short_signal.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(short) != "1" {
		t.Errorf("short_signal.txt = %q, want %q", short, "1")
	}

	// Latest is served from memory, not re-parsed from disk.
	signal, ok, err := store.Latest(ctx, "BTC")
	if err != nil || !ok {
		t.Fatalf("expected a signal, ok=%v err=%v", ok, err)
	}
	if signal.LongStrength != 4 {
		t.Errorf("latest longStrength = %d, want 4", signal.LongStrength)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(cfg.CoinDir("BTC"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	store := NewFileStore(cfg)

	store.Put(ctx, sampleSignal("BTC", 7, 0))
	store.Put(ctx, sampleSignal("BTC", 0, 0))

	long, err := os.ReadFile(filepath.Join(cfg.CoinDir("BTC"), "long_signal.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(long) != "0" {
		t.Errorf("long_signal.txt = %q, want %q after overwrite", long, "0")
	}
}

func TestRedisStoreFallsBackWithoutClient(t *testing.T) {
	ctx := context.Background()
	store := NewRedisStore(nil)

	if err := store.Put(ctx, sampleSignal("BTC", 3, 0)); err != nil {
		t.Fatalf("memory-only put must not fail: %v", err)
	}
	signal, ok, err := store.Latest(ctx, "BTC")
	if err != nil || !ok {
		t.Fatalf("expected fallback signal, ok=%v err=%v", ok, err)
	}
	if signal.LongStrength != 3 {
		t.Errorf("longStrength = %d, want 3", signal.LongStrength)
	}
}
