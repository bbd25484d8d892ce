// Package database persists order and training-run history in PostgreSQL.
// The whole layer is optional: a disabled config yields a nil repository
// and every caller treats nil as "don't record".
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"pattern-trading-bot/config"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Connect opens a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("database connected")
	return &DB{Pool: pool, logger: logger.With().Str("component", "database").Logger()}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// Migrate creates the history tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			tag VARCHAR(20) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			notional DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			status VARCHAR(10) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,
		`CREATE TABLE IF NOT EXISTS training_runs (
			id SERIAL PRIMARY KEY,
			coin VARCHAR(10) NOT NULL,
			timeframe VARCHAR(5) NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			candles_processed INT NOT NULL,
			patterns_learned INT NOT NULL,
			patterns_updated INT NOT NULL,
			success_rate DECIMAL(6, 4) NOT NULL,
			recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_training_runs_coin ON training_runs(coin, timeframe)`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	db.logger.Info().Msg("migrations applied")
	return nil
}
