package database

import (
	"context"
	"fmt"
	"time"

	"pattern-trading-bot/internal/exchange"
	"pattern-trading-bot/internal/neural"
)

// Repository records executed orders and completed training runs. It
// satisfies both the engine's OrderRecorder and the trainer's RunRecorder.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveOrder appends an executed order to the history.
func (r *Repository) SaveOrder(ctx context.Context, order exchange.Order) error {
	query := `
		INSERT INTO orders (order_id, symbol, side, tag, quantity, notional, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		order.ID, order.Symbol, string(order.Side), string(order.Tag),
		order.Quantity, order.Notional, order.Price, string(order.Status), order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving order %s: %w", order.ID, err)
	}
	return nil
}

// RecordTrainingRun appends a completed training run to the history.
func (r *Repository) RecordTrainingRun(ctx context.Context, state neural.TrainingState) error {
	query := `
		INSERT INTO training_runs (coin, timeframe, started_at, completed_at, candles_processed, patterns_learned, patterns_updated, success_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var completedAt *time.Time
	if state.CompletedAt != nil {
		completedAt = state.CompletedAt
	}
	_, err := r.db.Pool.Exec(ctx, query,
		state.Coin, state.Timeframe, state.StartedAt, completedAt,
		state.CandlesProcessed, state.PatternsLearned, state.PatternsUpdated, state.SuccessRate,
	)
	if err != nil {
		return fmt.Errorf("recording training run %s/%s: %w", state.Coin, state.Timeframe, err)
	}
	return nil
}

// RecentOrders returns the newest orders for a symbol, most recent first.
func (r *Repository) RecentOrders(ctx context.Context, symbol string, limit int) ([]exchange.Order, error) {
	query := `
		SELECT order_id, symbol, side, tag, quantity, notional, price, status, created_at
		FROM orders
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("querying orders for %s: %w", symbol, err)
	}
	defer rows.Close()

	var orders []exchange.Order
	for rows.Next() {
		var o exchange.Order
		var side, tag, status string
		if err := rows.Scan(&o.ID, &o.Symbol, &side, &tag, &o.Quantity, &o.Notional, &o.Price, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		o.Side = exchange.OrderSide(side)
		o.Tag = exchange.TradeTag(tag)
		o.Status = exchange.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
