// Package exchange defines the order-execution boundary of the pipeline
// and a simulated implementation for paper trading.
package exchange

import (
	"context"
	"fmt"
	"time"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// TradeTag records why an order was placed.
type TradeTag string

const (
	TagEntry        TradeTag = "ENTRY"
	TagDCA          TradeTag = "DCA"
	TagTrailingStop TradeTag = "TRAILING_STOP"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusFilled   OrderStatus = "FILLED"
	StatusRejected OrderStatus = "REJECTED"
)

// Order is one executed (or rejected) market order.
type Order struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Tag            TradeTag    `json:"tag"`
	Quantity       float64     `json:"quantity"`
	Notional       float64     `json:"notional"`
	Price          float64     `json:"price"`
	Status         OrderStatus `json:"status"`
	FilledQuantity float64     `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Position is an open holding in one symbol.
type Position struct {
	Symbol           string    `json:"symbol"`
	Quantity         float64   `json:"quantity"`
	AvgCostBasis     float64   `json:"avg_cost_basis"`
	CurrentPrice     float64   `json:"current_price"`
	MarketValue      float64   `json:"market_value"`
	UnrealizedPnl    float64   `json:"unrealized_pnl"`
	UnrealizedPnlPct float64   `json:"unrealized_pnl_pct"`
	RealizedPnl      float64   `json:"realized_pnl"`
	DCACount         int       `json:"dca_count"`
	EntryTime        time.Time `json:"entry_time"`
	LastUpdate       time.Time `json:"last_update"`
}

// Account is a point-in-time account summary.
type Account struct {
	TotalValue     float64 `json:"total_value"`
	BuyingPower    float64 `json:"buying_power"`
	PositionsValue float64 `json:"positions_value"`
}

// Quote is a simulated bid/ask around the last traded price.
type Quote struct {
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// Exchange is the execution interface the decision engine trades against.
type Exchange interface {
	GetAccount(ctx context.Context) (Account, error)
	GetPositions(ctx context.Context) (map[string]Position, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, notional float64, tag TradeTag) (Order, error)
}

// PriceSource serves the last traded price for a symbol. The paper exchange
// uses it to mark positions and fill orders.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// InsufficientFundsError rejects a buy that exceeds available cash.
type InsufficientFundsError struct {
	Symbol    string
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: need %.2f, have %.2f", e.Symbol, e.Required, e.Available)
}

// InsufficientPositionError rejects a sell larger than the held quantity.
type InsufficientPositionError struct {
	Symbol    string
	Requested float64
	Held      float64
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("insufficient position in %s: requested %.6f, hold %.6f", e.Symbol, e.Requested, e.Held)
}
