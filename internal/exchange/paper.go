package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pattern-trading-bot/internal/marketdata"
)

// spreadPct is the simulated bid/ask spread.
const spreadPct = 0.001

// PaperExchange simulates an exchange account with instant market fills.
// Prices come from a real PriceSource so the simulation tracks the market.
type PaperExchange struct {
	prices PriceSource
	logger zerolog.Logger

	mu        sync.Mutex
	cash      float64
	positions map[string]*paperPosition
	orders    []Order

	now func() time.Time
}

type paperPosition struct {
	quantity    float64
	avgCost     float64
	lastPrice   float64
	realizedPnl float64
	dcaCount    int
	entryTime   time.Time
}

func NewPaperExchange(startingCash float64, prices PriceSource, logger zerolog.Logger) *PaperExchange {
	logger = logger.With().Str("component", "paper-exchange").Logger()
	logger.Info().Float64("cash", startingCash).Msg("paper exchange initialized")
	return &PaperExchange{
		prices:    prices,
		logger:    logger,
		cash:      startingCash,
		positions: make(map[string]*paperPosition),
		now:       time.Now,
	}
}

func (p *PaperExchange) GetAccount(_ context.Context) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var positionsValue float64
	for _, pos := range p.positions {
		positionsValue += pos.quantity * pos.lastPrice
	}
	return Account{
		TotalValue:     p.cash + positionsValue,
		BuyingPower:    p.cash,
		PositionsValue: positionsValue,
	}, nil
}

func (p *PaperExchange) GetPositions(ctx context.Context) (map[string]Position, error) {
	p.mu.Lock()
	symbols := make([]string, 0, len(p.positions))
	for symbol := range p.positions {
		symbols = append(symbols, symbol)
	}
	p.mu.Unlock()

	out := make(map[string]Position, len(symbols))
	for _, symbol := range symbols {
		price, err := p.prices.LastPrice(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("marking %s: %w", symbol, err)
		}

		p.mu.Lock()
		pos, ok := p.positions[symbol]
		if !ok {
			p.mu.Unlock()
			continue
		}
		pos.lastPrice = price

		costBasis := pos.quantity * pos.avgCost
		marketValue := pos.quantity * price
		unrealized := marketValue - costBasis
		var unrealizedPct float64
		if costBasis > 0 {
			unrealizedPct = unrealized / costBasis * 100
		}
		out[symbol] = Position{
			Symbol:           symbol,
			Quantity:         pos.quantity,
			AvgCostBasis:     pos.avgCost,
			CurrentPrice:     price,
			MarketValue:      marketValue,
			UnrealizedPnl:    unrealized,
			UnrealizedPnlPct: unrealizedPct,
			RealizedPnl:      pos.realizedPnl,
			DCACount:         pos.dcaCount,
			EntryTime:        pos.entryTime,
			LastUpdate:       p.now(),
		}
		p.mu.Unlock()
	}
	return out, nil
}

func (p *PaperExchange) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	price, err := p.prices.LastPrice(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	spread := price * spreadPct
	return Quote{
		Bid:       price - spread/2,
		Ask:       price + spread/2,
		Timestamp: p.now(),
	}, nil
}

// PlaceMarketOrder fills immediately at the quote's ask (buy) or bid (sell).
func (p *PaperExchange) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, notional float64, tag TradeTag) (Order, error) {
	quote, err := p.GetQuote(ctx, symbol)
	if err != nil {
		return Order{}, err
	}

	price := quote.Ask
	if side == Sell {
		price = quote.Bid
	}
	quantity := notional / price

	p.mu.Lock()
	defer p.mu.Unlock()

	switch side {
	case Buy:
		err = p.executeBuy(symbol, quantity, price)
	case Sell:
		err = p.executeSell(symbol, quantity, price)
	default:
		err = fmt.Errorf("unknown order side %q", side)
	}
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Side:           side,
		Tag:            tag,
		Quantity:       quantity,
		Notional:       notional,
		Price:          price,
		Status:         StatusFilled,
		FilledQuantity: quantity,
		AvgFillPrice:   price,
		CreatedAt:      p.now(),
	}
	p.orders = append(p.orders, order)

	p.logger.Info().Str("symbol", symbol).Str("side", string(side)).Str("tag", string(tag)).
		Float64("quantity", quantity).Float64("price", price).Float64("notional", notional).
		Msg("paper order filled")

	return order, nil
}

// Orders returns a copy of every order placed so far.
func (p *PaperExchange) Orders() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *PaperExchange) executeBuy(symbol string, quantity, price float64) error {
	cost := quantity * price
	if cost > p.cash {
		return &InsufficientFundsError{Symbol: symbol, Required: cost, Available: p.cash}
	}
	p.cash -= cost

	if pos, ok := p.positions[symbol]; ok {
		totalCost := pos.quantity*pos.avgCost + cost
		pos.quantity += quantity
		pos.avgCost = totalCost / pos.quantity
		pos.lastPrice = price
		pos.dcaCount++
		return nil
	}
	p.positions[symbol] = &paperPosition{
		quantity:  quantity,
		avgCost:   price,
		lastPrice: price,
		entryTime: p.now(),
	}
	return nil
}

func (p *PaperExchange) executeSell(symbol string, quantity, price float64) error {
	pos, ok := p.positions[symbol]
	if !ok {
		return &InsufficientPositionError{Symbol: symbol, Requested: quantity, Held: 0}
	}
	// A full close arrives as the position's market value, marked at the
	// last price, but fills at the bid. The derived quantity therefore
	// overshoots the held quantity by up to the simulated spread; clamp
	// that overshoot down to a full close.
	if quantity > pos.quantity {
		if quantity > pos.quantity*(1+spreadPct) {
			return &InsufficientPositionError{Symbol: symbol, Requested: quantity, Held: pos.quantity}
		}
		quantity = pos.quantity
	}

	proceeds := quantity * price
	costBasis := quantity * pos.avgCost
	realized := proceeds - costBasis

	p.cash += proceeds
	pos.realizedPnl += realized

	if quantity >= pos.quantity {
		p.logger.Info().Str("symbol", symbol).Float64("realized_pnl", realized).Msg("position closed")
		delete(p.positions, symbol)
		return nil
	}
	pos.quantity -= quantity
	return nil
}

// CandlePriceSource marks prices off the newest candle close.
type CandlePriceSource struct {
	Market    marketdata.MarketData
	Timeframe string
}

func (c *CandlePriceSource) LastPrice(ctx context.Context, symbol string) (float64, error) {
	timeframe := c.Timeframe
	if timeframe == "" {
		timeframe = "1m"
	}
	candles, err := c.Market.GetCandles(ctx, symbol, timeframe, 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 || candles[0].Close <= 0 {
		return 0, &marketdata.DataFetchError{Symbol: symbol, Timeframe: timeframe, Err: fmt.Errorf("no price available")}
	}
	return candles[0].Close, nil
}
