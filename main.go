package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"pattern-trading-bot/config"
	"pattern-trading-bot/internal/database"
	"pattern-trading-bot/internal/events"
	"pattern-trading-bot/internal/exchange"
	"pattern-trading-bot/internal/logging"
	"pattern-trading-bot/internal/marketdata"
	"pattern-trading-bot/internal/signals"
	"pattern-trading-bot/internal/trading"
)

const defaultStartingCash = 10000

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LoggingConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()
	bus.Subscribe(events.EventError, func(ev events.Event) {
		logger.Warn().Interface("data", ev.Data).Msg("pipeline error event")
	})

	// Market data: REST client behind a TTL cache, optionally kept warm by
	// the kline websocket stream.
	client := marketdata.NewBinanceClient(cfg.MarketDataConfig.BaseURL)
	cache := marketdata.NewCachedMarketData(client, time.Duration(cfg.MarketDataConfig.CandleCacheTTL)*time.Second)
	var market marketdata.MarketData = cache

	if cfg.MarketDataConfig.UseStream {
		symbols := make([]string, len(cfg.TradingConfig.Coins))
		for i, coin := range cfg.TradingConfig.Coins {
			symbols[i] = coin + "USDT"
		}
		stream := marketdata.NewKlineStream(cfg.MarketDataConfig.StreamURL, cache, logger)
		if err := stream.Start(symbols, cfg.TradingConfig.Timeframes); err != nil {
			return err
		}
		defer stream.Stop()
	}

	// Optional history repository.
	var orderRecorder trading.OrderRecorder
	if cfg.DatabaseConfig.Enabled {
		db, err := database.Connect(ctx, cfg.DatabaseConfig, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		repo := database.NewRepository(db)
		orderRecorder = repo

		for _, coin := range cfg.TradingConfig.Coins {
			orders, err := repo.RecentOrders(ctx, coin+"USDT", 1)
			if err != nil {
				logger.Warn().Err(err).Str("coin", coin).Msg("order history unavailable")
				break
			}
			if len(orders) > 0 {
				logger.Info().Str("symbol", orders[0].Symbol).
					Str("side", string(orders[0].Side)).
					Time("at", orders[0].CreatedAt).
					Msg("resuming after last recorded order")
			}
		}
	}

	// Signal store: redis when configured, otherwise per-coin files.
	var store signals.SignalStore
	if cfg.RedisConfig.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		store = signals.NewRedisStore(rdb)
		logger.Info().Str("addr", cfg.RedisConfig.Addr).Msg("publishing signals to redis")
	} else {
		store = signals.NewFileStore(cfg)
	}

	generator := signals.NewGenerator(cfg, market, store, bus, logger)

	prices := &exchange.CandlePriceSource{Market: market, Timeframe: "1m"}
	paper := exchange.NewPaperExchange(defaultStartingCash, prices, logger)
	engine := trading.NewEngine(cfg, store, paper, bus, orderRecorder, logger)

	logger.Info().Strs("coins", cfg.TradingConfig.Coins).
		Strs("timeframes", cfg.TradingConfig.Timeframes).
		Msg("pipeline starting")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		generator.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	wg.Wait()
	return nil
}
