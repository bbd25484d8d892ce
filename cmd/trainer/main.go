// Command trainer runs batch training over historical candles, either once
// or on a cron schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"pattern-trading-bot/config"
	"pattern-trading-bot/internal/database"
	"pattern-trading-bot/internal/events"
	"pattern-trading-bot/internal/logging"
	"pattern-trading-bot/internal/marketdata"
	"pattern-trading-bot/internal/neural"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "path to configuration file")
	coin := flag.String("coin", "", "train a single coin instead of all configured coins")
	schedule := flag.String("schedule", "", "cron expression for periodic retraining (empty = run once)")
	candles := flag.Int("candles", 0, "candles per training run (0 = config default)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *candles > 0 {
		cfg.ModelConfig.TrainingCandles = *candles
	}

	logger, err := logging.New(cfg.LoggingConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo neural.RunRecorder
	if cfg.DatabaseConfig.Enabled {
		db, err := database.Connect(ctx, cfg.DatabaseConfig, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		repo = database.NewRepository(db)
	}

	client := marketdata.NewBinanceClient(cfg.MarketDataConfig.BaseURL)
	bus := events.NewEventBus()
	trainer := neural.NewTrainer(cfg, client, bus, repo, logger)

	train := func() {
		if *coin != "" {
			trainer.TrainCoin(ctx, strings.ToUpper(*coin))
			return
		}
		trainer.TrainAll(ctx)
	}

	if *schedule == "" {
		train()
		return ctx.Err()
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(*schedule, train); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", *schedule, err)
	}
	scheduler.Start()
	logger.Info().Str("schedule", *schedule).Msg("scheduled training started")

	<-ctx.Done()
	logger.Info().Msg("stopping scheduled training")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	return nil
}
