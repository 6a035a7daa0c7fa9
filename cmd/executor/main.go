package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/order-pipeline/internal/bus"
	"github.com/example/order-pipeline/internal/cache"
	"github.com/example/order-pipeline/internal/config"
	"github.com/example/order-pipeline/internal/db"
	"github.com/example/order-pipeline/internal/exchange"
	"github.com/example/order-pipeline/internal/execution"
	"github.com/example/order-pipeline/internal/store"
)

func main() {
	cfg, err := config.LoadExecutor()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer dbpool.Close()
	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	if cfg.EnsureTopics {
		c, cancel := context.WithTimeout(ctx, 5*time.Second)
		bus.EnsureTopics(c, cfg.Brokers[0], logger, cfg.SubmittedTopic, cfg.SettledTopic)
		cancel()
	}
	producer := bus.NewProducer(cfg.Brokers)
	defer producer.Close()

	rules, err := cache.New(1<<20, cfg.RulesTTL)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	defer rules.Close()

	venue := exchange.NewClient(cfg.ExchangeBaseURL, cfg.ExchangeTimeout, rules, logger)
	worker := execution.NewWorker(store.New(dbpool), venue, producer, cfg.SettledTopic, logger)
	tracker := execution.NewTracker(worker, cfg.TrackInterval, cfg.TrackBatch)
	cons := bus.NewConsumer(cfg.Brokers, cfg.SubmittedTopic, cfg.GroupID, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tracker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("executor consuming", zap.String("topic", cfg.SubmittedTopic), zap.String("venue", cfg.ExchangeBaseURL))
		return cons.Run(gctx, worker.HandleMessage)
	})
	if err := g.Wait(); err != nil {
		logger.Error("executor stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
