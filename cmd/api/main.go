package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/order-pipeline/internal/auth"
	"github.com/example/order-pipeline/internal/bus"
	"github.com/example/order-pipeline/internal/config"
	"github.com/example/order-pipeline/internal/db"
	httpserver "github.com/example/order-pipeline/internal/http"
	"github.com/example/order-pipeline/internal/ingress"
	"github.com/example/order-pipeline/internal/store"
)

func main() {
	cfg, err := config.LoadAPI()
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

	st := store.New(dbpool)
	svc := ingress.NewService(st, producer, cfg.SubmittedTopic, logger)
	go ingress.NewSweeper(svc, cfg.SweepInterval, cfg.SweepMinAge, cfg.SweepBatch).Run(ctx)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	s := httpserver.NewServer(svc, st, tokens, logger, cfg.CORSOrigin)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: s.R}
	go func() {
		logger.Info("http listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http", zap.Error(err))
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	_ = server.Shutdown(ctxShut)
	logger.Info("shutdown complete")
}
