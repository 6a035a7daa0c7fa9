package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/order-pipeline/internal/config"
)

func main() {
	cfg, err := config.LoadOrderGen()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Base context canceled by SIGINT/SIGTERM
	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Apply TTL unless stay-alive requested or TTL <= 0
	ctx := baseCtx
	if !cfg.StayAlive && cfg.TTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(baseCtx, cfg.TTL)
		defer cancel()
	}

	client := newAPIClient(cfg.APIURL)
	signInCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	user, err := client.signIn(signInCtx, cfg.Email, cfg.Password, cfg.APIKey, cfg.SecretKey)
	cancel()
	if err != nil {
		logger.Fatal("ordergen: sign in", zap.String("api", cfg.APIURL), zap.Error(err))
	}

	logger.Info("ordergen started",
		zap.String("api", cfg.APIURL),
		zap.String("user_id", user.ID),
		zap.Int("rate", cfg.Rate),
		zap.Bool("stay_alive", cfg.StayAlive),
		zap.Duration("ttl", cfg.TTL),
	)

	runOrderLoop(ctx, cfg.Rate, client, logger)
}
