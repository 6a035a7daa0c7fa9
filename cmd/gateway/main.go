package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/order-pipeline/internal/auth"
	"github.com/example/order-pipeline/internal/bus"
	"github.com/example/order-pipeline/internal/config"
	"github.com/example/order-pipeline/internal/gateway"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.EnsureTopics {
		c, cancel := context.WithTimeout(ctx, 5*time.Second)
		bus.EnsureTopics(c, cfg.Brokers[0], logger, cfg.SettledTopic)
		cancel()
	}

	hub := gateway.NewHub(logger)
	tokens := auth.NewTokens(cfg.JWTSecret, 0)
	s := gateway.NewServer(hub, tokens, logger, cfg.WSPath, cfg.PingInterval, cfg.SendBuffer)
	server := &http.Server{Addr: ":" + cfg.Port, Handler: s.R}
	cons := bus.NewConsumer(cfg.Brokers, cfg.SettledTopic, cfg.GroupID, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error { return cons.Run(gctx, hub.HandleMessage) })
	g.Go(func() error {
		logger.Info("ws listening", zap.String("port", cfg.Port), zap.String("path", cfg.WSPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShut()
		return server.Shutdown(ctxShut)
	})
	if err := g.Wait(); err != nil {
		logger.Error("gateway stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
