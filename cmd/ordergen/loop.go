package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

func runOrderLoop(ctx context.Context, rate int, c *apiClient, logger *zap.Logger) {
	if rate <= 0 {
		rate = 1
	}
	period := time.Second / time.Duration(rate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.Info("ordergen: TTL reached; exiting")
			} else {
				logger.Info("ordergen: shutting down (signal)")
			}
			return
		case <-ticker.C:
			// jitter
			time.Sleep(time.Duration(rng.Intn(150)) * time.Millisecond)

			req := genOrder()
			resp, err := c.submit(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				logger.Warn("submit", zap.String("symbol", req.Symbol), zap.Error(err))
				continue
			}
			fields := []zap.Field{
				zap.String("order_id", resp.OrderID),
				zap.String("symbol", req.Symbol),
				zap.String("side", req.Side),
				zap.String("type", req.Type),
				zap.Float64("quantity", req.Quantity),
			}
			if req.Price != nil {
				fields = append(fields, zap.Float64("price", *req.Price))
			}
			logger.Info("sent", fields...)
		}
	}
}
