package ingress

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper republishes commands that were persisted but never claimed by a
// worker, which covers a publish that failed after the store write.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
	MinAge   time.Duration
	Batch    int
}

func NewSweeper(svc *Service, interval, minAge time.Duration, batch int) *Sweeper {
	return &Sweeper{Service: svc, Interval: interval, MinAge: minAge, Batch: batch}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.Service.Logger.Error("sweep unclaimed commands", zap.Error(err))
				continue
			}
			if n > 0 {
				s.Service.Logger.Info("republished unclaimed commands", zap.Int("count", n))
			}
		}
	}
}

// Sweep republishes one batch and returns how many messages were written.
// Republishing a command a worker already holds is harmless: the worker's
// claim lets only one delivery execute.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	svc := s.Service
	stale, err := svc.Store.ListUnclaimed(ctx, svc.now().Add(-s.MinAge), s.Batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, cmd := range stale {
		if err := svc.Bus.Publish(ctx, svc.SubmittedTopic, cmd.UserID, cmd); err != nil {
			// The bus is likely down; the rest of the batch would fail the same way.
			return sent, err
		}
		sent++
	}
	return sent, nil
}
