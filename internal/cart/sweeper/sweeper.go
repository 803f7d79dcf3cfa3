package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/print_shop/internal/cart/repository"
)

// Sweeper marks expired ACTIVE carts as ABANDONED on a fixed tick.
type Sweeper struct {
	repo     repository.CartRepository
	interval time.Duration
}

func New(repo repository.CartRepository, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{repo: repo, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ids, err := s.repo.MarkExpiredAbandoned(ctx, time.Now())
	if err != nil {
		slog.Error("abandoned cart sweep failed", "error", err)
		return
	}
	if len(ids) > 0 {
		slog.Info("abandoned expired carts", "count", len(ids), "cartIds", ids)
	}
}
