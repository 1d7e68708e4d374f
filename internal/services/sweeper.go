package services

import (
	"context"
	"time"

	"escrowdesk/internal/models"

	"go.uber.org/zap"
)

const sweepBatch = 200

type ExpirableLister interface {
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type Expirer interface {
	Expire(ctx context.Context, code string) (models.Deal, error)
}

// Sweeper expires overdue deals on a fixed tick. Each candidate is re-checked
// by the engine under the deal lock.
type Sweeper struct {
	deals    ExpirableLister
	engine   Expirer
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewSweeper(deals ExpirableLister, engine Expirer, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{deals: deals, engine: engine, interval: interval, now: time.Now, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("expiry sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep expires one batch of overdue deals and reports how many moved.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	codes, err := s.deals.ListExpirable(ctx, s.now(), sweepBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, code := range codes {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		deal, err := s.engine.Expire(ctx, code)
		if err != nil {
			s.logger.Warn("expire deal failed", zap.String("trade_code", code), zap.Error(err))
			continue
		}
		if deal.Status == models.DealExpired {
			expired++
		}
	}
	if expired > 0 {
		s.logger.Info("expired overdue deals", zap.Int("count", expired))
	}
	return expired, nil
}
