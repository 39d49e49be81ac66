package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/masilo-dev/alphaclone-meetings/internal/meetings"
)

const sweepBatchSize = 100

// Sweeper ends active meetings that have run past their allotted duration.
type Sweeper struct {
	svc      *meetings.Service
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(svc *meetings.Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger}
}

// Run blocks until ctx is done, sweeping on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
			ended, err := s.svc.SweepExpired(ctx, sweepBatchSize)
			if err != nil {
				s.logger.Warn("sweep failed", zap.Error(err))
				continue
			}
			if ended > 0 {
				s.logger.Info("ended overdue meetings", zap.Int("count", ended))
			}
		}
	}
}
