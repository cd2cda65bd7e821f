package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cinema-ticketing/internal/metrics"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
)

// Sweeper expires PENDING sales whose hold deadline has passed and
// returns their seats to the pool.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	batch    int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(engine *Engine, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{engine: engine, interval: interval, batch: batch}
}

// Start runs the sweeper in the background until ctx is done or Stop is
// called.  Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
}

// Stop cancels a running sweeper and waits for it to finish the current
// pass.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", s.interval).Int("batch", s.batch).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("sweeper: pass failed")
			}
		}
	}
}

// RunOnce expires every overdue PENDING sale, one batch at a time, and
// reports how many it expired.  A sale that was confirmed or cancelled
// concurrently is skipped.  The pass stops at the first storage error.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	metrics.SweeperRuns.Inc()
	now := s.engine.now()
	expired := 0
	for {
		sales, err := s.engine.sales.ListExpiredPending(ctx, now, s.batch)
		if err != nil {
			metrics.SweeperErrors.Inc()
			return expired, err
		}
		progress := 0
		for _, sale := range sales {
			err := s.engine.expire(ctx, sale, &now)
			switch {
			case err == nil:
				progress++
				log.Info().Str("sale_id", sale.ID).Str("code", sale.Code).Msg("sale expired")
			case errors.Is(err, repository.ErrStaleUpdate):
				log.Debug().Str("sale_id", sale.ID).Msg("sweeper: sale already closed")
			default:
				metrics.SweeperErrors.Inc()
				log.Error().Err(err).Str("sale_id", sale.ID).Msg("sweeper: expire failed")
				return expired + progress, err
			}
		}
		expired += progress
		if len(sales) < s.batch || progress == 0 {
			return expired, nil
		}
	}
}
