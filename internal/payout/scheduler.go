package payout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wnt/health-to-earn/internal/metrics"
	"github.com/wnt/health-to-earn/internal/store"
)

// SchedulerConfig tunes the payout and recovery loops.
type SchedulerConfig struct {
	// Interval between payout rounds.
	Interval time.Duration
	// Stagger spaces the per-record goroutines inside one round.
	Stagger time.Duration
	// ClaimTimeout is how long a claim may sit before the recovery
	// loop takes it back.
	ClaimTimeout time.Duration
	// MaxAttempts is the per-record retry budget.
	MaxAttempts int
	// RecoveryInterval between stale-claim sweeps.
	RecoveryInterval time.Duration
	// DrainTimeout bounds the wait for in-flight payouts on shutdown.
	DrainTimeout time.Duration
}

func (c *SchedulerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Stagger <= 0 {
		c.Stagger = time.Second
	}
	if c.ClaimTimeout <= 0 {
		c.ClaimTimeout = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = 2 * time.Minute
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
}

// Scheduler drives periodic payout rounds and stale-claim recovery.
type Scheduler struct {
	ledger      Ledger
	broadcaster *Broadcaster
	cfg         SchedulerConfig
	logger      zerolog.Logger

	inflight sync.WaitGroup
}

// NewScheduler builds a scheduler over the ledger and broadcaster.
func NewScheduler(ledger Ledger, broadcaster *Broadcaster, cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		ledger:      ledger,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled, then drains in-flight payouts
// with a bounded wait.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("stagger", s.cfg.Stagger).
		Msg("Payout scheduler started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.payoutLoop(ctx) })
	g.Go(func() error { return s.recoveryLoop(ctx) })

	err := g.Wait()
	s.drain()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) payoutLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// One immediate round so a restart does not sit idle for a full
	// interval with rewards waiting.
	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) recoveryLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.ledger.ReclaimStale(ctx, s.cfg.ClaimTimeout, s.cfg.MaxAttempts)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Stale claim sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int("reclaimed", n).Msg("Requeued stale reward claims")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tick launches one goroutine per pending record, staggered, and
// returns without waiting for any of them.
func (s *Scheduler) tick(ctx context.Context) {
	records, err := s.ledger.FindPending(ctx)
	if err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			s.logger.Warn().Err(err).Msg("Store unavailable, skipping payout round")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to list pending rewards")
		return
	}

	metrics.SetPendingRewards(len(records))
	if len(records) == 0 {
		return
	}
	s.logger.Info().Int("pending", len(records)).Msg("Starting payout round")

	for i, rec := range records {
		delay := time.Duration(i) * s.cfg.Stagger
		s.inflight.Add(1)
		go func(rec store.RewardRecord, delay time.Duration) {
			defer s.inflight.Done()

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			if err := s.broadcaster.Process(ctx, rec); err != nil {
				s.logger.Error().Err(err).Str("record", rec.ID).Msg("Reward payout failed")
			}
		}(rec, delay)
	}
}

// RunOnce performs a single payout round and waits for it to finish.
// The one-shot binary uses it.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.tick(ctx)
	s.inflight.Wait()
}

func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Payout scheduler drained")
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn().
			Dur("timeout", s.cfg.DrainTimeout).
			Msg("Drain timeout reached with payouts still in flight")
	}
}
