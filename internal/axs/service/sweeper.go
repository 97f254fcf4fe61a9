package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PassExpirer is the store operation the sweeper drives.
type PassExpirer interface {
	ExpireLapsedPasses(ctx context.Context, now time.Time) (int64, error)
}

// ExpirySweeper periodically flips passes whose validity window has closed
// to expired.  Validity checks never depend on it (IsValidAt looks at the
// window directly); it keeps stored status in line for listings and reports.
//
// An interval of 0 disables sweeping entirely.
type ExpirySweeper struct {
	store    PassExpirer
	interval time.Duration
	logger   *zerolog.Logger
	now      Clock
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewExpirySweeper creates a sweeper but does not start it.
func NewExpirySweeper(s PassExpirer, interval time.Duration, logger *zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		store:    s,
		interval: interval,
		logger:   logger,
		now:      SystemClock,
		done:     make(chan struct{}),
	}
}

func (s *ExpirySweeper) WithClock(c Clock) *ExpirySweeper {
	s.now = c
	return s
}

// Start runs an immediate sweep, then repeats on the interval until ctx is
// cancelled or Stop is called.
func (s *ExpirySweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("expiry sweeper disabled (interval=0)")
		close(s.done)
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)

	go s.loop(ctx)

	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
}

// Stop signals the sweeper to exit and waits for it to finish.
func (s *ExpirySweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *ExpirySweeper) loop(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep expires lapsed passes once and returns how many changed.
func (s *ExpirySweeper) Sweep(ctx context.Context) int64 {
	now := s.now()
	n, err := s.store.ExpireLapsedPasses(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return 0
	}
	if n > 0 {
		s.logger.Info().Int64("expired", n).Time("as_of", now).Msg("expiry sweep")
	}
	return n
}
