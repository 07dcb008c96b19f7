package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/core-miniproject/stay/pkg/slogx"
)

// HousekeepingService purges refresh records past their lifetime on a
// fixed interval. Stores that expire records on their own report zero.
type HousekeepingService struct {
	Sessions store.Sessions
	Logger   *slog.Logger
	Interval time.Duration

	// SweepTimeout bounds a single pass.
	SweepTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHousekeepingService defaults interval to one hour.
func NewHousekeepingService(sessions store.Sessions, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Sessions:     sessions,
		Logger:       logger,
		Interval:     interval,
		SweepTimeout: 30 * time.Second,
	}
}

// Start sweeps once right away, then every Interval until Stop or until ctx
// is done.
func (s *HousekeepingService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			s.sweepLogged(ctx)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop waits for an in-flight pass to return. Calling Stop without Start is
// a no-op.
func (s *HousekeepingService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.Logger.Info("housekeeping stopped")
}

// Sweep runs one pass and reports how many records it removed.
func (s *HousekeepingService) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.SweepTimeout)
	defer cancel()

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Sessions.DeleteExpiredSessions(ctx, now().UTC())
}

func (s *HousekeepingService) sweepLogged(ctx context.Context) {
	n, err := s.Sweep(ctx)
	switch {
	case err != nil && ctx.Err() == nil:
		s.Logger.Error("expired session sweep failed", slogx.Err(err))
	case n > 0:
		s.Logger.Info("expired sessions removed", "count", n)
	}
}
