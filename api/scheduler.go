/*
scheduler.go - Periodic sync scheduler

PURPOSE:
  Pulls the recent pay periods from the remote source on a fixed interval
  and merges them into the ledger.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Each tick syncs the current pay period plus WindowPeriods-1 earlier
    ones, so late edits upstream (a manager fixing last period's punch)
    are still picked up
  - A tick that finds a pass already running is skipped, not queued

USAGE:
  scheduler := NewSyncScheduler(runner, source, periods, loc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: PullSync (manual trigger)
  - timesheet/runner.go: Runner.RunFrom
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
	"go.uber.org/zap"
)

// SyncScheduler triggers sync passes on an interval.
type SyncScheduler struct {
	Runner        *timesheet.Runner
	Source        timesheet.Source
	Periods       generic.PayPeriodConfig
	Location      *time.Location
	Interval      time.Duration
	WindowPeriods int
	Logger        *zap.Logger
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSyncScheduler creates a scheduler with a 15 minute interval over two
// pay periods.
func NewSyncScheduler(runner *timesheet.Runner, source timesheet.Source, periods generic.PayPeriodConfig, loc *time.Location, logger *zap.Logger) *SyncScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{
		Runner:        runner,
		Source:        source,
		Periods:       periods,
		Location:      loc,
		Interval:      15 * time.Minute,
		WindowPeriods: 2,
		Logger:        logger,
		Now:           time.Now,
	}
}

// Start begins the scheduler. The first pass runs immediately.
func (s *SyncScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)

	go s.run(ctx)

	s.Logger.Info("sync scheduler started",
		zap.Duration("interval", s.Interval),
		zap.Int("window_periods", s.WindowPeriods),
	)
}

// Stop cancels an in-flight pass and waits for the goroutine to exit.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("sync scheduler stopped")
}

func (s *SyncScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.RunOnce(ctx)
	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunOnce performs one pass over the default window.
func (s *SyncScheduler) RunOnce(ctx context.Context) (*timesheet.SyncResult, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	window := DefaultWindow(s.Periods, now().In(s.Location), s.WindowPeriods)

	result, err := s.Runner.RunFrom(ctx, s.Source, window)
	switch {
	case errors.Is(err, timesheet.ErrSyncInProgress):
		s.Logger.Info("sync pass skipped, another is running", zap.String("window", window.String()))
	case result == nil && err != nil:
		s.Logger.Error("sync pass failed", zap.String("window", window.String()), zap.Error(err))
	case err != nil:
		s.Logger.Warn("sync pass finished with failed groups",
			zap.String("window", window.String()),
			zap.Int("failed", len(result.Failed())),
			zap.Error(err),
		)
	}
	return result, err
}

// DefaultWindow spans the pay period containing now and the n-1 periods
// before it.
func DefaultWindow(periods generic.PayPeriodConfig, now time.Time, n int) generic.Period {
	if n < 1 {
		n = 1
	}
	current := periods.PeriodFor(generic.DateOf(now))
	start := current
	for i := 1; i < n; i++ {
		start = start.PreviousPeriod()
	}
	return generic.Period{Start: start.Start, End: current.End}
}
