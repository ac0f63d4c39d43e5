package timesheet

import (
	"context"
	"fmt"

	"github.com/warp/timesheet-engine/generic"
	"go.uber.org/zap"
)

// Locker guarantees at most one sync pass at a time.
type Locker interface {
	// Acquire returns a release func, or ErrSyncInProgress when the lock is
	// already held.
	Acquire(ctx context.Context) (release func(), err error)
}

// Source fetches one remote batch covering window.
type Source interface {
	Fetch(ctx context.Context, window generic.Period) (SyncInput, error)
}

// Runner serializes sync passes behind a Locker.
type Runner struct {
	Engine *Engine
	Locker Locker
	Logger *zap.Logger
}

// NewRunner creates a runner. A nil locker runs unguarded.
func NewRunner(engine *Engine, locker Locker, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Engine: engine, Locker: locker, Logger: logger}
}

// Run executes one sync pass over in while holding the lock.
func (r *Runner) Run(ctx context.Context, in SyncInput) (*SyncResult, error) {
	if r.Locker != nil {
		release, err := r.Locker.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	return r.Engine.Sync(ctx, in)
}

// RunFrom fetches window from src and syncs it. The fetch happens under the
// lock so two triggers never both pull and merge the same window.
func (r *Runner) RunFrom(ctx context.Context, src Source, window generic.Period) (*SyncResult, error) {
	if r.Locker != nil {
		release, err := r.Locker.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	in, err := src.Fetch(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("fetch remote records: %w", err)
	}
	if in.Window == nil {
		in.Window = &window
	}
	r.Logger.Info("fetched remote batch",
		zap.String("window", window.String()),
		zap.Int("records", len(in.Records)),
		zap.Int("users", len(in.Users)),
		zap.Int("shifts", len(in.Shifts)),
	)
	return r.Engine.Sync(ctx, in)
}
