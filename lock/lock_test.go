package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/lock"
	"github.com/warp/timesheet-engine/timesheet"
)

func TestLocal_SecondAcquireRejected(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, timesheet.ErrSyncInProgress)

	release()
	release() // idempotent

	again, err := l.Acquire(ctx)
	require.NoError(t, err)
	again()
}

func TestLocal_AtMostOneHolder(t *testing.T) {
	l := lock.NewLocal()
	var (
		holders  atomic.Int32
		maxSeen  atomic.Int32
		rejected atomic.Int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background())
			if err != nil {
				rejected.Add(1)
				return
			}
			n := holders.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			holders.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestRunner_LockHeldRejectsPass(t *testing.T) {
	// GIVEN: A pass already holds the lock
	// WHEN: A second trigger runs
	// THEN: It fails fast with ErrSyncInProgress and writes nothing
	l := lock.NewLocal()
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	runner := timesheet.NewRunner(nil, l, nil)
	result, err := runner.Run(context.Background(), timesheet.SyncInput{})

	assert.ErrorIs(t, err, timesheet.ErrSyncInProgress)
	assert.Nil(t, result)
}
