package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/store/memory"
	"github.com/warp/timesheet-engine/timesheet"
)

var week = generic.NewTimePoint(2025, time.December, 7)

func header(employeeID int64) timesheet.Header {
	return timesheet.Header{
		EmployeeID:    employeeID,
		WeekStartDate: week,
		WeekEndDate:   generic.NewTimePoint(2025, time.December, 20),
	}
}

func TestMemory_WithTx_RollbackRestoresSnapshot(t *testing.T) {
	// GIVEN: A committed header with one entry
	// WHEN: A transaction edits both and then fails
	// THEN: The store holds the pre-transaction state
	ctx := context.Background()
	store := memory.New()
	h, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)
	_, err = store.UpsertEntry(ctx, timesheet.Entry{TimesheetID: h.ID, WiwTimeID: 1000, BreakMinutes: 30})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(s timesheet.Store) error {
		require.NoError(t, s.UpdateHeaderStatus(ctx, h.ID, timesheet.HeaderApproved))
		_, err := s.UpsertEntry(ctx, timesheet.Entry{TimesheetID: h.ID, WiwTimeID: 1000, BreakMinutes: 60})
		require.NoError(t, err)
		require.NoError(t, s.AppendEditLog(ctx, timesheet.EditLogEntry{TimesheetID: h.ID, WiwTimeID: 1000}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetHeader(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, timesheet.HeaderPending, got.Status)
	e, err := store.GetEntryByTimeID(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, 30, e.BreakMinutes)
	logged, err := store.HasEditLog(ctx, "", 1000)
	require.NoError(t, err)
	assert.False(t, logged)
}

func TestMemory_UpsertEntry_StableIDAcrossHeaders(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)
	b, err := store.UpsertHeader(ctx, header(2))
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	first, err := store.UpsertEntry(ctx, timesheet.Entry{TimesheetID: a.ID, WiwTimeID: 1000})
	require.NoError(t, err)
	moved, err := store.UpsertEntry(ctx, timesheet.Entry{TimesheetID: b.ID, WiwTimeID: 1000})
	require.NoError(t, err)

	assert.Equal(t, first.ID, moved.ID)
	left, err := store.ListEntries(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	deleted, err := store.DeleteHeaderIfEmpty(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	again, err := store.GetHeaderByKey(ctx, 1, week)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestMemory_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	h, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = store.WithTx(ctx, func(s timesheet.Store) error {
				_, err := s.UpsertEntry(ctx, timesheet.Entry{TimesheetID: h.ID, WiwTimeID: id, ClockedHours: generic.NewHours(1)})
				return err
			})
		}(int64(1000 + i))
	}
	wg.Wait()

	totals, err := store.SumEntryTotals(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, totals.Entries)
	assert.True(t, generic.NewHours(50).Equal(totals.ClockedHours))
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	h, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)
	_, err = store.UpsertEntry(ctx, timesheet.Entry{TimesheetID: h.ID, WiwTimeID: 1000})
	require.NoError(t, err)

	store.Reset()

	headers, err := store.ListHeaders(ctx, timesheet.HeaderFilter{})
	require.NoError(t, err)
	assert.Empty(t, headers)
	e, err := store.GetEntryByTimeID(ctx, 1000)
	require.NoError(t, err)
	assert.Nil(t, e)
}
