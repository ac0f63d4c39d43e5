package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/store/sqlite"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var (
	week    = generic.NewTimePoint(2025, time.December, 7)
	weekEnd = generic.NewTimePoint(2025, time.December, 20)
	created = time.Date(2025, time.December, 9, 12, 0, 0, 0, time.UTC)
	eastern = time.FixedZone("EST", -5*3600)
)

func header(employeeID int64) timesheet.Header {
	return timesheet.Header{
		EmployeeID:          employeeID,
		EmployeeName:        "Ada Lovelace",
		WeekStartDate:       week,
		WeekEndDate:         weekEnd,
		TotalClockedHours:   generic.NewHours(7),
		TotalScheduledHours: generic.NewHours(7),
		Status:              timesheet.HeaderPending,
		CreatedAt:           created,
		UpdatedAt:           created,
	}
}

func entry(headerID string, timeID int64, hour int) timesheet.Entry {
	in := time.Date(2025, time.December, 8, hour, 0, 0, 0, eastern)
	out := in.Add(8 * time.Hour)
	return timesheet.Entry{
		TimesheetID:    headerID,
		WiwTimeID:      timeID,
		Date:           generic.DateOf(in),
		ClockIn:        &in,
		ClockOut:       &out,
		BreakMinutes:   60,
		ScheduledHours: generic.NewHours(7),
		ClockedHours:   generic.NewHours(7),
		PayableHours:   generic.NewHours(6.75),
		Status:         timesheet.EntryPending,
		LocationName:   "Main St",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

// =============================================================================
// HEADERS
// =============================================================================

func TestSQLite_UpsertHeader_NaturalKey(t *testing.T) {
	// GIVEN: A header that was approved after insert
	// WHEN: Upserting the same (employee, week) again with new totals
	// THEN: Same id, new totals, status untouched
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.NoError(t, store.UpdateHeaderStatus(ctx, first.ID, timesheet.HeaderApproved))

	h := header(1)
	h.TotalClockedHours = generic.NewHours(9.5)
	h.Status = timesheet.HeaderPending
	second, err := store.UpsertHeader(ctx, h)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, timesheet.HeaderApproved, second.Status)
	assert.True(t, generic.NewHours(9.5).Equal(second.TotalClockedHours))
	assert.Equal(t, "2025-12-07", second.WeekStartDate.String())
	assert.Equal(t, "2025-12-20", second.WeekEndDate.String())

	byKey, err := store.GetHeaderByKey(ctx, 1, week)
	require.NoError(t, err)
	assert.Equal(t, first.ID, byKey.ID)
}

func TestSQLite_GetHeader_NotFoundIsNil(t *testing.T) {
	store := newTestStore(t)

	h, err := store.GetHeader(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, h)

	e, err := store.GetEntryByTimeID(context.Background(), 12345)
	assert.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_ListHeaders_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)
	_, err = store.UpsertHeader(ctx, header(2))
	require.NoError(t, err)
	later := header(1)
	later.WeekStartDate = generic.NewTimePoint(2025, time.December, 21)
	later.WeekEndDate = generic.NewTimePoint(2026, time.January, 3)
	_, err = store.UpsertHeader(ctx, later)
	require.NoError(t, err)

	all, err := store.ListHeaders(ctx, timesheet.HeaderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := store.ListHeaders(ctx, timesheet.HeaderFilter{EmployeeID: 1})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	to := week
	first, err := store.ListHeaders(ctx, timesheet.HeaderFilter{From: &week, To: &to})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].EmployeeID)
	assert.Equal(t, int64(2), first[1].EmployeeID)
}

func TestSQLite_UpdateHeaderStatus_Missing(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateHeaderStatus(context.Background(), "missing", timesheet.HeaderApproved)
	assert.ErrorIs(t, err, timesheet.ErrNotFound)
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestSQLite_UpsertEntry_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	h, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)

	e := entry(h.ID, 1000, 9)
	shiftID := int64(500)
	e.WiwShiftID = &shiftID
	start := time.Date(2025, time.December, 8, 9, 0, 0, 0, eastern)
	e.ScheduledStart = &start
	e.ExtraTimeStatus = timesheet.ExtraTimeConfirmed

	saved, err := store.UpsertEntry(ctx, e)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := store.GetEntry(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1000), got.WiwTimeID)
	assert.Equal(t, int64(500), *got.WiwShiftID)
	assert.True(t, got.ClockIn.Equal(*e.ClockIn))
	assert.Equal(t, 9, got.ClockIn.Hour(), "offset preserved")
	assert.True(t, got.ScheduledStart.Equal(start))
	assert.Nil(t, got.ScheduledEnd)
	assert.Equal(t, "2025-12-08", got.Date.String())
	assert.True(t, generic.NewHours(6.75).Equal(got.PayableHours))
	assert.True(t, got.AdditionalHours.IsZero())
	assert.Equal(t, timesheet.ExtraTimeConfirmed, got.ExtraTimeStatus)
	assert.Equal(t, "Main St", got.LocationName)
}

func TestSQLite_UpsertEntry_ByTimeID_KeepsIDAndCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	h, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)

	first, err := store.UpsertEntry(ctx, entry(h.ID, 1000, 9))
	require.NoError(t, err)

	update := entry(h.ID, 1000, 10)
	update.CreatedAt = created.Add(time.Hour)
	update.UpdatedAt = created.Add(time.Hour)
	update.ClockOut = nil
	second, err := store.UpsertEntry(ctx, update)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CreatedAt.Equal(created))
	assert.True(t, second.UpdatedAt.Equal(created.Add(time.Hour)))
	assert.Equal(t, 10, second.ClockIn.Hour())
	assert.Nil(t, second.ClockOut)
	assert.Equal(t, timesheet.ExtraTimeUnset, second.ExtraTimeStatus)
}

func TestSQLite_DeleteEntriesNotIn_ThenHeaderIfEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	h, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)
	for i, id := range []int64{1000, 1001, 1002} {
		_, err := store.UpsertEntry(ctx, entry(h.ID, id, 8+i))
		require.NoError(t, err)
	}

	deleted, err := store.DeleteHeaderIfEmpty(ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "header still has entries")

	removed, err := store.DeleteEntriesNotIn(ctx, h.ID, []int64{1001, 9999})
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 1002}, removed)

	totals, err := store.SumEntryTotals(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Entries)
	assert.True(t, generic.NewHours(7).Equal(totals.ClockedHours))

	removed, err = store.DeleteEntriesNotIn(ctx, h.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1001}, removed)

	deleted, err = store.DeleteHeaderIfEmpty(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := store.GetHeader(ctx, h.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_SumEntryTotals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	h, err := store.UpsertHeader(ctx, header(1))
	require.NoError(t, err)

	a := entry(h.ID, 1000, 9)
	a.ClockedHours, a.ScheduledHours = generic.NewHours(7.25), generic.NewHours(7)
	b := entry(h.ID, 1001, 9)
	b.ClockedHours, b.ScheduledHours = generic.NewHours(3.33), generic.NewHours(4)
	_, err = store.UpsertEntry(ctx, a)
	require.NoError(t, err)
	_, err = store.UpsertEntry(ctx, b)
	require.NoError(t, err)

	totals, err := store.SumEntryTotals(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.58", totals.ClockedHours.StringFixed(2))
	assert.Equal(t, "11.00", totals.ScheduledHours.StringFixed(2))
	assert.Equal(t, 2, totals.Entries)
}

// =============================================================================
// EDIT LOG
// =============================================================================

func TestSQLite_EditLog_MatchesEntryOrTimeID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendEditLog(ctx, timesheet.EditLogEntry{
		TimesheetID: "h1", EntryID: "e1", WiwTimeID: 1000,
		EditType: timesheet.EditClockIn, OldValue: "09:00", NewValue: "09:20",
		EditorID: "mgr-1", EmployeeID: 1, WeekStart: week, CreatedAt: created,
	}))
	require.NoError(t, store.AppendEditLog(ctx, timesheet.EditLogEntry{
		TimesheetID: "h1", EditType: timesheet.EditApproveHeader,
		EditorID: "mgr-1", EmployeeID: 1, WeekStart: week, CreatedAt: created,
	}))

	for _, tc := range []struct {
		entryID string
		timeID  int64
		want    bool
	}{
		{"e1", 0, true},
		{"", 1000, true},
		{"other", 1000, true},
		{"other", 2000, false},
		{"", 0, false},
	} {
		got, err := store.HasEditLog(ctx, tc.entryID, tc.timeID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "entry=%q time=%d", tc.entryID, tc.timeID)
	}

	rows, err := store.ListEditLog(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "09:20", rows[0].NewValue)
	assert.Equal(t, int64(1000), rows[0].WiwTimeID)
	assert.Equal(t, "2025-12-07", rows[0].WeekStart.String())

	n, err := store.DeleteEditLogs(ctx, "e1", 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "header-level row survives")

	got, err := store.HasEditLog(ctx, "e1", 1000)
	require.NoError(t, err)
	assert.False(t, got)
}

// =============================================================================
// FLAGS
// =============================================================================

func TestSQLite_UpsertFlag_KeepsCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFlag(ctx, timesheet.Flag{
		WiwTimeID: 1000, FlagType: timesheet.FlagClockInLate,
		Description: "late", Status: timesheet.FlagActive, UpdatedAt: created,
	}))
	require.NoError(t, store.UpsertFlag(ctx, timesheet.Flag{
		WiwTimeID: 1000, FlagType: timesheet.FlagClockInLate,
		Description: "late", Status: timesheet.FlagResolved, UpdatedAt: created.Add(time.Hour),
	}))

	flags, err := store.ListFlags(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, timesheet.FlagResolved, flags[0].Status)
	assert.True(t, flags[0].CreatedAt.Equal(created))
	assert.True(t, flags[0].UpdatedAt.Equal(created.Add(time.Hour)))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTx_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s timesheet.Store) error {
		h, err := s.UpsertHeader(ctx, header(1))
		require.NoError(t, err)
		_, err = s.UpsertEntry(ctx, entry(h.ID, 1000, 9))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	hs, err := store.ListHeaders(ctx, timesheet.HeaderFilter{})
	require.NoError(t, err)
	assert.Empty(t, hs)
	e, err := store.GetEntryByTimeID(ctx, 1000)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_WithTx_Commit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s timesheet.Store) error {
		_, err := s.UpsertHeader(ctx, header(1))
		return err
	})
	require.NoError(t, err)

	h, err := store.GetHeaderByKey(ctx, 1, week)
	require.NoError(t, err)
	assert.NotNil(t, h)
}

// =============================================================================
// ENGINE OVER SQLITE
// =============================================================================

func TestSQLite_EngineSync_IdempotentAndCascading(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	engine := timesheet.NewEngine(store, generic.DefaultPayPeriods(), nil)
	shiftID := int64(500)
	end := "2025-12-08 17:00:00"
	in := timesheet.SyncInput{
		Records: []timesheet.RemoteTimeRecord{{
			ID: 1000, UserID: 1, ShiftID: &shiftID,
			StartTime: "2025-12-08 09:30:00", EndTime: &end,
		}},
		Users:    map[int64]timesheet.RemoteUser{1: {ID: 1, FirstName: "Ada", LastName: "Lovelace"}},
		Shifts:   map[int64]timesheet.RemoteShift{500: {ID: 500, StartTime: "2025-12-08 09:00:00", EndTime: "2025-12-08 17:00:00"}},
		Location: eastern,
	}

	_, err := engine.Sync(ctx, in)
	require.NoError(t, err)
	first, err := store.GetEntryByTimeID(ctx, 1000)
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = engine.Sync(ctx, in)
	require.NoError(t, err)
	second, err := store.GetEntryByTimeID(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	hs, err := store.ListHeaders(ctx, timesheet.HeaderFilter{})
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "6.50", hs[0].TotalClockedHours.StringFixed(2))

	flags, err := store.ListFlags(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, flags, 2) // late clock-in, scheduled/payable mismatch

	window := generic.Period{Start: week, End: weekEnd}
	_, err = engine.Sync(ctx, timesheet.SyncInput{Users: in.Users, Location: eastern, Window: &window})
	require.NoError(t, err)

	hs, err = store.ListHeaders(ctx, timesheet.HeaderFilter{})
	require.NoError(t, err)
	assert.Empty(t, hs)
	flags, err = store.ListFlags(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	for _, f := range flags {
		assert.Equal(t, timesheet.FlagResolved, f.Status)
	}
}
