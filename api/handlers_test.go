/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Sync over HTTP (posted payload, lock contention)
- Timesheet listing and detail with flags
- Entry edit, approval flow and error mapping
- JWT authentication and role enforcement
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/lock"
	"github.com/warp/timesheet-engine/store/sqlite"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type apiFixture struct {
	store   *sqlite.Store
	locker  *lock.Local
	handler *Handler
	router  http.Handler
}

func newAPIFixture(t *testing.T, auth *Authenticator) *apiFixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	periods := generic.DefaultPayPeriods()
	locker := lock.NewLocal()
	runner := timesheet.NewRunner(timesheet.NewEngine(store, periods, nil), locker, nil)
	h := NewHandler(timesheet.NewService(store, nil), runner, loc, periods, nil)
	h.ResetStore = store.Reset

	return &apiFixture{
		store:   store,
		locker:  locker,
		handler: h,
		router:  NewRouter(h, RouterOptions{Auth: auth}),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// syncEndToEnd posts the end-to-end payload and returns Ada's timesheet.
func (f *apiFixture) syncEndToEnd(t *testing.T, token string) TimesheetDTO {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/sync", endToEndPayload(), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/timesheets?employee_id=1", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	headers := decode[[]HeaderDTO](t, rec)
	require.Len(t, headers, 1)

	rec = f.do(t, http.MethodGet, "/api/timesheets/"+headers[0].ID, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[TimesheetDTO](t, rec)
}

// =============================================================================
// SYNC
// =============================================================================

func TestSync_PostedPayloadCreatesTimesheets(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: Posting a batch for two employees
	// THEN: One header per employee, entries carry computed hours
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/sync", endToEndPayload(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[SyncResultDTO](t, rec)
	assert.Zero(t, result.Failed)
	assert.Len(t, result.Groups, 2)

	rec = f.do(t, http.MethodGet, "/api/timesheets", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	headers := decode[[]HeaderDTO](t, rec)
	require.Len(t, headers, 2)
	assert.Equal(t, "Ada Lovelace", headers[0].EmployeeName)
	assert.Equal(t, "Grace Hopper", headers[1].EmployeeName)
	assert.Equal(t, "2025-12-07", headers[0].WeekStartDate)
	assert.Equal(t, "2025-12-20", headers[0].WeekEndDate)
	assert.Equal(t, "pending", headers[0].Status)

	ada := f.syncEndToEnd(t, "")
	require.Len(t, ada.Entries, 2)
	first := ada.Entries[0]
	assert.Equal(t, int64(1000), first.WiwTimeID)
	assert.Equal(t, 60, first.BreakMinutes)
	assert.InDelta(t, 7.0, first.ClockedHours, 0.001)
	assert.InDelta(t, 7.0, first.PayableHours, 0.001)
	assert.InDelta(t, 7.0, first.ScheduledHours, 0.001)
	assert.Empty(t, first.Flags)
}

func TestSync_LockHeld_Conflict(t *testing.T) {
	f := newAPIFixture(t, nil)
	release, err := f.locker.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	rec := f.do(t, http.MethodPost, "/api/sync", endToEndPayload(), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSync_BadWindow(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/sync?from=2025-12-20&to=2025-12-07", endToEndPayload(), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/sync/pull", nil, "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code, "no source configured")
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestEditEntry_LogsAndRecomputes(t *testing.T) {
	f := newAPIFixture(t, nil)
	ada := f.syncEndToEnd(t, "")
	entryID := ada.Entries[0].ID

	in := "2025-12-08T09:30:00-05:00"
	rec := f.do(t, http.MethodPut, "/api/entries/"+entryID, EditEntryRequest{ClockIn: &in}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry := decode[EntryDTO](t, rec)
	assert.InDelta(t, 6.5, entry.ClockedHours, 0.001)
	assert.InDelta(t, 6.5, entry.PayableHours, 0.001)

	rec = f.do(t, http.MethodGet, "/api/entries/"+entryID+"/history", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]EditLogDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "clock_in", history[0].EditType)
	assert.Equal(t, LocalEditor.ID, history[0].EditorID)
}

func TestEditEntry_InvalidInput(t *testing.T) {
	f := newAPIFixture(t, nil)
	ada := f.syncEndToEnd(t, "")
	entryID := ada.Entries[0].ID

	bad := "half past nine"
	rec := f.do(t, http.MethodPut, "/api/entries/"+entryID, EditEntryRequest{ClockIn: &bad}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	out := "2025-12-08T08:00:00-05:00"
	rec = f.do(t, http.MethodPut, "/api/entries/"+entryID, EditEntryRequest{ClockOut: &out}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "clock out before clock in")

	rec = f.do(t, http.MethodPut, "/api/entries/missing", EditEntryRequest{ClockOut: &out}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.NotEmpty(t, body.Error)
}

func TestApprovalFlow(t *testing.T) {
	// GIVEN: Ada's synced timesheet with two pending entries
	// WHEN: Approving the header too early, then each entry, then the header
	// THEN: 409 first, then processed, then approved
	f := newAPIFixture(t, nil)
	ada := f.syncEndToEnd(t, "")

	rec := f.do(t, http.MethodPost, "/api/timesheets/"+ada.ID+"/approve", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, e := range ada.Entries {
		rec = f.do(t, http.MethodPost, "/api/entries/"+e.ID+"/approve", nil, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "approved", decode[EntryDTO](t, rec).Status)
	}

	rec = f.do(t, http.MethodGet, "/api/timesheets/"+ada.ID, nil, "")
	assert.Equal(t, "processed", decode[TimesheetDTO](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/timesheets/"+ada.ID+"/approve", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decode[HeaderDTO](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/api/timesheets?status=approved", nil, "")
	assert.Len(t, decode[[]HeaderDTO](t, rec), 1)
}

func TestExtraTimeAndNotes(t *testing.T) {
	f := newAPIFixture(t, nil)
	ada := f.syncEndToEnd(t, "")
	entryID := ada.Entries[1].ID

	rec := f.do(t, http.MethodPut, "/api/entries/"+entryID+"/extra-time", ExtraTimeRequest{Status: "confirmed"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode[EntryDTO](t, rec).ExtraTimeStatus)

	rec = f.do(t, http.MethodPut, "/api/entries/"+entryID+"/extra-time", ExtraTimeRequest{Status: "maybe"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/entries/"+entryID+"/notes", NotesRequest{Notes: "stayed for inventory"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stayed for inventory", decode[EntryDTO](t, rec).Notes)
}

func TestResetEntry_NextSyncRestoresRemote(t *testing.T) {
	f := newAPIFixture(t, nil)
	ada := f.syncEndToEnd(t, "")
	entryID := ada.Entries[0].ID

	in := "2025-12-08T10:00:00-05:00"
	rec := f.do(t, http.MethodPut, "/api/entries/"+entryID, EditEntryRequest{ClockIn: &in}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/entries/"+entryID+"/reset", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	again := f.syncEndToEnd(t, "")
	require.Equal(t, entryID, again.Entries[0].ID)
	require.NotNil(t, again.Entries[0].ClockIn)
	assert.Equal(t, "2025-12-08T09:00:00-05:00", *again.Entries[0].ClockIn)
}

// =============================================================================
// AUTH
// =============================================================================

func TestAuth_RolesAndTokens(t *testing.T) {
	auth := NewAuthenticator("a-test-secret-of-sufficient-length")
	f := newAPIFixture(t, auth)

	manager, err := auth.Issue(timesheet.Editor{ID: "mgr-1", Name: "Morgan Manager", Role: timesheet.RoleManager}, time.Hour)
	require.NoError(t, err)
	employee, err := auth.Issue(timesheet.Editor{ID: "emp-1", Name: "Ada Lovelace", Role: timesheet.RoleEmployee}, time.Hour)
	require.NoError(t, err)
	expired, err := auth.Issue(timesheet.Editor{ID: "mgr-1", Role: timesheet.RoleManager}, -time.Minute)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/timesheets", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing token")

	rec = f.do(t, http.MethodGet, "/api/timesheets", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "expired token")

	rec = f.do(t, http.MethodGet, "/api/timesheets", nil, "not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ada := f.syncEndToEnd(t, manager)
	entryID := ada.Entries[0].ID

	// Employees can read but not modify.
	rec = f.do(t, http.MethodGet, "/api/entries/"+entryID, nil, employee)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/entries/"+entryID+"/approve", nil, employee)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/entries/"+entryID+"/approve", nil, manager)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/entries/"+entryID+"/history", nil, manager)
	history := decode[[]EditLogDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "mgr-1", history[0].EditorID)
	assert.Equal(t, "Morgan Manager", history[0].EditorName)

	rec = f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, "health check is public")
}

func TestAuthenticator_RejectsForeignSignature(t *testing.T) {
	ours := NewAuthenticator("a-test-secret-of-sufficient-length")
	theirs := NewAuthenticator("some-other-secret-entirely-here")

	token, err := theirs.Issue(timesheet.Editor{ID: "x", Role: timesheet.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = ours.Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	editor, err := theirs.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, timesheet.RoleAdmin, editor.Role)
}
