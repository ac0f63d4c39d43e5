/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides canned remote batches that exercise the sync pass end to end.
	Each scenario clears the ledger and runs one or more sync passes
	through the same Runner the API and scheduler use.

AVAILABLE SCENARIOS:

	end-to-end:        Two employees, scheduled shifts, a split shift
	anomalies:         Late clock-in, early clock-out, missing clock-out
	edit-preservation: Manager edit survives a re-sync with changed remote values
	period-boundary:   Saturday and Sunday punches landing in two pay periods

HOW SCENARIOS WORK:
 1. Reset the ledger
 2. Build a remote payload (times, users, shifts)
 3. Run a sync pass
 4. Optionally apply user operations and sync again

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "anomalies"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Sync handlers
  - remote/payload.go: Payload format
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/timesheet-engine/remote"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "end-to-end",
		Name:        "End to End",
		Description: "Two employees on scheduled 09:00-17:00 shifts, one with a split shift",
	},
	{
		ID:          "anomalies",
		Name:        "Anomalies",
		Description: "Late clock-in, early clock-out and a missing clock-out raise flags",
	},
	{
		ID:          "edit-preservation",
		Name:        "Edit Preservation",
		Description: "A manager's clock-in correction survives a re-sync with different remote values",
	},
	{
		ID:          "period-boundary",
		Name:        "Pay Period Boundary",
		Description: "Saturday and Sunday punches land in different pay periods",
	},
}

// scenarioEditor applies user operations inside scenarios.
var scenarioEditor = timesheet.Editor{ID: "scenario", Name: "Scenario Loader", Role: timesheet.RoleManager}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the ledger and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(ctx context.Context) error
	switch req.ScenarioID {
	case "end-to-end":
		load = h.syncScenario(endToEndPayload)
	case "anomalies":
		load = h.syncScenario(anomaliesPayload)
	case "edit-preservation":
		load = h.loadEditPreservationScenario
	case "period-boundary":
		load = h.syncScenario(periodBoundaryPayload)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if h.ResetStore == nil {
		return fmt.Errorf("store does not support reset")
	}
	if err := h.ResetStore(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) syncScenario(build func() remote.Payload) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := h.Runner.Run(ctx, build().Input(h.Location))
		return err
	}
}

func (h *Handler) loadEditPreservationScenario(ctx context.Context) error {
	// First pass: Ada clocks in 09:20.
	first := editPreservationPayload(9, 20)
	if _, err := h.Runner.Run(ctx, first.Input(h.Location)); err != nil {
		return err
	}

	entry, err := h.Service.Store.GetEntryByTimeID(ctx, 3000)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("scenario entry 3000 was not synced")
	}

	// Manager corrects the clock-in to 09:00.
	corrected := entry.ClockIn.Add(-20 * time.Minute)
	if _, err := h.Service.EditEntry(ctx, entry.ID, timesheet.EntryEdit{ClockIn: &corrected}, scenarioEditor); err != nil {
		return err
	}

	// Remote now reports 09:25; the local correction is kept.
	second := editPreservationPayload(9, 25)
	_, err = h.Runner.Run(ctx, second.Input(h.Location))
	return err
}

// =============================================================================
// PAYLOAD BUILDERS
// =============================================================================

// scenarioZone is the fixed offset scenario timestamps are written in.
var scenarioZone = time.FixedZone("EST", -5*3600)

func stamp(day, hour, minute int) string {
	return time.Date(2025, time.December, day, hour, minute, 0, 0, scenarioZone).Format(time.RFC1123Z)
}

func stampPtr(day, hour, minute int) *string {
	s := stamp(day, hour, minute)
	return &s
}

func idPtr(id int64) *int64 { return &id }

func shift(id int64, day int) timesheet.RemoteShift {
	return timesheet.RemoteShift{ID: id, StartTime: stamp(day, 9, 0), EndTime: stamp(day, 17, 0)}
}

func punch(id, user int64, shiftID *int64, day, inH, inM, outH, outM int) timesheet.RemoteTimeRecord {
	return timesheet.RemoteTimeRecord{
		ID:           id,
		UserID:       user,
		ShiftID:      shiftID,
		StartTime:    stamp(day, inH, inM),
		EndTime:      stampPtr(day, outH, outM),
		LocationID:   1,
		LocationName: "Main St",
	}
}

var demoUsers = []timesheet.RemoteUser{
	{ID: 1, FirstName: "Ada", LastName: "Lovelace"},
	{ID: 2, FirstName: "Grace", LastName: "Hopper"},
}

func endToEndPayload() remote.Payload {
	return remote.Payload{
		Users:  demoUsers,
		Shifts: []timesheet.RemoteShift{shift(500, 8), shift(501, 8), shift(502, 9)},
		Times: []timesheet.RemoteTimeRecord{
			punch(1000, 1, idPtr(500), 8, 9, 0, 17, 0),
			// Split shift: morning and afternoon punches against one schedule.
			punch(1001, 2, idPtr(501), 8, 9, 0, 12, 0),
			punch(1002, 2, idPtr(501), 8, 13, 0, 17, 0),
			punch(1003, 1, idPtr(502), 9, 8, 55, 17, 5),
		},
	}
}

func anomaliesPayload() remote.Payload {
	missingOut := punch(2002, 2, idPtr(602), 10, 9, 0, 0, 0)
	missingOut.EndTime = nil
	return remote.Payload{
		Users:  demoUsers,
		Shifts: []timesheet.RemoteShift{shift(600, 10), shift(601, 11), shift(602, 10)},
		Times: []timesheet.RemoteTimeRecord{
			punch(2000, 1, idPtr(600), 10, 9, 40, 17, 0),
			punch(2001, 1, idPtr(601), 11, 9, 0, 15, 30),
			missingOut,
		},
	}
}

func editPreservationPayload(inH, inM int) remote.Payload {
	return remote.Payload{
		Users:  demoUsers[:1],
		Shifts: []timesheet.RemoteShift{shift(700, 15)},
		Times:  []timesheet.RemoteTimeRecord{punch(3000, 1, idPtr(700), 15, inH, inM, 17, 0)},
	}
}

func periodBoundaryPayload() remote.Payload {
	return remote.Payload{
		Users: demoUsers[:1],
		Times: []timesheet.RemoteTimeRecord{
			punch(4000, 1, nil, 20, 10, 0, 14, 0),
			punch(4001, 1, nil, 21, 10, 0, 14, 0),
		},
	}
}
