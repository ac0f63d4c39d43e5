/*
handlers.go - HTTP API handlers for the timesheet ledger

PURPOSE:
  Exposes sync, review and approval via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the timesheet
  package.

ENDPOINTS:
  Sync:
    POST   /api/sync                          Merge a posted remote batch
    POST   /api/sync/pull?from=&to=           Fetch from the configured source and merge

  Timesheets:
    GET    /api/timesheets                    List headers (employee_id, from, to, status)
    GET    /api/timesheets/{id}               Header with entries and active flags
    POST   /api/timesheets/{id}/approve       Approve header (all entries approved)

  Entries:
    GET    /api/entries/{id}                  One entry
    PUT    /api/entries/{id}                  Edit clock values / break
    POST   /api/entries/{id}/approve          Approve entry
    POST   /api/entries/{id}/reset            Drop local edits, next sync restores remote values
    PUT    /api/entries/{id}/extra-time       Confirm or deny extra time
    PUT    /api/entries/{id}/notes            Replace notes
    GET    /api/entries/{id}/flags            Active flags
    GET    /api/entries/{id}/history          Edit log

  Scenarios:
    GET    /api/scenarios                     List demo scenarios
    GET    /api/scenarios/current             Currently loaded scenario
    POST   /api/scenarios/load                Reset and sync a canned batch
    POST   /api/scenarios/reset               Clear the ledger

ERROR HANDLING:
  Errors are returned as JSON {error, details} with status:
  - 400: Malformed input, invalid edit
  - 401: Missing or invalid token
  - 403: Editor may not modify
  - 404: Header or entry not found
  - 409: Not all entries approved, empty timesheet, sync in progress
  - 500: Internal errors, failed sync groups

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Editor identity
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/remote"
	"github.com/warp/timesheet-engine/timesheet"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *timesheet.Service
	Runner   *timesheet.Runner
	Source   timesheet.Source // nil disables /api/sync/pull
	Location *time.Location
	Periods  generic.PayPeriodConfig
	Logger   *zap.Logger

	// ResetStore clears every row; used by scenarios.
	ResetStore func(ctx context.Context) error

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. Runner must wrap an engine over the same
// store as service.
func NewHandler(service *timesheet.Service, runner *timesheet.Runner, loc *time.Location, periods generic.PayPeriodConfig, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: service, Runner: runner, Location: loc, Periods: periods, Logger: logger}
}

// =============================================================================
// SYNC HANDLERS
// =============================================================================

// Sync merges the posted remote payload. Optional from/to query parameters
// set the cleanup window.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	window, err := h.windowFromQuery(r, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from/to (use YYYY-MM-DD)", err)
		return
	}
	payload, err := remote.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := payload.Input(h.Location)
	in.Window = window
	result, err := h.Runner.Run(r.Context(), in)
	h.writeSyncResult(w, result, err)
}

// PullSync fetches the window from the configured source and merges it.
// Without from/to the current and previous pay periods are pulled.
func (h *Handler) PullSync(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		writeError(w, http.StatusNotImplemented, "No remote source configured", nil)
		return
	}
	window, err := h.windowFromQuery(r, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from/to (use YYYY-MM-DD)", err)
		return
	}
	result, err := h.Runner.RunFrom(r.Context(), h.Source, *window)
	h.writeSyncResult(w, result, err)
}

func (h *Handler) writeSyncResult(w http.ResponseWriter, result *timesheet.SyncResult, err error) {
	if result == nil {
		if errors.Is(err, timesheet.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "A sync pass is already running", err)
			return
		}
		writeError(w, http.StatusBadGateway, "Sync failed", err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, toSyncResultDTO(result))
}

// windowFromQuery reads from/to. When both are absent it returns nil, or the
// default window when fallback is set.
func (h *Handler) windowFromQuery(r *http.Request, fallback bool) (*generic.Period, error) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" && to == "" {
		if !fallback {
			return nil, nil
		}
		window := DefaultWindow(h.Periods, time.Now().In(h.Location), 2)
		return &window, nil
	}
	start, err := generic.ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := generic.ParseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, errors.New("to is before from")
	}
	return &generic.Period{Start: start, End: end}, nil
}

// =============================================================================
// TIMESHEET HANDLERS
// =============================================================================

// ListTimesheets returns headers matching the query filters.
func (h *Handler) ListTimesheets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter timesheet.HeaderFilter
	if v := q.Get("employee_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid employee_id", err)
			return
		}
		filter.EmployeeID = id
	}
	for name, dst := range map[string]**generic.TimePoint{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(name); v != "" {
			d, err := generic.ParseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid "+name+" (use YYYY-MM-DD)", err)
				return
			}
			*dst = &d
		}
	}
	filter.Status = timesheet.HeaderStatus(q.Get("status"))

	headers, err := h.Service.ListTimesheets(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list timesheets", err)
		return
	}
	dtos := make([]HeaderDTO, len(headers))
	for i, hdr := range headers {
		dtos[i] = toHeaderDTO(hdr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTimesheet returns a header with entries and each entry's active flags.
func (h *Handler) GetTimesheet(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetTimesheet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get timesheet", err)
		return
	}

	dto := TimesheetDTO{HeaderDTO: toHeaderDTO(view.Header), Entries: make([]EntryDTO, len(view.Entries))}
	for i, e := range view.Entries {
		dto.Entries[i] = toEntryDTO(e)
		flags, err := h.Service.ActiveFlags(r.Context(), e.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load flags", err)
			return
		}
		dto.Entries[i].Flags = toFlagDTOs(flags)
	}
	writeJSON(w, http.StatusOK, dto)
}

// ApproveTimesheet approves a header whose entries are all approved.
func (h *Handler) ApproveTimesheet(w http.ResponseWriter, r *http.Request) {
	hdr, err := h.Service.ApproveHeader(r.Context(), chi.URLParam(r, "id"), EditorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Failed to approve timesheet", err)
		return
	}
	writeJSON(w, http.StatusOK, toHeaderDTO(*hdr))
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// GetEntry returns one entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*e))
}

// EditEntry changes clock values and/or break.
func (h *Handler) EditEntry(w http.ResponseWriter, r *http.Request) {
	var req EditEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	edit := timesheet.EntryEdit{BreakMinutes: req.BreakMinutes}
	var err error
	if edit.ClockIn, err = generic.ParseLocalPtr(req.ClockIn, h.Location); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid clock_in", err)
		return
	}
	if edit.ClockOut, err = generic.ParseLocalPtr(req.ClockOut, h.Location); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid clock_out", err)
		return
	}

	e, err := h.Service.EditEntry(r.Context(), chi.URLParam(r, "id"), edit, EditorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Failed to edit entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*e))
}

// ApproveEntry approves one entry.
func (h *Handler) ApproveEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.ApproveEntry(r.Context(), chi.URLParam(r, "id"), EditorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Failed to approve entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*e))
}

// ResetEntry drops local edits; the next sync pass restores remote values.
func (h *Handler) ResetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.ResetEntryFromRemote(r.Context(), chi.URLParam(r, "id"), EditorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Failed to reset entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*e))
}

// SetExtraTime confirms or denies time past the scheduled end.
func (h *Handler) SetExtraTime(w http.ResponseWriter, r *http.Request) {
	var req ExtraTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	e, err := h.Service.SetExtraTimeStatus(r.Context(), chi.URLParam(r, "id"), timesheet.ExtraTimeStatus(req.Status), EditorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Failed to set extra time status", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*e))
}

// SetNotes replaces the entry's notes.
func (h *Handler) SetNotes(w http.ResponseWriter, r *http.Request) {
	var req NotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	e, err := h.Service.SetNotes(r.Context(), chi.URLParam(r, "id"), req.Notes, EditorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Failed to set notes", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*e))
}

// GetEntryFlags returns the entry's active flags.
func (h *Handler) GetEntryFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := h.Service.ActiveFlags(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get flags", err)
		return
	}
	writeJSON(w, http.StatusOK, toFlagDTOs(flags))
}

// GetEntryHistory returns the entry's edit log.
func (h *Handler) GetEntryHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.EditHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get edit history", err)
		return
	}
	writeJSON(w, http.StatusOK, toEditLogDTOs(rows))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps timesheet sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, timesheet.ErrUnauthorized):
		writeError(w, http.StatusForbidden, message, err)
	case timesheet.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, timesheet.ErrNotAllApproved),
		errors.Is(err, timesheet.ErrEmptyTimesheet),
		errors.Is(err, timesheet.ErrSyncInProgress):
		writeError(w, http.StatusConflict, message, err)
	case timesheet.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
