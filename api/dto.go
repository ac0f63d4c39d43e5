/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the timesheet model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Dates are YYYY-MM-DD. Timestamps are RFC3339 with the offset of the
  configured timezone. Hours are numbers rounded to 2 decimal places.

VALIDATION:
  Validation is done in handlers and the service, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - remote/payload.go: POST /api/sync body
*/
package api

import (
	"time"

	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// TIMESHEETS
// =============================================================================

// HeaderDTO represents a timesheet header.
type HeaderDTO struct {
	ID                  string  `json:"id"`
	EmployeeID          int64   `json:"employee_id"`
	EmployeeName        string  `json:"employee_name"`
	WeekStartDate       string  `json:"week_start_date"`
	WeekEndDate         string  `json:"week_end_date"`
	TotalScheduledHours float64 `json:"total_scheduled_hours"`
	TotalClockedHours   float64 `json:"total_clocked_hours"`
	Status              string  `json:"status"`
	UpdatedAt           string  `json:"updated_at"`
}

// EntryDTO represents one timesheet entry.
type EntryDTO struct {
	ID              string    `json:"id"`
	TimesheetID     string    `json:"timesheet_id"`
	WiwTimeID       int64     `json:"wiw_time_id"`
	WiwShiftID      *int64    `json:"wiw_shift_id,omitempty"`
	Date            string    `json:"date"`
	ClockIn         *string   `json:"clock_in"`
	ClockOut        *string   `json:"clock_out"`
	ScheduledStart  *string   `json:"scheduled_start,omitempty"`
	ScheduledEnd    *string   `json:"scheduled_end,omitempty"`
	BreakMinutes    int       `json:"break_minutes"`
	ScheduledHours  float64   `json:"scheduled_hours"`
	ClockedHours    float64   `json:"clocked_hours"`
	PayableHours    float64   `json:"payable_hours"`
	AdditionalHours float64   `json:"additional_hours"`
	ExtraTimeStatus string    `json:"extra_time_status,omitempty"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	LocationName    string    `json:"location_name,omitempty"`
	Flags           []FlagDTO `json:"flags,omitempty"`
}

// TimesheetDTO is a header with its entries.
type TimesheetDTO struct {
	HeaderDTO
	Entries []EntryDTO `json:"entries"`
}

// FlagDTO is one active or resolved anomaly.
type FlagDTO struct {
	Type        int    `json:"type"`
	Description string `json:"description"`
	Status      string `json:"status"`
	UpdatedAt   string `json:"updated_at"`
}

// EditLogDTO is one audit row.
type EditLogDTO struct {
	EditType   string `json:"edit_type"`
	OldValue   string `json:"old_value"`
	NewValue   string `json:"new_value"`
	EditorID   string `json:"editor_id"`
	EditorName string `json:"editor_name"`
	CreatedAt  string `json:"created_at"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// EditEntryRequest changes clock values and/or break. Omitted fields are kept.
type EditEntryRequest struct {
	ClockIn      *string `json:"clock_in"`
	ClockOut     *string `json:"clock_out"`
	BreakMinutes *int    `json:"break_minutes"`
}

// ExtraTimeRequest confirms or denies time past the scheduled end.
type ExtraTimeRequest struct {
	Status string `json:"status"`
}

// NotesRequest replaces the entry's notes.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// =============================================================================
// SYNC
// =============================================================================

// SyncResultDTO reports one sync pass.
type SyncResultDTO struct {
	StartedAt  string           `json:"started_at"`
	FinishedAt string           `json:"finished_at"`
	Groups     []GroupResultDTO `json:"groups"`
	Skipped    []string         `json:"skipped,omitempty"`
	Failed     int              `json:"failed"`
}

// GroupResultDTO is the outcome of one (employee, pay period) group.
type GroupResultDTO struct {
	EmployeeID      int64  `json:"employee_id"`
	WeekStart       string `json:"week_start"`
	HeaderID        string `json:"header_id,omitempty"`
	EntriesUpserted int    `json:"entries_upserted"`
	EntriesDeleted  int    `json:"entries_deleted"`
	FlagsWritten    int    `json:"flags_written"`
	HeaderDeleted   bool   `json:"header_deleted,omitempty"`
	Error           string `json:"error,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func hoursValue(h generic.Hours) float64 {
	return generic.RoundHours(h).InexactFloat64()
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toHeaderDTO(h timesheet.Header) HeaderDTO {
	return HeaderDTO{
		ID:                  h.ID,
		EmployeeID:          h.EmployeeID,
		EmployeeName:        h.EmployeeName,
		WeekStartDate:       h.WeekStartDate.String(),
		WeekEndDate:         h.WeekEndDate.String(),
		TotalScheduledHours: hoursValue(h.TotalScheduledHours),
		TotalClockedHours:   hoursValue(h.TotalClockedHours),
		Status:              string(h.Status),
		UpdatedAt:           h.UpdatedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e timesheet.Entry) EntryDTO {
	return EntryDTO{
		ID:              e.ID,
		TimesheetID:     e.TimesheetID,
		WiwTimeID:       e.WiwTimeID,
		WiwShiftID:      e.WiwShiftID,
		Date:            e.Date.String(),
		ClockIn:         timeString(e.ClockIn),
		ClockOut:        timeString(e.ClockOut),
		ScheduledStart:  timeString(e.ScheduledStart),
		ScheduledEnd:    timeString(e.ScheduledEnd),
		BreakMinutes:    e.BreakMinutes,
		ScheduledHours:  hoursValue(e.ScheduledHours),
		ClockedHours:    hoursValue(e.ClockedHours),
		PayableHours:    hoursValue(e.PayableHours),
		AdditionalHours: hoursValue(e.AdditionalHours),
		ExtraTimeStatus: string(e.ExtraTimeStatus),
		Status:          string(e.Status),
		Notes:           e.Notes,
		LocationName:    e.LocationName,
	}
}

func toFlagDTOs(flags []timesheet.Flag) []FlagDTO {
	out := make([]FlagDTO, len(flags))
	for i, f := range flags {
		out[i] = FlagDTO{
			Type:        int(f.FlagType),
			Description: f.Description,
			Status:      string(f.Status),
			UpdatedAt:   f.UpdatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func toEditLogDTOs(rows []timesheet.EditLogEntry) []EditLogDTO {
	out := make([]EditLogDTO, len(rows))
	for i, r := range rows {
		out[i] = EditLogDTO{
			EditType:   string(r.EditType),
			OldValue:   r.OldValue,
			NewValue:   r.NewValue,
			EditorID:   r.EditorID,
			EditorName: r.EditorName,
			CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func toSyncResultDTO(r *timesheet.SyncResult) SyncResultDTO {
	dto := SyncResultDTO{
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		FinishedAt: r.FinishedAt.Format(time.RFC3339),
		Groups:     make([]GroupResultDTO, len(r.Groups)),
		Failed:     len(r.Failed()),
	}
	for i, g := range r.Groups {
		dto.Groups[i] = GroupResultDTO{
			EmployeeID:      g.EmployeeID,
			WeekStart:       g.WeekStart.String(),
			HeaderID:        g.HeaderID,
			EntriesUpserted: g.EntriesUpserted,
			EntriesDeleted:  g.EntriesDeleted,
			FlagsWritten:    g.FlagsWritten,
			HeaderDeleted:   g.HeaderDeleted,
		}
		if g.Err != nil {
			dto.Groups[i].Error = g.Err.Error()
		}
	}
	for _, err := range r.Skipped {
		dto.Skipped = append(dto.Skipped, err.Error())
	}
	return dto
}
