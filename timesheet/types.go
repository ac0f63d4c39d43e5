// Package timesheet reconciles remote time-clock records into a local ledger
// of per-employee, per-pay-period timesheets.
//
// The sync pass (Engine) is the only writer of headers, totals and flags.
// User operations (Service) edit, approve and reset individual entries; every
// such change appends an EditLogEntry, and the presence of those rows is what
// tells the next sync pass to keep the locally edited clock values.
package timesheet

import (
	"strings"
	"time"

	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// REMOTE RECORDS - Read-only input from the scheduling API
// =============================================================================

// RemoteTimeRecord is one time-clock punch pair as the scheduling API returns
// it. Optional fields are pointers; nil means the API omitted the value.
type RemoteTimeRecord struct {
	ID           int64    `json:"id"`
	UserID       int64    `json:"user_id"`
	ShiftID      *int64   `json:"shift_id,omitempty"`
	StartTime    string   `json:"start_time"`
	EndTime      *string  `json:"end_time,omitempty"`
	Break        *int     `json:"break,omitempty"`
	BreakHours   *float64 `json:"break_hours,omitempty"`
	LocationID   int64    `json:"location_id"`
	LocationName string   `json:"location_name,omitempty"`

	// Companion values from an upstream enrichment step, in hours.
	ScheduledDuration  *float64 `json:"scheduled_duration,omitempty"`
	CalculatedDuration *float64 `json:"calculated_duration,omitempty"`
}

// RemoteShift is a scheduled shift linked from a time record.
type RemoteShift struct {
	ID        int64  `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	SiteID    *int64 `json:"site_id,omitempty"`
}

// RemoteUser is the employee profile included with a batch.
type RemoteUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FullName returns "First Last" without stray whitespace.
func (u RemoteUser) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// =============================================================================
// TIMESHEET HEADER - One per employee x pay period
// =============================================================================

type HeaderStatus string

const (
	HeaderPending   HeaderStatus = "pending"
	HeaderProcessed HeaderStatus = "processed"
	HeaderApproved  HeaderStatus = "approved"
)

// Header aggregates an employee's entries for one pay period.
// Totals are derived from entries and never edited by hand.
type Header struct {
	ID                  string
	EmployeeID          int64
	EmployeeName        string
	WeekStartDate       generic.TimePoint
	WeekEndDate         generic.TimePoint
	TotalScheduledHours generic.Hours
	TotalClockedHours   generic.Hours
	Status              HeaderStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HeaderFilter narrows ListHeaders. Zero values do not filter.
type HeaderFilter struct {
	EmployeeID int64
	From       *generic.TimePoint // week_start_date >= From
	To         *generic.TimePoint // week_start_date <= To
	Status     HeaderStatus
}

// Totals is the post-merge aggregate over a header's entries.
type Totals struct {
	ClockedHours   generic.Hours
	ScheduledHours generic.Hours
	Entries        int
}

// =============================================================================
// TIMESHEET ENTRY - One per remote time record
// =============================================================================

type EntryStatus string

const (
	EntryPending  EntryStatus = "pending"
	EntryApproved EntryStatus = "approved"
)

type ExtraTimeStatus string

const (
	ExtraTimeUnset     ExtraTimeStatus = ""
	ExtraTimeConfirmed ExtraTimeStatus = "confirmed"
	ExtraTimeDenied    ExtraTimeStatus = "denied"
)

// Valid reports whether s is one of the known extra-time states.
func (s ExtraTimeStatus) Valid() bool {
	switch s {
	case ExtraTimeUnset, ExtraTimeConfirmed, ExtraTimeDenied:
		return true
	}
	return false
}

// Entry is the local representation of one remote time record. WiwTimeID is
// the natural key: there is exactly one entry per remote record id.
type Entry struct {
	ID              string
	TimesheetID     string
	WiwTimeID       int64
	WiwShiftID      *int64
	Date            generic.TimePoint
	ClockIn         *time.Time
	ClockOut        *time.Time
	ScheduledStart  *time.Time
	ScheduledEnd    *time.Time
	BreakMinutes    int
	ScheduledHours  generic.Hours
	ClockedHours    generic.Hours
	PayableHours    generic.Hours
	AdditionalHours generic.Hours
	ExtraTimeStatus ExtraTimeStatus
	Status          EntryStatus
	Notes           string
	LocationID      int64
	LocationName    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsApproved reports whether the entry has been signed off.
func (e Entry) IsApproved() bool { return e.Status == EntryApproved }

// =============================================================================
// EDIT LOG - Append-only audit of user changes
// =============================================================================

type EditType string

const (
	EditClockIn         EditType = "clock_in"
	EditClockOut        EditType = "clock_out"
	EditBreakMinutes    EditType = "break_minutes"
	EditExtraTimeStatus EditType = "extra_time_status"
	EditNotes           EditType = "notes"
	EditApproveEntry    EditType = "approve_entry"
	EditApproveHeader   EditType = "approve_header"
)

// EditLogEntry records one field-level change. Any row for an entry marks
// that entry as locally edited for the sync pass.
type EditLogEntry struct {
	ID           string
	TimesheetID  string
	EntryID      string // empty for header-level rows
	WiwTimeID    int64  // zero for header-level rows
	EditType     EditType
	OldValue     string
	NewValue     string
	EditorID     string
	EditorName   string
	EmployeeID   int64
	EmployeeName string
	LocationName string
	WeekStart    generic.TimePoint
	CreatedAt    time.Time
}

// =============================================================================
// FLAGS - Derived data-quality annotations
// =============================================================================

type FlagStatus string

const (
	FlagActive   FlagStatus = "active"
	FlagResolved FlagStatus = "resolved"
)

// Flag is one anomaly type on one entry. Rows are never deleted; a cleared
// anomaly moves to resolved.
type Flag struct {
	ID          string
	WiwTimeID   int64
	FlagType    FlagType
	Description string
	Status      FlagStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// EDITOR - Identity behind user operations
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	RoleSystem   Role = "system"
)

// Editor is the caller of an edit/approve/reset operation.
type Editor struct {
	ID   string
	Name string
	Role Role
}

// CanModify reports whether the editor may change entries and approvals.
func (e Editor) CanModify() bool {
	if e.ID == "" {
		return false
	}
	switch e.Role {
	case RoleAdmin, RoleManager, RoleSystem:
		return true
	}
	return false
}
