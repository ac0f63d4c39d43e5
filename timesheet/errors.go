package timesheet

import (
	"errors"
	"fmt"

	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a header or entry id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned before any mutation when the editor may not
	// change timesheets.
	ErrUnauthorized = errors.New("editor is not authorized")

	// ErrNotAllApproved is returned by ApproveHeader while some entry is pending.
	ErrNotAllApproved = errors.New("not all entries are approved")

	// ErrEmptyTimesheet is returned by ApproveHeader for a header with no entries.
	ErrEmptyTimesheet = errors.New("timesheet has no entries")

	// ErrInvalidEdit is returned for edits that cannot produce a valid entry.
	ErrInvalidEdit = errors.New("invalid edit")

	// ErrSyncInProgress is returned when another sync pass holds the lock.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoTimeID marks a record without a remote id.
	ErrNoTimeID = errors.New("missing time record id")

	// ErrNoEmployee marks a record whose user cannot be resolved.
	ErrNoEmployee = errors.New("no resolvable employee")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// GroupError is a persistence failure scoped to one employee/period group.
// Sibling groups are unaffected.
type GroupError struct {
	EmployeeID int64
	WeekStart  generic.TimePoint
	Op         string
	Err        error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("sync group employee=%d week=%s: %s: %v", e.EmployeeID, e.WeekStart, e.Op, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }

// RecordError explains why a single remote record was skipped.
type RecordError struct {
	TimeID int64
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("time record %d skipped: %v", e.TimeID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing header or entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to caller input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotAllApproved) ||
		errors.Is(err, ErrEmptyTimesheet) ||
		errors.Is(err, ErrInvalidEdit) ||
		generic.IsParseError(err)
}
