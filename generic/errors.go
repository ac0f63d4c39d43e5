/*
errors.go - Centralized error types for the generic primitives

PURPOSE:
  Sentinel errors for malformed time input. Domain packages wrap these
  with record context; callers branch with errors.Is.

ERROR CATEGORIES:
  1. Parse errors - unparseable timestamps or dates
  2. Configuration errors - a pay-period calendar that cannot exist

SEE ALSO:
  - time.go: ParseLocal, ParseDate
  - period.go: NewPayPeriodConfig
  - timesheet/errors.go: domain errors
*/
package generic

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTimestamp is returned when a remote clock value cannot be parsed.
	// The engine treats it as "skip this record", never as a batch failure.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidDate is returned for a malformed YYYY-MM-DD date.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidPeriod is returned when a pay-period calendar is malformed.
	ErrInvalidPeriod = errors.New("invalid pay period")
)

// IsParseError returns true if the error came from malformed time input.
func IsParseError(err error) bool {
	return errors.Is(err, ErrInvalidTimestamp) || errors.Is(err, ErrInvalidDate)
}
