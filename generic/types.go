/*
Package generic provides the domain-agnostic primitives of the timesheet engine.

PURPOSE:
  Calendar dates, local timestamp parsing, pay-period arithmetic and exact
  hour quantities. Nothing in this package knows about remote records,
  timesheets or flags; the timesheet package builds on top of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours: decimal hour quantities rounded to two places (payroll precision)
  - Conversions from elapsed seconds and from minutes

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so totals summed over many entries do
     not drift the way float64 does
  2. Rounding happens once, at the point a value is produced
  3. Hours are never negative once produced by this package

USAGE:
  h := generic.HoursFromDuration(8*time.Hour + 30*time.Minute) // 8.5
  h = h.Sub(generic.HoursFromMinutes(60))                      // 7.5

SEE ALSO:
  - period.go: Pay period calculation
  - time.go: Timestamp parsing
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Exact hour quantities
// =============================================================================

// HoursPrecision is the number of decimal places every hour value carries.
const HoursPrecision = 2

var (
	secondsPerHour = decimal.NewFromInt(3600)
	minutesPerHour = decimal.NewFromInt(60)
)

// Hours is an hour quantity. It is a plain decimal so it scans from and
// writes to SQL columns without an adapter.
type Hours = decimal.Decimal

// ZeroHours is 0.00.
var ZeroHours = decimal.Zero

// NewHours builds an hour value from a float, rounded to payroll precision.
func NewHours(v float64) Hours {
	return RoundHours(decimal.NewFromFloat(v))
}

// RoundHours rounds half away from zero to two places.
func RoundHours(h Hours) Hours {
	return h.Round(HoursPrecision)
}

// FloorZero clamps negative quantities to zero.
func FloorZero(h Hours) Hours {
	if h.IsNegative() {
		return decimal.Zero
	}
	return h
}

// HoursFromSeconds converts whole seconds to rounded, non-negative hours.
func HoursFromSeconds(seconds int64) Hours {
	if seconds <= 0 {
		return decimal.Zero
	}
	return RoundHours(decimal.NewFromInt(seconds).Div(secondsPerHour))
}

// HoursFromDuration converts d (truncated to whole seconds) to hours.
func HoursFromDuration(d time.Duration) Hours {
	return HoursFromSeconds(int64(d / time.Second))
}

// HoursFromMinutes converts a minute count to hours.
func HoursFromMinutes(minutes int) Hours {
	return RoundHours(decimal.NewFromInt(int64(minutes)).Div(minutesPerHour))
}

// MinutesFromHours converts fractional hours to whole minutes, rounding to
// the nearest minute.
func MinutesFromHours(h float64) int {
	return int(decimal.NewFromFloat(h).Mul(minutesPerHour).Round(0).IntPart())
}

// HoursEqual compares two values at payroll precision.
func HoursEqual(a, b Hours) bool {
	return RoundHours(a).Equal(RoundHours(b))
}
