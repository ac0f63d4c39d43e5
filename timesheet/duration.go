package timesheet

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// DURATION CALCULATOR - Hours between clock values
// =============================================================================

// AutoBreakMinutes is deducted from spans longer than AutoBreakThreshold when
// the remote record carries no break data of its own.
const AutoBreakMinutes = 60

// AutoBreakThreshold is exclusive: a span of exactly five hours gets no break.
var AutoBreakThreshold = decimal.NewFromInt(5)

// ElapsedHours returns end-start in whole seconds, less breakMinutes, floored
// at zero and rounded to two places. When either bound is missing the
// caller's fallback is used instead, also floored and rounded.
func ElapsedHours(start, end *time.Time, breakMinutes int, fallback generic.Hours) generic.Hours {
	if start == nil || end == nil {
		return generic.RoundHours(generic.FloorZero(fallback))
	}
	seconds := end.Unix() - start.Unix() - int64(breakMinutes)*60
	return generic.HoursFromSeconds(seconds)
}

// PayableHours is ElapsedHours with the clock range clamped into the
// scheduled window before the break is deducted. A missing clock value or
// an inverted clock range yields the fallback.
func PayableHours(clockIn, clockOut, scheduledStart, scheduledEnd *time.Time, breakMinutes int, fallback generic.Hours) generic.Hours {
	if clockIn == nil || clockOut == nil || !clockOut.After(*clockIn) {
		return generic.RoundHours(generic.FloorZero(fallback))
	}
	in, out := *clockIn, *clockOut
	if scheduledStart != nil && in.Before(*scheduledStart) {
		in = *scheduledStart
	}
	if scheduledEnd != nil && out.After(*scheduledEnd) {
		out = *scheduledEnd
	}
	return ElapsedHours(&in, &out, breakMinutes, fallback)
}

// AdditionalHours is the time worked past the scheduled end, never negative.
func AdditionalHours(scheduledEnd, clockOut *time.Time) generic.Hours {
	if scheduledEnd == nil || clockOut == nil || !clockOut.After(*scheduledEnd) {
		return generic.ZeroHours
	}
	return generic.HoursFromSeconds(clockOut.Unix() - scheduledEnd.Unix())
}

// SpanHours is the raw length of [start, end] with no break deducted.
func SpanHours(start, end *time.Time, fallback generic.Hours) generic.Hours {
	return ElapsedHours(start, end, 0, fallback)
}

// =============================================================================
// BREAK POLICY
// =============================================================================

// BreakResolution is the outcome of the break-minutes policy.
type BreakResolution struct {
	Minutes  int
	Explicit bool // true when the remote record supplied the value
}

// ResolveBreak applies the break policy: explicit remote minutes win, then
// explicit remote hours converted to minutes. Otherwise the automatic break
// applies when the reference span (scheduled if known, else clocked) exceeds
// the threshold.
func ResolveBreak(breakMinutes *int, breakHours *float64, scheduledSpan, clockedSpan generic.Hours) BreakResolution {
	if breakMinutes != nil {
		return BreakResolution{Minutes: max(*breakMinutes, 0), Explicit: true}
	}
	if breakHours != nil {
		return BreakResolution{Minutes: max(generic.MinutesFromHours(*breakHours), 0), Explicit: true}
	}
	span := scheduledSpan
	if !span.IsPositive() {
		span = clockedSpan
	}
	if span.GreaterThan(AutoBreakThreshold) {
		return BreakResolution{Minutes: AutoBreakMinutes}
	}
	return BreakResolution{}
}

// ScheduledHours deducts the resolved break from a scheduled span, so an
// explicit remote break and the automatic break both reach scheduled and
// payable hours alike.
func ScheduledHours(span generic.Hours, brk BreakResolution) generic.Hours {
	span = generic.FloorZero(span).Sub(generic.HoursFromMinutes(brk.Minutes))
	return generic.RoundHours(generic.FloorZero(span))
}
