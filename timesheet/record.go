package timesheet

import (
	"time"

	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// ENRICHED RECORD - Remote record with every fallback resolved
// =============================================================================

// EnrichedRecord is a RemoteTimeRecord after parsing and default resolution.
// It is produced once per record and passed by value to later stages; the
// input batch is never modified.
type EnrichedRecord struct {
	TimeID       int64
	EmployeeID   int64
	EmployeeName string
	LocationID   int64
	LocationName string
	ShiftID      *int64

	ClockIn        time.Time
	ClockOut       *time.Time // nil while the shift is still open
	ScheduledStart *time.Time // nil without a linked shift
	ScheduledEnd   *time.Time

	// ScheduleInvalid is set when the linked shift's timestamps did not parse.
	ScheduleInvalid bool

	Break           BreakResolution
	ScheduledHours  generic.Hours
	ClockedHours    generic.Hours
	PayableHours    generic.Hours
	AdditionalHours generic.Hours

	WeekStart generic.TimePoint
}

// Enrich parses and resolves one remote record in loc.
//
// A record without an id, without a resolvable employee or with an unparseable clock value
// returns a *RecordError; the caller skips it. A missing or unparseable
// linked shift is not an error: schedule values degrade to absent/zero.
func Enrich(rec RemoteTimeRecord, users map[int64]RemoteUser, shifts map[int64]RemoteShift, loc *time.Location, periods generic.PayPeriodConfig) (EnrichedRecord, error) {
	if loc == nil {
		loc = time.UTC
	}
	if rec.ID == 0 {
		return EnrichedRecord{}, &RecordError{TimeID: rec.ID, Err: ErrNoTimeID}
	}
	user, ok := users[rec.UserID]
	if rec.UserID == 0 || !ok {
		return EnrichedRecord{}, &RecordError{TimeID: rec.ID, Err: ErrNoEmployee}
	}
	clockIn, err := generic.ParseLocal(rec.StartTime, loc)
	if err != nil {
		return EnrichedRecord{}, &RecordError{TimeID: rec.ID, Err: err}
	}
	clockOut, err := generic.ParseLocalPtr(rec.EndTime, loc)
	if err != nil {
		return EnrichedRecord{}, &RecordError{TimeID: rec.ID, Err: err}
	}

	out := EnrichedRecord{
		TimeID:       rec.ID,
		EmployeeID:   rec.UserID,
		EmployeeName: user.FullName(),
		LocationID:   rec.LocationID,
		LocationName: rec.LocationName,
		ClockIn:      clockIn,
		ClockOut:     clockOut,
		WeekStart:    periods.StartForTime(clockIn),
	}

	if rec.ShiftID != nil && *rec.ShiftID != 0 {
		id := *rec.ShiftID
		out.ShiftID = &id
		if shift, ok := shifts[id]; ok {
			start, errStart := generic.ParseLocal(shift.StartTime, loc)
			end, errEnd := generic.ParseLocal(shift.EndTime, loc)
			if errStart == nil && errEnd == nil {
				out.ScheduledStart, out.ScheduledEnd = &start, &end
			} else {
				out.ScheduleInvalid = true
			}
		}
	}

	fallback := generic.ZeroHours
	if rec.CalculatedDuration != nil {
		fallback = generic.NewHours(*rec.CalculatedDuration)
	}

	scheduledSpan := generic.ZeroHours
	switch {
	case out.ScheduledStart != nil:
		scheduledSpan = SpanHours(out.ScheduledStart, out.ScheduledEnd, generic.ZeroHours)
	case rec.ScheduledDuration != nil:
		scheduledSpan = generic.FloorZero(generic.NewHours(*rec.ScheduledDuration))
	}
	clockedSpan := SpanHours(&out.ClockIn, out.ClockOut, fallback)

	out.Break = ResolveBreak(rec.Break, rec.BreakHours, scheduledSpan, clockedSpan)
	out.ScheduledHours = ScheduledHours(scheduledSpan, out.Break)
	out.ClockedHours = ElapsedHours(&out.ClockIn, out.ClockOut, out.Break.Minutes, fallback)
	out.PayableHours = PayableHours(&out.ClockIn, out.ClockOut, out.ScheduledStart, out.ScheduledEnd, out.Break.Minutes, fallback)
	out.AdditionalHours = AdditionalHours(out.ScheduledEnd, out.ClockOut)
	return out, nil
}
