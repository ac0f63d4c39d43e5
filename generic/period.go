package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The window a timesheet header aggregates
// =============================================================================

// Period defines the time boundary of one pay period, inclusive on both ends.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// NextPeriod returns the period following this one
func (p Period) NextPeriod() Period {
	newStart := p.End.AddDays(1)
	duration := DaysBetween(p.Start, p.End)
	return Period{Start: newStart, End: newStart.AddDays(duration)}
}

// PreviousPeriod returns the period before this one
func (p Period) PreviousPeriod() Period {
	duration := DaysBetween(p.Start, p.End)
	newEnd := p.Start.AddDays(-1)
	return Period{Start: newEnd.AddDays(-duration), End: newEnd}
}

// =============================================================================
// PAY PERIOD CALCULATOR - Fixed-length periods anchored to a known Sunday
// =============================================================================

// DefaultPeriodLength is the biweekly payroll cycle.
const DefaultPeriodLength = 14

// DefaultAnchor is a Sunday that begins a pay period.
var DefaultAnchor = NewTimePoint(2025, time.December, 7)

// PayPeriodConfig maps dates onto fixed-length pay periods.
//
// Periods always begin on a Sunday. The anchor pins which Sundays are period
// boundaries; every Length days after (or before) it is another boundary.
// PeriodFor depends only on its input and the config, never on the clock.
type PayPeriodConfig struct {
	Anchor TimePoint
	Length int
}

// NewPayPeriodConfig validates that anchor is a Sunday.
func NewPayPeriodConfig(anchor TimePoint, length int) (PayPeriodConfig, error) {
	if anchor.Weekday() != time.Sunday {
		return PayPeriodConfig{}, fmt.Errorf("%w: anchor %s is a %s", ErrInvalidPeriod, anchor, anchor.Weekday())
	}
	if length <= 0 || length%7 != 0 {
		return PayPeriodConfig{}, fmt.Errorf("%w: length %d is not a whole number of weeks", ErrInvalidPeriod, length)
	}
	return PayPeriodConfig{Anchor: anchor, Length: length}, nil
}

// DefaultPayPeriods is the biweekly calendar anchored on DefaultAnchor.
func DefaultPayPeriods() PayPeriodConfig {
	return PayPeriodConfig{Anchor: DefaultAnchor, Length: DefaultPeriodLength}
}

// StartFor returns the first day of the pay period containing date.
func (pc PayPeriodConfig) StartFor(date TimePoint) TimePoint {
	length := pc.Length
	if length <= 0 {
		length = DefaultPeriodLength
	}
	day := NewTimePoint(date.Year(), date.Month(), date.Day())

	// time.Weekday counts from Sunday = 0, so this is the days back to Sunday.
	sunday := day.AddDays(-int(day.Weekday()))

	offset := DaysBetween(pc.Anchor, sunday)
	remainder := ((offset % length) + length) % length
	return sunday.AddDays(-remainder)
}

// StartForTime returns the pay period start for a local timestamp.
func (pc PayPeriodConfig) StartForTime(t time.Time) TimePoint {
	return pc.StartFor(DateOf(t))
}

// PeriodFor returns the pay period that contains the given date.
func (pc PayPeriodConfig) PeriodFor(date TimePoint) Period {
	start := pc.StartFor(date)
	return Period{Start: start, End: pc.EndFor(start)}
}

// EndFor returns the last day of the period beginning at start.
func (pc PayPeriodConfig) EndFor(start TimePoint) TimePoint {
	length := pc.Length
	if length <= 0 {
		length = DefaultPeriodLength
	}
	return start.AddDays(length - 1)
}

// Span returns every period from the one containing from through the one
// containing to.
func (pc PayPeriodConfig) Span(from, to TimePoint) []Period {
	if to.Before(from) {
		from, to = to, from
	}
	var periods []Period
	current := pc.PeriodFor(from)
	last := pc.StartFor(to)
	for current.Start.BeforeOrEqual(last) {
		periods = append(periods, current)
		current = current.NextPeriod()
	}
	return periods
}
