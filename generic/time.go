package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - Calendar dates and clock instants
// =============================================================================

// TimePoint is a calendar date. Time is always midnight UTC so dates
// compare and subtract without zone effects.
type TimePoint struct {
	Time time.Time
}

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's own location.
// A 23:30 clock-in in America/Chicago stays on that day even though it is
// already the next day in UTC.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return TimePoint{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint {
	return TimePoint{Time: tp.Time.AddDate(0, 0, n)}
}

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string { return tp.Time.Format(DateLayout) }

// =============================================================================
// TIMESTAMP PARSING - Remote clock values
// =============================================================================

// timestampLayouts are tried in order. The scheduling API emits RFC1123Z
// ("Mon, 08 Dec 2025 09:00:00 -0500"); exports and tests use RFC3339.
var timestampLayouts = []string{
	time.RFC1123Z,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseLocal parses a remote timestamp and converts it into loc.
// Layouts without a zone offset are interpreted as wall-clock time in loc.
// Empty input and unknown layouts return ErrInvalidTimestamp; callers decide
// whether that skips a record or just a single rule.
func ParseLocal(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// ParseLocalPtr is ParseLocal for optional values. A nil or empty input
// yields (nil, nil); only a present-but-unparseable value is an error.
func ParseLocalPtr(s *string, loc *time.Location) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := ParseLocal(*s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TruncateMinute drops seconds so clock comparisons happen at minute precision.
func TruncateMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween counts calendar days from from to to; negative when to is earlier.
func DaysBetween(from, to TimePoint) int { return int(to.normalize().Sub(from.normalize()).Hours() / 24) }
