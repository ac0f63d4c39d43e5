package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// PAY PERIOD CALCULATOR TESTS
// =============================================================================

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func TestPayPeriod_StartFor_AnchorExamples(t *testing.T) {
	periods := generic.DefaultPayPeriods()

	tests := []struct {
		name string
		in   generic.TimePoint
		want generic.TimePoint
	}{
		{"anchor day itself", date(2025, time.December, 7), date(2025, time.December, 7)},
		{"saturday before anchor", date(2025, time.December, 6), date(2025, time.November, 23)},
		{"monday in anchor period", date(2025, time.December, 8), date(2025, time.December, 7)},
		{"last day of anchor period", date(2025, time.December, 20), date(2025, time.December, 7)},
		{"first day of next period", date(2025, time.December, 21), date(2025, time.December, 21)},
		{"second week of prior period", date(2025, time.November, 30), date(2025, time.November, 23)},
		{"far past", date(2025, time.January, 1), date(2024, time.December, 22)},
		{"far future", date(2026, time.March, 4), date(2026, time.March, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := periods.StartFor(tt.in)
			assert.Equal(t, tt.want.String(), got.String())
			assert.Equal(t, time.Sunday, got.Weekday())
		})
	}
}

func TestPayPeriod_SameWindow_SameStart(t *testing.T) {
	// GIVEN: Every day of one 14-day window
	// WHEN: Mapping each to its period start
	// THEN: They all agree
	periods := generic.DefaultPayPeriods()
	start := date(2025, time.December, 7)
	for _, d := range (generic.Period{Start: start, End: start.AddDays(13)}).Days() {
		assert.Equal(t, start.String(), periods.StartFor(d).String(), d.String())
	}
}

func TestPayPeriod_OneWeekApart_DifferentWindows(t *testing.T) {
	periods := generic.DefaultPayPeriods()

	a := periods.StartFor(date(2025, time.December, 17))
	b := periods.StartFor(date(2025, time.December, 24))

	assert.Equal(t, "2025-12-07", a.String())
	assert.Equal(t, "2025-12-21", b.String())
}

func TestPayPeriod_StartForTime_UsesLocalDate(t *testing.T) {
	// GIVEN: 23:30 on Saturday in Chicago, already Sunday in UTC
	// WHEN: Mapping to a pay period
	// THEN: The local Saturday decides, so it is the earlier period
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	ts := time.Date(2025, time.December, 6, 23, 30, 0, 0, chicago)
	got := generic.DefaultPayPeriods().StartForTime(ts)

	assert.Equal(t, "2025-11-23", got.String())
}

func TestPayPeriod_PeriodFor_EndIsStartPlus13(t *testing.T) {
	p := generic.DefaultPayPeriods().PeriodFor(date(2025, time.December, 10))

	assert.Equal(t, "2025-12-07", p.Start.String())
	assert.Equal(t, "2025-12-20", p.End.String())
	assert.Len(t, p.Days(), 14)
	assert.True(t, p.Contains(date(2025, time.December, 20)))
	assert.False(t, p.Contains(date(2025, time.December, 21)))
}

func TestPayPeriod_Span(t *testing.T) {
	periods := generic.DefaultPayPeriods()

	span := periods.Span(date(2025, time.December, 1), date(2025, time.December, 22))

	require.Len(t, span, 3)
	assert.Equal(t, "2025-11-23", span[0].Start.String())
	assert.Equal(t, "2025-12-07", span[1].Start.String())
	assert.Equal(t, "2025-12-21", span[2].Start.String())
}

func TestPayPeriod_PreviousAndNext(t *testing.T) {
	p := generic.DefaultPayPeriods().PeriodFor(date(2025, time.December, 7))

	assert.Equal(t, "2025-11-23", p.PreviousPeriod().Start.String())
	assert.Equal(t, "2025-12-06", p.PreviousPeriod().End.String())
	assert.Equal(t, "2025-12-21", p.NextPeriod().Start.String())
	assert.Equal(t, "2026-01-03", p.NextPeriod().End.String())
}

func TestNewPayPeriodConfig_Validation(t *testing.T) {
	_, err := generic.NewPayPeriodConfig(date(2025, time.December, 8), 14)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod, "monday anchor")

	_, err = generic.NewPayPeriodConfig(date(2025, time.December, 7), 10)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod, "length not whole weeks")

	cfg, err := generic.NewPayPeriodConfig(date(2025, time.December, 7), 7)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-14", cfg.StartFor(date(2025, time.December, 16)).String())
}
