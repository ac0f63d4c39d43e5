package timesheet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// FLAG TYPES
// =============================================================================

// FlagType is the numeric anomaly code shown to payroll reviewers.
type FlagType int

const (
	FlagClockInEarly      FlagType = 101
	FlagClockOutEarly     FlagType = 102
	FlagClockInLate       FlagType = 103
	FlagClockOutLate      FlagType = 104
	FlagMissingClockIn    FlagType = 105
	FlagMissingClockOut   FlagType = 106
	FlagClockInGrace      FlagType = 107
	FlagScheduledMismatch FlagType = 109
)

// GraceWindow is the tolerance around scheduled start and end.
const GraceWindow = 15 * time.Minute

var flagDescriptions = map[FlagType]string{
	FlagClockInEarly:      "Clocked in more than 15 minutes before scheduled start",
	FlagClockOutEarly:     "Clocked out before scheduled end",
	FlagClockInLate:       "Clocked in more than 15 minutes after scheduled start",
	FlagClockOutLate:      "Clocked out more than 15 minutes after scheduled end",
	FlagMissingClockIn:    "Missing clock-in",
	FlagMissingClockOut:   "Missing clock-out",
	FlagClockInGrace:      "Clocked in late, within the 15 minute grace period",
	FlagScheduledMismatch: "Scheduled hours do not match payable hours",
}

// Description returns the reviewer-facing text for a flag code.
func (f FlagType) Description() string {
	if d, ok := flagDescriptions[f]; ok {
		return d
	}
	return fmt.Sprintf("Flag %d", int(f))
}

// =============================================================================
// FLAG EVALUATOR
// =============================================================================

// FlagInput is what the evaluator compares. Nil means the value is absent.
type FlagInput struct {
	ClockIn        *time.Time
	ClockOut       *time.Time
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time

	// TimesInvalid suppresses the clock-versus-schedule rules when one of the
	// timestamps failed to parse upstream. Presence and hour rules still run.
	TimesInvalid bool

	ScheduledHours *generic.Hours
	PayableHours   *generic.Hours
}

// EvaluateFlags returns every currently satisfied rule with its description.
// Clock comparisons use minute precision.
func EvaluateFlags(in FlagInput) map[FlagType]string {
	active := make(map[FlagType]string)
	set := func(f FlagType) { active[f] = f.Description() }

	if in.ClockIn == nil {
		set(FlagMissingClockIn)
	}
	if in.ClockOut == nil {
		set(FlagMissingClockOut)
	}

	if !in.TimesInvalid {
		if in.ClockIn != nil && in.ScheduledStart != nil {
			clockIn := generic.TruncateMinute(*in.ClockIn)
			start := generic.TruncateMinute(*in.ScheduledStart)
			switch {
			case clockIn.Before(start.Add(-GraceWindow)):
				set(FlagClockInEarly)
			case clockIn.After(start.Add(GraceWindow)):
				set(FlagClockInLate)
			case clockIn.After(start):
				set(FlagClockInGrace)
			}
		}
		if in.ClockOut != nil && in.ScheduledEnd != nil {
			clockOut := generic.TruncateMinute(*in.ClockOut)
			end := generic.TruncateMinute(*in.ScheduledEnd)
			switch {
			case clockOut.Before(end):
				set(FlagClockOutEarly)
			case clockOut.After(end.Add(GraceWindow)):
				set(FlagClockOutLate)
			}
		}
	}

	if in.ScheduledHours != nil && in.PayableHours != nil &&
		!generic.HoursEqual(*in.ScheduledHours, *in.PayableHours) {
		set(FlagScheduledMismatch)
	}
	return active
}

// FlagInputFor builds evaluator input from a merged entry. Scheduled hours
// are only supplied when the entry has a schedule to compare against.
func FlagInputFor(e Entry, timesInvalid bool) FlagInput {
	in := FlagInput{
		ClockIn:        e.ClockIn,
		ClockOut:       e.ClockOut,
		ScheduledStart: e.ScheduledStart,
		ScheduledEnd:   e.ScheduledEnd,
		TimesInvalid:   timesInvalid,
	}
	payable := e.PayableHours
	in.PayableHours = &payable
	if e.ScheduledStart != nil || !e.ScheduledHours.IsZero() {
		scheduled := e.ScheduledHours
		in.ScheduledHours = &scheduled
	}
	return in
}

// =============================================================================
// FLAG RECONCILIATION - Persisted state follows the computed set
// =============================================================================

// ReconcileFlags makes the stored flags for timeID match active: computed
// flags are upserted as active, stored flags missing from the set become
// resolved. Nothing is deleted. It returns the number of rows written.
func ReconcileFlags(ctx context.Context, store Store, timeID int64, active map[FlagType]string, now time.Time) (int, error) {
	existing, err := store.ListFlags(ctx, timeID)
	if err != nil {
		return 0, fmt.Errorf("list flags: %w", err)
	}

	stored := make(map[FlagType]Flag, len(existing))
	for _, flag := range existing {
		stored[flag.FlagType] = flag
	}

	written := 0
	types := make([]FlagType, 0, len(active))
	for f := range active {
		types = append(types, f)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, f := range types {
		if cur, ok := stored[f]; ok && cur.Status == FlagActive && cur.Description == active[f] {
			continue
		}
		if err := store.UpsertFlag(ctx, Flag{
			WiwTimeID:   timeID,
			FlagType:    f,
			Description: active[f],
			Status:      FlagActive,
			UpdatedAt:   now,
		}); err != nil {
			return written, fmt.Errorf("upsert flag %d: %w", f, err)
		}
		written++
	}

	for _, flag := range existing {
		if _, ok := active[flag.FlagType]; ok || flag.Status == FlagResolved {
			continue
		}
		flag.Status = FlagResolved
		flag.UpdatedAt = now
		if err := store.UpsertFlag(ctx, flag); err != nil {
			return written, fmt.Errorf("resolve flag %d: %w", flag.FlagType, err)
		}
		written++
	}
	return written, nil
}

// ActiveOnly filters flags to the current state shown in the UI.
func ActiveOnly(flags []Flag) []Flag {
	var out []Flag
	for _, f := range flags {
		if f.Status == FlagActive {
			out = append(out, f)
		}
	}
	return out
}
