/*
engine.go - The sync pass: remote records merged into the local ledger

PURPOSE:
  Takes one batch of remote time records and makes the ledger reflect it:
  headers per (employee, pay period), one entry per remote record, derived
  hours, and data-quality flags. Local edits and approvals survive.

SYNC PASS:
  1. Enrich every record (parse, resolve break and schedule, pay period)
     Malformed records are skipped and counted, never fatal.
  2. Group by (employee, pay period start), seeding running totals
  3. Per group, in one transaction when the store supports it:
     a. Upsert header by natural key (status untouched on update)
     b. Upsert each entry by wiw_time_id, preserving edited/approved values
     c. Recompute flags against the authoritative clock values
     d. Delete entries no longer present remotely, then the header if empty
     e. Recompute header totals from the surviving entries
  4. Clean up in-scope headers the batch did not touch

LOCAL EDIT PRESERVATION:
  An entry with any edit-log row, or with status approved, keeps its
  clock_in, clock_out, break and derived hours. The one exception is break
  data the remote record supplies explicitly: it replaces the stored break
  and the hours that depend on it. Schedule values always follow remote.

PARTIAL SUCCESS:
  A failing group is reported in its GroupResult and rolled back (TxStore).
  Other groups commit independently. Re-running is safe: every write is an
  upsert on a natural key.

CONCURRENCY:
  The engine assumes it is the only sync pass touching the store. Use
  Runner with a Locker to guarantee that.

SEE ALSO:
  - record.go: Enrich
  - duration.go: Hour calculations and break policy
  - flags.go: EvaluateFlags, ReconcileFlags
*/
package timesheet

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/warp/timesheet-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// SyncInput is one batch from the scheduling API.
type SyncInput struct {
	Records  []RemoteTimeRecord
	Users    map[int64]RemoteUser
	Shifts   map[int64]RemoteShift
	Location *time.Location

	// Window is the date range the batch was fetched for. Headers starting
	// inside it are cleaned up even when the batch has no records for them.
	// When nil, the pay periods covered by the batch are used.
	Window *generic.Period
}

// GroupResult reports the outcome for one (employee, pay period) group.
type GroupResult struct {
	EmployeeID      int64
	WeekStart       generic.TimePoint
	HeaderID        string
	EntriesUpserted int
	EntriesDeleted  int
	FlagsWritten    int
	HeaderDeleted   bool
	Err             error
}

// OK reports whether the group committed.
func (g GroupResult) OK() bool { return g.Err == nil }

// SyncResult is the per-group report of one sync pass.
type SyncResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Groups     []GroupResult
	Skipped    []error
}

// Succeeded returns the groups that committed.
func (r *SyncResult) Succeeded() []GroupResult {
	var out []GroupResult
	for _, g := range r.Groups {
		if g.OK() {
			out = append(out, g)
		}
	}
	return out
}

// Failed returns the groups that were rolled back.
func (r *SyncResult) Failed() []GroupResult {
	var out []GroupResult
	for _, g := range r.Groups {
		if !g.OK() {
			out = append(out, g)
		}
	}
	return out
}

// Err joins every group error, or nil when all groups committed.
func (r *SyncResult) Err() error {
	var errs []error
	for _, g := range r.Groups {
		if g.Err != nil {
			errs = append(errs, g.Err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs sync passes against a Store.
type Engine struct {
	Store   Store
	Periods generic.PayPeriodConfig
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(store Store, periods generic.PayPeriodConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Store: store, Periods: periods, Logger: logger, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

type groupKey struct {
	employeeID int64
	weekStart  string
}

type recordGroup struct {
	EmployeeID   int64
	EmployeeName string
	WeekStart    generic.TimePoint
	Records      []EnrichedRecord

	// Running totals seed the header on insert; the final totals are
	// recomputed from persisted entries.
	Clocked   generic.Hours
	Scheduled generic.Hours
}

// Sync merges one batch into the ledger. It always returns a result; the
// error is the join of any group failures.
func (e *Engine) Sync(ctx context.Context, in SyncInput) (*SyncResult, error) {
	log := e.logger()
	now := e.now()
	result := &SyncResult{StartedAt: now}

	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	// Every id in the batch is kept, including records skipped as malformed:
	// a record we could not read this time still exists remotely.
	keepSet := make(map[int64]struct{}, len(in.Records))
	groups := make(map[groupKey]*recordGroup)
	for _, rec := range in.Records {
		if rec.ID != 0 {
			keepSet[rec.ID] = struct{}{}
		}
		er, err := Enrich(rec, in.Users, in.Shifts, loc, e.Periods)
		if err != nil {
			result.Skipped = append(result.Skipped, err)
			log.Debug("skipping time record", zap.Int64("time_id", rec.ID), zap.Error(err))
			continue
		}
		k := groupKey{employeeID: er.EmployeeID, weekStart: er.WeekStart.String()}
		g, ok := groups[k]
		if !ok {
			g = &recordGroup{EmployeeID: er.EmployeeID, WeekStart: er.WeekStart, Clocked: generic.ZeroHours, Scheduled: generic.ZeroHours}
			groups[k] = g
		}
		g.EmployeeName = er.EmployeeName
		g.Records = append(g.Records, er)
		g.Clocked = g.Clocked.Add(er.ClockedHours)
		g.Scheduled = g.Scheduled.Add(er.ScheduledHours)
	}

	keep := make([]int64, 0, len(keepSet))
	for id := range keepSet {
		keep = append(keep, id)
	}
	sort.Slice(keep, func(i, j int) bool { return keep[i] < keep[j] })

	ordered := make([]*recordGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].EmployeeID != ordered[j].EmployeeID {
			return ordered[i].EmployeeID < ordered[j].EmployeeID
		}
		return ordered[i].WeekStart.Before(ordered[j].WeekStart)
	})

	touched := make(map[string]bool)
	movedFrom := make(map[string]bool)
	for _, g := range ordered {
		gr, moved := e.syncGroup(ctx, g, keep, now)
		if gr.HeaderID != "" {
			touched[gr.HeaderID] = true
		}
		for id := range moved {
			movedFrom[id] = true
		}
		e.logGroup(gr)
		result.Groups = append(result.Groups, gr)
	}

	scope, employees := e.cleanupScope(in.Window, ordered)
	for _, gr := range e.cleanup(ctx, scope, employees, touched, movedFrom, keep, now) {
		e.logGroup(gr)
		result.Groups = append(result.Groups, gr)
	}

	result.FinishedAt = e.now()
	log.Info("sync pass finished",
		zap.Int("records", len(in.Records)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("groups", len(result.Groups)),
		zap.Int("failed", len(result.Failed())),
		zap.Duration("took", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, result.Err()
}

func (e *Engine) logGroup(gr GroupResult) {
	fields := []zap.Field{
		zap.Int64("employee_id", gr.EmployeeID),
		zap.String("week_start", gr.WeekStart.String()),
		zap.String("header_id", gr.HeaderID),
		zap.Int("upserted", gr.EntriesUpserted),
		zap.Int("deleted", gr.EntriesDeleted),
		zap.Bool("header_deleted", gr.HeaderDeleted),
	}
	if gr.Err != nil {
		e.logger().Error("sync group failed", append(fields, zap.Error(gr.Err))...)
		return
	}
	e.logger().Info("sync group committed", fields...)
}

// =============================================================================
// GROUP MERGE
// =============================================================================

func (e *Engine) syncGroup(ctx context.Context, g *recordGroup, keep []int64, now time.Time) (GroupResult, map[string]bool) {
	res := GroupResult{EmployeeID: g.EmployeeID, WeekStart: g.WeekStart}
	moved := make(map[string]bool)
	fail := func(op string, err error) error {
		return &GroupError{EmployeeID: g.EmployeeID, WeekStart: g.WeekStart, Op: op, Err: err}
	}

	err := withTx(ctx, e.Store, func(s Store) error {
		hdr, err := s.UpsertHeader(ctx, Header{
			EmployeeID:          g.EmployeeID,
			EmployeeName:        g.EmployeeName,
			WeekStartDate:       g.WeekStart,
			WeekEndDate:         e.Periods.EndFor(g.WeekStart),
			TotalClockedHours:   generic.RoundHours(g.Clocked),
			TotalScheduledHours: generic.RoundHours(g.Scheduled),
			Status:              HeaderPending,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
		if err != nil {
			return fail("upsert header", err)
		}
		res.HeaderID = hdr.ID

		for _, rec := range g.Records {
			existing, err := s.GetEntryByTimeID(ctx, rec.TimeID)
			if err != nil {
				return fail("read entry", err)
			}
			entry, err := e.mergeEntry(ctx, s, hdr, rec, existing, now)
			if err != nil {
				return fail("check edit log", err)
			}
			saved, err := s.UpsertEntry(ctx, entry)
			if err != nil {
				return fail("upsert entry", err)
			}
			res.EntriesUpserted++
			if existing != nil && existing.TimesheetID != hdr.ID {
				moved[existing.TimesheetID] = true
			}

			n, err := ReconcileFlags(ctx, s, saved.WiwTimeID, EvaluateFlags(FlagInputFor(saved, rec.ScheduleInvalid)), now)
			if err != nil {
				return fail("reconcile flags", err)
			}
			res.FlagsWritten += n
		}

		deleted, headerDeleted, flags, err := e.finalizeHeader(ctx, s, hdr.ID, keep, now)
		if err != nil {
			return fail("finalize header", err)
		}
		res.EntriesDeleted, res.HeaderDeleted = deleted, headerDeleted
		res.FlagsWritten += flags
		return nil
	})
	if err != nil {
		var ge *GroupError
		if !errors.As(err, &ge) {
			err = fail("commit", err)
		}
		return GroupResult{EmployeeID: g.EmployeeID, WeekStart: g.WeekStart, Err: err}, nil
	}
	return res, moved
}

// mergeEntry decides the values the entry row should hold after this pass.
func (e *Engine) mergeEntry(ctx context.Context, s Store, hdr Header, rec EnrichedRecord, existing *Entry, now time.Time) (Entry, error) {
	clockIn := rec.ClockIn
	entry := Entry{
		TimesheetID:     hdr.ID,
		WiwTimeID:       rec.TimeID,
		WiwShiftID:      rec.ShiftID,
		Date:            generic.DateOf(rec.ClockIn),
		ClockIn:         &clockIn,
		ClockOut:        rec.ClockOut,
		ScheduledStart:  rec.ScheduledStart,
		ScheduledEnd:    rec.ScheduledEnd,
		BreakMinutes:    rec.Break.Minutes,
		ScheduledHours:  rec.ScheduledHours,
		ClockedHours:    rec.ClockedHours,
		PayableHours:    rec.PayableHours,
		AdditionalHours: rec.AdditionalHours,
		ExtraTimeStatus: ExtraTimeUnset,
		Status:          EntryPending,
		LocationID:      rec.LocationID,
		LocationName:    rec.LocationName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if existing == nil {
		return entry, nil
	}

	entry.ID = existing.ID
	entry.CreatedAt = existing.CreatedAt
	entry.Status = existing.Status
	entry.ExtraTimeStatus = existing.ExtraTimeStatus
	entry.Notes = existing.Notes

	preserve := existing.IsApproved()
	if !preserve {
		edited, err := s.HasEditLog(ctx, existing.ID, existing.WiwTimeID)
		if err != nil {
			return Entry{}, err
		}
		preserve = edited
	}
	if !preserve {
		return entry, nil
	}

	entry.ClockIn = existing.ClockIn
	entry.ClockOut = existing.ClockOut
	if !existing.Date.IsZero() {
		entry.Date = existing.Date
	}
	entry.AdditionalHours = existing.AdditionalHours
	if rec.Break.Explicit {
		entry.BreakMinutes = rec.Break.Minutes
		entry.ClockedHours = ElapsedHours(entry.ClockIn, entry.ClockOut, entry.BreakMinutes, existing.ClockedHours)
		entry.PayableHours = PayableHours(entry.ClockIn, entry.ClockOut, entry.ScheduledStart, entry.ScheduledEnd, entry.BreakMinutes, existing.PayableHours)
	} else {
		entry.BreakMinutes = existing.BreakMinutes
		entry.ClockedHours = existing.ClockedHours
		entry.PayableHours = existing.PayableHours
	}

	e.logger().Debug("preserving local entry values",
		zap.Int64("time_id", rec.TimeID),
		zap.String("entry_id", existing.ID),
		zap.String("status", string(existing.Status)),
		zap.Bool("remote_break", rec.Break.Explicit),
	)
	return entry, nil
}

// finalizeHeader deletes vanished entries, then the header if it is empty,
// otherwise recomputes its totals from what is left. Totals are sums of the
// entries' clocked and scheduled hours, both already net of the break.
func (e *Engine) finalizeHeader(ctx context.Context, s Store, headerID string, keep []int64, now time.Time) (deleted int, headerDeleted bool, flags int, err error) {
	removed, err := s.DeleteEntriesNotIn(ctx, headerID, keep)
	if err != nil {
		return 0, false, 0, err
	}
	for _, timeID := range removed {
		n, err := ReconcileFlags(ctx, s, timeID, nil, now)
		if err != nil {
			return 0, false, 0, err
		}
		flags += n
	}

	headerDeleted, err = s.DeleteHeaderIfEmpty(ctx, headerID)
	if err != nil {
		return 0, false, 0, err
	}
	if !headerDeleted {
		totals, err := s.SumEntryTotals(ctx, headerID)
		if err != nil {
			return 0, false, 0, err
		}
		if err := s.UpdateHeaderTotals(ctx, headerID, totals); err != nil {
			return 0, false, 0, err
		}
	}
	return len(removed), headerDeleted, flags, nil
}

// =============================================================================
// CLEANUP - Headers the batch did not touch
// =============================================================================

// cleanupScope returns the weeks whose untouched headers are finalized. An
// explicit window covers every employee. Without one the scope is the span of
// the batch's pay periods, limited to the employees the batch contains.
func (e *Engine) cleanupScope(window *generic.Period, groups []*recordGroup) (*generic.Period, map[int64]bool) {
	if window != nil {
		return &generic.Period{Start: e.Periods.StartFor(window.Start), End: window.End}, nil
	}
	if len(groups) == 0 {
		return nil, nil
	}
	scope := generic.Period{Start: groups[0].WeekStart, End: groups[0].WeekStart}
	employees := make(map[int64]bool)
	for _, g := range groups {
		employees[g.EmployeeID] = true
		if g.WeekStart.Before(scope.Start) {
			scope.Start = g.WeekStart
		}
		if g.WeekStart.After(scope.End) {
			scope.End = g.WeekStart
		}
	}
	return &scope, employees
}

func (e *Engine) cleanup(ctx context.Context, scope *generic.Period, employees map[int64]bool, touched, movedFrom map[string]bool, keep []int64, now time.Time) []GroupResult {
	var candidates []Header
	seen := make(map[string]bool)

	if scope != nil {
		headers, err := e.Store.ListHeaders(ctx, HeaderFilter{From: &scope.Start, To: &scope.End})
		if err != nil {
			return []GroupResult{{WeekStart: scope.Start, Err: &GroupError{WeekStart: scope.Start, Op: "list headers", Err: err}}}
		}
		for _, h := range headers {
			if employees != nil && !employees[h.EmployeeID] {
				continue
			}
			if !touched[h.ID] {
				candidates = append(candidates, h)
				seen[h.ID] = true
			}
		}
	}

	moved := make([]string, 0, len(movedFrom))
	for id := range movedFrom {
		moved = append(moved, id)
	}
	sort.Strings(moved)
	for _, id := range moved {
		if seen[id] {
			continue
		}
		h, err := e.Store.GetHeader(ctx, id)
		if err != nil || h == nil {
			continue
		}
		candidates = append(candidates, *h)
	}

	results := make([]GroupResult, 0, len(candidates))
	for _, h := range candidates {
		res := GroupResult{EmployeeID: h.EmployeeID, WeekStart: h.WeekStartDate, HeaderID: h.ID}
		err := withTx(ctx, e.Store, func(s Store) error {
			deleted, headerDeleted, flags, err := e.finalizeHeader(ctx, s, h.ID, keep, now)
			res.EntriesDeleted, res.HeaderDeleted, res.FlagsWritten = deleted, headerDeleted, flags
			return err
		})
		if err != nil {
			res = GroupResult{EmployeeID: h.EmployeeID, WeekStart: h.WeekStartDate, HeaderID: h.ID,
				Err: &GroupError{EmployeeID: h.EmployeeID, WeekStart: h.WeekStartDate, Op: "cleanup", Err: err}}
		}
		results = append(results, res)
	}
	return results
}
