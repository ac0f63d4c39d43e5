// Package memory provides an in-memory timesheet.Store for tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store guards a ledger with a RWMutex. WithTx holds the write lock for the
// whole callback and restores a snapshot when the callback fails.
type Store struct {
	mu sync.RWMutex
	l  *ledger
}

var (
	_ timesheet.Store   = (*Store)(nil)
	_ timesheet.TxStore = (*Store)(nil)
)

func New() *Store {
	return &Store{l: newLedger()}
}

// Reset drops every row.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l = newLedger()
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (s *Store) WithTx(_ context.Context, fn func(timesheet.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.l.clone()
	if err := fn(s.l); err != nil {
		s.l = snapshot
		return err
	}
	return nil
}

func (s *Store) UpsertHeader(ctx context.Context, h timesheet.Header) (timesheet.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.UpsertHeader(ctx, h)
}

func (s *Store) GetHeader(ctx context.Context, id string) (*timesheet.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.GetHeader(ctx, id)
}

func (s *Store) GetHeaderByKey(ctx context.Context, employeeID int64, weekStart generic.TimePoint) (*timesheet.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.GetHeaderByKey(ctx, employeeID, weekStart)
}

func (s *Store) ListHeaders(ctx context.Context, filter timesheet.HeaderFilter) ([]timesheet.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.ListHeaders(ctx, filter)
}

func (s *Store) UpdateHeaderTotals(ctx context.Context, id string, totals timesheet.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.UpdateHeaderTotals(ctx, id, totals)
}

func (s *Store) UpdateHeaderStatus(ctx context.Context, id string, status timesheet.HeaderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.UpdateHeaderStatus(ctx, id, status)
}

func (s *Store) DeleteHeaderIfEmpty(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.DeleteHeaderIfEmpty(ctx, id)
}

func (s *Store) UpsertEntry(ctx context.Context, e timesheet.Entry) (timesheet.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.UpsertEntry(ctx, e)
}

func (s *Store) GetEntry(ctx context.Context, id string) (*timesheet.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.GetEntry(ctx, id)
}

func (s *Store) GetEntryByTimeID(ctx context.Context, timeID int64) (*timesheet.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.GetEntryByTimeID(ctx, timeID)
}

func (s *Store) ListEntries(ctx context.Context, headerID string) ([]timesheet.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.ListEntries(ctx, headerID)
}

func (s *Store) DeleteEntriesNotIn(ctx context.Context, headerID string, keep []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.DeleteEntriesNotIn(ctx, headerID, keep)
}

func (s *Store) SumEntryTotals(ctx context.Context, headerID string) (timesheet.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.SumEntryTotals(ctx, headerID)
}

func (s *Store) HasEditLog(ctx context.Context, entryID string, timeID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.HasEditLog(ctx, entryID, timeID)
}

func (s *Store) AppendEditLog(ctx context.Context, row timesheet.EditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.AppendEditLog(ctx, row)
}

func (s *Store) ListEditLog(ctx context.Context, entryID string) ([]timesheet.EditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.ListEditLog(ctx, entryID)
}

func (s *Store) DeleteEditLogs(ctx context.Context, entryID string, timeID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.DeleteEditLogs(ctx, entryID, timeID)
}

func (s *Store) UpsertFlag(ctx context.Context, f timesheet.Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.UpsertFlag(ctx, f)
}

func (s *Store) ListFlags(ctx context.Context, timeID int64) ([]timesheet.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.ListFlags(ctx, timeID)
}

// =============================================================================
// LEDGER - Unlocked state; also the transactional view handed to WithTx
// =============================================================================

type headerKey struct {
	employeeID int64
	weekStart  string
}

type flagKey struct {
	timeID   int64
	flagType timesheet.FlagType
}

type ledger struct {
	headers     map[string]timesheet.Header
	headerByKey map[headerKey]string
	entries     map[string]timesheet.Entry
	entryByTime map[int64]string
	editLog     []timesheet.EditLogEntry
	flags       map[flagKey]timesheet.Flag
}

func newLedger() *ledger {
	return &ledger{
		headers:     make(map[string]timesheet.Header),
		headerByKey: make(map[headerKey]string),
		entries:     make(map[string]timesheet.Entry),
		entryByTime: make(map[int64]string),
		flags:       make(map[flagKey]timesheet.Flag),
	}
}

func (l *ledger) clone() *ledger {
	c := &ledger{
		headers:     make(map[string]timesheet.Header, len(l.headers)),
		headerByKey: make(map[headerKey]string, len(l.headerByKey)),
		entries:     make(map[string]timesheet.Entry, len(l.entries)),
		entryByTime: make(map[int64]string, len(l.entryByTime)),
		editLog:     append([]timesheet.EditLogEntry{}, l.editLog...),
		flags:       make(map[flagKey]timesheet.Flag, len(l.flags)),
	}
	for k, v := range l.headers {
		c.headers[k] = v
	}
	for k, v := range l.headerByKey {
		c.headerByKey[k] = v
	}
	for k, v := range l.entries {
		c.entries[k] = v
	}
	for k, v := range l.entryByTime {
		c.entryByTime[k] = v
	}
	for k, v := range l.flags {
		c.flags[k] = v
	}
	return c
}

func keyOf(employeeID int64, weekStart generic.TimePoint) headerKey {
	return headerKey{employeeID: employeeID, weekStart: weekStart.String()}
}

func (l *ledger) UpsertHeader(_ context.Context, h timesheet.Header) (timesheet.Header, error) {
	k := keyOf(h.EmployeeID, h.WeekStartDate)
	if id, ok := l.headerByKey[k]; ok {
		cur := l.headers[id]
		cur.EmployeeName = h.EmployeeName
		cur.WeekEndDate = h.WeekEndDate
		cur.TotalClockedHours = h.TotalClockedHours
		cur.TotalScheduledHours = h.TotalScheduledHours
		cur.UpdatedAt = h.UpdatedAt
		l.headers[id] = cur
		return cur, nil
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.Status == "" {
		h.Status = timesheet.HeaderPending
	}
	l.headers[h.ID] = h
	l.headerByKey[k] = h.ID
	return h, nil
}

func (l *ledger) GetHeader(_ context.Context, id string) (*timesheet.Header, error) {
	h, ok := l.headers[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (l *ledger) GetHeaderByKey(ctx context.Context, employeeID int64, weekStart generic.TimePoint) (*timesheet.Header, error) {
	id, ok := l.headerByKey[keyOf(employeeID, weekStart)]
	if !ok {
		return nil, nil
	}
	return l.GetHeader(ctx, id)
}

func (l *ledger) ListHeaders(_ context.Context, f timesheet.HeaderFilter) ([]timesheet.Header, error) {
	var out []timesheet.Header
	for _, h := range l.headers {
		if f.EmployeeID != 0 && h.EmployeeID != f.EmployeeID {
			continue
		}
		if f.From != nil && h.WeekStartDate.Before(*f.From) {
			continue
		}
		if f.To != nil && h.WeekStartDate.After(*f.To) {
			continue
		}
		if f.Status != "" && h.Status != f.Status {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WeekStartDate.Equal(out[j].WeekStartDate) {
			return out[i].WeekStartDate.Before(out[j].WeekStartDate)
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out, nil
}

func (l *ledger) UpdateHeaderTotals(_ context.Context, id string, totals timesheet.Totals) error {
	h, ok := l.headers[id]
	if !ok {
		return timesheet.ErrNotFound
	}
	h.TotalClockedHours = totals.ClockedHours
	h.TotalScheduledHours = totals.ScheduledHours
	l.headers[id] = h
	return nil
}

func (l *ledger) UpdateHeaderStatus(_ context.Context, id string, status timesheet.HeaderStatus) error {
	h, ok := l.headers[id]
	if !ok {
		return timesheet.ErrNotFound
	}
	h.Status = status
	l.headers[id] = h
	return nil
}

func (l *ledger) DeleteHeaderIfEmpty(_ context.Context, id string) (bool, error) {
	h, ok := l.headers[id]
	if !ok {
		return false, nil
	}
	for _, e := range l.entries {
		if e.TimesheetID == id {
			return false, nil
		}
	}
	delete(l.headers, id)
	delete(l.headerByKey, keyOf(h.EmployeeID, h.WeekStartDate))
	return true, nil
}

func (l *ledger) UpsertEntry(_ context.Context, e timesheet.Entry) (timesheet.Entry, error) {
	if id, ok := l.entryByTime[e.WiwTimeID]; ok {
		cur := l.entries[id]
		e.ID = cur.ID
		e.CreatedAt = cur.CreatedAt
	} else if e.ID == "" {
		e.ID = uuid.NewString()
	}
	l.entries[e.ID] = e
	l.entryByTime[e.WiwTimeID] = e.ID
	return e, nil
}

func (l *ledger) GetEntry(_ context.Context, id string) (*timesheet.Entry, error) {
	e, ok := l.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (l *ledger) GetEntryByTimeID(ctx context.Context, timeID int64) (*timesheet.Entry, error) {
	id, ok := l.entryByTime[timeID]
	if !ok {
		return nil, nil
	}
	return l.GetEntry(ctx, id)
}

func (l *ledger) ListEntries(_ context.Context, headerID string) ([]timesheet.Entry, error) {
	var out []timesheet.Entry
	for _, e := range l.entries {
		if e.TimesheetID == headerID {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []timesheet.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ClockIn != nil && b.ClockIn != nil && !a.ClockIn.Equal(*b.ClockIn) {
			return a.ClockIn.Before(*b.ClockIn)
		}
		return a.WiwTimeID < b.WiwTimeID
	})
}

func (l *ledger) DeleteEntriesNotIn(_ context.Context, headerID string, keep []int64) ([]int64, error) {
	kept := make(map[int64]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var removed []int64
	for id, e := range l.entries {
		if e.TimesheetID != headerID || kept[e.WiwTimeID] {
			continue
		}
		delete(l.entries, id)
		delete(l.entryByTime, e.WiwTimeID)
		removed = append(removed, e.WiwTimeID)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed, nil
}

func (l *ledger) SumEntryTotals(_ context.Context, headerID string) (timesheet.Totals, error) {
	t := timesheet.Totals{ClockedHours: generic.ZeroHours, ScheduledHours: generic.ZeroHours}
	for _, e := range l.entries {
		if e.TimesheetID != headerID {
			continue
		}
		t.ClockedHours = t.ClockedHours.Add(e.ClockedHours)
		t.ScheduledHours = t.ScheduledHours.Add(e.ScheduledHours)
		t.Entries++
	}
	t.ClockedHours = generic.RoundHours(t.ClockedHours)
	t.ScheduledHours = generic.RoundHours(t.ScheduledHours)
	return t, nil
}

func (l *ledger) HasEditLog(_ context.Context, entryID string, timeID int64) (bool, error) {
	for _, row := range l.editLog {
		if matchesEntry(row, entryID, timeID) {
			return true, nil
		}
	}
	return false, nil
}

func matchesEntry(row timesheet.EditLogEntry, entryID string, timeID int64) bool {
	return (entryID != "" && row.EntryID == entryID) || (timeID != 0 && row.WiwTimeID == timeID)
}

func (l *ledger) AppendEditLog(_ context.Context, row timesheet.EditLogEntry) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	l.editLog = append(l.editLog, row)
	return nil
}

func (l *ledger) ListEditLog(_ context.Context, entryID string) ([]timesheet.EditLogEntry, error) {
	var out []timesheet.EditLogEntry
	for _, row := range l.editLog {
		if row.EntryID == entryID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (l *ledger) DeleteEditLogs(_ context.Context, entryID string, timeID int64) (int, error) {
	kept := l.editLog[:0:0]
	removed := 0
	for _, row := range l.editLog {
		if matchesEntry(row, entryID, timeID) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	l.editLog = kept
	return removed, nil
}

func (l *ledger) UpsertFlag(_ context.Context, f timesheet.Flag) error {
	k := flagKey{timeID: f.WiwTimeID, flagType: f.FlagType}
	if cur, ok := l.flags[k]; ok {
		cur.Status = f.Status
		cur.Description = f.Description
		cur.UpdatedAt = f.UpdatedAt
		l.flags[k] = cur
		return nil
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = f.UpdatedAt
	}
	l.flags[k] = f
	return nil
}

func (l *ledger) ListFlags(_ context.Context, timeID int64) ([]timesheet.Flag, error) {
	var out []timesheet.Flag
	for k, f := range l.flags {
		if k.timeID == timeID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlagType < out[j].FlagType })
	return out, nil
}
