/*
service.go - User operations on the ledger: edit, approve, reset

PURPOSE:
  The operations reviewers perform between sync passes. Each mutation is
  authorized first, writes an edit-log row, then updates the entry or header
  directly without going through the merge logic.

EDIT LOG AS SYNC GATE:
  Any edit-log row for an entry tells the next sync pass to keep the local
  clock values. ResetEntryFromRemote deletes those rows, so the following
  pass re-derives the entry from remote data.

HEADER STATUS:
  pending   - nothing approved yet
  processed - at least one entry approved
  approved  - ApproveHeader succeeded (every entry approved)
  Resetting an entry in an approved header moves it back to processed.

SEE ALSO:
  - engine.go: The sync pass that reads the edit log
  - store.go: Persistence interface
*/
package timesheet

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/warp/timesheet-engine/generic"
	"go.uber.org/zap"
)

// Service implements user-initiated operations.
type Service struct {
	Store  Store
	Logger *zap.Logger
	Now    func() time.Time
}

// NewService creates a service. A nil logger discards output.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Store: store, Logger: logger, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// =============================================================================
// VIEWS
// =============================================================================

// TimesheetView is a header with its entries.
type TimesheetView struct {
	Header  Header
	Entries []Entry
}

// GetTimesheet returns a header and its entries.
func (s *Service) GetTimesheet(ctx context.Context, headerID string) (*TimesheetView, error) {
	hdr, err := s.Store.GetHeader(ctx, headerID)
	if err != nil {
		return nil, err
	}
	if hdr == nil {
		return nil, fmt.Errorf("header %s: %w", headerID, ErrNotFound)
	}
	entries, err := s.Store.ListEntries(ctx, hdr.ID)
	if err != nil {
		return nil, err
	}
	return &TimesheetView{Header: *hdr, Entries: entries}, nil
}

// ListTimesheets returns headers matching filter.
func (s *Service) ListTimesheets(ctx context.Context, filter HeaderFilter) ([]Header, error) {
	return s.Store.ListHeaders(ctx, filter)
}

// GetEntry returns one entry or ErrNotFound.
func (s *Service) GetEntry(ctx context.Context, entryID string) (*Entry, error) {
	return s.loadEntry(ctx, s.Store, entryID)
}

// ActiveFlags returns the entry's flags with status active.
func (s *Service) ActiveFlags(ctx context.Context, entryID string) ([]Flag, error) {
	e, err := s.loadEntry(ctx, s.Store, entryID)
	if err != nil {
		return nil, err
	}
	flags, err := s.Store.ListFlags(ctx, e.WiwTimeID)
	if err != nil {
		return nil, err
	}
	return ActiveOnly(flags), nil
}

// EditHistory returns the entry's edit-log rows, oldest first.
func (s *Service) EditHistory(ctx context.Context, entryID string) ([]EditLogEntry, error) {
	if _, err := s.loadEntry(ctx, s.Store, entryID); err != nil {
		return nil, err
	}
	return s.Store.ListEditLog(ctx, entryID)
}

// =============================================================================
// EDIT
// =============================================================================

// EntryEdit carries the fields to change. Nil leaves a field as is.
type EntryEdit struct {
	ClockIn      *time.Time
	ClockOut     *time.Time
	BreakMinutes *int
}

// EditEntry changes clock values and/or break. One edit-log row is written
// per changed field; derived hours are recomputed from the new values.
// Flags and header totals are refreshed by the next sync pass.
func (s *Service) EditEntry(ctx context.Context, entryID string, edit EntryEdit, editor Editor) (*Entry, error) {
	if !editor.CanModify() {
		return nil, ErrUnauthorized
	}
	if edit.BreakMinutes != nil && *edit.BreakMinutes < 0 {
		return nil, fmt.Errorf("%w: break minutes must not be negative", ErrInvalidEdit)
	}

	var out Entry
	err := withTx(ctx, s.Store, func(st Store) error {
		e, hdr, err := s.loadEntryWithHeader(ctx, st, entryID)
		if err != nil {
			return err
		}
		now := s.now()
		updated := *e

		var rows []EditLogEntry
		if edit.ClockIn != nil && !sameTime(e.ClockIn, edit.ClockIn) {
			t := *edit.ClockIn
			updated.ClockIn = &t
			rows = append(rows, auditRow(hdr, e, editor, EditClockIn, formatTime(e.ClockIn), formatTime(&t), now))
		}
		if edit.ClockOut != nil && !sameTime(e.ClockOut, edit.ClockOut) {
			t := *edit.ClockOut
			updated.ClockOut = &t
			rows = append(rows, auditRow(hdr, e, editor, EditClockOut, formatTime(e.ClockOut), formatTime(&t), now))
		}
		if edit.BreakMinutes != nil && *edit.BreakMinutes != e.BreakMinutes {
			updated.BreakMinutes = *edit.BreakMinutes
			rows = append(rows, auditRow(hdr, e, editor, EditBreakMinutes, strconv.Itoa(e.BreakMinutes), strconv.Itoa(updated.BreakMinutes), now))
		}
		if len(rows) == 0 {
			out = *e
			return nil
		}
		if updated.ClockIn != nil && updated.ClockOut != nil && !updated.ClockOut.After(*updated.ClockIn) {
			return fmt.Errorf("%w: clock out must be after clock in", ErrInvalidEdit)
		}

		for _, row := range rows {
			if err := st.AppendEditLog(ctx, row); err != nil {
				return fmt.Errorf("append edit log: %w", err)
			}
		}

		if updated.ClockIn != nil {
			updated.Date = generic.DateOf(*updated.ClockIn)
		}
		updated.ClockedHours = ElapsedHours(updated.ClockIn, updated.ClockOut, updated.BreakMinutes, e.ClockedHours)
		updated.PayableHours = PayableHours(updated.ClockIn, updated.ClockOut, updated.ScheduledStart, updated.ScheduledEnd, updated.BreakMinutes, e.PayableHours)
		updated.AdditionalHours = AdditionalHours(updated.ScheduledEnd, updated.ClockOut)
		updated.UpdatedAt = now

		saved, err := st.UpsertEntry(ctx, updated)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		out = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("entry edited", zap.String("entry_id", out.ID), zap.String("editor", editor.ID))
	return &out, nil
}

// SetExtraTimeStatus confirms or denies the entry's time past scheduled end.
func (s *Service) SetExtraTimeStatus(ctx context.Context, entryID string, status ExtraTimeStatus, editor Editor) (*Entry, error) {
	if !editor.CanModify() {
		return nil, ErrUnauthorized
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown extra time status %q", ErrInvalidEdit, status)
	}
	return s.updateField(ctx, entryID, editor, EditExtraTimeStatus, func(e *Entry) (string, string, bool) {
		if e.ExtraTimeStatus == status {
			return "", "", false
		}
		old := string(e.ExtraTimeStatus)
		e.ExtraTimeStatus = status
		return old, string(status), true
	})
}

// SetNotes replaces the entry's reviewer notes.
func (s *Service) SetNotes(ctx context.Context, entryID, notes string, editor Editor) (*Entry, error) {
	if !editor.CanModify() {
		return nil, ErrUnauthorized
	}
	return s.updateField(ctx, entryID, editor, EditNotes, func(e *Entry) (string, string, bool) {
		if e.Notes == notes {
			return "", "", false
		}
		old := e.Notes
		e.Notes = notes
		return old, notes, true
	})
}

func (s *Service) updateField(ctx context.Context, entryID string, editor Editor, kind EditType, apply func(*Entry) (string, string, bool)) (*Entry, error) {
	var out Entry
	err := withTx(ctx, s.Store, func(st Store) error {
		e, hdr, err := s.loadEntryWithHeader(ctx, st, entryID)
		if err != nil {
			return err
		}
		updated := *e
		oldValue, newValue, changed := apply(&updated)
		if !changed {
			out = *e
			return nil
		}
		now := s.now()
		if err := st.AppendEditLog(ctx, auditRow(hdr, e, editor, kind, oldValue, newValue, now)); err != nil {
			return fmt.Errorf("append edit log: %w", err)
		}
		updated.UpdatedAt = now
		saved, err := st.UpsertEntry(ctx, updated)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		out = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// APPROVAL
// =============================================================================

// ApproveEntry marks one entry approved. Approving an approved entry is a no-op.
func (s *Service) ApproveEntry(ctx context.Context, entryID string, editor Editor) (*Entry, error) {
	if !editor.CanModify() {
		return nil, ErrUnauthorized
	}
	var out Entry
	err := withTx(ctx, s.Store, func(st Store) error {
		e, hdr, err := s.loadEntryWithHeader(ctx, st, entryID)
		if err != nil {
			return err
		}
		if e.IsApproved() {
			out = *e
			return nil
		}
		now := s.now()
		if err := st.AppendEditLog(ctx, auditRow(hdr, e, editor, EditApproveEntry, string(e.Status), string(EntryApproved), now)); err != nil {
			return fmt.Errorf("append edit log: %w", err)
		}
		updated := *e
		updated.Status = EntryApproved
		updated.UpdatedAt = now
		saved, err := st.UpsertEntry(ctx, updated)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		if hdr.Status == HeaderPending {
			if err := st.UpdateHeaderStatus(ctx, hdr.ID, HeaderProcessed); err != nil {
				return fmt.Errorf("update header status: %w", err)
			}
		}
		out = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("entry approved", zap.String("entry_id", out.ID), zap.String("editor", editor.ID))
	return &out, nil
}

// ApproveHeader marks a header approved. Every entry must already be
// approved, and a header without entries cannot be approved.
func (s *Service) ApproveHeader(ctx context.Context, headerID string, editor Editor) (*Header, error) {
	if !editor.CanModify() {
		return nil, ErrUnauthorized
	}
	var out Header
	err := withTx(ctx, s.Store, func(st Store) error {
		hdr, err := st.GetHeader(ctx, headerID)
		if err != nil {
			return err
		}
		if hdr == nil {
			return fmt.Errorf("header %s: %w", headerID, ErrNotFound)
		}
		if hdr.Status == HeaderApproved {
			out = *hdr
			return nil
		}
		entries, err := st.ListEntries(ctx, hdr.ID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return ErrEmptyTimesheet
		}
		pending := 0
		for _, e := range entries {
			if !e.IsApproved() {
				pending++
			}
		}
		if pending > 0 {
			return fmt.Errorf("%w: %d of %d entries pending", ErrNotAllApproved, pending, len(entries))
		}

		now := s.now()
		if err := st.AppendEditLog(ctx, EditLogEntry{
			TimesheetID:  hdr.ID,
			EditType:     EditApproveHeader,
			OldValue:     string(hdr.Status),
			NewValue:     string(HeaderApproved),
			EditorID:     editor.ID,
			EditorName:   editor.Name,
			EmployeeID:   hdr.EmployeeID,
			EmployeeName: hdr.EmployeeName,
			WeekStart:    hdr.WeekStartDate,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("append edit log: %w", err)
		}
		if err := st.UpdateHeaderStatus(ctx, hdr.ID, HeaderApproved); err != nil {
			return fmt.Errorf("update header status: %w", err)
		}
		out = *hdr
		out.Status = HeaderApproved
		out.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("timesheet approved", zap.String("header_id", out.ID), zap.String("editor", editor.ID))
	return &out, nil
}

// =============================================================================
// RESET
// =============================================================================

// ResetEntryFromRemote discards local edits and approval for one entry so
// the next sync pass re-derives it from remote data. Stored values are left
// as they are until then.
func (s *Service) ResetEntryFromRemote(ctx context.Context, entryID string, editor Editor) (*Entry, error) {
	if !editor.CanModify() {
		return nil, ErrUnauthorized
	}
	var out Entry
	removed := 0
	err := withTx(ctx, s.Store, func(st Store) error {
		e, hdr, err := s.loadEntryWithHeader(ctx, st, entryID)
		if err != nil {
			return err
		}
		n, err := st.DeleteEditLogs(ctx, e.ID, e.WiwTimeID)
		if err != nil {
			return fmt.Errorf("delete edit logs: %w", err)
		}
		removed = n

		updated := *e
		updated.Status = EntryPending
		updated.UpdatedAt = s.now()
		saved, err := st.UpsertEntry(ctx, updated)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		if hdr.Status == HeaderApproved {
			if err := st.UpdateHeaderStatus(ctx, hdr.ID, HeaderProcessed); err != nil {
				return fmt.Errorf("update header status: %w", err)
			}
		}
		out = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("entry reset to remote",
		zap.String("entry_id", out.ID),
		zap.Int("edit_logs_removed", removed),
		zap.String("editor", editor.ID),
	)
	return &out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) loadEntry(ctx context.Context, st Store, entryID string) (*Entry, error) {
	e, err := st.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
	}
	return e, nil
}

func (s *Service) loadEntryWithHeader(ctx context.Context, st Store, entryID string) (*Entry, *Header, error) {
	e, err := s.loadEntry(ctx, st, entryID)
	if err != nil {
		return nil, nil, err
	}
	hdr, err := st.GetHeader(ctx, e.TimesheetID)
	if err != nil {
		return nil, nil, err
	}
	if hdr == nil {
		return nil, nil, fmt.Errorf("header %s: %w", e.TimesheetID, ErrNotFound)
	}
	return e, hdr, nil
}

func auditRow(hdr *Header, e *Entry, editor Editor, kind EditType, oldValue, newValue string, now time.Time) EditLogEntry {
	return EditLogEntry{
		TimesheetID:  hdr.ID,
		EntryID:      e.ID,
		WiwTimeID:    e.WiwTimeID,
		EditType:     kind,
		OldValue:     oldValue,
		NewValue:     newValue,
		EditorID:     editor.ID,
		EditorName:   editor.Name,
		EmployeeID:   hdr.EmployeeID,
		EmployeeName: hdr.EmployeeName,
		LocationName: e.LocationName,
		WeekStart:    hdr.WeekStartDate,
		CreatedAt:    now,
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
