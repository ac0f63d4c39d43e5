/*
Package sqlite provides a SQLite-backed implementation of timesheet.Store.

PURPOSE:
  Persists the timesheet ledger: headers, entries, the edit log and flags.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  timesheet_headers:   One row per (employee_id, week_start_date)
  timesheet_entries:   One row per wiw_time_id
  timesheet_edit_logs: Append-only audit of user changes
  time_flags:          One row per (wiw_time_id, flag_type), never deleted

NATURAL-KEY UPSERTS:
  Every write from the sync pass is INSERT ... ON CONFLICT on the natural
  key, so row ids stay stable across passes and a re-run changes nothing.

VALUE ENCODING:
  Dates:       TEXT "YYYY-MM-DD"
  Timestamps:  TEXT RFC3339 with offset (local wall time survives a round trip)
  Hours:       TEXT decimal (shopspring/decimal Scanner/Valuer)

CONCURRENCY:
  A single connection is used (SetMaxOpenConns(1)); SQLite allows one
  writer, and ":memory:" databases are per-connection.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/timesheets.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - timesheet/store.go: Interface definition
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// Store implements timesheet.Store and timesheet.TxStore using SQLite.
type Store struct {
	*queries
	db *sqlx.DB
}

var (
	_ timesheet.Store   = (*Store)(nil)
	_ timesheet.TxStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{queries: &queries{ext: db}, db: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the database schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
	-- Headers (one per employee x pay period)
	CREATE TABLE IF NOT EXISTS timesheet_headers (
		id TEXT PRIMARY KEY,
		employee_id INTEGER NOT NULL,
		employee_name TEXT NOT NULL DEFAULT '',
		week_start_date TEXT NOT NULL,
		week_end_date TEXT NOT NULL,
		total_scheduled_hours TEXT NOT NULL DEFAULT '0',
		total_clocked_hours TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(employee_id, week_start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_headers_week_start
		ON timesheet_headers(week_start_date);

	-- Entries (one per remote time record)
	CREATE TABLE IF NOT EXISTS timesheet_entries (
		id TEXT PRIMARY KEY,
		timesheet_id TEXT NOT NULL REFERENCES timesheet_headers(id),
		wiw_time_id INTEGER NOT NULL UNIQUE,
		wiw_shift_id INTEGER,
		date TEXT NOT NULL,
		clock_in TEXT,
		clock_out TEXT,
		scheduled_start TEXT,
		scheduled_end TEXT,
		break_minutes INTEGER NOT NULL DEFAULT 0,
		scheduled_hours TEXT NOT NULL DEFAULT '0',
		clocked_hours TEXT NOT NULL DEFAULT '0',
		payable_hours TEXT NOT NULL DEFAULT '0',
		additional_hours TEXT NOT NULL DEFAULT '0',
		extra_time_status TEXT NOT NULL DEFAULT 'unset',
		status TEXT NOT NULL DEFAULT 'pending',
		notes TEXT NOT NULL DEFAULT '',
		location_id INTEGER NOT NULL DEFAULT 0,
		location_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_timesheet
		ON timesheet_entries(timesheet_id);

	-- Edit log (append-only)
	CREATE TABLE IF NOT EXISTS timesheet_edit_logs (
		id TEXT PRIMARY KEY,
		timesheet_id TEXT NOT NULL,
		entry_id TEXT,
		wiw_time_id INTEGER,
		edit_type TEXT NOT NULL,
		old_value TEXT NOT NULL DEFAULT '',
		new_value TEXT NOT NULL DEFAULT '',
		editor_id TEXT NOT NULL,
		editor_name TEXT NOT NULL DEFAULT '',
		employee_id INTEGER NOT NULL,
		employee_name TEXT NOT NULL DEFAULT '',
		location_name TEXT NOT NULL DEFAULT '',
		week_start_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_edit_logs_entry
		ON timesheet_edit_logs(entry_id) WHERE entry_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_edit_logs_time
		ON timesheet_edit_logs(wiw_time_id) WHERE wiw_time_id IS NOT NULL;

	-- Flags (never deleted; resolved keeps history)
	CREATE TABLE IF NOT EXISTS time_flags (
		id TEXT PRIMARY KEY,
		wiw_time_id INTEGER NOT NULL,
		flag_type INTEGER NOT NULL,
		description TEXT NOT NULL,
		flag_status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(wiw_time_id, flag_type)
	);
`

// =============================================================================
// TRANSACTIONAL STORE (timesheet.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store timesheet.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"time_flags", "timesheet_edit_logs", "timesheet_entries", "timesheet_headers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// queries runs every statement against either the DB or an open Tx.
type queries struct {
	ext sqlx.ExtContext
}

// =============================================================================
// HEADERS
// =============================================================================

type headerRow struct {
	ID                  string        `db:"id"`
	EmployeeID          int64         `db:"employee_id"`
	EmployeeName        string        `db:"employee_name"`
	WeekStartDate       string        `db:"week_start_date"`
	WeekEndDate         string        `db:"week_end_date"`
	TotalScheduledHours generic.Hours `db:"total_scheduled_hours"`
	TotalClockedHours   generic.Hours `db:"total_clocked_hours"`
	Status              string        `db:"status"`
	CreatedAt           string        `db:"created_at"`
	UpdatedAt           string        `db:"updated_at"`
}

const headerColumns = `id, employee_id, employee_name, week_start_date, week_end_date,
	total_scheduled_hours, total_clocked_hours, status, created_at, updated_at`

func (q *queries) UpsertHeader(ctx context.Context, h timesheet.Header) (timesheet.Header, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.Status == "" {
		h.Status = timesheet.HeaderPending
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = h.CreatedAt
	}
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO timesheet_headers (`+headerColumns+`)
		VALUES (:id, :employee_id, :employee_name, :week_start_date, :week_end_date,
			:total_scheduled_hours, :total_clocked_hours, :status, :created_at, :updated_at)
		ON CONFLICT(employee_id, week_start_date) DO UPDATE SET
			employee_name = excluded.employee_name,
			week_end_date = excluded.week_end_date,
			total_scheduled_hours = excluded.total_scheduled_hours,
			total_clocked_hours = excluded.total_clocked_hours,
			updated_at = excluded.updated_at
	`, toHeaderRow(h))
	if err != nil {
		return timesheet.Header{}, fmt.Errorf("upsert header: %w", err)
	}
	saved, err := q.GetHeaderByKey(ctx, h.EmployeeID, h.WeekStartDate)
	if err != nil {
		return timesheet.Header{}, err
	}
	if saved == nil {
		return timesheet.Header{}, fmt.Errorf("upsert header: row for employee %d week %s not readable", h.EmployeeID, h.WeekStartDate)
	}
	return *saved, nil
}

func (q *queries) GetHeader(ctx context.Context, id string) (*timesheet.Header, error) {
	return q.getHeader(ctx, `SELECT `+headerColumns+` FROM timesheet_headers WHERE id = ?`, id)
}

func (q *queries) GetHeaderByKey(ctx context.Context, employeeID int64, weekStart generic.TimePoint) (*timesheet.Header, error) {
	return q.getHeader(ctx, `SELECT `+headerColumns+` FROM timesheet_headers WHERE employee_id = ? AND week_start_date = ?`,
		employeeID, fmtDate(weekStart))
}

func (q *queries) getHeader(ctx context.Context, query string, args ...any) (*timesheet.Header, error) {
	var row headerRow
	if err := sqlx.GetContext(ctx, q.ext, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	h, err := row.toHeader()
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (q *queries) ListHeaders(ctx context.Context, f timesheet.HeaderFilter) ([]timesheet.Header, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != 0 {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.From != nil {
		where = append(where, "week_start_date >= ?")
		args = append(args, fmtDate(*f.From))
	}
	if f.To != nil {
		where = append(where, "week_start_date <= ?")
		args = append(args, fmtDate(*f.To))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + headerColumns + ` FROM timesheet_headers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY week_start_date, employee_id"

	var rows []headerRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]timesheet.Header, 0, len(rows))
	for _, row := range rows {
		h, err := row.toHeader()
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (q *queries) UpdateHeaderTotals(ctx context.Context, id string, totals timesheet.Totals) error {
	return q.execOne(ctx, `
		UPDATE timesheet_headers
		SET total_clocked_hours = ?, total_scheduled_hours = ?, updated_at = ?
		WHERE id = ?
	`, totals.ClockedHours, totals.ScheduledHours, fmtTime(time.Now().UTC()), id)
}

func (q *queries) UpdateHeaderStatus(ctx context.Context, id string, status timesheet.HeaderStatus) error {
	return q.execOne(ctx, `UPDATE timesheet_headers SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), fmtTime(time.Now().UTC()), id)
}

func (q *queries) DeleteHeaderIfEmpty(ctx context.Context, id string) (bool, error) {
	result, err := q.ext.ExecContext(ctx, `
		DELETE FROM timesheet_headers
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM timesheet_entries WHERE timesheet_id = ?)
	`, id, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func toHeaderRow(h timesheet.Header) headerRow {
	return headerRow{
		ID:                  h.ID,
		EmployeeID:          h.EmployeeID,
		EmployeeName:        h.EmployeeName,
		WeekStartDate:       fmtDate(h.WeekStartDate),
		WeekEndDate:         fmtDate(h.WeekEndDate),
		TotalScheduledHours: h.TotalScheduledHours,
		TotalClockedHours:   h.TotalClockedHours,
		Status:              string(h.Status),
		CreatedAt:           fmtTime(h.CreatedAt),
		UpdatedAt:           fmtTime(h.UpdatedAt),
	}
}

func (r headerRow) toHeader() (timesheet.Header, error) {
	start, err := generic.ParseDate(r.WeekStartDate)
	if err != nil {
		return timesheet.Header{}, err
	}
	end, err := generic.ParseDate(r.WeekEndDate)
	if err != nil {
		return timesheet.Header{}, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return timesheet.Header{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return timesheet.Header{}, err
	}
	return timesheet.Header{
		ID:                  r.ID,
		EmployeeID:          r.EmployeeID,
		EmployeeName:        r.EmployeeName,
		WeekStartDate:       start,
		WeekEndDate:         end,
		TotalScheduledHours: r.TotalScheduledHours,
		TotalClockedHours:   r.TotalClockedHours,
		Status:              timesheet.HeaderStatus(r.Status),
		CreatedAt:           created,
		UpdatedAt:           updated,
	}, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

type entryRow struct {
	ID              string        `db:"id"`
	TimesheetID     string        `db:"timesheet_id"`
	WiwTimeID       int64         `db:"wiw_time_id"`
	WiwShiftID      *int64        `db:"wiw_shift_id"`
	Date            string        `db:"date"`
	ClockIn         *string       `db:"clock_in"`
	ClockOut        *string       `db:"clock_out"`
	ScheduledStart  *string       `db:"scheduled_start"`
	ScheduledEnd    *string       `db:"scheduled_end"`
	BreakMinutes    int           `db:"break_minutes"`
	ScheduledHours  generic.Hours `db:"scheduled_hours"`
	ClockedHours    generic.Hours `db:"clocked_hours"`
	PayableHours    generic.Hours `db:"payable_hours"`
	AdditionalHours generic.Hours `db:"additional_hours"`
	ExtraTimeStatus string        `db:"extra_time_status"`
	Status          string        `db:"status"`
	Notes           string        `db:"notes"`
	LocationID      int64         `db:"location_id"`
	LocationName    string        `db:"location_name"`
	CreatedAt       string        `db:"created_at"`
	UpdatedAt       string        `db:"updated_at"`
}

const entryColumns = `id, timesheet_id, wiw_time_id, wiw_shift_id, date, clock_in, clock_out,
	scheduled_start, scheduled_end, break_minutes, scheduled_hours, clocked_hours,
	payable_hours, additional_hours, extra_time_status, status, notes,
	location_id, location_name, created_at, updated_at`

func (q *queries) UpsertEntry(ctx context.Context, e timesheet.Entry) (timesheet.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = timesheet.EntryPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO timesheet_entries (`+entryColumns+`)
		VALUES (:id, :timesheet_id, :wiw_time_id, :wiw_shift_id, :date, :clock_in, :clock_out,
			:scheduled_start, :scheduled_end, :break_minutes, :scheduled_hours, :clocked_hours,
			:payable_hours, :additional_hours, :extra_time_status, :status, :notes,
			:location_id, :location_name, :created_at, :updated_at)
		ON CONFLICT(wiw_time_id) DO UPDATE SET
			timesheet_id = excluded.timesheet_id,
			wiw_shift_id = excluded.wiw_shift_id,
			date = excluded.date,
			clock_in = excluded.clock_in,
			clock_out = excluded.clock_out,
			scheduled_start = excluded.scheduled_start,
			scheduled_end = excluded.scheduled_end,
			break_minutes = excluded.break_minutes,
			scheduled_hours = excluded.scheduled_hours,
			clocked_hours = excluded.clocked_hours,
			payable_hours = excluded.payable_hours,
			additional_hours = excluded.additional_hours,
			extra_time_status = excluded.extra_time_status,
			status = excluded.status,
			notes = excluded.notes,
			location_id = excluded.location_id,
			location_name = excluded.location_name,
			updated_at = excluded.updated_at
	`, toEntryRow(e))
	if err != nil {
		return timesheet.Entry{}, fmt.Errorf("upsert entry %d: %w", e.WiwTimeID, err)
	}
	saved, err := q.GetEntryByTimeID(ctx, e.WiwTimeID)
	if err != nil {
		return timesheet.Entry{}, err
	}
	if saved == nil {
		return timesheet.Entry{}, fmt.Errorf("upsert entry %d: row not readable", e.WiwTimeID)
	}
	return *saved, nil
}

func (q *queries) GetEntry(ctx context.Context, id string) (*timesheet.Entry, error) {
	return q.getEntry(ctx, `SELECT `+entryColumns+` FROM timesheet_entries WHERE id = ?`, id)
}

func (q *queries) GetEntryByTimeID(ctx context.Context, timeID int64) (*timesheet.Entry, error) {
	return q.getEntry(ctx, `SELECT `+entryColumns+` FROM timesheet_entries WHERE wiw_time_id = ?`, timeID)
}

func (q *queries) getEntry(ctx context.Context, query string, args ...any) (*timesheet.Entry, error) {
	var row entryRow
	if err := sqlx.GetContext(ctx, q.ext, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e, err := row.toEntry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (q *queries) ListEntries(ctx context.Context, headerID string) ([]timesheet.Entry, error) {
	var rows []entryRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT `+entryColumns+` FROM timesheet_entries
		WHERE timesheet_id = ?
		ORDER BY clock_in, wiw_time_id
	`, headerID); err != nil {
		return nil, err
	}
	out := make([]timesheet.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (q *queries) DeleteEntriesNotIn(ctx context.Context, headerID string, keep []int64) ([]int64, error) {
	query, args := `SELECT wiw_time_id FROM timesheet_entries WHERE timesheet_id = ?`, []any{headerID}
	if len(keep) > 0 {
		var err error
		query, args, err = sqlx.In(query+` AND wiw_time_id NOT IN (?)`, headerID, keep)
		if err != nil {
			return nil, err
		}
	}
	query += ` ORDER BY wiw_time_id`

	var removed []int64
	if err := sqlx.SelectContext(ctx, q.ext, &removed, query, args...); err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, nil
	}

	del, delArgs, err := sqlx.In(`DELETE FROM timesheet_entries WHERE timesheet_id = ? AND wiw_time_id IN (?)`, headerID, removed)
	if err != nil {
		return nil, err
	}
	if _, err := q.ext.ExecContext(ctx, del, delArgs...); err != nil {
		return nil, err
	}
	return removed, nil
}

func (q *queries) SumEntryTotals(ctx context.Context, headerID string) (timesheet.Totals, error) {
	var rows []struct {
		Clocked   generic.Hours `db:"clocked_hours"`
		Scheduled generic.Hours `db:"scheduled_hours"`
	}
	if err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT clocked_hours, scheduled_hours FROM timesheet_entries WHERE timesheet_id = ?`, headerID); err != nil {
		return timesheet.Totals{}, err
	}
	t := timesheet.Totals{ClockedHours: generic.ZeroHours, ScheduledHours: generic.ZeroHours, Entries: len(rows)}
	for _, r := range rows {
		t.ClockedHours = t.ClockedHours.Add(r.Clocked)
		t.ScheduledHours = t.ScheduledHours.Add(r.Scheduled)
	}
	t.ClockedHours = generic.RoundHours(t.ClockedHours)
	t.ScheduledHours = generic.RoundHours(t.ScheduledHours)
	return t, nil
}

func toEntryRow(e timesheet.Entry) entryRow {
	extra := string(e.ExtraTimeStatus)
	if e.ExtraTimeStatus == timesheet.ExtraTimeUnset {
		extra = extraTimeUnset
	}
	return entryRow{
		ID:              e.ID,
		TimesheetID:     e.TimesheetID,
		WiwTimeID:       e.WiwTimeID,
		WiwShiftID:      e.WiwShiftID,
		Date:            fmtDate(e.Date),
		ClockIn:         fmtTimePtr(e.ClockIn),
		ClockOut:        fmtTimePtr(e.ClockOut),
		ScheduledStart:  fmtTimePtr(e.ScheduledStart),
		ScheduledEnd:    fmtTimePtr(e.ScheduledEnd),
		BreakMinutes:    e.BreakMinutes,
		ScheduledHours:  e.ScheduledHours,
		ClockedHours:    e.ClockedHours,
		PayableHours:    e.PayableHours,
		AdditionalHours: e.AdditionalHours,
		ExtraTimeStatus: extra,
		Status:          string(e.Status),
		Notes:           e.Notes,
		LocationID:      e.LocationID,
		LocationName:    e.LocationName,
		CreatedAt:       fmtTime(e.CreatedAt),
		UpdatedAt:       fmtTime(e.UpdatedAt),
	}
}

func (r entryRow) toEntry() (timesheet.Entry, error) {
	var (
		e   timesheet.Entry
		err error
	)
	if e.Date, err = generic.ParseDate(r.Date); err != nil {
		return e, err
	}
	if e.ClockIn, err = parseTimePtr(r.ClockIn); err != nil {
		return e, err
	}
	if e.ClockOut, err = parseTimePtr(r.ClockOut); err != nil {
		return e, err
	}
	if e.ScheduledStart, err = parseTimePtr(r.ScheduledStart); err != nil {
		return e, err
	}
	if e.ScheduledEnd, err = parseTimePtr(r.ScheduledEnd); err != nil {
		return e, err
	}
	if e.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return e, err
	}
	if e.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return e, err
	}
	e.ID = r.ID
	e.TimesheetID = r.TimesheetID
	e.WiwTimeID = r.WiwTimeID
	e.WiwShiftID = r.WiwShiftID
	e.BreakMinutes = r.BreakMinutes
	e.ScheduledHours = r.ScheduledHours
	e.ClockedHours = r.ClockedHours
	e.PayableHours = r.PayableHours
	e.AdditionalHours = r.AdditionalHours
	e.ExtraTimeStatus = timesheet.ExtraTimeStatus(r.ExtraTimeStatus)
	if r.ExtraTimeStatus == extraTimeUnset {
		e.ExtraTimeStatus = timesheet.ExtraTimeUnset
	}
	e.Status = timesheet.EntryStatus(r.Status)
	e.Notes = r.Notes
	e.LocationID = r.LocationID
	e.LocationName = r.LocationName
	return e, nil
}

// =============================================================================
// EDIT LOG
// =============================================================================

type editLogRow struct {
	ID            string  `db:"id"`
	TimesheetID   string  `db:"timesheet_id"`
	EntryID       *string `db:"entry_id"`
	WiwTimeID     *int64  `db:"wiw_time_id"`
	EditType      string  `db:"edit_type"`
	OldValue      string  `db:"old_value"`
	NewValue      string  `db:"new_value"`
	EditorID      string  `db:"editor_id"`
	EditorName    string  `db:"editor_name"`
	EmployeeID    int64   `db:"employee_id"`
	EmployeeName  string  `db:"employee_name"`
	LocationName  string  `db:"location_name"`
	WeekStartDate string  `db:"week_start_date"`
	CreatedAt     string  `db:"created_at"`
}

const editLogColumns = `id, timesheet_id, entry_id, wiw_time_id, edit_type, old_value, new_value,
	editor_id, editor_name, employee_id, employee_name, location_name, week_start_date, created_at`

func (q *queries) HasEditLog(ctx context.Context, entryID string, timeID int64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.ext, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM timesheet_edit_logs
			WHERE (entry_id = ? AND ? <> '') OR (wiw_time_id = ? AND ? <> 0)
		)
	`, entryID, entryID, timeID, timeID)
	return exists, err
}

func (q *queries) AppendEditLog(ctx context.Context, l timesheet.EditLogEntry) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	row := editLogRow{
		ID:            l.ID,
		TimesheetID:   l.TimesheetID,
		EditType:      string(l.EditType),
		OldValue:      l.OldValue,
		NewValue:      l.NewValue,
		EditorID:      l.EditorID,
		EditorName:    l.EditorName,
		EmployeeID:    l.EmployeeID,
		EmployeeName:  l.EmployeeName,
		LocationName:  l.LocationName,
		WeekStartDate: fmtDate(l.WeekStart),
		CreatedAt:     fmtTime(l.CreatedAt),
	}
	if l.EntryID != "" {
		row.EntryID = &l.EntryID
	}
	if l.WiwTimeID != 0 {
		row.WiwTimeID = &l.WiwTimeID
	}
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO timesheet_edit_logs (`+editLogColumns+`)
		VALUES (:id, :timesheet_id, :entry_id, :wiw_time_id, :edit_type, :old_value, :new_value,
			:editor_id, :editor_name, :employee_id, :employee_name, :location_name, :week_start_date, :created_at)
	`, row)
	return err
}

func (q *queries) ListEditLog(ctx context.Context, entryID string) ([]timesheet.EditLogEntry, error) {
	var rows []editLogRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT `+editLogColumns+` FROM timesheet_edit_logs
		WHERE entry_id = ?
		ORDER BY created_at, rowid
	`, entryID); err != nil {
		return nil, err
	}
	out := make([]timesheet.EditLogEntry, 0, len(rows))
	for _, r := range rows {
		week, err := generic.ParseDate(r.WeekStartDate)
		if err != nil {
			return nil, err
		}
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, err
		}
		l := timesheet.EditLogEntry{
			ID:           r.ID,
			TimesheetID:  r.TimesheetID,
			EditType:     timesheet.EditType(r.EditType),
			OldValue:     r.OldValue,
			NewValue:     r.NewValue,
			EditorID:     r.EditorID,
			EditorName:   r.EditorName,
			EmployeeID:   r.EmployeeID,
			EmployeeName: r.EmployeeName,
			LocationName: r.LocationName,
			WeekStart:    week,
			CreatedAt:    created,
		}
		if r.EntryID != nil {
			l.EntryID = *r.EntryID
		}
		if r.WiwTimeID != nil {
			l.WiwTimeID = *r.WiwTimeID
		}
		out = append(out, l)
	}
	return out, nil
}

func (q *queries) DeleteEditLogs(ctx context.Context, entryID string, timeID int64) (int, error) {
	result, err := q.ext.ExecContext(ctx, `
		DELETE FROM timesheet_edit_logs
		WHERE (entry_id = ? AND ? <> '') OR (wiw_time_id = ? AND ? <> 0)
	`, entryID, entryID, timeID, timeID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// =============================================================================
// FLAGS
// =============================================================================

type flagRow struct {
	ID          string `db:"id"`
	WiwTimeID   int64  `db:"wiw_time_id"`
	FlagType    int    `db:"flag_type"`
	Description string `db:"description"`
	Status      string `db:"flag_status"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

func (q *queries) UpsertFlag(ctx context.Context, f timesheet.Flag) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now().UTC()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = f.UpdatedAt
	}
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO time_flags (id, wiw_time_id, flag_type, description, flag_status, created_at, updated_at)
		VALUES (:id, :wiw_time_id, :flag_type, :description, :flag_status, :created_at, :updated_at)
		ON CONFLICT(wiw_time_id, flag_type) DO UPDATE SET
			description = excluded.description,
			flag_status = excluded.flag_status,
			updated_at = excluded.updated_at
	`, flagRow{
		ID:          f.ID,
		WiwTimeID:   f.WiwTimeID,
		FlagType:    int(f.FlagType),
		Description: f.Description,
		Status:      string(f.Status),
		CreatedAt:   fmtTime(f.CreatedAt),
		UpdatedAt:   fmtTime(f.UpdatedAt),
	})
	return err
}

func (q *queries) ListFlags(ctx context.Context, timeID int64) ([]timesheet.Flag, error) {
	var rows []flagRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT id, wiw_time_id, flag_type, description, flag_status, created_at, updated_at
		FROM time_flags WHERE wiw_time_id = ? ORDER BY flag_type
	`, timeID); err != nil {
		return nil, err
	}
	out := make([]timesheet.Flag, 0, len(rows))
	for _, r := range rows {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, err
		}
		updated, err := parseTime(r.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, timesheet.Flag{
			ID:          r.ID,
			WiwTimeID:   r.WiwTimeID,
			FlagType:    timesheet.FlagType(r.FlagType),
			Description: r.Description,
			Status:      timesheet.FlagStatus(r.Status),
			CreatedAt:   created,
			UpdatedAt:   updated,
		})
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

const extraTimeUnset = "unset"

func (q *queries) execOne(ctx context.Context, query string, args ...any) error {
	result, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return timesheet.ErrNotFound
	}
	return nil
}

func fmtDate(tp generic.TimePoint) string {
	return tp.Time.Format(generic.DateLayout)
}

func fmtTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
