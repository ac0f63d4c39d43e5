/*
store.go - Persistence interface consumed by the sync engine and user operations

PURPOSE:
  Defines the boundary between reconciliation logic and the database.
  Every operation is scoped to a single header or entry; the engine never
  needs a transaction that spans two headers.

NATURAL KEYS:
  Headers:  (employee_id, week_start_date)
  Entries:  wiw_time_id
  Flags:    (wiw_time_id, flag_type)
  Upserts by natural key keep the row id stable, which is what makes a
  repeated sync pass idempotent.

NOT-FOUND CONVENTION:
  Get* methods return (nil, nil) when the row does not exist.

IMPLEMENTATIONS:
  - store/sqlite: SQLite via sqlx
  - store/memory: In-memory for tests and demos

SEE ALSO:
  - engine.go: The sync pass
  - service.go: Edit / approve / reset
*/
package timesheet

import (
	"context"

	"github.com/warp/timesheet-engine/generic"
)

// Store persists headers, entries, the edit log and flags.
type Store interface {
	// UpsertHeader inserts by (EmployeeID, WeekStartDate) with status pending,
	// or updates name, end date and totals of the existing row. Status is
	// never changed by an upsert. Returns the persisted row.
	UpsertHeader(ctx context.Context, h Header) (Header, error)
	GetHeader(ctx context.Context, id string) (*Header, error)
	GetHeaderByKey(ctx context.Context, employeeID int64, weekStart generic.TimePoint) (*Header, error)
	ListHeaders(ctx context.Context, filter HeaderFilter) ([]Header, error)
	UpdateHeaderTotals(ctx context.Context, id string, totals Totals) error
	UpdateHeaderStatus(ctx context.Context, id string, status HeaderStatus) error

	// DeleteHeaderIfEmpty removes the header when it owns no entries.
	DeleteHeaderIfEmpty(ctx context.Context, id string) (bool, error)

	// UpsertEntry inserts by WiwTimeID or replaces every column of the
	// existing row except id and created_at. Returns the persisted row.
	UpsertEntry(ctx context.Context, e Entry) (Entry, error)
	GetEntry(ctx context.Context, id string) (*Entry, error)
	GetEntryByTimeID(ctx context.Context, timeID int64) (*Entry, error)
	ListEntries(ctx context.Context, headerID string) ([]Entry, error)

	// DeleteEntriesNotIn removes the header's entries whose WiwTimeID is not
	// in keep and returns the removed time ids.
	DeleteEntriesNotIn(ctx context.Context, headerID string, keep []int64) ([]int64, error)

	// SumEntryTotals aggregates clocked and scheduled hours over the
	// header's current entries.
	SumEntryTotals(ctx context.Context, headerID string) (Totals, error)

	// HasEditLog reports whether any edit-log row references the entry id or
	// the remote time id.
	HasEditLog(ctx context.Context, entryID string, timeID int64) (bool, error)
	AppendEditLog(ctx context.Context, row EditLogEntry) error
	ListEditLog(ctx context.Context, entryID string) ([]EditLogEntry, error)
	DeleteEditLogs(ctx context.Context, entryID string, timeID int64) (int, error)

	// UpsertFlag inserts by (WiwTimeID, FlagType) or updates status and
	// description, keeping created_at.
	UpsertFlag(ctx context.Context, f Flag) error
	ListFlags(ctx context.Context, timeID int64) ([]Flag, error)
}

// TxStore wraps Store with transaction support.
// Use this when a group of writes must land together.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// withTx runs fn transactionally when the store supports it, directly otherwise.
func withTx(ctx context.Context, store Store, fn func(Store) error) error {
	if txs, ok := store.(TxStore); ok {
		return txs.WithTx(ctx, fn)
	}
	return fn(store)
}
