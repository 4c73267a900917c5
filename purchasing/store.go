/*
store.go - Persistence interface for the daily list engine

PURPOSE:
  Defines the boundary between engine logic and the database. The engine
  only ever touches data through a Tx, so every aggregation pass and every
  receiving commit is a single ACID transaction.

KEY INTERFACES:
  Store: Opens transactions
  Tx:    Row-level operations valid inside one transaction

ATOMICITY:
  WithTx commits only when fn returns nil. Any error, including one raised
  after rows were written (a lost lock race), rolls everything back.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:       SQLite (production)
  - purchasing/store/memory.go:   In-memory for testing

SEE ALSO:
  - snapshot.go, receiving.go: The only callers
*/
package purchasing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store opens transactions against the purchasing data.
type Store interface {
	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations the engine performs inside a transaction.
type Tx interface {
	// OrderLines returns the order ledger for a date.
	OrderLines(ctx context.Context, date string) ([]OrderLine, error)

	// DailyList returns the list for date, or nil if none exists.
	DailyList(ctx context.Context, date string) (*DailyList, error)

	// EnsureDailyList returns the list for date, creating it if absent.
	EnsureDailyList(ctx context.Context, date string) (*DailyList, error)

	// Lines returns all lines of a list.
	Lines(ctx context.Context, dailyListID int64) ([]DailyListLine, error)

	// InsertLine stores a new line and returns its ID.
	InsertLine(ctx context.Context, line DailyListLine) (int64, error)

	// UpdateLineTotals rewrites a line's totals in place, keeping its ID.
	UpdateLineTotals(ctx context.Context, lineID int64, total decimal.Decimal, sourceCount int) error

	// DeleteLine removes a line.
	DeleteLine(ctx context.Context, lineID int64) error

	// ReceivedLineIDs returns the IDs of the list's lines that have a receiving record.
	ReceivedLineIDs(ctx context.Context, dailyListID int64) (map[int64]bool, error)

	// UpsertReceivingRecord inserts or replaces the record for rec.DailyListItemID.
	UpsertReceivingRecord(ctx context.Context, rec ReceivingRecord) error

	// LockDailyList sets locked_at only if it is still null.
	// Returns false when no row was changed.
	LockDailyList(ctx context.Context, dailyListID int64, at time.Time) (bool, error)

	// UnlockDailyList clears locked_at.
	UnlockDailyList(ctx context.Context, dailyListID int64) error
}
