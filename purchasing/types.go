/*
Package purchasing provides the daily list engine.

PURPOSE:
  Stations submit order lines (supplier, item, unit, quantity) for a date.
  The engine merges those lines into one Daily List per date, lets the back
  office attach receiving data (quality check + price) to each merged line,
  and freezes the date once receiving is committed.

KEY CONCEPTS IN THIS FILE (types.go):
  - OrderLine:       One station's request, owned by the order ledger
  - DailyList:       The per-date container; LockedAt is the only state flag
  - DailyListLine:   Merged (supplier, item, unit) line with a stable ID
  - ReceivingRecord: Quality/price data attached to exactly one line
  - ReceivingEntry:  Operator input for one line in a receiving batch

STATE MACHINE:
  Unlocked --CommitReceiving--> Locked --Unlock--> Unlocked
  CommitReceiving is the only way into Locked.

SEE ALSO:
  - snapshot.go:  Aggregation of order lines into daily list lines
  - receiving.go: Receiving lock transaction and unlock
  - store.go:     Persistence interface
*/
package purchasing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of a business date.
const DateLayout = "2006-01-02"

// =============================================================================
// ORDER LEDGER
// =============================================================================

// OrderLine is a single submitted order. Quantity keeps the text as entered;
// QuantityValue is its normalized decimal (see NormalizeQuantity).
type OrderLine struct {
	ID            int64
	Date          string
	StationID     int64
	SupplierID    int64
	ItemName      string
	Unit          string
	Quantity      string
	QuantityValue decimal.Decimal
	Note          string
	CreatedAt     time.Time
}

// LineKey groups order lines into one daily list line.
type LineKey struct {
	SupplierID int64
	ItemName   string
	Unit       string
}

// Key returns the aggregation key of the order line.
func (o OrderLine) Key() LineKey {
	return LineKey{SupplierID: o.SupplierID, ItemName: o.ItemName, Unit: o.Unit}
}

// NormalizeQuantity converts a quantity as typed by a station into a decimal.
// Blank or non-numeric input counts as zero; it is never rejected.
func NormalizeQuantity(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// DAILY LIST
// =============================================================================

// DailyList is the per-date snapshot container.
type DailyList struct {
	ID       int64
	Date     string
	LockedAt *time.Time
}

// IsLocked reports whether the list is frozen.
func (d DailyList) IsLocked() bool {
	return d.LockedAt != nil
}

// Meta returns the list's metadata view.
func (d DailyList) Meta() DailyListMeta {
	return DailyListMeta{ID: d.ID, Date: d.Date, LockedAt: d.LockedAt, IsLocked: d.IsLocked()}
}

// DailyListMeta is what callers see of a list's state.
type DailyListMeta struct {
	ID       int64
	Date     string
	LockedAt *time.Time
	IsLocked bool
}

// DailyListLine is a merged line. ID is stable for as long as its key keeps
// appearing in the order ledger, or for good once a receiving record exists.
type DailyListLine struct {
	ID            int64
	DailyListID   int64
	SupplierID    int64
	ItemName      string
	Unit          string
	TotalQuantity decimal.Decimal
	SourceCount   int
}

// Key returns the line's aggregation key.
func (l DailyListLine) Key() LineKey {
	return LineKey{SupplierID: l.SupplierID, ItemName: l.ItemName, Unit: l.Unit}
}

// =============================================================================
// RECEIVING
// =============================================================================

// ReceivingRecord holds the receiving result of one daily list line.
// UnitPrice is always per the line's unit; InputUnitPrice and PriceUnit keep
// what the operator typed.
type ReceivingRecord struct {
	ID              int64
	DailyListItemID int64
	QualityOK       bool
	UnitPrice       decimal.NullDecimal
	InputUnitPrice  decimal.NullDecimal
	PriceUnit       string
	ReceiveNote     string
	ReceivedAt      time.Time
}

// ReceivingEntry is the operator's input for one line.
type ReceivingEntry struct {
	DailyListItemID int64
	QualityOK       bool
	InputUnitPrice  decimal.NullDecimal
	PriceUnit       string
	ReceiveNote     string
}
