/*
snapshot.go - Daily list aggregation

PURPOSE:
  Materializes the order ledger of one date into DailyListLine rows, one per
  (supplier, item, unit). Safe to call on every read of the date.

ALGORITHM:
  1. Fetch or create the DailyList for the date
  2. Locked? Return its ID untouched. Order lines may still come and go,
     but a committed snapshot is never recomputed.
  3. Sum QuantityValue and count sources per key
  4. Reconcile against existing lines:
     - key in both:      update totals in place (ID preserved)
     - key only in sums: insert
     - key only in rows: delete, unless a receiving record is attached
  All of it runs in one transaction.

COALESCING:
  Concurrent calls for one date share a pass. A caller joins a pass only
  until that pass starts reading inside its transaction; later callers
  queue a new pass, so every result reflects the ledger as of the call.
  The shared pass runs detached from any caller's cancellation; a caller
  whose context ends stops waiting and gets ctx.Err().

ORPHANS:
  A line whose order lines were all deleted after it was received keeps its
  last totals. Deleting it would lose captured receiving data.

SEE ALSO:
  - receiving.go: Locks the list
  - types.go:     NormalizeQuantity
*/
package purchasing

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// aggregate is the running sum for one key.
type aggregate struct {
	key   LineKey
	total decimal.Decimal
	count int
}

// aggregateOrderLines reduces order lines into per-key sums, in first-seen order.
func aggregateOrderLines(lines []OrderLine) []*aggregate {
	byKey := make(map[LineKey]*aggregate)
	var ordered []*aggregate
	for _, l := range lines {
		k := l.Key()
		agg, ok := byKey[k]
		if !ok {
			agg = &aggregate{key: k, total: decimal.Zero}
			byKey[k] = agg
			ordered = append(ordered, agg)
		}
		agg.total = agg.total.Add(l.QuantityValue)
		agg.count++
	}
	return ordered
}

// reconcileStats counts what a snapshot pass changed.
type reconcileStats struct {
	Inserted  int
	Updated   int
	Deleted   int
	Preserved int
}

// GenerateSnapshot brings the daily list of date in line with the order
// ledger and returns the list ID. Concurrent calls for one date share a pass.
func (e *Engine) GenerateSnapshot(ctx context.Context, date string) (int64, error) {
	if err := ValidateDate(date); err != nil {
		return 0, err
	}

	shared := context.WithoutCancel(ctx)
	ch := e.snapshots.DoChan(date, func() (any, error) {
		return e.generateSnapshot(shared, date, func() { e.snapshots.Forget(date) })
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int64), nil
	}
}

// generateSnapshot runs one pass. started is called once the transaction
// is open, before anything is read.
func (e *Engine) generateSnapshot(ctx context.Context, date string, started func()) (int64, error) {
	var (
		listID int64
		locked bool
		stats  reconcileStats
	)

	err := e.store.WithTx(ctx, func(tx Tx) error {
		started()

		list, err := tx.EnsureDailyList(ctx, date)
		if err != nil {
			return err
		}
		listID = list.ID
		if list.IsLocked() {
			locked = true
			return nil
		}

		orders, err := tx.OrderLines(ctx, date)
		if err != nil {
			return err
		}
		existing, err := tx.Lines(ctx, list.ID)
		if err != nil {
			return err
		}
		received, err := tx.ReceivedLineIDs(ctx, list.ID)
		if err != nil {
			return err
		}

		stats, err = reconcile(ctx, tx, list.ID, aggregateOrderLines(orders), existing, received)
		return err
	})
	if err != nil {
		return 0, err
	}

	if locked {
		e.log.Debug("daily list locked, snapshot skipped",
			zap.String("date", date), zap.Int64("daily_list_id", listID))
		return listID, nil
	}

	e.log.Debug("daily list snapshot",
		zap.String("date", date),
		zap.Int64("daily_list_id", listID),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("deleted", stats.Deleted),
		zap.Int("preserved", stats.Preserved),
	)
	return listID, nil
}

// reconcile applies the computed sums to the existing lines.
func reconcile(ctx context.Context, tx Tx, listID int64, sums []*aggregate, existing []DailyListLine, received map[int64]bool) (reconcileStats, error) {
	var stats reconcileStats

	current := make(map[LineKey]DailyListLine, len(existing))
	for _, line := range existing {
		current[line.Key()] = line
	}

	computed := make(map[LineKey]bool, len(sums))
	for _, agg := range sums {
		computed[agg.key] = true

		line, ok := current[agg.key]
		if !ok {
			if _, err := tx.InsertLine(ctx, DailyListLine{
				DailyListID:   listID,
				SupplierID:    agg.key.SupplierID,
				ItemName:      agg.key.ItemName,
				Unit:          agg.key.Unit,
				TotalQuantity: agg.total,
				SourceCount:   agg.count,
			}); err != nil {
				return stats, err
			}
			stats.Inserted++
			continue
		}

		if line.TotalQuantity.Equal(agg.total) && line.SourceCount == agg.count {
			continue
		}
		if err := tx.UpdateLineTotals(ctx, line.ID, agg.total, agg.count); err != nil {
			return stats, err
		}
		stats.Updated++
	}

	sort.Slice(existing, func(i, j int) bool { return existing[i].ID < existing[j].ID })
	for _, line := range existing {
		if computed[line.Key()] {
			continue
		}
		if received[line.ID] {
			stats.Preserved++
			continue
		}
		if err := tx.DeleteLine(ctx, line.ID); err != nil {
			return stats, err
		}
		stats.Deleted++
	}

	return stats, nil
}
