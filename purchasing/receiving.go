/*
receiving.go - Receiving lock transaction and unlock

PURPOSE:
  CommitReceiving attaches quality and price data to the lines of a date and
  freezes the date, all or nothing. Unlock reverses the freeze and keeps the
  receiving data.

PRECONDITIONS (checked inside the transaction):
  - A daily list exists for the date          else ErrNotFound
  - It is unlocked                            else ErrAlreadyLocked
  - Every entry references one of its lines   else ErrInvalidItem
  - Accepted entries with a price have a
    price unit convertible to the order unit  else ErrUnconvertiblePriceUnit

LOCK RACE:
  The lock is a conditional update (locked_at IS NULL). Two commits racing
  on one date both pass the precondition check, but only one flips the
  flag. The loser gets ErrAlreadyLocked and its upserts are rolled back with
  the rest of its transaction.

SEE ALSO:
  - units/convert.go: Price conversion
  - snapshot.go:      No-op while locked
*/
package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/kitchen-orders/units"
	"go.uber.org/zap"
)

// CommitReceiving stores the receiving entries for date and locks its list.
func (e *Engine) CommitReceiving(ctx context.Context, date string, entries []ReceivingEntry) error {
	if err := ValidateDate(date); err != nil {
		return err
	}

	err := e.store.WithTx(ctx, func(tx Tx) error {
		list, err := tx.DailyList(ctx, date)
		if err != nil {
			return err
		}
		if list == nil {
			return fmt.Errorf("daily list %s: %w", date, ErrNotFound)
		}
		if list.IsLocked() {
			return ErrAlreadyLocked
		}

		lines, err := tx.Lines(ctx, list.ID)
		if err != nil {
			return err
		}
		byID := make(map[int64]DailyListLine, len(lines))
		for _, l := range lines {
			byID[l.ID] = l
		}

		now := e.Now()
		records := make([]ReceivingRecord, 0, len(entries))
		for _, entry := range entries {
			line, ok := byID[entry.DailyListItemID]
			if !ok {
				return &InvalidItemError{Date: date, DailyListItemID: entry.DailyListItemID}
			}
			rec, err := buildRecord(entry, line)
			if err != nil {
				return err
			}
			rec.ReceivedAt = now
			records = append(records, rec)
		}

		for _, rec := range records {
			if err := tx.UpsertReceivingRecord(ctx, rec); err != nil {
				return err
			}
		}

		flipped, err := tx.LockDailyList(ctx, list.ID, now)
		if err != nil {
			return err
		}
		if !flipped {
			return ErrAlreadyLocked
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrAlreadyLocked) && !IsClientError(err) && !IsNotFound(err) {
			e.log.Error("commit receiving failed", zap.String("date", date), zap.Error(err))
		}
		return err
	}

	e.log.Info("daily list received and locked",
		zap.String("date", date), zap.Int("entries", len(entries)))
	return nil
}

// buildRecord derives the stored record for one entry. Rejected entries
// carry no price data.
func buildRecord(entry ReceivingEntry, line DailyListLine) (ReceivingRecord, error) {
	rec := ReceivingRecord{
		DailyListItemID: entry.DailyListItemID,
		QualityOK:       entry.QualityOK,
		ReceiveNote:     strings.TrimSpace(entry.ReceiveNote),
	}
	if !entry.QualityOK {
		return rec, nil
	}

	priceUnit := units.NormalizeAlias(entry.PriceUnit)
	if priceUnit == "" {
		priceUnit = line.Unit
	}
	rec.PriceUnit = priceUnit

	if !entry.InputUnitPrice.Valid {
		return rec, nil
	}

	price, err := units.Convert(entry.InputUnitPrice.Decimal, priceUnit, line.Unit)
	if err != nil {
		return ReceivingRecord{}, &UnconvertiblePriceUnitError{
			DailyListItemID: line.ID,
			PriceUnit:       priceUnit,
			OrderUnit:       line.Unit,
		}
	}
	rec.InputUnitPrice = entry.InputUnitPrice
	rec.UnitPrice = decimal.NullDecimal{Decimal: price, Valid: true}
	return rec, nil
}

// Unlock clears the lock of date's list. Receiving records are kept and
// become editable through the next CommitReceiving.
func (e *Engine) Unlock(ctx context.Context, date string) (DailyListMeta, error) {
	if err := ValidateDate(date); err != nil {
		return DailyListMeta{}, err
	}

	var (
		meta     DailyListMeta
		unlocked bool
	)
	err := e.store.WithTx(ctx, func(tx Tx) error {
		list, err := tx.DailyList(ctx, date)
		if err != nil {
			return err
		}
		if list == nil {
			return fmt.Errorf("daily list %s: %w", date, ErrNotFound)
		}
		if !list.IsLocked() {
			meta = list.Meta()
			return nil
		}

		if err := tx.UnlockDailyList(ctx, list.ID); err != nil {
			return err
		}
		list.LockedAt = nil
		meta = list.Meta()
		unlocked = true
		return nil
	})
	if err != nil {
		return DailyListMeta{}, err
	}

	if unlocked {
		e.log.Info("daily list unlocked", zap.String("date", date))
	}
	return meta, nil
}
