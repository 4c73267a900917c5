package purchasing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Engine runs snapshot aggregation, receiving commits and unlocks against a Store.
type Engine struct {
	store Store
	log   *zap.Logger

	// Now is the clock used for locked_at and received_at.
	Now func() time.Time

	snapshots singleflight.Group
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(store Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store: store,
		log:   log,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Meta returns the list metadata for date, or ErrNotFound.
func (e *Engine) Meta(ctx context.Context, date string) (DailyListMeta, error) {
	if err := ValidateDate(date); err != nil {
		return DailyListMeta{}, err
	}

	var meta DailyListMeta
	err := e.store.WithTx(ctx, func(tx Tx) error {
		list, err := tx.DailyList(ctx, date)
		if err != nil {
			return err
		}
		if list == nil {
			return ErrNotFound
		}
		meta = list.Meta()
		return nil
	})
	return meta, err
}

// ValidateDate checks that date is a calendar date in DateLayout.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: date %q: expected YYYY-MM-DD", ErrMalformedInput, date)
	}
	return nil
}

// Today returns the current local date in DateLayout.
func Today() string {
	return time.Now().Format(DateLayout)
}
