package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kitchen-orders/purchasing"
	"go.uber.org/zap/zaptest"
)

func TestParseNullTime(t *testing.T) {
	got, err := parseNullTime(nullString(""))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseNullTime(nullString("2025-03-14T18:00:00Z"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 18, got.Hour())

	_, err = parseNullTime(nullString("yesterday evening"))
	assert.Error(t, err)
}

func TestUnreadableLockedAtFailsClosed(t *testing.T) {
	const date = "2025-03-14"
	ctx := context.Background()

	// GIVEN: A snapshotted list whose locked_at no longer parses
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	engine := purchasing.NewEngine(store, zaptest.NewLogger(t))

	_, err = store.CreateOrderLine(ctx, NewOrderLine{
		Date: date, StationID: 1, SupplierID: 1, ItemName: "洋葱", Quantity: "10", Unit: "斤",
	})
	require.NoError(t, err)
	_, err = engine.GenerateSnapshot(ctx, date)
	require.NoError(t, err)
	items, err := store.DailyListItems(ctx, date)
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = store.db.ExecContext(ctx,
		"UPDATE daily_lists SET locked_at = ? WHERE date = ?", "yesterday evening", date)
	require.NoError(t, err)

	// WHEN: Reading, snapshotting and committing against it
	_, metaErr := store.DailyListMeta(ctx, date)
	_, snapErr := engine.GenerateSnapshot(ctx, date)
	commitErr := engine.CommitReceiving(ctx, date, []purchasing.ReceivingEntry{
		{DailyListItemID: items[0].ID, QualityOK: true},
	})

	// THEN: Every path errors instead of treating the list as unlocked
	assert.ErrorContains(t, metaErr, "locked_at")
	assert.ErrorContains(t, snapErr, "locked_at")
	assert.ErrorContains(t, commitErr, "locked_at")

	var records int
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM receiving_records").Scan(&records))
	assert.Zero(t, records)
}
