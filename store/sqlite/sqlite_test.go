package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kitchen-orders/purchasing"
	"github.com/warp/kitchen-orders/store/sqlite"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const day = "2025-03-14"

// Seeded IDs: stations and suppliers are inserted in declaration order.
const (
	stationHot  int64 = 1
	stationCold int64 = 2
	supplierCai int64 = 1 // 菜佬
	supplierHe  int64 = 2 // 盒马
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngine(t *testing.T, store *sqlite.Store) *purchasing.Engine {
	engine := purchasing.NewEngine(store, zaptest.NewLogger(t))
	engine.Now = func() time.Time { return time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC) }
	return engine
}

func addOrder(t *testing.T, store *sqlite.Store, station, supplier int64, item, qty, unit string) int64 {
	t.Helper()
	id, err := store.CreateOrderLine(context.Background(), sqlite.NewOrderLine{
		Date:       day,
		StationID:  station,
		SupplierID: supplier,
		ItemName:   item,
		Quantity:   qty,
		Unit:       unit,
	})
	require.NoError(t, err)
	return id
}

func itemNamed(t *testing.T, items []sqlite.DailyListItem, name string) sqlite.DailyListItem {
	t.Helper()
	for _, it := range items {
		if it.ItemName == name {
			return it
		}
	}
	t.Fatalf("no daily list item %q", name)
	return sqlite.DailyListItem{}
}

func priceOf(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// =============================================================================
// SEED + REGISTRY TESTS
// =============================================================================

func TestNew_SeedsRegistries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stations, err := store.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 6)
	assert.Equal(t, "Hot", stations[0].Name)
	assert.Equal(t, "GM", stations[5].Name)

	suppliers, err := store.ListSuppliers(ctx, false)
	require.NoError(t, err)
	require.Len(t, suppliers, 10)
	assert.Equal(t, "菜佬", suppliers[0].Name)

	names, err := store.UnitNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "斤")
	assert.Contains(t, names, "千克")
}

func TestSuppliers_AddAndDeactivate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: A new supplier
	sp, err := store.AddSupplier(ctx, "  鱼档 ")
	require.NoError(t, err)
	assert.Equal(t, "鱼档", sp.Name)
	assert.True(t, sp.IsActive)

	// WHEN: It is deactivated
	sp, err = store.SetSupplierActive(ctx, sp.ID, false)
	require.NoError(t, err)
	assert.False(t, sp.IsActive)

	// THEN: Hidden by default, listed with includeInactive
	active, err := store.ListSuppliers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 10)

	all, err := store.ListSuppliers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 11)

	// AND: Adding the name again re-activates the same row
	again, err := store.AddSupplier(ctx, "鱼档")
	require.NoError(t, err)
	assert.Equal(t, sp.ID, again.ID)
	assert.True(t, again.IsActive)
}

func TestSuppliers_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddSupplier(ctx, "   ")
	assert.ErrorIs(t, err, purchasing.ErrMalformedInput)

	_, err = store.SetSupplierActive(ctx, 999, false)
	assert.ErrorIs(t, err, purchasing.ErrNotFound)
}

func TestUnits_RenameDeleteRevive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u, err := store.AddUnit(ctx, "筐")
	require.NoError(t, err)

	// Rename onto an existing name is rejected
	_, err = store.RenameUnit(ctx, u.ID, "斤")
	assert.ErrorIs(t, err, purchasing.ErrMalformedInput)

	u, err = store.RenameUnit(ctx, u.ID, "大筐")
	require.NoError(t, err)
	assert.Equal(t, "大筐", u.Name)

	// Inactive units are only listed with includeInactive
	_, err = store.SetUnitActive(ctx, u.ID, false)
	require.NoError(t, err)
	names, err := store.UnitNames(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, "大筐")

	// Soft-deleted units are never listed
	require.NoError(t, store.SoftDeleteUnit(ctx, u.ID))
	all, err := store.ListUnits(ctx, true)
	require.NoError(t, err)
	for _, unit := range all {
		assert.NotEqual(t, "大筐", unit.Name)
	}
	assert.ErrorIs(t, store.SoftDeleteUnit(ctx, u.ID), purchasing.ErrNotFound)
	_, err = store.RenameUnit(ctx, u.ID, "小筐")
	assert.ErrorIs(t, err, purchasing.ErrNotFound)

	// Adding the name again revives the row
	revived, err := store.AddUnit(ctx, "大筐")
	require.NoError(t, err)
	assert.Equal(t, u.ID, revived.ID)
	assert.True(t, revived.IsActive)
	assert.Nil(t, revived.DeletedAt)
}

// =============================================================================
// ORDER LEDGER TESTS
// =============================================================================

func TestOrderLines_CreateListDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.CreateOrderLines(ctx, []sqlite.NewOrderLine{
		{Date: day, StationID: stationHot, SupplierID: supplierCai, ItemName: " 洋葱 ", Quantity: " 3 ", Unit: "斤", Note: "  "},
		{Date: day, StationID: stationCold, SupplierID: supplierHe, ItemName: "鸡蛋", Quantity: "两打", Unit: "个", Note: "大号"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	lines, err := store.ListOrderLines(ctx, day)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	// Newest first
	eggs, onion := lines[0], lines[1]
	assert.Equal(t, "鸡蛋", eggs.ItemName)
	assert.Equal(t, "Cold", eggs.StationName)
	assert.Equal(t, "盒马", eggs.SupplierName)
	assert.Equal(t, "两打", eggs.Quantity)
	assert.True(t, eggs.QuantityValue.IsZero())
	assert.Equal(t, "大号", eggs.Note)

	assert.Equal(t, "洋葱", onion.ItemName)
	assert.Equal(t, "3", onion.Quantity)
	assert.True(t, onion.QuantityValue.Equal(decimal.NewFromInt(3)))
	assert.Empty(t, onion.Note)

	require.NoError(t, store.DeleteOrderLine(ctx, ids[0]))
	assert.ErrorIs(t, store.DeleteOrderLine(ctx, ids[0]), purchasing.ErrNotFound)

	lines, err = store.ListOrderLines(ctx, day)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestOrderLines_BulkIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: A batch whose second line references an unknown station
	_, err := store.CreateOrderLines(ctx, []sqlite.NewOrderLine{
		{Date: day, StationID: stationHot, SupplierID: supplierCai, ItemName: "洋葱", Quantity: "3", Unit: "斤"},
		{Date: day, StationID: 999, SupplierID: supplierCai, ItemName: "土豆", Quantity: "5", Unit: "斤"},
	})

	// THEN: Rejected as client input, nothing stored
	assert.ErrorIs(t, err, purchasing.ErrMalformedInput)
	lines, err := store.ListOrderLines(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

// =============================================================================
// ENGINE OVER SQLITE
// =============================================================================

func TestSnapshot_AggregatesAndKeepsIDs(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	// GIVEN: Two stations order onions from the same supplier
	addOrder(t, store, stationHot, supplierCai, "洋葱", "3", "斤")
	addOrder(t, store, stationCold, supplierCai, "洋葱", "7", "斤")
	addOrder(t, store, stationCold, supplierHe, "鸡蛋", "30", "个")

	_, err := engine.GenerateSnapshot(ctx, day)
	require.NoError(t, err)

	items, err := store.DailyListItems(ctx, day)
	require.NoError(t, err)
	require.Len(t, items, 2)
	onion := itemNamed(t, items, "洋葱")
	assert.True(t, onion.TotalQuantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 2, onion.SourceCount)
	assert.Equal(t, "菜佬", onion.SupplierName)
	assert.Nil(t, onion.Receiving)

	// WHEN: Another onion order arrives and the snapshot runs again
	addOrder(t, store, stationHot, supplierCai, "洋葱", "2.5", "斤")
	_, err = engine.GenerateSnapshot(ctx, day)
	require.NoError(t, err)

	// THEN: Same line ID, new totals
	items, err = store.DailyListItems(ctx, day)
	require.NoError(t, err)
	updated := itemNamed(t, items, "洋葱")
	assert.Equal(t, onion.ID, updated.ID)
	assert.True(t, updated.TotalQuantity.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, 3, updated.SourceCount)
}

func TestReceiving_CommitLocksAndFreezes(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	addOrder(t, store, stationHot, supplierCai, "洋葱", "10", "斤")
	addOrder(t, store, stationHot, supplierHe, "鸡蛋", "30", "个")
	_, err := engine.GenerateSnapshot(ctx, day)
	require.NoError(t, err)
	items, err := store.DailyListItems(ctx, day)
	require.NoError(t, err)
	onion := itemNamed(t, items, "洋葱")
	eggs := itemNamed(t, items, "鸡蛋")

	// WHEN: Onions priced per kg, eggs rejected
	err = engine.CommitReceiving(ctx, day, []purchasing.ReceivingEntry{
		{DailyListItemID: onion.ID, QualityOK: true, InputUnitPrice: priceOf("8"), PriceUnit: "kg"},
		{DailyListItemID: eggs.ID, QualityOK: false, ReceiveNote: "破损"},
	})
	require.NoError(t, err)

	// THEN: Locked, price stored per 斤
	meta, err := store.DailyListMeta(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.IsLocked)
	require.NotNil(t, meta.LockedAt)
	assert.True(t, engine.Now().Equal(*meta.LockedAt))

	items, err = store.DailyListItems(ctx, day)
	require.NoError(t, err)
	rec := itemNamed(t, items, "洋葱").Receiving
	require.NotNil(t, rec)
	assert.True(t, rec.UnitPrice.Decimal.Equal(decimal.NewFromInt(4)))
	assert.True(t, rec.InputUnitPrice.Decimal.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, "千克", rec.PriceUnit)

	rejected := itemNamed(t, items, "鸡蛋").Receiving
	require.NotNil(t, rejected)
	assert.False(t, rejected.QualityOK)
	assert.False(t, rejected.UnitPrice.Valid)
	assert.Equal(t, "破损", rejected.ReceiveNote)

	// AND: Later orders do not change the frozen list
	addOrder(t, store, stationCold, supplierCai, "洋葱", "5", "斤")
	addOrder(t, store, stationCold, supplierCai, "土豆", "5", "斤")
	_, err = engine.GenerateSnapshot(ctx, day)
	require.NoError(t, err)
	frozen, err := store.DailyListItems(ctx, day)
	require.NoError(t, err)
	assert.Len(t, frozen, 2)
	assert.True(t, itemNamed(t, frozen, "洋葱").TotalQuantity.Equal(decimal.NewFromInt(10)))

	// AND: A second commit conflicts
	err = engine.CommitReceiving(ctx, day, []purchasing.ReceivingEntry{
		{DailyListItemID: onion.ID, QualityOK: true, InputUnitPrice: priceOf("1")},
	})
	assert.ErrorIs(t, err, purchasing.ErrAlreadyLocked)
}

func TestReceiving_FailedBatchLeavesNoTrace(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	addOrder(t, store, stationHot, supplierCai, "洋葱", "10", "斤")
	addOrder(t, store, stationHot, supplierHe, "鸡蛋", "30", "个")
	_, err := engine.GenerateSnapshot(ctx, day)
	require.NoError(t, err)
	items, err := store.DailyListItems(ctx, day)
	require.NoError(t, err)

	// WHEN: The second entry's price unit cannot convert to 个
	err = engine.CommitReceiving(ctx, day, []purchasing.ReceivingEntry{
		{DailyListItemID: itemNamed(t, items, "洋葱").ID, QualityOK: true, InputUnitPrice: priceOf("3")},
		{DailyListItemID: itemNamed(t, items, "鸡蛋").ID, QualityOK: true, InputUnitPrice: priceOf("3"), PriceUnit: "斤"},
	})
	assert.ErrorIs(t, err, purchasing.ErrUnconvertiblePriceUnit)

	// THEN: No records, still unlocked
	items, err = store.DailyListItems(ctx, day)
	require.NoError(t, err)
	for _, it := range items {
		assert.Nil(t, it.Receiving, it.ItemName)
	}
	meta, err := store.DailyListMeta(ctx, day)
	require.NoError(t, err)
	assert.False(t, meta.IsLocked)
}

func TestReceiving_ConcurrentCommitsOneWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addOrder(t, store, stationHot, supplierCai, "洋葱", "10", "斤")
	_, err := newTestEngine(t, store).GenerateSnapshot(ctx, day)
	require.NoError(t, err)
	items, err := store.DailyListItems(ctx, day)
	require.NoError(t, err)
	lineID := items[0].ID

	// GIVEN: Eight operators commit the same date at once with different prices
	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine := newTestEngine(t, store)
			err := engine.CommitReceiving(ctx, day, []purchasing.ReceivingEntry{
				{DailyListItemID: lineID, QualityOK: true, InputUnitPrice: decimal.NewNullDecimal(decimal.NewFromInt(int64(i + 1)))},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case purchasing.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// THEN: Exactly one commit wins, the rest conflict
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)

	items, err = store.DailyListItems(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, items[0].Receiving)
	assert.True(t, items[0].Receiving.UnitPrice.Valid)
}

func TestSnapshot_PreservesReceivedOrphan(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	// GIVEN: A received line whose only order is then deleted after unlock
	orderID := addOrder(t, store, stationHot, supplierCai, "洋葱", "10", "斤")
	addOrder(t, store, stationHot, supplierHe, "鸡蛋", "30", "个")
	_, err := engine.GenerateSnapshot(ctx, day)
	require.NoError(t, err)
	items, err := store.DailyListItems(ctx, day)
	require.NoError(t, err)
	onion := itemNamed(t, items, "洋葱")

	require.NoError(t, engine.CommitReceiving(ctx, day, []purchasing.ReceivingEntry{
		{DailyListItemID: onion.ID, QualityOK: true, InputUnitPrice: priceOf("3")},
	}))
	_, err = engine.Unlock(ctx, day)
	require.NoError(t, err)
	require.NoError(t, store.DeleteOrderLine(ctx, orderID))

	// WHEN: The snapshot runs
	_, err = engine.GenerateSnapshot(ctx, day)
	require.NoError(t, err)

	// THEN: The received line survives with its data
	items, err = store.DailyListItems(ctx, day)
	require.NoError(t, err)
	kept := itemNamed(t, items, "洋葱")
	assert.Equal(t, onion.ID, kept.ID)
	require.NotNil(t, kept.Receiving)
	assert.True(t, kept.Receiving.UnitPrice.Decimal.Equal(decimal.NewFromInt(3)))
}

// =============================================================================
// REPORT TESTS
// =============================================================================

func TestReceivingReport_StatusesAndAmounts(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	addOrder(t, store, stationHot, supplierCai, "洋葱", "10", "斤")
	addOrder(t, store, stationHot, supplierCai, "土豆", "4", "斤")
	addOrder(t, store, stationHot, supplierHe, "鸡蛋", "30", "个")
	_, err := engine.GenerateSnapshot(ctx, day)
	require.NoError(t, err)
	items, err := store.DailyListItems(ctx, day)
	require.NoError(t, err)

	// GIVEN: Onions accepted at 8/kg, eggs rejected, potatoes not received
	require.NoError(t, engine.CommitReceiving(ctx, day, []purchasing.ReceivingEntry{
		{DailyListItemID: itemNamed(t, items, "洋葱").ID, QualityOK: true, InputUnitPrice: priceOf("8"), PriceUnit: "千克"},
		{DailyListItemID: itemNamed(t, items, "鸡蛋").ID, QualityOK: false},
	}))

	// WHEN
	rows, err := store.ReceivingReport(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byItem := make(map[string]sqlite.ReceivingReportRow)
	for _, r := range rows {
		byItem[r.ItemName] = r
	}

	// THEN
	onion := byItem["洋葱"]
	assert.Equal(t, sqlite.StatusReceived, onion.Status)
	require.True(t, onion.Amount.Valid)
	assert.True(t, onion.Amount.Decimal.Equal(decimal.NewFromInt(40)))

	assert.Equal(t, sqlite.StatusRejected, byItem["鸡蛋"].Status)
	assert.False(t, byItem["鸡蛋"].Amount.Valid)

	assert.Equal(t, sqlite.StatusNoReceivingRecord, byItem["土豆"].Status)
	assert.Nil(t, byItem["土豆"].Receiving)

	// Outside the range nothing is reported
	rows, err = store.ReceivingReport(ctx, "2025-03-15", "2025-03-31")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDailyListMeta_Absent(t *testing.T) {
	store := newTestStore(t)

	meta, err := store.DailyListMeta(context.Background(), day)
	require.NoError(t, err)
	assert.Nil(t, meta)
}
