package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/partsdesk/partsdesk/internal/inventory"
	"github.com/partsdesk/partsdesk/internal/inventory/inventorytest"
	"github.com/partsdesk/partsdesk/internal/platform/cache"
	"github.com/partsdesk/partsdesk/internal/shared"
)

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newStore() *inventorytest.Store {
	store := inventorytest.NewStore()
	store.AddPart(inventorytest.Part{ID: 1, PartNumber: "HF-100", Name: "Hydraulic Filter"})
	store.AddPart(inventorytest.Part{ID: 2, PartNumber: "BR-6204", Name: "Bearing 6204"})
	return store
}

type countingObserver struct {
	directions []string
	reversals  int
}

func (o *countingObserver) ObserveMovement(direction string, reversal bool) {
	o.directions = append(o.directions, direction)
	if reversal {
		o.reversals++
	}
}

func TestRecordMovementUpdatesStock(t *testing.T) {
	store := newStore()
	obs := &countingObserver{}
	svc := inventory.NewService(store, inventory.NewLedger(inventory.LedgerConfig{AllowNegativeStock: true, Observer: obs}), nil, nil)
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, inventory.MovementInput{PartID: 1, InvoiceID: 10, InvoiceItemID: 100, Direction: inventory.DirectionIn, Quantity: qty("20")})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, inventory.MovementInput{PartID: 1, InvoiceID: 11, InvoiceItemID: 101, Direction: inventory.DirectionOut, Quantity: qty("5")})
	require.NoError(t, err)

	level, err := svc.StockFor(ctx, 1)
	require.NoError(t, err)
	require.True(t, qty("15").Equal(level.Quantity))
	require.Equal(t, []string{"IN", "OUT"}, obs.directions)
}

func TestRecordMovementRejectsDuplicateInvoiceItem(t *testing.T) {
	store := newStore()
	svc := inventory.NewService(store, nil, nil, nil)
	ctx := context.Background()
	in := inventory.MovementInput{PartID: 1, InvoiceID: 10, InvoiceItemID: 100, Direction: inventory.DirectionIn, Quantity: qty("3")}

	_, err := svc.RecordMovement(ctx, in)
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, in)
	require.ErrorIs(t, err, inventory.ErrDuplicateEntry)
	require.ErrorIs(t, err, shared.ErrConflict)

	level, err := svc.StockFor(ctx, 1)
	require.NoError(t, err)
	require.True(t, qty("3").Equal(level.Quantity))
	require.Len(t, store.Entries(), 1)
}

func TestRecordMovementValidation(t *testing.T) {
	svc := inventory.NewService(newStore(), nil, nil, nil)
	cases := []inventory.MovementInput{
		{PartID: 0, InvoiceItemID: 1, Direction: inventory.DirectionIn, Quantity: qty("1")},
		{PartID: 1, InvoiceItemID: 0, Direction: inventory.DirectionIn, Quantity: qty("1")},
		{PartID: 1, InvoiceItemID: 1, Direction: "SIDEWAYS", Quantity: qty("1")},
		{PartID: 1, InvoiceItemID: 1, Direction: inventory.DirectionOut, Quantity: qty("0")},
	}
	for _, in := range cases {
		_, err := svc.RecordMovement(context.Background(), in)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestReverseMovementAppendsCompensation(t *testing.T) {
	store := newStore()
	obs := &countingObserver{}
	svc := inventory.NewService(store, inventory.NewLedger(inventory.LedgerConfig{AllowNegativeStock: true, Observer: obs}), nil, nil)
	ctx := context.Background()

	original, err := svc.RecordMovement(ctx, inventory.MovementInput{PartID: 1, InvoiceID: 11, InvoiceItemID: 101, Direction: inventory.DirectionOut, Quantity: qty("5")})
	require.NoError(t, err)

	rev, err := svc.ReverseMovement(ctx, 101, "cancelled")
	require.NoError(t, err)
	require.Equal(t, inventory.DirectionIn, rev.Direction)
	require.True(t, qty("5").Equal(rev.Quantity))
	require.NotNil(t, rev.ReversesID)
	require.Equal(t, original.ID, *rev.ReversesID)

	level, err := svc.StockFor(ctx, 1)
	require.NoError(t, err)
	require.True(t, level.Quantity.IsZero())

	entries := store.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, inventory.DirectionOut, entries[0].Direction, "original entry is kept")
	require.Equal(t, 1, obs.reversals)

	_, err = svc.ReverseMovement(ctx, 101, "again")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestNegativeStockGuard(t *testing.T) {
	store := newStore()
	svc := inventory.NewService(store, inventory.NewLedger(inventory.LedgerConfig{AllowNegativeStock: false}), nil, nil)
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, inventory.MovementInput{PartID: 1, InvoiceID: 1, InvoiceItemID: 1, Direction: inventory.DirectionIn, Quantity: qty("2")})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, inventory.MovementInput{PartID: 1, InvoiceID: 2, InvoiceItemID: 2, Direction: inventory.DirectionOut, Quantity: qty("3")})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.ErrorIs(t, err, shared.ErrValidation)

	level, err := svc.StockFor(ctx, 1)
	require.NoError(t, err)
	require.True(t, qty("2").Equal(level.Quantity))
}

func TestNegativeStockAllowedByDefault(t *testing.T) {
	svc := inventory.NewService(newStore(), nil, nil, nil)
	ctx := context.Background()
	_, err := svc.RecordMovement(ctx, inventory.MovementInput{PartID: 2, InvoiceID: 2, InvoiceItemID: 2, Direction: inventory.DirectionOut, Quantity: qty("4")})
	require.NoError(t, err)
	level, err := svc.StockFor(ctx, 2)
	require.NoError(t, err)
	require.True(t, qty("-4").Equal(level.Quantity))
}

func TestStockForUnknownPart(t *testing.T) {
	svc := inventory.NewService(newStore(), nil, nil, nil)
	_, err := svc.StockFor(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStockForAllOnlyPurchased(t *testing.T) {
	store := newStore()
	svc := inventory.NewService(store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, inventory.MovementInput{PartID: 2, InvoiceID: 1, InvoiceItemID: 1, Direction: inventory.DirectionIn, Quantity: qty("7")})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, inventory.MovementInput{PartID: 1, InvoiceID: 2, InvoiceItemID: 2, Direction: inventory.DirectionOut, Quantity: qty("1")})
	require.NoError(t, err)
	// Reversing a sale is an IN entry but not a purchase.
	_, err = svc.ReverseMovement(ctx, 2, "cancel")
	require.NoError(t, err)

	all, err := svc.StockForAll(ctx, inventory.StockFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, int64(1), all[0].PartID)
	require.True(t, all[0].Quantity.IsZero())

	purchased, err := svc.StockForAll(ctx, inventory.StockFilter{OnlyPurchased: true})
	require.NoError(t, err)
	require.Len(t, purchased, 1)
	require.Equal(t, int64(2), purchased[0].PartID)
	require.True(t, qty("7").Equal(purchased[0].Quantity))
}

func TestStockForAllCacheIsBumpedOnCommit(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := newStore()
	svc := inventory.NewService(store, nil, cache.NewVersioned(client, "stock", time.Minute), nil)
	ctx := context.Background()

	before, err := svc.StockForAll(ctx, inventory.StockFilter{})
	require.NoError(t, err)
	require.True(t, before[0].Quantity.IsZero())

	_, err = svc.RecordMovement(ctx, inventory.MovementInput{PartID: 1, InvoiceID: 1, InvoiceItemID: 1, Direction: inventory.DirectionIn, Quantity: qty("9")})
	require.NoError(t, err)

	after, err := svc.StockForAll(ctx, inventory.StockFilter{})
	require.NoError(t, err)
	require.True(t, qty("9").Equal(after[0].Quantity))
}

func TestVerifyConservation(t *testing.T) {
	store := newStore()
	svc := inventory.NewService(store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, inventory.MovementInput{PartID: 1, InvoiceID: 1, InvoiceItemID: 1, Direction: inventory.DirectionIn, Quantity: qty("10")})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, inventory.MovementInput{PartID: 1, InvoiceID: 2, InvoiceItemID: 2, Direction: inventory.DirectionOut, Quantity: qty("2.5")})
	require.NoError(t, err)

	drift, err := svc.VerifyConservation(ctx)
	require.NoError(t, err)
	require.Empty(t, drift)

	store.SetBalance(1, qty("8"))
	drift, err = svc.VerifyConservation(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	require.True(t, qty("7.5").Equal(drift[0].LedgerSum))
}

func TestLedgerRequireNonNegative(t *testing.T) {
	store := newStore()
	ledger := inventory.NewLedger(inventory.LedgerConfig{AllowNegativeStock: false})
	ctx := context.Background()

	tx, finish := store.Begin()
	_, err := ledger.Record(ctx, tx, inventory.MovementInput{PartID: 1, InvoiceID: 1, InvoiceItemID: 1, Direction: inventory.DirectionIn, Quantity: qty("4")})
	require.NoError(t, err)
	// Reversing the purchase drops the balance to zero, which is allowed.
	_, err = ledger.ReverseInvoice(ctx, tx, 1, "edit")
	require.NoError(t, err)
	require.NoError(t, ledger.RequireNonNegative(ctx, tx, []int64{1, 1}))
	finish(true)

	store.SetBalance(2, qty("-1"))
	tx, finish = store.Begin()
	err = ledger.RequireNonNegative(ctx, tx, []int64{2})
	finish(false)
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
}
