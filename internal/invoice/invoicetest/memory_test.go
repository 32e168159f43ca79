package invoicetest_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsdesk/partsdesk/internal/inventory/inventorytest"
	"github.com/partsdesk/partsdesk/internal/invoice"
	"github.com/partsdesk/partsdesk/internal/invoice/invoicetest"
)

func TestRepoRejectsValuesBeyondColumnScale(t *testing.T) {
	repo := invoicetest.NewRepo(inventorytest.NewStore())
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx invoice.TxRepository) error {
		_, err := tx.InsertInvoice(ctx, invoice.Invoice{
			Type:        invoice.TypeSale,
			Number:      "SAL-2026-001",
			CGSTPercent: decimal.RequireFromString("9.125"),
		})
		return err
	})
	require.ErrorContains(t, err, "cgst_percent")
	assert.Zero(t, repo.Count())

	err = repo.WithTx(ctx, func(ctx context.Context, tx invoice.TxRepository) error {
		inv, err := tx.InsertInvoice(ctx, invoice.Invoice{Type: invoice.TypeSale, Number: "SAL-2026-001"})
		if err != nil {
			return err
		}
		_, err = tx.InsertItem(ctx, invoice.Item{
			InvoiceID: inv.ID,
			PartID:    1,
			Quantity:  decimal.RequireFromString("100.0004"),
			Rate:      decimal.RequireFromString("1"),
		})
		return err
	})
	require.ErrorContains(t, err, "quantity")
	assert.Zero(t, repo.Count())
}

func TestRepoNumberTaken(t *testing.T) {
	repo := invoicetest.NewRepo(inventorytest.NewStore())
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx invoice.TxRepository) error {
		if _, err := tx.InsertInvoice(ctx, invoice.Invoice{Type: invoice.TypeSale, Number: "SAL-2026-001"}); err != nil {
			return err
		}
		taken, err := tx.NumberTaken(ctx, invoice.TypeSale, "SAL-2026-001")
		require.NoError(t, err)
		assert.True(t, taken)
		taken, err = tx.NumberTaken(ctx, invoice.TypePurchase, "SAL-2026-001")
		require.NoError(t, err)
		assert.False(t, taken)
		return nil
	})
	require.NoError(t, err)
}
