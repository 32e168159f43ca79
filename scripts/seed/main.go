package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/app"
	"github.com/partsdesk/partsdesk/internal/catalog"
	"github.com/partsdesk/partsdesk/internal/invoice"
	"github.com/partsdesk/partsdesk/internal/platform/db"
)

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("build container: %v", err)
	}
	defer c.Close()

	if _, err := db.Migrate(ctx, c.Pool, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	fmt.Println("→ Seeding parts...")
	parts, err := seedParts(ctx, c.Catalog)
	if err != nil {
		log.Fatalf("seed parts: %v", err)
	}

	fmt.Println("→ Seeding customers and suppliers...")
	customer, err := seedParty(ctx, c.Catalog, catalog.Party{
		Kind: catalog.KindCustomer, Name: "Sharma Auto Works", Phone: "9810000001",
		Address: "12 Ring Road, Jaipur", State: "Rajasthan",
	})
	if err != nil {
		log.Fatalf("seed customer: %v", err)
	}
	supplier, err := seedParty(ctx, c.Catalog, catalog.Party{
		Kind: catalog.KindSupplier, Name: "Bharat Spares Distributors", Phone: "9820000002",
		Address: "Plot 7, MIDC Bhosari, Pune", GSTIN: "27AABCB1234F1Z5", State: "Maharashtra",
	})
	if err != nil {
		log.Fatalf("seed supplier: %v", err)
	}

	fmt.Println("→ Seeding invoices...")
	if err := seedInvoices(ctx, c.Invoices, parts, customer.ID, supplier.ID); err != nil {
		log.Fatalf("seed invoices: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedParts(ctx context.Context, svc *catalog.Service) ([]catalog.Part, error) {
	defs := []catalog.Part{
		{PartNumber: "BRK-PAD-101", Name: "Front brake pad set", HSNCode: "87083000", GSTPercent: decimal.NewFromInt(18), Unit: catalog.UnitSet, MRP: decimal.NewFromInt(2600), RTL: decimal.NewFromInt(2200)},
		{PartNumber: "OIL-FLT-220", Name: "Oil filter", HSNCode: "84212300", GSTPercent: decimal.NewFromInt(18), Unit: catalog.UnitPieces, MRP: decimal.NewFromInt(450), RTL: decimal.NewFromInt(380)},
		{PartNumber: "ENG-OIL-5W30", Name: "Engine oil 5W-30", HSNCode: "27101980", GSTPercent: decimal.NewFromInt(18), Unit: catalog.UnitLitre, MRP: decimal.NewFromInt(720), RTL: decimal.NewFromInt(640)},
	}
	out := make([]catalog.Part, 0, len(defs))
	for _, def := range defs {
		existing, err := svc.ListParts(ctx, catalog.ListFilter{Search: def.PartNumber, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			out = append(out, existing[0])
			continue
		}
		part, err := svc.CreatePart(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.PartNumber, err)
		}
		out = append(out, part)
	}
	return out, nil
}

func seedParty(ctx context.Context, svc *catalog.Service, def catalog.Party) (catalog.Party, error) {
	existing, err := svc.ListParties(ctx, def.Kind, catalog.ListFilter{Search: def.Name, Limit: 1})
	if err != nil {
		return catalog.Party{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}
	return svc.CreateParty(ctx, def)
}

// seedInvoices stocks every part with one purchase and sells part of it.
// Idempotency keys make reruns return the original invoices.
func seedInvoices(ctx context.Context, svc *invoice.Service, parts []catalog.Part, customerID, supplierID int64) error {
	nine := decimal.NewFromInt(9)
	now := time.Now().UTC()

	items := make([]invoice.ItemInput, 0, len(parts))
	for _, p := range parts {
		items = append(items, invoice.ItemInput{PartID: p.ID, Quantity: decimal.NewFromInt(20), Rate: p.RTL.Mul(decimal.NewFromFloat(0.8)).Round(2)})
	}
	purchase, err := svc.Create(ctx, invoice.Input{
		Type:           invoice.TypePurchase,
		Date:           now.AddDate(0, 0, -7),
		SupplierID:     &supplierID,
		CGSTPercent:    nine,
		SGSTPercent:    nine,
		Items:          items,
		IdempotencyKey: "seed-purchase-1",
	})
	if err != nil {
		return fmt.Errorf("purchase: %w", err)
	}
	if purchase.Status == invoice.StatusDraft {
		if _, err := svc.Submit(ctx, purchase.ID, nil); err != nil {
			return fmt.Errorf("submit purchase: %w", err)
		}
	}
	fmt.Println("  purchase", purchase.Number, purchase.Total.StringFixed(2))

	sale, err := svc.Create(ctx, invoice.Input{
		Type:            invoice.TypeSale,
		Date:            now,
		CustomerID:      &customerID,
		DiscountPercent: decimal.NewFromInt(5),
		CGSTPercent:     nine,
		SGSTPercent:     nine,
		Items: []invoice.ItemInput{
			{PartID: parts[0].ID, Quantity: decimal.NewFromInt(2), Rate: parts[0].RTL},
			{PartID: parts[1].ID, Quantity: decimal.NewFromInt(4), Rate: parts[1].RTL},
		},
		Meta:           invoice.Meta{Notes: "counter sale"},
		IdempotencyKey: "seed-sale-1",
	})
	if err != nil {
		return fmt.Errorf("sale: %w", err)
	}
	fmt.Println("  sale", sale.Number, sale.Total.StringFixed(2))
	return nil
}
