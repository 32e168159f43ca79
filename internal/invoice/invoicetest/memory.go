// Package invoicetest provides an in-memory invoice store for tests.
package invoicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/catalog"
	"github.com/partsdesk/partsdesk/internal/inventory"
	"github.com/partsdesk/partsdesk/internal/inventory/inventorytest"
	"github.com/partsdesk/partsdesk/internal/invoice"
	"github.com/partsdesk/partsdesk/internal/shared"
)

var _ invoice.RepositoryPort = (*Repo)(nil)

// Repo keeps invoices in maps and shares one inventorytest.Store with the
// ledger so a failed transaction rolls both back.
type Repo struct {
	mu       sync.Mutex
	stock    *inventorytest.Store
	invoices map[int64]invoice.Invoice
	payments map[int64][]invoice.Payment
	seq      map[string]int
	keys     map[string]int64
	nextID   int64
	nextItem int64
	nextPay  int64
}

// NewRepo builds an empty store sharing stock with the ledger.
func NewRepo(stock *inventorytest.Store) *Repo {
	return &Repo{
		stock:    stock,
		invoices: map[int64]invoice.Invoice{},
		payments: map[int64][]invoice.Payment{},
		seq:      map[string]int{},
		keys:     map[string]int64{},
	}
}

type repoSnapshot struct {
	invoices map[int64]invoice.Invoice
	payments map[int64][]invoice.Payment
	seq      map[string]int
	keys     map[string]int64
	nextID   int64
	nextItem int64
	nextPay  int64
}

func (m *Repo) snapshot() repoSnapshot {
	snap := repoSnapshot{
		invoices: make(map[int64]invoice.Invoice, len(m.invoices)),
		payments: make(map[int64][]invoice.Payment, len(m.payments)),
		seq:      make(map[string]int, len(m.seq)),
		keys:     make(map[string]int64, len(m.keys)),
		nextID:   m.nextID,
		nextItem: m.nextItem,
		nextPay:  m.nextPay,
	}
	for k, v := range m.invoices {
		v.Items = append([]invoice.Item(nil), v.Items...)
		snap.invoices[k] = v
	}
	for k, v := range m.payments {
		snap.payments[k] = append([]invoice.Payment(nil), v...)
	}
	for k, v := range m.seq {
		snap.seq[k] = v
	}
	for k, v := range m.keys {
		snap.keys[k] = v
	}
	return snap
}

func (m *Repo) restore(s repoSnapshot) {
	m.invoices, m.payments, m.seq, m.keys = s.invoices, s.payments, s.seq, s.keys
	m.nextID, m.nextItem, m.nextPay = s.nextID, s.nextItem, s.nextPay
}

func (m *Repo) WithTx(ctx context.Context, fn func(context.Context, invoice.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	ledgerTx, finish := m.stock.Begin()
	err := fn(ctx, &repoTx{m: m, ledger: ledgerTx})
	if err != nil {
		m.restore(snap)
	}
	finish(err == nil)
	return err
}

func (m *Repo) Get(_ context.Context, id int64) (invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return invoice.Invoice{}, shared.NewNotFoundError("invoice", id)
	}
	inv.Items = append([]invoice.Item{}, inv.Items...)
	return inv, nil
}

func (m *Repo) List(_ context.Context, f invoice.ListFilter) ([]invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []invoice.Invoice
	for _, inv := range m.invoices {
		if f.Type != "" && inv.Type != f.Type {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.SupplierID != nil && (inv.SupplierID == nil || *inv.SupplierID != *f.SupplierID) {
			continue
		}
		if f.CustomerID != nil && (inv.CustomerID == nil || *inv.CustomerID != *f.CustomerID) {
			continue
		}
		inv.Items = nil
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Repo) ListPayments(_ context.Context, invoiceID int64) ([]invoice.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]invoice.Payment(nil), m.payments[invoiceID]...), nil
}

func (m *Repo) LookupIdempotencyKey(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	return id, ok, nil
}

// Count reports stored invoices.
func (m *Repo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}

type repoTx struct {
	m      *Repo
	ledger inventory.TxRepository
}

func (t *repoTx) Ledger() inventory.TxRepository { return t.ledger }

func (t *repoTx) NextSequence(_ context.Context, typ invoice.Type, year int) (int, error) {
	k := fmt.Sprintf("%s:%d", typ, year)
	t.m.seq[k]++
	return t.m.seq[k], nil
}

func (t *repoTx) NumberTaken(_ context.Context, typ invoice.Type, number string) (bool, error) {
	for _, other := range t.m.invoices {
		if other.Type == typ && other.Number == number {
			return true, nil
		}
	}
	return false, nil
}

// fitsColumns fails like a NUMERIC(p,s) column would have to round, so tests
// catch values that reach storage unscaled.
func fitsColumns(inv invoice.Invoice) error {
	for name, v := range map[string]decimal.Decimal{
		"discount_percent": inv.DiscountPercent,
		"cgst_percent":     inv.CGSTPercent,
		"sgst_percent":     inv.SGSTPercent,
		"subtotal":         inv.Subtotal,
		"discount_amount":  inv.DiscountAmount,
		"taxable_value":    inv.TaxableValue,
		"cgst_amount":      inv.CGSTAmount,
		"sgst_amount":      inv.SGSTAmount,
		"round_off":        inv.RoundOff,
		"total":            inv.Total,
		"paid_amount":      inv.PaidAmount,
	} {
		if err := fitsScale(name, v, 2); err != nil {
			return err
		}
	}
	return nil
}

func fitsScale(column string, v decimal.Decimal, places int32) error {
	if !v.Equal(v.Round(places)) {
		return fmt.Errorf("invoicetest: %s=%s exceeds scale %d", column, v, places)
	}
	return nil
}

func (t *repoTx) InsertInvoice(_ context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if err := fitsColumns(inv); err != nil {
		return invoice.Invoice{}, err
	}
	for _, other := range t.m.invoices {
		if other.Type == inv.Type && other.Number == inv.Number {
			return invoice.Invoice{}, shared.NewConflictError("invoice", inv.Number, "number already used")
		}
	}
	t.m.nextID++
	inv.ID = t.m.nextID
	inv.Version = 1
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	inv.Items = nil
	t.m.invoices[inv.ID] = inv
	return inv, nil
}

func (t *repoTx) InsertItem(_ context.Context, it invoice.Item) (invoice.Item, error) {
	if err := fitsScale("quantity", it.Quantity, 3); err != nil {
		return invoice.Item{}, err
	}
	if err := fitsScale("rate", it.Rate, 2); err != nil {
		return invoice.Item{}, err
	}
	if err := fitsScale("amount", it.Amount, 2); err != nil {
		return invoice.Item{}, err
	}
	inv, ok := t.m.invoices[it.InvoiceID]
	if !ok {
		return invoice.Item{}, shared.NewNotFoundError("invoice", it.InvoiceID)
	}
	t.m.nextItem++
	it.ID = t.m.nextItem
	inv.Items = append(inv.Items, it)
	t.m.invoices[inv.ID] = inv
	return it, nil
}

func (t *repoTx) DeleteItems(_ context.Context, invoiceID int64) error {
	inv := t.m.invoices[invoiceID]
	inv.Items = nil
	t.m.invoices[invoiceID] = inv
	return nil
}

func (t *repoTx) GetForUpdate(_ context.Context, id int64) (invoice.Invoice, error) {
	inv, ok := t.m.invoices[id]
	if !ok {
		return invoice.Invoice{}, shared.NewNotFoundError("invoice", id)
	}
	inv.Items = append([]invoice.Item{}, inv.Items...)
	return inv, nil
}

func (t *repoTx) UpdateInvoice(_ context.Context, inv invoice.Invoice, expected int64) (invoice.Invoice, error) {
	if err := fitsColumns(inv); err != nil {
		return invoice.Invoice{}, err
	}
	stored, ok := t.m.invoices[inv.ID]
	if !ok || stored.Version != expected {
		return invoice.Invoice{}, shared.NewConflictError("invoice", inv.ID, "modified concurrently")
	}
	inv.Version = expected + 1
	inv.UpdatedAt = time.Now().UTC()
	inv.Items = append([]invoice.Item{}, inv.Items...)
	t.m.invoices[inv.ID] = inv
	return inv, nil
}

func (t *repoTx) DeleteInvoice(_ context.Context, id int64) error {
	delete(t.m.invoices, id)
	return nil
}

func (t *repoTx) InsertPayment(_ context.Context, p invoice.Payment) (invoice.Payment, error) {
	t.m.nextPay++
	p.ID = t.m.nextPay
	p.CreatedAt = time.Now().UTC()
	t.m.payments[p.InvoiceID] = append(t.m.payments[p.InvoiceID], p)
	return p, nil
}

func (t *repoTx) CountPayments(_ context.Context, invoiceID int64) (int, error) {
	return len(t.m.payments[invoiceID]), nil
}

func (t *repoTx) ClaimIdempotencyKey(_ context.Context, key string, invoiceID int64) error {
	if _, ok := t.m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	t.m.keys[key] = invoiceID
	return nil
}

// Catalog serves two parts, one customer and one supplier.
type Catalog struct {
	parts     map[int64]catalog.Part
	customers map[int64]catalog.Party
	suppliers map[int64]catalog.Party
}

// NewCatalog builds the fixed catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		parts: map[int64]catalog.Part{
			1: {ID: 1, PartNumber: "HF-2200", Name: "Hydraulic Filter", HSNCode: "8421", GSTPercent: decimal.NewFromInt(18), Unit: catalog.UnitPieces},
			2: {ID: 2, PartNumber: "VB-100", Name: "V Belt", HSNCode: "4010", GSTPercent: decimal.NewFromInt(18), Unit: catalog.UnitPieces},
		},
		customers: map[int64]catalog.Party{1: {ID: 1, Kind: catalog.KindCustomer, Name: "Sharma Earthmovers"}},
		suppliers: map[int64]catalog.Party{1: {ID: 1, Kind: catalog.KindSupplier, Name: "Bharat Hydraulics"}},
	}
}

func (c *Catalog) GetPart(_ context.Context, id int64) (catalog.Part, error) {
	p, ok := c.parts[id]
	if !ok {
		return catalog.Part{}, shared.NewNotFoundError("part", id)
	}
	return p, nil
}

func (c *Catalog) GetCustomer(_ context.Context, id int64) (catalog.Party, error) {
	p, ok := c.customers[id]
	if !ok {
		return catalog.Party{}, shared.NewNotFoundError("customer", id)
	}
	return p, nil
}

func (c *Catalog) GetSupplier(_ context.Context, id int64) (catalog.Party, error) {
	p, ok := c.suppliers[id]
	if !ok {
		return catalog.Party{}, shared.NewNotFoundError("supplier", id)
	}
	return p, nil
}
