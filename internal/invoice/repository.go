package invoice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partsdesk/partsdesk/internal/inventory"
	"github.com/partsdesk/partsdesk/internal/platform/db"
	"github.com/partsdesk/partsdesk/internal/shared"
)

const idempotencyModule = "invoice.create"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
	idem *shared.IdempotencyStore
}

var _ RepositoryPort = (*Repository)(nil)

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, idem: shared.NewIdempotencyStore(pool)}
}

type txRepo struct {
	tx     pgx.Tx
	idem   *shared.IdempotencyStore
	ledger inventory.TxRepository
}

// WithTx wraps callback in a repeatable-read transaction shared with the ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, idem: r.idem, ledger: inventory.NewTxRepository(tx)})
	})
	if err != nil && db.SerializationFailure(err) {
		return shared.NewConflictError("invoice", "transaction", "concurrent modification, retry the request")
	}
	return err
}

const invoiceColumns = `id, number, type, invoice_date, status, supplier_id, customer_id,
subtotal, discount_percent, discount_amount, taxable_value, cgst_percent, cgst_amount,
sgst_percent, sgst_amount, round_off, total, paid_amount,
delivery_note, dispatched_through, destination, notes, version, created_at, updated_at`

const itemColumns = `id, invoice_id, line_no, part_id, hsn_code, unit, quantity, rate, amount`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv    Invoice
		typ    string
		status string
	)
	err := row.Scan(&inv.ID, &inv.Number, &typ, &inv.Date, &status, &inv.SupplierID, &inv.CustomerID,
		&inv.Subtotal, &inv.DiscountPercent, &inv.DiscountAmount, &inv.TaxableValue, &inv.CGSTPercent, &inv.CGSTAmount,
		&inv.SGSTPercent, &inv.SGSTAmount, &inv.RoundOff, &inv.Total, &inv.PaidAmount,
		&inv.DeliveryNote, &inv.DispatchedThrough, &inv.Destination, &inv.Notes, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
	inv.Type = Type(typ)
	inv.Status = Status(status)
	return inv, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, invoiceID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM invoice_items WHERE invoice_id=$1 ORDER BY line_no`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.LineNo, &it.PartID, &it.HSNCode, &it.Unit, &it.Quantity, &it.Rate, &it.Amount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Transactional writes

func (t *txRepo) Ledger() inventory.TxRepository {
	return t.ledger
}

func (t *txRepo) NextSequence(ctx context.Context, typ Type, year int) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_sequences (invoice_type, year, last_value) VALUES ($1, $2, 1)
ON CONFLICT (invoice_type, year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
RETURNING last_value`, string(typ), year).Scan(&seq)
	return seq, err
}

func (t *txRepo) NumberTaken(ctx context.Context, typ Type, number string) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE type = $1 AND number = $2)`, string(typ), number).Scan(&taken)
	return taken, err
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices (number, type, invoice_date, status, supplier_id, customer_id,
subtotal, discount_percent, discount_amount, taxable_value, cgst_percent, cgst_amount,
sgst_percent, sgst_amount, round_off, total, paid_amount,
delivery_note, dispatched_through, destination, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
RETURNING id, version, created_at, updated_at`,
		inv.Number, string(inv.Type), inv.Date, string(inv.Status), inv.SupplierID, inv.CustomerID,
		inv.Subtotal, inv.DiscountPercent, inv.DiscountAmount, inv.TaxableValue, inv.CGSTPercent, inv.CGSTAmount,
		inv.SGSTPercent, inv.SGSTAmount, inv.RoundOff, inv.Total, inv.PaidAmount,
		inv.DeliveryNote, inv.DispatchedThrough, inv.Destination, inv.Notes,
	).Scan(&inv.ID, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return Invoice{}, shared.NewConflictError("invoice", inv.Number, fmt.Sprintf("number already used for %s invoices", inv.Type))
		}
		if db.ForeignKeyViolation(err) {
			return Invoice{}, shared.NewNotFoundError("counterparty", inv.CounterpartyID())
		}
		return Invoice{}, err
	}
	inv.Items = nil
	return inv, nil
}

func (t *txRepo) InsertItem(ctx context.Context, it Item) (Item, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_items (invoice_id, line_no, part_id, hsn_code, unit, quantity, rate, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		it.InvoiceID, it.LineNo, it.PartID, it.HSNCode, it.Unit, it.Quantity, it.Rate, it.Amount).Scan(&it.ID)
	if err != nil {
		if db.ForeignKeyViolation(err) {
			return Item{}, shared.NewNotFoundError("part", it.PartID)
		}
		return Item{}, err
	}
	return it, nil
}

func (t *txRepo) DeleteItems(ctx context.Context, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id=$1`, invoiceID)
	return err
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.NewNotFoundError("invoice", id)
		}
		return Invoice{}, err
	}
	inv.Items, err = loadItems(ctx, t.tx, id)
	return inv, err
}

func (t *txRepo) UpdateInvoice(ctx context.Context, inv Invoice, expectedVersion int64) (Invoice, error) {
	err := t.tx.QueryRow(ctx, `UPDATE invoices SET invoice_date=$2, status=$3, supplier_id=$4, customer_id=$5,
subtotal=$6, discount_percent=$7, discount_amount=$8, taxable_value=$9, cgst_percent=$10, cgst_amount=$11,
sgst_percent=$12, sgst_amount=$13, round_off=$14, total=$15, paid_amount=$16,
delivery_note=$17, dispatched_through=$18, destination=$19, notes=$20,
version = version + 1, updated_at = NOW()
WHERE id=$1 AND version=$21
RETURNING version, updated_at`,
		inv.ID, inv.Date, string(inv.Status), inv.SupplierID, inv.CustomerID,
		inv.Subtotal, inv.DiscountPercent, inv.DiscountAmount, inv.TaxableValue, inv.CGSTPercent, inv.CGSTAmount,
		inv.SGSTPercent, inv.SGSTAmount, inv.RoundOff, inv.Total, inv.PaidAmount,
		inv.DeliveryNote, inv.DispatchedThrough, inv.Destination, inv.Notes, expectedVersion,
	).Scan(&inv.Version, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.NewConflictError("invoice", inv.ID, "modified concurrently")
	}
	if err != nil {
		if db.ForeignKeyViolation(err) {
			return Invoice{}, shared.NewNotFoundError("counterparty", inv.CounterpartyID())
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (t *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE id=$1`, id)
	if db.ForeignKeyViolation(err) {
		return shared.NewConflictError("invoice", id, "referenced by payments")
	}
	return err
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO payments (invoice_id, amount, method, reference, paid_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		p.InvoiceID, p.Amount, p.Method, p.Reference, p.PaidAt).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (t *txRepo) CountPayments(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE invoice_id=$1`, invoiceID).Scan(&n)
	return n, err
}

func (t *txRepo) ClaimIdempotencyKey(ctx context.Context, key string, invoiceID int64) error {
	return t.idem.CheckAndInsert(ctx, t.tx, key, idempotencyModule, strconv.FormatInt(invoiceID, 10))
}

// Fetch helpers

// Get returns the invoice and its items from one snapshot.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		inv, err = scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
		if err != nil {
			return err
		}
		inv.Items, err = loadItems(ctx, tx, id)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.NewNotFoundError("invoice", id)
	}
	return inv, err
}

// List returns invoice headers without items.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var (
		conds []string
		args  []any
	)
	where := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Type != "" {
		where("type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		where("status = $%d", string(filter.Status))
	}
	if filter.SupplierID != nil {
		where("supplier_id = $%d", *filter.SupplierID)
	}
	if filter.CustomerID != nil {
		where("customer_id = $%d", *filter.CustomerID)
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListPayments returns payments oldest first.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, amount, method, reference, paid_at, created_at
FROM payments WHERE invoice_id=$1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LookupIdempotencyKey returns the invoice created under key.
func (r *Repository) LookupIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	ref, err := r.idem.Lookup(ctx, key, idempotencyModule)
	if errors.Is(err, shared.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invoice: idempotency ref %q: %w", ref, err)
	}
	return id, true, nil
}
