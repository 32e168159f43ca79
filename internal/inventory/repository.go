package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the ledger writes to a transaction owned by another repository.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const movementColumns = `id, part_id, invoice_id, invoice_item_id, direction, quantity, reverses_id, note, posted_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var dir string
	err := row.Scan(&m.ID, &m.PartID, &m.InvoiceID, &m.InvoiceItemID, &dir, &m.Quantity, &m.ReversesID, &m.Note, &m.PostedAt)
	m.Direction = Direction(dir)
	return m, err
}

func (t *txRepo) HasEntry(ctx context.Context, invoiceItemID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_transactions WHERE invoice_item_id=$1 AND reverses_id IS NULL)`, invoiceItemID).Scan(&exists)
	return exists, err
}

func (t *txRepo) FindActiveEntry(ctx context.Context, invoiceItemID int64) (Movement, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+movementColumns+`
FROM inventory_transactions o
WHERE o.invoice_item_id=$1 AND o.reverses_id IS NULL
  AND NOT EXISTS (SELECT 1 FROM inventory_transactions r WHERE r.reverses_id = o.id)`, invoiceItemID)
	m, err := scanMovement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrEntryNotFound
	}
	return m, err
}

func (t *txRepo) ActiveEntriesForInvoice(ctx context.Context, invoiceID int64) ([]Movement, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+movementColumns+`
FROM inventory_transactions o
WHERE o.invoice_id=$1 AND o.reverses_id IS NULL
  AND NOT EXISTS (SELECT 1 FROM inventory_transactions r WHERE r.reverses_id = o.id)
ORDER BY o.id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_transactions (part_id, invoice_id, invoice_item_id, direction, quantity, reverses_id, note, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		m.PartID, m.InvoiceID, m.InvoiceItemID, string(m.Direction), m.Quantity, m.ReversesID, m.Note, m.PostedAt).Scan(&m.ID)
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return Movement{}, &DuplicateLedgerEntryError{InvoiceItemID: m.InvoiceItemID}
		}
		return Movement{}, err
	}
	return m, nil
}

func (t *txRepo) GetBalanceForUpdate(ctx context.Context, partID int64) (Balance, error) {
	var b Balance
	err := t.tx.QueryRow(ctx, `SELECT part_id, quantity, updated_at FROM stock_balances WHERE part_id=$1 FOR UPDATE`, partID).Scan(&b.PartID, &b.Quantity, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{PartID: partID, Quantity: decimal.Zero}, ErrBalanceNotFound
	}
	return b, err
}

func (t *txRepo) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_balances (part_id, quantity, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (part_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`, b.PartID, b.Quantity, b.UpdatedAt)
	return err
}

// PartExists reports whether the part is in the catalog.
func (r *Repository) PartExists(ctx context.Context, partID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM parts WHERE id=$1)`, partID).Scan(&exists)
	return exists, err
}

// StockFor reads the running balance of one part.
func (r *Repository) StockFor(ctx context.Context, partID int64) (decimal.Decimal, error) {
	qty := decimal.Zero
	err := r.pool.QueryRow(ctx, `SELECT COALESCE((SELECT quantity FROM stock_balances WHERE part_id=$1), 0)`, partID).Scan(&qty)
	return qty, err
}

// StockForAll lists every part with its running balance.
func (r *Repository) StockForAll(ctx context.Context, filter StockFilter) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.part_number, p.name, COALESCE(b.quantity, 0)
FROM parts p
LEFT JOIN stock_balances b ON b.part_id = p.id
WHERE NOT $1 OR EXISTS (
    SELECT 1 FROM inventory_transactions t
    WHERE t.part_id = p.id AND t.direction = 'IN' AND t.reverses_id IS NULL
)
ORDER BY p.id`, filter.OnlyPurchased)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockLevel
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.PartID, &l.PartNumber, &l.Name, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Movements lists ledger entries of a part, oldest first.
func (r *Repository) Movements(ctx context.Context, partID int64, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM inventory_transactions WHERE part_id=$1 ORDER BY posted_at, id LIMIT $2`, partID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LedgerSums recomputes stock per part straight from the ledger.
func (r *Repository) LedgerSums(ctx context.Context) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT part_id, SUM(CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END)
FROM inventory_transactions GROUP BY part_id`)
	if err != nil {
		return nil, err
	}
	return collectSums(rows)
}

// Balances returns the running balance per part.
func (r *Repository) Balances(ctx context.Context) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT part_id, quantity FROM stock_balances`)
	if err != nil {
		return nil, err
	}
	return collectSums(rows)
}

func collectSums(rows pgx.Rows) (map[int64]decimal.Decimal, error) {
	defer rows.Close()
	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var id int64
		var qty decimal.Decimal
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}
