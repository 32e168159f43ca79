package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partsdesk/partsdesk/internal/platform/db"
	"github.com/partsdesk/partsdesk/internal/shared"
)

// PGRepository persists the catalog in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const partColumns = `id, part_number, name, hsn_code, gst_percent, unit, mrp, rtl, barcode, created_at, updated_at`

func scanPart(row pgx.Row) (Part, error) {
	var p Part
	var unit string
	err := row.Scan(&p.ID, &p.PartNumber, &p.Name, &p.HSNCode, &p.GSTPercent, &unit, &p.MRP, &p.RTL, &p.Barcode, &p.CreatedAt, &p.UpdatedAt)
	p.Unit = Unit(unit)
	return p, err
}

// CreatePart inserts a part.
func (r *PGRepository) CreatePart(ctx context.Context, p Part) (Part, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO parts (part_number, name, hsn_code, gst_percent, unit, mrp, rtl, barcode)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+partColumns,
		p.PartNumber, p.Name, p.HSNCode, p.GSTPercent, string(p.Unit), p.MRP, p.RTL, p.Barcode)
	created, err := scanPart(row)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok {
			return Part{}, shared.NewConflictError("part", p.PartNumber, "duplicate value for "+constraint)
		}
		return Part{}, err
	}
	return created, nil
}

// GetPart loads a part.
func (r *PGRepository) GetPart(ctx context.Context, id int64) (Part, error) {
	p, err := scanPart(r.pool.QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Part{}, shared.NewNotFoundError("part", id)
	}
	return p, err
}

// ListParts lists parts, optionally matching part number, name or barcode.
func (r *PGRepository) ListParts(ctx context.Context, f ListFilter) ([]Part, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+partColumns+` FROM parts
WHERE $1 = '' OR part_number ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%' OR barcode = $1
ORDER BY part_number LIMIT $2 OFFSET $3`, f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PartReferenced reports whether an invoice line or ledger entry uses the part.
func (r *PGRepository) PartReferenced(ctx context.Context, id int64) (bool, error) {
	var referenced bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoice_items WHERE part_id=$1)
    OR EXISTS (SELECT 1 FROM inventory_transactions WHERE part_id=$1)`, id).Scan(&referenced)
	return referenced, err
}

// DeletePart removes a part and its empty balance row.
func (r *PGRepository) DeletePart(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM stock_balances WHERE part_id=$1 AND quantity = 0`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM parts WHERE id=$1`, id)
		if err != nil {
			if db.ForeignKeyViolation(err) {
				return shared.NewConflictError("part", id, "referenced by other records")
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.NewNotFoundError("part", id)
		}
		return nil
	})
}

func partyTable(kind PartyKind) (table, refColumn string) {
	if kind == KindSupplier {
		return "suppliers", "supplier_id"
	}
	return "customers", "customer_id"
}

const partyColumns = `id, name, phone, COALESCE(email, ''), address, COALESCE(gstin, ''), state, created_at, updated_at`

func scanParty(row pgx.Row, kind PartyKind) (Party, error) {
	p := Party{Kind: kind}
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.Address, &p.GSTIN, &p.State, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateParty inserts a customer or supplier.
func (r *PGRepository) CreateParty(ctx context.Context, p Party) (Party, error) {
	table, _ := partyTable(p.Kind)
	row := r.pool.QueryRow(ctx, `INSERT INTO `+table+` (name, phone, email, address, gstin, state)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+partyColumns,
		p.Name, p.Phone, nullString(p.Email), p.Address, nullString(p.GSTIN), p.State)
	return scanParty(row, p.Kind)
}

// GetParty loads a customer or supplier.
func (r *PGRepository) GetParty(ctx context.Context, kind PartyKind, id int64) (Party, error) {
	table, _ := partyTable(kind)
	p, err := scanParty(r.pool.QueryRow(ctx, `SELECT `+partyColumns+` FROM `+table+` WHERE id=$1`, id), kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, shared.NewNotFoundError(string(kind), id)
	}
	return p, err
}

// ListParties lists customers or suppliers.
func (r *PGRepository) ListParties(ctx context.Context, kind PartyKind, f ListFilter) ([]Party, error) {
	table, _ := partyTable(kind)
	rows, err := r.pool.Query(ctx, `SELECT `+partyColumns+` FROM `+table+`
WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR phone = $1
ORDER BY name LIMIT $2 OFFSET $3`, f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Party
	for rows.Next() {
		p, err := scanParty(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PartyReferenced reports whether any invoice names the party.
func (r *PGRepository) PartyReferenced(ctx context.Context, kind PartyKind, id int64) (bool, error) {
	_, column := partyTable(kind)
	var referenced bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE `+column+`=$1)`, id).Scan(&referenced)
	return referenced, err
}

// DeleteParty removes a customer or supplier.
func (r *PGRepository) DeleteParty(ctx context.Context, kind PartyKind, id int64) error {
	table, _ := partyTable(kind)
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		if db.ForeignKeyViolation(err) {
			return shared.NewConflictError(string(kind), id, "referenced by invoices")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError(string(kind), id)
	}
	return nil
}
