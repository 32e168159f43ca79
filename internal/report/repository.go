package report

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository runs the report queries against PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Summarize implements Repository.
func (r *PGRepository) Summarize(ctx context.Context, invoiceType string, from, to time.Time) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
       COALESCE(SUM(taxable_value), 0),
       COALESCE(SUM(cgst_amount + sgst_amount), 0),
       COALESCE(SUM(total), 0)
FROM invoices
WHERE type = $1 AND status IN ('SUBMITTED', 'PAID')
  AND invoice_date >= $2 AND invoice_date < $3`, invoiceType, from, to).Scan(&s.Count, &s.Taxable, &s.GST, &s.Total)
	return s, err
}

// WeeklySales implements Repository.
func (r *PGRepository) WeeklySales(ctx context.Context, from, to time.Time) ([]WeekBucket, error) {
	rows, err := r.pool.Query(ctx, `SELECT date_trunc('week', invoice_date AT TIME ZONE 'UTC')::date AS week_start,
       COUNT(*), COALESCE(SUM(total), 0)
FROM invoices
WHERE type = 'SALE' AND status IN ('SUBMITTED', 'PAID')
  AND invoice_date >= $1 AND invoice_date < $2
GROUP BY 1
ORDER BY 1`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WeekBucket
	for rows.Next() {
		var b WeekBucket
		if err := rows.Scan(&b.WeekStart, &b.Count, &b.Total); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
