// Package report derives profit and loss and weekly sales figures from committed invoices.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/partsdesk/partsdesk/internal/platform/cache"
	"github.com/partsdesk/partsdesk/internal/shared"
)

const (
	dateLayout   = "2006-01-02"
	defaultWeeks = 8
	maxWeeks     = 52
)

// Summary aggregates SUBMITTED and PAID invoices of one type.
type Summary struct {
	Count   int             `json:"count"`
	Taxable decimal.Decimal `json:"taxable"`
	GST     decimal.Decimal `json:"gst"`
	Total   decimal.Decimal `json:"total"`
}

// ProfitAndLoss is the trading result over a date range.
type ProfitAndLoss struct {
	From          string          `json:"from"`
	To            string          `json:"to"`
	Sales         Summary         `json:"sales"`
	Purchases     Summary         `json:"purchases"`
	GrossProfit   decimal.Decimal `json:"grossProfit"`
	OutputGST     decimal.Decimal `json:"outputGst"`
	InputGST      decimal.Decimal `json:"inputGst"`
	NetGSTPayable decimal.Decimal `json:"netGstPayable"`
}

// WeekBucket is one Monday-start week of sales.
type WeekBucket struct {
	WeekStart time.Time       `json:"weekStart"`
	Count     int             `json:"count"`
	Total     decimal.Decimal `json:"total"`
}

// Repository runs the aggregate queries. to is exclusive.
type Repository interface {
	Summarize(ctx context.Context, invoiceType string, from, to time.Time) (Summary, error)
	WeeklySales(ctx context.Context, from, to time.Time) ([]WeekBucket, error)
}

// Service answers report queries through a versioned cache.
type Service struct {
	repo   Repository
	cache  *cache.Versioned
	logger *slog.Logger
}

// NewService builds Service. cache may be nil.
func NewService(repo Repository, reportCache *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: reportCache, logger: logger}
}

// ProfitAndLoss summarises sales against purchases for the inclusive date range.
func (s *Service) ProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	from, to = truncateDay(from), truncateDay(to)
	if from.IsZero() || to.IsZero() {
		return ProfitAndLoss{}, shared.NewValidationError("from", "from and to are required")
	}
	if to.Before(from) {
		return ProfitAndLoss{}, shared.NewValidationError("to", "must not be before from")
	}
	var out ProfitAndLoss
	err := s.cache.FetchJSON(ctx, &out, func(ctx context.Context) (any, error) {
		return s.loadProfitAndLoss(ctx, from, to)
	}, "pl", from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return ProfitAndLoss{}, shared.AsPersistence("profit and loss", err)
	}
	return out, nil
}

func (s *Service) loadProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	end := to.AddDate(0, 0, 1)
	var sales, purchases Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sales, err = s.repo.Summarize(gctx, "SALE", from, end)
		return err
	})
	g.Go(func() error {
		var err error
		purchases, err = s.repo.Summarize(gctx, "PURCHASE", from, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return ProfitAndLoss{}, err
	}
	return ProfitAndLoss{
		From:          from.Format(dateLayout),
		To:            to.Format(dateLayout),
		Sales:         sales,
		Purchases:     purchases,
		GrossProfit:   sales.Taxable.Sub(purchases.Taxable),
		OutputGST:     sales.GST,
		InputGST:      purchases.GST,
		NetGSTPayable: sales.GST.Sub(purchases.GST),
	}, nil
}

// WeeklySales returns the last weeks Monday-start buckets ending with the week of asOf.
// Weeks without sales are present with zero values.
func (s *Service) WeeklySales(ctx context.Context, weeks int, asOf time.Time) ([]WeekBucket, error) {
	if weeks == 0 {
		weeks = defaultWeeks
	}
	if weeks < 1 || weeks > maxWeeks {
		return nil, shared.NewValidationError("weeks", "must be between 1 and 52")
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	last := weekStart(asOf)
	first := last.AddDate(0, 0, -7*(weeks-1))
	var out []WeekBucket
	err := s.cache.FetchJSON(ctx, &out, func(ctx context.Context) (any, error) {
		rows, err := s.repo.WeeklySales(ctx, first, last.AddDate(0, 0, 7))
		if err != nil {
			return nil, err
		}
		return fillWeeks(rows, first, weeks), nil
	}, "weekly", first.Format(dateLayout), last.Format(dateLayout))
	if err != nil {
		return nil, shared.AsPersistence("weekly sales", err)
	}
	return out, nil
}

// Invalidate drops cached reports after an invoice commit.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump", slog.Any("error", err))
	}
}

func fillWeeks(rows []WeekBucket, first time.Time, weeks int) []WeekBucket {
	byWeek := make(map[string]WeekBucket, len(rows))
	for _, r := range rows {
		byWeek[weekStart(r.WeekStart).Format(dateLayout)] = r
	}
	out := make([]WeekBucket, weeks)
	for i := range out {
		start := first.AddDate(0, 0, 7*i)
		b, ok := byWeek[start.Format(dateLayout)]
		if !ok {
			b = WeekBucket{Total: decimal.Zero}
		}
		b.WeekStart = start
		out[i] = b
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func weekStart(t time.Time) time.Time {
	day := truncateDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
