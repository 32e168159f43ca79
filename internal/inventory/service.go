package inventory

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/partsdesk/partsdesk/internal/platform/cache"
	"github.com/partsdesk/partsdesk/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	PartExists(ctx context.Context, partID int64) (bool, error)
	StockFor(ctx context.Context, partID int64) (decimal.Decimal, error)
	StockForAll(ctx context.Context, filter StockFilter) ([]StockLevel, error)
	Movements(ctx context.Context, partID int64, limit int) ([]Movement, error)
	LedgerSums(ctx context.Context) (map[int64]decimal.Decimal, error)
	Balances(ctx context.Context) (map[int64]decimal.Decimal, error)
}

// Service answers stock queries and records standalone movements.
type Service struct {
	repo   RepositoryPort
	ledger *Ledger
	cache  *cache.Versioned
	group  singleflight.Group
	logger *slog.Logger
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, ledger *Ledger, stockCache *cache.Versioned, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = NewLedger(LedgerConfig{AllowNegativeStock: true})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, cache: stockCache, logger: logger}
}

// Ledger exposes the write side for callers that own the transaction.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// RecordMovement appends one entry in its own transaction.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (Movement, error) {
	var saved Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		saved, err = s.ledger.Record(ctx, tx, in)
		return err
	})
	if err != nil {
		return Movement{}, shared.AsPersistence("record movement", err)
	}
	s.Invalidate(ctx)
	return saved, nil
}

// ReverseMovement appends the compensating entry for invoiceItemID in its own transaction.
func (s *Service) ReverseMovement(ctx context.Context, invoiceItemID int64, note string) (Movement, error) {
	var saved Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		saved, err = s.ledger.Reverse(ctx, tx, invoiceItemID, note)
		return err
	})
	if err != nil {
		return Movement{}, shared.AsPersistence("reverse movement", err)
	}
	s.Invalidate(ctx)
	return saved, nil
}

// StockFor returns the committed stock of one part. It bypasses the cache.
func (s *Service) StockFor(ctx context.Context, partID int64) (StockLevel, error) {
	if partID <= 0 {
		return StockLevel{}, shared.NewValidationError("partId", "must be a positive integer")
	}
	ok, err := s.repo.PartExists(ctx, partID)
	if err != nil {
		return StockLevel{}, shared.AsPersistence("part exists", err)
	}
	if !ok {
		return StockLevel{}, shared.NewNotFoundError("part", partID)
	}
	qty, err := s.repo.StockFor(ctx, partID)
	if err != nil {
		return StockLevel{}, shared.AsPersistence("stock for part", err)
	}
	return StockLevel{PartID: partID, Quantity: qty}, nil
}

// StockForAll returns stock for every part ordered by part id. Results may be served
// from the cache for at most its TTL; concurrent callers share one load.
func (s *Service) StockForAll(ctx context.Context, filter StockFilter) ([]StockLevel, error) {
	flag := strconv.FormatBool(filter.OnlyPurchased)
	v, err, _ := s.group.Do("stock:"+flag, func() (any, error) {
		var levels []StockLevel
		err := s.cache.FetchJSON(ctx, &levels, func(ctx context.Context) (any, error) {
			return s.repo.StockForAll(ctx, filter)
		}, "all", flag)
		return levels, err
	})
	if err != nil {
		return nil, shared.AsPersistence("stock for all", err)
	}
	levels := append([]StockLevel(nil), v.([]StockLevel)...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].PartID < levels[j].PartID })
	return levels, nil
}

// Movements returns the ledger history of one part, oldest first.
func (s *Service) Movements(ctx context.Context, partID int64, limit int) ([]Movement, error) {
	if partID <= 0 {
		return nil, shared.NewValidationError("partId", "must be a positive integer")
	}
	ok, err := s.repo.PartExists(ctx, partID)
	if err != nil {
		return nil, shared.AsPersistence("part exists", err)
	}
	if !ok {
		return nil, shared.NewNotFoundError("part", partID)
	}
	if limit <= 0 {
		limit = 200
	}
	entries, err := s.repo.Movements(ctx, partID, limit)
	if err != nil {
		return nil, shared.AsPersistence("list movements", err)
	}
	return entries, nil
}

// VerifyConservation recomputes every part's stock from raw ledger entries and
// reports parts whose running balance disagrees.
func (s *Service) VerifyConservation(ctx context.Context) ([]Discrepancy, error) {
	sums, err := s.repo.LedgerSums(ctx)
	if err != nil {
		return nil, shared.AsPersistence("ledger sums", err)
	}
	balances, err := s.repo.Balances(ctx)
	if err != nil {
		return nil, shared.AsPersistence("balances", err)
	}
	var out []Discrepancy
	for partID, sum := range sums {
		bal := balances[partID]
		if !bal.Equal(sum) {
			out = append(out, Discrepancy{PartID: partID, Balance: bal, LedgerSum: sum})
		}
	}
	for partID, bal := range balances {
		if _, ok := sums[partID]; !ok && !bal.IsZero() {
			out = append(out, Discrepancy{PartID: partID, Balance: bal, LedgerSum: decimal.Zero})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartID < out[j].PartID })
	for _, d := range out {
		s.logger.Warn("stock balance drift", slog.Int64("part_id", d.PartID), slog.String("balance", d.Balance.String()), slog.String("ledger_sum", d.LedgerSum.String()))
	}
	return out, nil
}

// Invalidate drops cached stock listings after a ledger commit.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("stock cache bump", slog.Any("error", err))
	}
}
