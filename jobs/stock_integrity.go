package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/partsdesk/partsdesk/internal/inventory"
	jobmetrics "github.com/partsdesk/partsdesk/internal/jobs"
)

// ErrStockDrift reports that at least one running balance disagrees with the ledger.
var ErrStockDrift = errors.New("stock integrity: balances drifted from ledger")

// ConservationVerifier recomputes stock from the ledger.
type ConservationVerifier interface {
	VerifyConservation(ctx context.Context) ([]inventory.Discrepancy, error)
}

// StockIntegrityJob runs the nightly conservation check.
type StockIntegrityJob struct {
	Verifier ConservationVerifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewStockIntegrityJob initialises the integrity scan handler.
func NewStockIntegrityJob(verifier ConservationVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockIntegrityJob {
	return &StockIntegrityJob{Verifier: verifier, Logger: logger, Metrics: metrics}
}

// Handle executes the scan. Drift is not retried: the data will not heal itself.
func (j *StockIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Verifier == nil {
		return errors.New("stock integrity: handler not configured")
	}
	tracker := j.Metrics.Track(TaskStockIntegrityScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	found, err := j.Verifier.VerifyConservation(ctx)
	if err != nil {
		logger.Error("stock integrity scan failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetDiscrepancies(len(found))
	for _, d := range found {
		logger.Warn("stock balance drift",
			slog.Int64("part_id", d.PartID),
			slog.String("balance", d.Balance.String()),
			slog.String("ledger_sum", d.LedgerSum.String()),
		)
	}
	if len(found) > 0 {
		return fmt.Errorf("%w: %d parts: %w", ErrStockDrift, len(found), asynq.SkipRetry)
	}
	logger.Info("stock integrity scan clean")
	return nil
}

func (j *StockIntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskStockIntegrityScan))
	}
	return j.Logger.With(slog.String("job", TaskStockIntegrityScan))
}
