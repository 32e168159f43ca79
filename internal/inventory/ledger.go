package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/shared"
)

// TxRepository exposes the ledger writes performed inside a transaction.
type TxRepository interface {
	HasEntry(ctx context.Context, invoiceItemID int64) (bool, error)
	FindActiveEntry(ctx context.Context, invoiceItemID int64) (Movement, error)
	ActiveEntriesForInvoice(ctx context.Context, invoiceID int64) ([]Movement, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	GetBalanceForUpdate(ctx context.Context, partID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
}

// MovementObserver is notified about every appended entry.
type MovementObserver interface {
	ObserveMovement(direction string, reversal bool)
}

// LedgerConfig groups optional settings.
type LedgerConfig struct {
	AllowNegativeStock bool
	Observer           MovementObserver
}

// Ledger appends entries and keeps the running balance in step. It holds no state
// of its own so one instance serves every transaction.
type Ledger struct {
	allowNeg bool
	observer MovementObserver
	now      func() time.Time
}

// NewLedger builds Ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	return &Ledger{allowNeg: cfg.AllowNegativeStock, observer: cfg.Observer, now: func() time.Time { return time.Now().UTC() }}
}

// AllowsNegativeStock reports the configured policy.
func (l *Ledger) AllowsNegativeStock() bool {
	return l.allowNeg
}

// Record appends the original entry for an invoice item.
func (l *Ledger) Record(ctx context.Context, tx TxRepository, in MovementInput) (Movement, error) {
	if err := in.Validate(); err != nil {
		return Movement{}, err
	}
	exists, err := tx.HasEntry(ctx, in.InvoiceItemID)
	if err != nil {
		return Movement{}, err
	}
	if exists {
		return Movement{}, &DuplicateLedgerEntryError{InvoiceItemID: in.InvoiceItemID}
	}
	m := Movement{
		PartID:        in.PartID,
		InvoiceID:     in.InvoiceID,
		InvoiceItemID: in.InvoiceItemID,
		Direction:     in.Direction,
		Quantity:      in.Quantity,
		Note:          in.Note,
	}
	return l.apply(ctx, tx, m, !l.allowNeg)
}

// Reverse appends the compensating entry for the active entry of invoiceItemID.
// The original row is never touched.
func (l *Ledger) Reverse(ctx context.Context, tx TxRepository, invoiceItemID int64, note string) (Movement, error) {
	original, err := tx.FindActiveEntry(ctx, invoiceItemID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return Movement{}, shared.NewNotFoundError("ledger entry for invoice item", invoiceItemID)
		}
		return Movement{}, err
	}
	return l.apply(ctx, tx, compensation(original, note), false)
}

// ReverseInvoice reverses every active entry that belongs to invoiceID.
func (l *Ledger) ReverseInvoice(ctx context.Context, tx TxRepository, invoiceID int64, note string) ([]Movement, error) {
	entries, err := tx.ActiveEntriesForInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	out := make([]Movement, 0, len(entries))
	for _, original := range entries {
		m, err := l.apply(ctx, tx, compensation(original, note), false)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// RequireNonNegative fails when negative stock is disabled and any of partIDs is below zero.
// Callers run it after a batch of reversals and replacements so intermediate dips do not count.
func (l *Ledger) RequireNonNegative(ctx context.Context, tx TxRepository, partIDs []int64) error {
	if l.allowNeg {
		return nil
	}
	ids := uniqueSorted(partIDs)
	for _, id := range ids {
		balance, err := tx.GetBalanceForUpdate(ctx, id)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if balance.Quantity.IsNegative() {
			return &InsufficientStockError{PartID: id, Available: balance.Quantity, Requested: decimal.Zero}
		}
	}
	return nil
}

func (l *Ledger) apply(ctx context.Context, tx TxRepository, m Movement, enforce bool) (Movement, error) {
	balance, err := tx.GetBalanceForUpdate(ctx, m.PartID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Movement{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{PartID: m.PartID, Quantity: decimal.Zero}
	}
	newQty := balance.Quantity.Add(m.Signed())
	if enforce && m.Direction == DirectionOut && newQty.IsNegative() {
		return Movement{}, &InsufficientStockError{PartID: m.PartID, Available: balance.Quantity, Requested: m.Quantity}
	}
	m.PostedAt = l.now()
	saved, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	balance.Quantity = newQty
	balance.UpdatedAt = m.PostedAt
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return Movement{}, err
	}
	if l.observer != nil {
		l.observer.ObserveMovement(string(saved.Direction), saved.IsReversal())
	}
	return saved, nil
}

func compensation(original Movement, note string) Movement {
	id := original.ID
	return Movement{
		PartID:        original.PartID,
		InvoiceID:     original.InvoiceID,
		InvoiceItemID: original.InvoiceItemID,
		Direction:     original.Direction.Opposite(),
		Quantity:      original.Quantity,
		ReversesID:    &id,
		Note:          note,
	}
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
