package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/shared"
)

// Direction of a stock movement.
type Direction string

const (
	// DirectionIn adds stock (purchases, reversed sales).
	DirectionIn Direction = "IN"
	// DirectionOut removes stock (sales, reversed purchases).
	DirectionOut Direction = "OUT"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Opposite returns the compensating direction.
func (d Direction) Opposite() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// Movement is one immutable ledger entry.
type Movement struct {
	ID            int64           `json:"id"`
	PartID        int64           `json:"partId"`
	InvoiceID     int64           `json:"invoiceId"`
	InvoiceItemID int64           `json:"invoiceItemId"`
	Direction     Direction       `json:"direction"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReversesID    *int64          `json:"reversesId,omitempty"`
	Note          string          `json:"note,omitempty"`
	PostedAt      time.Time       `json:"postedAt"`
}

// IsReversal reports whether m compensates an earlier entry.
func (m Movement) IsReversal() bool {
	return m.ReversesID != nil
}

// Signed returns the quantity with IN positive and OUT negative.
func (m Movement) Signed() decimal.Decimal {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// MovementInput describes a new ledger entry caused by an invoice line.
type MovementInput struct {
	PartID        int64
	InvoiceID     int64
	InvoiceItemID int64
	Direction     Direction
	Quantity      decimal.Decimal
	Note          string
}

// Validate checks the input before anything is written.
func (in MovementInput) Validate() error {
	switch {
	case in.PartID <= 0:
		return shared.NewValidationError("partId", "is required")
	case in.InvoiceItemID <= 0:
		return shared.NewValidationError("invoiceItemId", "is required")
	case !in.Direction.Valid():
		return shared.NewValidationError("direction", "must be IN or OUT")
	case !in.Quantity.IsPositive():
		return shared.NewValidationError("quantity", "must be greater than 0")
	}
	return nil
}

// Balance is the running stock total maintained alongside the ledger.
type Balance struct {
	PartID    int64
	Quantity  decimal.Decimal
	UpdatedAt time.Time
}

// StockLevel is the read model returned by the stock query service.
type StockLevel struct {
	PartID     int64           `json:"partId"`
	PartNumber string          `json:"partNumber"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// StockFilter narrows StockForAll.
type StockFilter struct {
	// OnlyPurchased keeps parts with at least one original IN entry.
	OnlyPurchased bool
}

// Discrepancy is a part whose running balance disagrees with its ledger sum.
type Discrepancy struct {
	PartID    int64           `json:"partId"`
	Balance   decimal.Decimal `json:"balance"`
	LedgerSum decimal.Decimal `json:"ledgerSum"`
}

var (
	// ErrDuplicateEntry marks a second original entry for the same invoice item.
	ErrDuplicateEntry = errors.New("inventory: duplicate ledger entry")
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrBalanceNotFound indicates missing balance row.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
	// ErrEntryNotFound indicates no active entry exists for an invoice item.
	ErrEntryNotFound = errors.New("inventory: ledger entry not found")
)

// DuplicateLedgerEntryError is returned when an invoice item already has its entry.
type DuplicateLedgerEntryError struct {
	InvoiceItemID int64
}

func (e *DuplicateLedgerEntryError) Error() string {
	return fmt.Sprintf("inventory: ledger entry already exists for invoice item %d", e.InvoiceItemID)
}

func (e *DuplicateLedgerEntryError) Is(target error) bool {
	return target == ErrDuplicateEntry || target == shared.ErrConflict
}

// InsufficientStockError is returned when negative stock is disabled.
type InsufficientStockError struct {
	PartID    int64
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: part %d has %s in stock, %s requested", e.PartID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrNegativeStock || target == shared.ErrValidation
}
