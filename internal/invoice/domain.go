// Package invoice owns purchase and sales invoices, their state machine and payments.
package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/inventory"
	"github.com/partsdesk/partsdesk/internal/tax"
)

// Type distinguishes purchases from sales.
type Type string

const (
	TypePurchase Type = "PURCHASE"
	TypeSale     Type = "SALE"
)

// Valid reports whether t is a known invoice type.
func (t Type) Valid() bool {
	return t == TypePurchase || t == TypeSale
}

// Direction is the ledger direction caused by items of this type.
func (t Type) Direction() inventory.Direction {
	if t == TypePurchase {
		return inventory.DirectionIn
	}
	return inventory.DirectionOut
}

// Prefix is the numbering prefix for the type.
func (t Type) Prefix() string {
	if t == TypePurchase {
		return "PUR"
	}
	return "SAL"
}

// Status enumerates invoice lifecycle states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Invoice is the aggregate root: header, totals and ordered items.
type Invoice struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	Type            Type            `json:"type"`
	Date            time.Time       `json:"date"`
	Status          Status          `json:"status"`
	SupplierID      *int64          `json:"supplierId,omitempty"`
	CustomerID      *int64          `json:"customerId,omitempty"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	CGSTPercent     decimal.Decimal `json:"cgstPercent"`
	SGSTPercent     decimal.Decimal `json:"sgstPercent"`
	tax.Totals
	PaidAmount        decimal.Decimal `json:"paidAmount"`
	DeliveryNote      string          `json:"deliveryNote"`
	DispatchedThrough string          `json:"dispatchedThrough"`
	Destination       string          `json:"destination"`
	Notes             string          `json:"notes"`
	Version           int64           `json:"version"`
	Items             []Item          `json:"items"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Outstanding is the unpaid part of the total.
func (inv Invoice) Outstanding() decimal.Decimal {
	return inv.Total.Sub(inv.PaidAmount)
}

// PartIDs lists the parts referenced by the items.
func (inv Invoice) PartIDs() []int64 {
	out := make([]int64, 0, len(inv.Items))
	for _, it := range inv.Items {
		out = append(out, it.PartID)
	}
	return out
}

// CounterpartyID returns the supplier for purchases and the customer for sales.
func (inv Invoice) CounterpartyID() int64 {
	if inv.Type == TypePurchase && inv.SupplierID != nil {
		return *inv.SupplierID
	}
	if inv.CustomerID != nil {
		return *inv.CustomerID
	}
	return 0
}

// Item is one invoice line. HSN code and unit are copied from the part.
type Item struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoiceId"`
	LineNo    int             `json:"lineNo"`
	PartID    int64           `json:"partId"`
	HSNCode   string          `json:"hsnCode"`
	Unit      string          `json:"unit"`
	Quantity  decimal.Decimal `json:"quantity"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"amount"`
}

// Payment settles part or all of an invoice.
type Payment struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoiceId"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	PaidAt    time.Time       `json:"paidAt"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ItemInput is a requested line. Amount is optional and only checked.
type ItemInput struct {
	PartID   int64
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	Amount   *decimal.Decimal
}

// Input carries the financial content of an invoice for create and update.
type Input struct {
	Number          string
	Type            Type
	Date            time.Time
	SupplierID      *int64
	CustomerID      *int64
	DiscountPercent decimal.Decimal
	CGSTPercent     decimal.Decimal
	SGSTPercent     decimal.Decimal
	Items           []ItemInput
	ExpectedTotal   *decimal.Decimal
	Meta            Meta

	// IdempotencyKey makes a retried create return the first result.
	IdempotencyKey string
	// Version, when set, must match the stored version on update.
	Version *int64
}

// Meta holds the non-financial header fields.
type Meta struct {
	DeliveryNote      string
	DispatchedThrough string
	Destination       string
	Notes             string
}

// Patch changes metadata and optionally moves the status. Nil fields are left alone.
type Patch struct {
	Version           *int64
	DeliveryNote      *string
	DispatchedThrough *string
	Destination       *string
	Notes             *string
	Status            *Status
}

func (p Patch) touchesMeta() bool {
	return p.DeliveryNote != nil || p.DispatchedThrough != nil || p.Destination != nil || p.Notes != nil
}

// PaymentInput registers money received or paid against an invoice.
type PaymentInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
	Method    string
	Reference string
	PaidAt    time.Time
	Version   *int64
}

// ListFilter narrows List.
type ListFilter struct {
	Type       Type
	Status     Status
	SupplierID *int64
	CustomerID *int64
	Limit      int
	Offset     int
}
