// Package events publishes invoice lifecycle notifications.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice lifecycle event types.
const (
	InvoiceCreated   = "invoice.created"
	InvoiceUpdated   = "invoice.updated"
	InvoiceSubmitted = "invoice.submitted"
	InvoicePaid      = "invoice.paid"
	InvoiceCancelled = "invoice.cancelled"
	InvoiceDeleted   = "invoice.deleted"
	PaymentRecorded  = "invoice.payment_recorded"
)

// Event is the payload written for every committed invoice change.
type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	InvoiceID   int64           `json:"invoiceId"`
	Number      string          `json:"number"`
	InvoiceType string          `json:"invoiceType"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Stamp fills the id and timestamp when missing.
func (e *Event) Stamp(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now.UTC()
	}
}

// Publisher delivers events after the owning transaction committed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
