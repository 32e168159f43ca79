package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/catalog"
	"github.com/partsdesk/partsdesk/internal/events"
	"github.com/partsdesk/partsdesk/internal/inventory"
	"github.com/partsdesk/partsdesk/internal/shared"
	"github.com/partsdesk/partsdesk/internal/tax"
)

// Operation names used for metrics, audit and events.
const (
	OpCreate        = "create"
	OpUpdate        = "update"
	OpPatch         = "patch"
	OpSubmit        = "submit"
	OpMarkPaid      = "mark_paid"
	OpCancel        = "cancel"
	OpDelete        = "delete"
	OpRecordPayment = "record_payment"
)

// errUnchanged aborts a mutation that would not change the stored invoice.
var errUnchanged = errors.New("invoice: no changes")

// RepositoryPort describes the reads and the transaction boundary used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	LookupIdempotencyKey(ctx context.Context, key string) (int64, bool, error)
}

// TxRepository exposes the writes performed inside one transaction. Ledger
// returns the inventory writer bound to the same transaction.
type TxRepository interface {
	NextSequence(ctx context.Context, t Type, year int) (int, error)
	NumberTaken(ctx context.Context, t Type, number string) (bool, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	DeleteItems(ctx context.Context, invoiceID int64) error
	GetForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice, expectedVersion int64) (Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	CountPayments(ctx context.Context, invoiceID int64) (int, error)
	ClaimIdempotencyKey(ctx context.Context, key string, invoiceID int64) error
	Ledger() inventory.TxRepository
}

// Catalog resolves the parts and parties an invoice refers to.
type Catalog interface {
	GetPart(ctx context.Context, id int64) (catalog.Part, error)
	GetCustomer(ctx context.Context, id int64) (catalog.Party, error)
	GetSupplier(ctx context.Context, id int64) (catalog.Party, error)
}

// AuditPort records lifecycle actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops read caches after a commit.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Metrics receives operation outcomes.
type Metrics interface {
	ObserveInvoiceOp(op, outcome string)
	ObserveEvent(eventType string, err error)
}

// Config holds the policy switches.
type Config struct {
	// AllowEditSubmitted lets SUBMITTED invoices be edited like drafts.
	AllowEditSubmitted bool
}

// Options groups the optional collaborators of Service.
type Options struct {
	Config       Config
	Publisher    events.Publisher
	Audit        AuditPort
	Metrics      Metrics
	Invalidators []Invalidator
	Logger       *slog.Logger
}

// Service orchestrates invoice lifecycle flows. Every mutation runs in one
// transaction together with its ledger entries.
type Service struct {
	repo         RepositoryPort
	catalog      Catalog
	ledger       *inventory.Ledger
	cfg          Config
	publisher    events.Publisher
	audit        AuditPort
	metrics      Metrics
	invalidators []Invalidator
	logger       *slog.Logger
	now          func() time.Time
}

// NewService constructs the invoice service. A nil ledger allows negative stock.
func NewService(repo RepositoryPort, parts Catalog, ledger *inventory.Ledger, opts Options) *Service {
	if ledger == nil {
		ledger = inventory.NewLedger(inventory.LedgerConfig{AllowNegativeStock: true})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		catalog:      parts,
		ledger:       ledger,
		cfg:          opts.Config,
		publisher:    opts.Publisher,
		audit:        opts.Audit,
		metrics:      opts.Metrics,
		invalidators: opts.Invalidators,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Create validates the input, computes totals and persists the invoice with one
// ledger entry per item. The invoice starts as DRAFT.
func (s *Service) Create(ctx context.Context, in Input) (Invoice, error) {
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if replay, ok, err := s.replay(ctx, key); err != nil || ok {
			return replay, err
		}
	}
	draft, err := s.build(ctx, in)
	if err != nil {
		s.observe(OpCreate, err)
		return Invoice{}, err
	}

	var created Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv := draft
		if inv.Number == "" {
			number, err := nextFreeNumber(ctx, tx, inv.Type, inv.Date.Year())
			if err != nil {
				return err
			}
			inv.Number = number
		}
		saved, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		saved.Items, err = s.writeItems(ctx, tx, saved, draft.Items)
		if err != nil {
			return err
		}
		if key != "" {
			if err := tx.ClaimIdempotencyKey(ctx, key, saved.ID); err != nil {
				return err
			}
		}
		created = saved
		return nil
	})
	if err != nil {
		if key != "" && errors.Is(err, shared.ErrIdempotencyConflict) {
			if replay, ok, lookupErr := s.replay(ctx, key); lookupErr == nil && ok {
				return replay, nil
			}
			err = shared.NewConflictError("idempotency key", key, "request is already being processed")
		}
		return Invoice{}, s.fail(OpCreate, err)
	}
	s.committed(ctx, OpCreate, "", created)
	return created, nil
}

// Update replaces the items and rates of an editable invoice. Totals are
// recomputed; existing ledger entries are reversed and fresh ones recorded.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, shared.NewValidationError("id", "must be a positive integer")
	}
	draft, err := s.build(ctx, in)
	if err != nil {
		s.observe(OpUpdate, err)
		return Invoice{}, err
	}
	return s.mutate(ctx, id, in.Version, OpUpdate, func(ctx context.Context, tx TxRepository, inv *Invoice) error {
		if !Editable(inv.Status, s.cfg.AllowEditSubmitted) {
			return shared.NewInvalidStateError("update invoice", string(inv.Status))
		}
		if draft.Type != inv.Type {
			return shared.NewValidationError("type", fmt.Sprintf("cannot change from %s", inv.Type))
		}
		if draft.Total.LessThan(inv.PaidAmount) {
			return shared.NewValidationError("items", fmt.Sprintf("total %s is below the paid amount %s", draft.Total.StringFixed(2), inv.PaidAmount.StringFixed(2)))
		}
		previous := inv.PartIDs()
		if _, err := s.ledger.ReverseInvoice(ctx, tx.Ledger(), inv.ID, fmt.Sprintf("invoice %s updated", inv.Number)); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, inv.ID); err != nil {
			return err
		}
		if !in.Date.IsZero() {
			inv.Date = draft.Date
		}
		inv.SupplierID = draft.SupplierID
		inv.CustomerID = draft.CustomerID
		inv.DiscountPercent = draft.DiscountPercent
		inv.CGSTPercent = draft.CGSTPercent
		inv.SGSTPercent = draft.SGSTPercent
		inv.Totals = draft.Totals
		applyMeta(inv, draft)
		items, err := s.writeItems(ctx, tx, *inv, draft.Items)
		if err != nil {
			return err
		}
		inv.Items = items
		return s.requireStock(ctx, tx, append(previous, inv.PartIDs()...))
	})
}

// Patch edits metadata and optionally applies a status transition.
func (s *Service) Patch(ctx context.Context, id int64, p Patch) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, shared.NewValidationError("id", "must be a positive integer")
	}
	if p.Status != nil && !p.Status.Valid() {
		return Invoice{}, shared.NewValidationError("status", "must be one of DRAFT SUBMITTED PAID CANCELLED")
	}
	if !p.touchesMeta() && p.Status == nil {
		return Invoice{}, shared.NewValidationError("body", "no changes requested")
	}
	return s.mutate(ctx, id, p.Version, OpPatch, func(ctx context.Context, tx TxRepository, inv *Invoice) error {
		changed := false
		if p.touchesMeta() {
			if inv.Status.Terminal() {
				return shared.NewInvalidStateError("edit metadata", string(inv.Status))
			}
			changed = setField(&inv.DeliveryNote, p.DeliveryNote)
			changed = setField(&inv.DispatchedThrough, p.DispatchedThrough) || changed
			changed = setField(&inv.Destination, p.Destination) || changed
			changed = setField(&inv.Notes, p.Notes) || changed
		}
		if p.Status == nil || *p.Status == inv.Status {
			if !changed {
				return errUnchanged
			}
			return nil
		}
		switch *p.Status {
		case StatusSubmitted:
			return s.applySubmit(inv)
		case StatusPaid:
			return s.applyMarkPaid(ctx, tx, inv)
		case StatusCancelled:
			return s.applyCancel(ctx, tx, inv)
		default:
			return shared.NewInvalidStateError("move to "+string(*p.Status), string(inv.Status))
		}
	})
}

func setField(dst *string, v *string) bool {
	if v == nil || *dst == *v {
		return false
	}
	*dst = *v
	return true
}

// Submit moves a DRAFT invoice to SUBMITTED.
func (s *Service) Submit(ctx context.Context, id int64, version *int64) (Invoice, error) {
	return s.mutate(ctx, id, version, OpSubmit, func(_ context.Context, _ TxRepository, inv *Invoice) error {
		return s.applySubmit(inv)
	})
}

// MarkPaid settles the outstanding balance of a SUBMITTED invoice and moves it to PAID.
func (s *Service) MarkPaid(ctx context.Context, id int64, version *int64) (Invoice, error) {
	return s.mutate(ctx, id, version, OpMarkPaid, func(ctx context.Context, tx TxRepository, inv *Invoice) error {
		return s.applyMarkPaid(ctx, tx, inv)
	})
}

// Cancel moves a DRAFT or SUBMITTED invoice to CANCELLED and restores stock
// with compensating ledger entries.
func (s *Service) Cancel(ctx context.Context, id int64, version *int64) (Invoice, error) {
	return s.mutate(ctx, id, version, OpCancel, func(ctx context.Context, tx TxRepository, inv *Invoice) error {
		return s.applyCancel(ctx, tx, inv)
	})
}

// Delete removes a DRAFT invoice without payments. Its ledger entries are
// reversed first so stock history stays intact.
func (s *Service) Delete(ctx context.Context, id int64, version *int64) error {
	if id <= 0 {
		return shared.NewValidationError("id", "must be a positive integer")
	}
	var deleted Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := s.lock(ctx, tx, id, version)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return shared.NewConflictError("invoice", id, fmt.Sprintf("only DRAFT invoices can be deleted, status is %s", inv.Status))
		}
		if err := s.requireNoPayments(ctx, tx, inv.ID); err != nil {
			return err
		}
		reversed, err := s.ledger.ReverseInvoice(ctx, tx.Ledger(), inv.ID, fmt.Sprintf("invoice %s deleted", inv.Number))
		if err != nil {
			return err
		}
		if err := s.requireStock(ctx, tx, movementParts(reversed)); err != nil {
			return err
		}
		if err := tx.DeleteInvoice(ctx, inv.ID); err != nil {
			return err
		}
		deleted = inv
		return nil
	})
	if err != nil {
		return s.fail(OpDelete, err)
	}
	s.committed(ctx, OpDelete, deleted.Status, deleted)
	return nil
}

// ============================================================================
// PAYMENTS
// ============================================================================

// RecordPayment registers a payment against a SUBMITTED invoice. When the paid
// sum reaches the total the invoice becomes PAID in the same transaction.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (Payment, Invoice, error) {
	if !in.Amount.IsPositive() {
		return Payment{}, Invoice{}, shared.NewValidationError("amount", "must be greater than 0")
	}
	if err := checkScale("amount", in.Amount, moneyScale); err != nil {
		return Payment{}, Invoice{}, err
	}
	var payment Payment
	inv, err := s.mutate(ctx, in.InvoiceID, in.Version, OpRecordPayment, func(ctx context.Context, tx TxRepository, inv *Invoice) error {
		if inv.Status != StatusSubmitted {
			return shared.NewInvalidStateError("record payment", string(inv.Status))
		}
		outstanding := inv.Outstanding()
		if in.Amount.GreaterThan(outstanding) {
			return shared.NewValidationError("amount", fmt.Sprintf("exceeds outstanding balance %s", outstanding.StringFixed(2)))
		}
		paidAt := in.PaidAt
		if paidAt.IsZero() {
			paidAt = s.now()
		}
		saved, err := tx.InsertPayment(ctx, Payment{
			InvoiceID: inv.ID,
			Amount:    in.Amount,
			Method:    strings.TrimSpace(in.Method),
			Reference: strings.TrimSpace(in.Reference),
			PaidAt:    paidAt,
		})
		if err != nil {
			return err
		}
		payment = saved
		inv.PaidAmount = inv.PaidAmount.Add(in.Amount)
		if inv.PaidAmount.Equal(inv.Total) {
			inv.Status = StatusPaid
		}
		return nil
	})
	if err != nil {
		return Payment{}, Invoice{}, err
	}
	return payment, inv, nil
}

// ListPayments returns the payments of an invoice, oldest first.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, invoiceID)
	if err != nil {
		return nil, shared.AsPersistence("list payments", err)
	}
	return payments, nil
}

// ============================================================================
// READS
// ============================================================================

// Get loads one invoice with its items.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, shared.NewValidationError("id", "must be a positive integer")
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, shared.AsPersistence("get invoice", err)
	}
	return inv, nil
}

// List returns invoice headers matching filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, shared.NewValidationError("type", "must be PURCHASE or SALE")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.NewValidationError("status", "must be one of DRAFT SUBMITTED PAID CANCELLED")
	}
	page := shared.NewPage(filter.Limit, filter.Offset)
	filter.Limit, filter.Offset = page.Limit, page.Offset
	invoices, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.AsPersistence("list invoices", err)
	}
	return invoices, nil
}

// ============================================================================
// INTERNALS
// ============================================================================

func (s *Service) replay(ctx context.Context, key string) (Invoice, bool, error) {
	id, ok, err := s.repo.LookupIdempotencyKey(ctx, key)
	if err != nil {
		return Invoice{}, false, shared.AsPersistence("lookup idempotency key", err)
	}
	if !ok {
		return Invoice{}, false, nil
	}
	inv, err := s.Get(ctx, id)
	if err != nil {
		return Invoice{}, false, err
	}
	s.logger.Info("invoice create replayed", slog.String("idempotency_key", key), slog.Int64("invoice_id", id))
	return inv, true, nil
}

// build validates the input and resolves catalog data. Nothing is written.
func (s *Service) build(ctx context.Context, in Input) (Invoice, error) {
	if !in.Type.Valid() {
		return Invoice{}, shared.NewValidationError("type", "must be PURCHASE or SALE")
	}
	if err := checkCounterparty(in); err != nil {
		return Invoice{}, err
	}
	number := strings.TrimSpace(in.Number)
	if number != "" && !validNumber(number) {
		return Invoice{}, shared.NewValidationError("number", "must be 1-40 letters, digits, '-', '_' or '/'")
	}
	lines := make([]tax.Line, len(in.Items))
	for i, it := range in.Items {
		if it.PartID <= 0 {
			return Invoice{}, shared.NewValidationError(fmt.Sprintf("items[%d].partId", i), "is required")
		}
		if err := checkScale(fmt.Sprintf("items[%d].quantity", i), it.Quantity, quantityScale); err != nil {
			return Invoice{}, err
		}
		if err := checkScale(fmt.Sprintf("items[%d].rate", i), it.Rate, moneyScale); err != nil {
			return Invoice{}, err
		}
		if it.Amount != nil {
			if err := checkScale(fmt.Sprintf("items[%d].amount", i), *it.Amount, moneyScale); err != nil {
				return Invoice{}, err
			}
		}
		lines[i] = tax.Line{Quantity: it.Quantity, Rate: it.Rate}
	}
	for _, f := range []struct {
		field string
		value decimal.Decimal
	}{
		{"discountPercent", in.DiscountPercent},
		{"cgstPercent", in.CGSTPercent},
		{"sgstPercent", in.SGSTPercent},
	} {
		if err := checkScale(f.field, f.value, percentScale); err != nil {
			return Invoice{}, err
		}
	}
	if in.ExpectedTotal != nil {
		if err := checkScale("expectedTotal", *in.ExpectedTotal, moneyScale); err != nil {
			return Invoice{}, err
		}
	}
	totals, err := tax.Compute(lines, tax.Rates{
		DiscountPercent: in.DiscountPercent,
		CGSTPercent:     in.CGSTPercent,
		SGSTPercent:     in.SGSTPercent,
	})
	if err != nil {
		return Invoice{}, err
	}
	if in.ExpectedTotal != nil && !tax.WithinTolerance(*in.ExpectedTotal, totals.Total) {
		return Invoice{}, shared.NewValidationError("expectedTotal", fmt.Sprintf("does not match computed total %s", totals.Total.StringFixed(2)))
	}

	items := make([]Item, len(in.Items))
	for i, it := range in.Items {
		amount := tax.LineAmount(it.Quantity, it.Rate)
		if it.Amount != nil && !tax.WithinTolerance(*it.Amount, amount) {
			return Invoice{}, shared.NewValidationError(fmt.Sprintf("items[%d].amount", i), fmt.Sprintf("does not match quantity x rate %s", amount.StringFixed(2)))
		}
		part, err := s.catalog.GetPart(ctx, it.PartID)
		if err != nil {
			return Invoice{}, err
		}
		items[i] = Item{
			LineNo:   i + 1,
			PartID:   part.ID,
			HSNCode:  part.HSNCode,
			Unit:     string(part.Unit),
			Quantity: it.Quantity,
			Rate:     it.Rate,
			Amount:   amount,
		}
	}
	if in.Type == TypeSale {
		if _, err := s.catalog.GetCustomer(ctx, *in.CustomerID); err != nil {
			return Invoice{}, err
		}
	} else {
		if _, err := s.catalog.GetSupplier(ctx, *in.SupplierID); err != nil {
			return Invoice{}, err
		}
	}

	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	return Invoice{
		Number:            number,
		Type:              in.Type,
		Date:              date,
		Status:            StatusDraft,
		SupplierID:        in.SupplierID,
		CustomerID:        in.CustomerID,
		DiscountPercent:   in.DiscountPercent,
		CGSTPercent:       in.CGSTPercent,
		SGSTPercent:       in.SGSTPercent,
		Totals:            totals,
		PaidAmount:        decimal.Zero,
		DeliveryNote:      in.Meta.DeliveryNote,
		DispatchedThrough: in.Meta.DispatchedThrough,
		Destination:       in.Meta.Destination,
		Notes:             in.Meta.Notes,
		Items:             items,
	}, nil
}

func checkCounterparty(in Input) error {
	switch in.Type {
	case TypeSale:
		if in.SupplierID != nil {
			return shared.NewValidationError("supplierId", "must be empty for a SALE invoice")
		}
		if in.CustomerID == nil || *in.CustomerID <= 0 {
			return shared.NewValidationError("customerId", "is required for a SALE invoice")
		}
	case TypePurchase:
		if in.CustomerID != nil {
			return shared.NewValidationError("customerId", "must be empty for a PURCHASE invoice")
		}
		if in.SupplierID == nil || *in.SupplierID <= 0 {
			return shared.NewValidationError("supplierId", "is required for a PURCHASE invoice")
		}
	}
	return nil
}

func applyMeta(inv *Invoice, from Invoice) {
	inv.DeliveryNote = from.DeliveryNote
	inv.DispatchedThrough = from.DispatchedThrough
	inv.Destination = from.Destination
	inv.Notes = from.Notes
}

// writeItems inserts items for inv and records one ledger entry per item.
func (s *Service) writeItems(ctx context.Context, tx TxRepository, inv Invoice, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for i, it := range items {
		it.InvoiceID = inv.ID
		saved, err := tx.InsertItem(ctx, it)
		if err != nil {
			return nil, err
		}
		_, err = s.ledger.Record(ctx, tx.Ledger(), inventory.MovementInput{
			PartID:        saved.PartID,
			InvoiceID:     inv.ID,
			InvoiceItemID: saved.ID,
			Direction:     inv.Type.Direction(),
			Quantity:      saved.Quantity,
			Note:          inv.Number,
		})
		if err != nil {
			return nil, stockError(err, fmt.Sprintf("items[%d].quantity", i))
		}
		out = append(out, saved)
	}
	return out, nil
}

func (s *Service) requireStock(ctx context.Context, tx TxRepository, partIDs []int64) error {
	return stockError(s.ledger.RequireNonNegative(ctx, tx.Ledger(), partIDs), "items")
}

func stockError(err error, field string) error {
	var insufficient *inventory.InsufficientStockError
	if errors.As(err, &insufficient) {
		return shared.NewValidationError(field, fmt.Sprintf("insufficient stock for part %d: %s available", insufficient.PartID, insufficient.Available.String()))
	}
	return err
}

func movementParts(ms []inventory.Movement) []int64 {
	out := make([]int64, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.PartID)
	}
	return out
}

func (s *Service) requireNoPayments(ctx context.Context, tx TxRepository, invoiceID int64) error {
	n, err := tx.CountPayments(ctx, invoiceID)
	if err != nil {
		return err
	}
	if n > 0 {
		return shared.NewConflictError("invoice", invoiceID, fmt.Sprintf("%d payment(s) recorded", n))
	}
	return nil
}

func (s *Service) applySubmit(inv *Invoice) error {
	if !CanTransition(inv.Status, StatusSubmitted) {
		return shared.NewInvalidStateError("submit invoice", string(inv.Status))
	}
	inv.Status = StatusSubmitted
	return nil
}

func (s *Service) applyMarkPaid(ctx context.Context, tx TxRepository, inv *Invoice) error {
	if !CanTransition(inv.Status, StatusPaid) {
		return shared.NewInvalidStateError("mark invoice paid", string(inv.Status))
	}
	if outstanding := inv.Outstanding(); outstanding.IsPositive() {
		if _, err := tx.InsertPayment(ctx, Payment{
			InvoiceID: inv.ID,
			Amount:    outstanding,
			Method:    "settlement",
			PaidAt:    s.now(),
		}); err != nil {
			return err
		}
		inv.PaidAmount = inv.Total
	}
	inv.Status = StatusPaid
	return nil
}

func (s *Service) applyCancel(ctx context.Context, tx TxRepository, inv *Invoice) error {
	if !CanTransition(inv.Status, StatusCancelled) {
		return shared.NewInvalidStateError("cancel invoice", string(inv.Status))
	}
	if err := s.requireNoPayments(ctx, tx, inv.ID); err != nil {
		return err
	}
	reversed, err := s.ledger.ReverseInvoice(ctx, tx.Ledger(), inv.ID, fmt.Sprintf("invoice %s cancelled", inv.Number))
	if err != nil {
		return err
	}
	if err := s.requireStock(ctx, tx, movementParts(reversed)); err != nil {
		return err
	}
	inv.Status = StatusCancelled
	return nil
}

// lock loads the invoice for update and checks the caller's version token.
func (s *Service) lock(ctx context.Context, tx TxRepository, id int64, version *int64) (Invoice, error) {
	inv, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if version != nil && *version != inv.Version {
		return Invoice{}, shared.NewConflictError("invoice", id, fmt.Sprintf("version %d is stale, current version is %d", *version, inv.Version))
	}
	return inv, nil
}

// mutate runs fn on the locked invoice and saves the header with a version bump.
func (s *Service) mutate(ctx context.Context, id int64, version *int64, op string, fn func(context.Context, TxRepository, *Invoice) error) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, shared.NewValidationError("id", "must be a positive integer")
	}
	var (
		out    Invoice
		before Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := s.lock(ctx, tx, id, version)
		if err != nil {
			return err
		}
		before = inv.Status
		current := inv.Version
		if err := fn(ctx, tx, &inv); err != nil {
			if errors.Is(err, errUnchanged) {
				out = inv
			}
			return err
		}
		saved, err := tx.UpdateInvoice(ctx, inv, current)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return out, nil
	}
	if err != nil {
		return Invoice{}, s.fail(op, err)
	}
	s.committed(ctx, op, before, out)
	return out, nil
}

func (s *Service) fail(op string, err error) error {
	err = shared.AsPersistence(op+" invoice", err)
	s.observe(op, err)
	if errors.Is(err, shared.ErrPersistence) {
		s.logger.Error("invoice operation failed", slog.String("op", op), slog.Any("error", err))
	}
	return err
}

func (s *Service) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrPersistence):
		outcome = "error"
	default:
		outcome = "rejected"
	}
	s.metrics.ObserveInvoiceOp(op, outcome)
}

// committed runs the side effects that must not affect the outcome of a commit.
func (s *Service) committed(ctx context.Context, op string, before Status, inv Invoice) {
	s.observe(op, nil)
	for _, c := range s.invalidators {
		c.Invalidate(ctx)
	}
	s.logger.Info("invoice committed",
		slog.String("op", op),
		slog.Int64("invoice_id", inv.ID),
		slog.String("number", inv.Number),
		slog.String("status", string(inv.Status)),
	)
	s.publish(ctx, eventType(op, before, inv.Status), inv)
	s.recordAudit(ctx, "INVOICE_"+strings.ToUpper(op), inv)
}

func eventType(op string, before, after Status) string {
	if op != OpCreate && op != OpDelete && before != after {
		switch after {
		case StatusSubmitted:
			return events.InvoiceSubmitted
		case StatusPaid:
			return events.InvoicePaid
		case StatusCancelled:
			return events.InvoiceCancelled
		}
	}
	switch op {
	case OpCreate:
		return events.InvoiceCreated
	case OpDelete:
		return events.InvoiceDeleted
	case OpRecordPayment:
		return events.PaymentRecorded
	}
	return events.InvoiceUpdated
}

func (s *Service) publish(ctx context.Context, eventType string, inv Invoice) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.Event{
		Type:        eventType,
		InvoiceID:   inv.ID,
		Number:      inv.Number,
		InvoiceType: string(inv.Type),
		Status:      string(inv.Status),
		Total:       inv.Total,
	})
	if s.metrics != nil {
		s.metrics.ObserveEvent(eventType, err)
	}
	if err != nil {
		s.logger.Warn("invoice event not published", slog.String("event_type", eventType), slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, inv Invoice) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", inv.ID),
		Meta: map[string]any{
			"number": inv.Number,
			"type":   string(inv.Type),
			"status": string(inv.Status),
			"total":  inv.Total.StringFixed(2),
		},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
