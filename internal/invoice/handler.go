package invoice

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/platform/httpx"
	"github.com/partsdesk/partsdesk/internal/shared"
)

// IdempotencyHeader carries the client retry key on POST /invoices.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers /invoices routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Patch("/", h.patch)
		r.Delete("/", h.delete)
		r.Post("/submit", h.submit)
		r.Post("/pay", h.markPaid)
		r.Post("/cancel", h.cancel)
		r.Get("/payments", h.listPayments)
		r.Post("/payments", h.recordPayment)
	})
}

type itemRequest struct {
	PartID   int64            `json:"partId" validate:"required,gt=0"`
	Quantity *decimal.Decimal `json:"quantity" validate:"required"`
	Rate     *decimal.Decimal `json:"rate" validate:"required"`
	Amount   *decimal.Decimal `json:"amount"`
}

type invoiceRequest struct {
	Number            string           `json:"number" validate:"omitempty,max=40"`
	Type              string           `json:"type" validate:"required,oneof=PURCHASE SALE"`
	Date              *time.Time       `json:"date"`
	SupplierID        *int64           `json:"supplierId" validate:"omitempty,gt=0"`
	CustomerID        *int64           `json:"customerId" validate:"omitempty,gt=0"`
	DiscountPercent   *decimal.Decimal `json:"discountPercent"`
	CGSTPercent       *decimal.Decimal `json:"cgstPercent"`
	SGSTPercent       *decimal.Decimal `json:"sgstPercent"`
	Items             []itemRequest    `json:"items" validate:"required,min=1,dive"`
	ExpectedTotal     *decimal.Decimal `json:"expectedTotal"`
	DeliveryNote      string           `json:"deliveryNote" validate:"max=200"`
	DispatchedThrough string           `json:"dispatchedThrough" validate:"max=200"`
	Destination       string           `json:"destination" validate:"max=200"`
	Notes             string           `json:"notes" validate:"max=2000"`
	Version           *int64           `json:"version"`
}

func (req invoiceRequest) input() Input {
	in := Input{
		Number:          req.Number,
		Type:            Type(req.Type),
		SupplierID:      req.SupplierID,
		CustomerID:      req.CustomerID,
		DiscountPercent: decimalOrZero(req.DiscountPercent),
		CGSTPercent:     decimalOrZero(req.CGSTPercent),
		SGSTPercent:     decimalOrZero(req.SGSTPercent),
		ExpectedTotal:   req.ExpectedTotal,
		Meta: Meta{
			DeliveryNote:      req.DeliveryNote,
			DispatchedThrough: req.DispatchedThrough,
			Destination:       req.Destination,
			Notes:             req.Notes,
		},
		Version: req.Version,
	}
	if req.Date != nil {
		in.Date = req.Date.UTC()
	}
	in.Items = make([]ItemInput, len(req.Items))
	for i, it := range req.Items {
		in.Items[i] = ItemInput{PartID: it.PartID, Quantity: *it.Quantity, Rate: *it.Rate, Amount: it.Amount}
	}
	return in
}

type patchRequest struct {
	Version           *int64  `json:"version"`
	DeliveryNote      *string `json:"deliveryNote" validate:"omitempty,max=200"`
	DispatchedThrough *string `json:"dispatchedThrough" validate:"omitempty,max=200"`
	Destination       *string `json:"destination" validate:"omitempty,max=200"`
	Notes             *string `json:"notes" validate:"omitempty,max=2000"`
	Status            *string `json:"status" validate:"omitempty,oneof=DRAFT SUBMITTED PAID CANCELLED"`
}

type paymentRequest struct {
	Amount    *decimal.Decimal `json:"amount" validate:"required"`
	Method    string           `json:"method" validate:"max=32"`
	Reference string           `json:"reference" validate:"max=64"`
	PaidAt    *time.Time       `json:"paidAt"`
	Version   *int64           `json:"version"`
}

type versionRequest struct {
	Version *int64 `json:"version"`
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// versionFrom prefers the body token and falls back to If-Match.
func versionFrom(r *http.Request, body *int64) (*int64, error) {
	if body != nil {
		return body, nil
	}
	raw := strings.Trim(strings.TrimPrefix(r.Header.Get("If-Match"), "W/"), `"`)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, shared.NewValidationError("If-Match", "must be a positive version number")
	}
	return &v, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Type:   Type(r.URL.Query().Get("type")),
		Status: Status(r.URL.Query().Get("status")),
	}
	var err error
	if filter.SupplierID, err = httpx.QueryInt64(r, "supplierId"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filter.CustomerID, err = httpx.QueryInt64(r, "customerId"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filter.Limit, err = httpx.QueryInt(r, "limit", 0); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filter.Offset, err = httpx.QueryInt(r, "offset", 0); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	invoices, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": invoices})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeAndValidate(w, r, h.validate, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in := req.input()
	in.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	inv, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("ETag", etag(inv.Version))
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("ETag", etag(inv.Version))
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeAndValidate(w, r, h.validate, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in := req.input()
	if in.Version, err = versionFrom(r, req.Version); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.Update(r.Context(), id, in)
	h.respondInvoice(w, inv, err)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req patchRequest
	if err := httpx.DecodeAndValidate(w, r, h.validate, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p := Patch{
		DeliveryNote:      req.DeliveryNote,
		DispatchedThrough: req.DispatchedThrough,
		Destination:       req.Destination,
		Notes:             req.Notes,
	}
	if req.Status != nil {
		st := Status(*req.Status)
		p.Status = &st
	}
	if p.Version, err = versionFrom(r, req.Version); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.Patch(r.Context(), id, p)
	h.respondInvoice(w, inv, err)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	version, err := versionFrom(r, nil)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, version); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkPaid)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, *int64) (Invoice, error)) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req versionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	version, err := versionFrom(r, req.Version)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := fn(r.Context(), id, version)
	h.respondInvoice(w, inv, err)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": payments})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req paymentRequest
	if err := httpx.DecodeAndValidate(w, r, h.validate, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in := PaymentInput{InvoiceID: id, Amount: *req.Amount, Method: req.Method, Reference: req.Reference}
	if req.PaidAt != nil {
		in.PaidAt = req.PaidAt.UTC()
	}
	if in.Version, err = versionFrom(r, req.Version); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	payment, inv, err := h.service.RecordPayment(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("ETag", etag(inv.Version))
	httpx.JSON(w, http.StatusCreated, map[string]any{"payment": payment, "invoice": inv})
}

func (h *Handler) respondInvoice(w http.ResponseWriter, inv Invoice, err error) {
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("ETag", etag(inv.Version))
	httpx.JSON(w, http.StatusOK, inv)
}

func etag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}
