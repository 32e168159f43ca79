package report

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/partsdesk/partsdesk/internal/platform/httpx"
	"github.com/partsdesk/partsdesk/internal/shared"
)

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /reports routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/profit-loss", h.profitAndLoss)
	r.Get("/weekly-sales", h.weeklySales)
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, shared.NewValidationError(name, "must be a date formatted YYYY-MM-DD")
	}
	return t, nil
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if from.IsZero() && to.IsZero() {
		now := time.Now().UTC()
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = now
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), from, to)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) weeklySales(w http.ResponseWriter, r *http.Request) {
	weeks, err := httpx.QueryInt(r, "weeks", defaultWeeks)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	asOf, err := queryDate(r, "asOf")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	buckets, err := h.service.WeeklySales(r.Context(), weeks, asOf)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": buckets})
}
