package inventory

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/partsdesk/partsdesk/internal/platform/httpx"
)

// StockReader is the read surface the handler needs.
type StockReader interface {
	StockFor(ctx context.Context, partID int64) (StockLevel, error)
	StockForAll(ctx context.Context, filter StockFilter) ([]StockLevel, error)
	Movements(ctx context.Context, partID int64, limit int) ([]Movement, error)
}

// Handler wires HTTP endpoints for stock queries.
type Handler struct {
	logger  *slog.Logger
	service StockReader
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service StockReader) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listStock)
	r.Get("/{partID}", h.getStock)
	r.Get("/{partID}/movements", h.listMovements)
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	onlyPurchased, err := httpx.QueryBool(r, "onlyPurchased")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	levels, err := h.service.StockForAll(r.Context(), StockFilter{OnlyPurchased: onlyPurchased})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if levels == nil {
		levels = []StockLevel{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": levels})
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	partID, err := httpx.URLInt64(r, "partID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	level, err := h.service.StockFor(r.Context(), partID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	partID, err := httpx.URLInt64(r, "partID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 200)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entries, err := h.service.Movements(r.Context(), partID, limit)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
}
