package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/platform/httpx"
)

// Handler exposes catalog endpoints.
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

// MountParts registers /parts routes.
func (h *Handler) MountParts(r chi.Router) {
	r.Get("/", h.listParts)
	r.Post("/", h.createPart)
	r.Get("/{id}", h.getPart)
	r.Delete("/{id}", h.deletePart)
}

// MountParties registers customer or supplier routes.
func (h *Handler) MountParties(kind PartyKind) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.listParties(kind))
		r.Post("/", h.createParty(kind))
		r.Get("/{id}", h.getParty(kind))
		r.Delete("/{id}", h.deleteParty(kind))
	}
}

type partRequest struct {
	PartNumber string           `json:"partNumber" validate:"required,max=64"`
	Name       string           `json:"name" validate:"required,max=200"`
	HSNCode    string           `json:"hsnCode" validate:"max=16"`
	GSTPercent *decimal.Decimal `json:"gstPercent" validate:"required"`
	Unit       string           `json:"unit" validate:"required,oneof=PCS SET LTR KG MTR BOX"`
	MRP        *decimal.Decimal `json:"mrp" validate:"required"`
	RTL        *decimal.Decimal `json:"rtl" validate:"required"`
	Barcode    *string          `json:"barcode"`
}

type partyRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"required,max=32"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
	GSTIN   string `json:"gstin" validate:"omitempty,len=15,alphanum"`
	State   string `json:"state"`
}

func listFilter(r *http.Request) (ListFilter, error) {
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		return ListFilter{}, err
	}
	offset, err := httpx.QueryInt(r, "offset", 0)
	if err != nil {
		return ListFilter{}, err
	}
	return ListFilter{Search: r.URL.Query().Get("q"), Limit: limit, Offset: offset}, nil
}

func (h *Handler) listParts(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	parts, err := h.service.ListParts(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if parts == nil {
		parts = []Part{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": parts})
}

func (h *Handler) createPart(w http.ResponseWriter, r *http.Request) {
	var req partRequest
	if err := httpx.DecodeAndValidate(w, r, h.validate, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	part, err := h.service.CreatePart(r.Context(), Part{
		PartNumber: req.PartNumber,
		Name:       req.Name,
		HSNCode:    req.HSNCode,
		GSTPercent: *req.GSTPercent,
		Unit:       Unit(req.Unit),
		MRP:        *req.MRP,
		RTL:        *req.RTL,
		Barcode:    req.Barcode,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, part)
}

func (h *Handler) getPart(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	part, err := h.service.GetPart(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) deletePart(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeletePart(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listParties(kind PartyKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := listFilter(r)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		parties, err := h.service.ListParties(r.Context(), kind, filter)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		if parties == nil {
			parties = []Party{}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": parties})
	}
}

func (h *Handler) createParty(kind PartyKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req partyRequest
		if err := httpx.DecodeAndValidate(w, r, h.validate, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		party, err := h.service.CreateParty(r.Context(), Party{
			Kind:    kind,
			Name:    req.Name,
			Phone:   req.Phone,
			Email:   req.Email,
			Address: req.Address,
			GSTIN:   req.GSTIN,
			State:   req.State,
		})
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, party)
	}
}

func (h *Handler) getParty(kind PartyKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.URLInt64(r, "id")
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		party, err := h.service.GetParty(r.Context(), kind, id)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, party)
	}
}

func (h *Handler) deleteParty(kind PartyKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.URLInt64(r, "id")
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		if err := h.service.DeleteParty(r.Context(), kind, id); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
