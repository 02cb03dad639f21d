package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tradewind-ops/tradewind/internal/platform/httpx"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// Handler serves the read-only catalog endpoints.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

// NewHandler creates a master data handler.
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/suppliers", h.handleListSuppliers)
	r.Get("/suppliers/{id}", h.handleGetSupplier)
	r.Get("/warehouses", h.handleListWarehouses)
	r.Get("/skus", h.handleListSKUs)
}

func (h *Handler) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	f := filtersFromQuery(r)
	items, total, err := h.svc.ListSuppliers(r.Context(), f)
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(f.Page, f.Limit, total),
	})
}

func (h *Handler) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
		return
	}
	supplier, err := h.svc.GetSupplier(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) handleListWarehouses(w http.ResponseWriter, r *http.Request) {
	f := filtersFromQuery(r)
	items, total, err := h.svc.ListWarehouses(r.Context(), f)
	if err != nil {
		h.logger.Error("list warehouses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(f.Page, f.Limit, total),
	})
}

func (h *Handler) handleListSKUs(w http.ResponseWriter, r *http.Request) {
	f := filtersFromQuery(r)
	items, total, err := h.svc.ListSKUs(r.Context(), f)
	if err != nil {
		h.logger.Error("list skus", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(f.Page, f.Limit, total),
	})
}

func filtersFromQuery(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, limit := shared.PageFromQuery(q)
	f := ListFilters{
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	}
	if raw := q.Get("active"); raw != "" {
		active := raw == "true" || raw == "1"
		f.IsActive = &active
	}
	return f
}
