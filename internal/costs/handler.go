package costs

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tradewind-ops/tradewind/internal/platform/httpx"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// Handler serves the cost ledger endpoints. It mounts inside the /orders
// subtree so the ledger lives next to the order it describes.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// MountRoutes registers the cost routes on the orders subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/costs", h.handleLedger)
	r.Put("/{id}/costs", h.handleUpsertEntry)
	r.Delete("/{id}/costs/{category}/{costName}", h.handleDeleteEntry)
	r.Put("/{id}/adjustment", h.handleUpsertAdjustment)
	r.Delete("/{id}/adjustment", h.handleDeleteAdjustment)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	ledger, err := h.svc.Ledger(r.Context(), id)
	if err != nil {
		h.logError(r, "compute ledger", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) handleUpsertEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input EntryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	entry, err := h.svc.UpsertManualEntry(r.Context(), id, input)
	if err != nil {
		h.logError(r, "upsert cost entry", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	category := Category(chi.URLParam(r, "category"))
	costName := chi.URLParam(r, "costName")
	if err := h.svc.DeleteManualEntry(r.Context(), id, category, costName); err != nil {
		h.logError(r, "delete cost entry", err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpsertAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	adjustment, err := h.svc.UpsertAdjustment(r.Context(), id, input)
	if err != nil {
		h.logError(r, "upsert supplier adjustment", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adjustment)
}

func (h *Handler) handleDeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteAdjustment(r.Context(), id); err != nil {
		h.logError(r, "delete supplier adjustment", err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	switch err.(type) {
	case *shared.ValidationError, *shared.NotFoundError, *shared.ConflictError, *shared.StateError:
		return
	}
	h.logger.Error(msg, slog.Any("error", err), slog.String("path", r.URL.Path))
}
