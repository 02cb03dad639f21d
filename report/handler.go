package report

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tradewind-ops/tradewind/internal/masterdata"
	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/internal/platform/httpx"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// Handler manages report endpoints. The preview endpoint renders an artifact
// synchronously without touching the document store, for checking layout
// before queueing the real thing.
type Handler struct {
	client   *Client
	renderer *Renderer
	orders   *orders.Service
	catalog  masterdata.Service
	logger   *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, renderer *Renderer, ordersSvc *orders.Service, catalog masterdata.Service, logger *slog.Logger) *Handler {
	return &Handler{client: client, renderer: renderer, orders: ordersSvc, catalog: catalog, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/orders/{orderID}/{kind}", h.preview)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	kind := orders.OutputKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		httpx.RespondError(w, shared.NewValidationError(map[string]string{"kind": "unknown output kind"}))
		return
	}
	ctx := r.Context()
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplierName := ""
	if sup, err := h.catalog.GetSupplier(ctx, o.SupplierID); err == nil {
		supplierName = sup.Name
	} else {
		var notFound *shared.NotFoundError
		if !errors.As(err, &notFound) {
			h.logger.Error("resolve supplier for preview", slog.Int64("order_id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}
	html, err := h.renderer.BuildHTML(kind, o, supplierName)
	if err != nil {
		h.logger.Error("build preview html", slog.Int64("order_id", id), slog.String("kind", string(kind)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.client.RenderHTML(ctx, html)
	if err != nil {
		h.logger.Error("render preview pdf", slog.Int64("order_id", id), slog.String("kind", string(kind)), slog.Any("error", err))
		httpx.RespondError(w, &shared.ExternalDependencyError{Collaborator: "renderer", Err: err})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s-%s.pdf", o.OrderNumber, kind))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
