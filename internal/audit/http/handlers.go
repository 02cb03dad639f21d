package audithttp

import (
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tradewind-ops/tradewind/internal/audit"
	"github.com/tradewind-ops/tradewind/internal/platform/httpx"
)

// Handler exposes the cross-entity audit timeline.
type Handler struct {
	svc    *audit.Service
	logger *slog.Logger
}

// NewHandler builds the audit HTTP handler.
func NewHandler(svc *audit.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Timeline(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows":    result.Rows,
		"page":    result.Page,
		"hasNext": result.HasNext,
	})
}

func (h *Handler) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	rows, err := h.svc.ListForOrder(r.Context(), id)
	if err != nil {
		h.logger.Error("audit order history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	f := filtersFromQuery(r)
	f.PageSize = 50
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"created_at", "action", "entity_type", "entity_id", "changed_by", "old_value", "new_value"})
	for {
		result, err := h.svc.Timeline(r.Context(), f)
		if err != nil {
			h.logger.Error("audit export", slog.Any("error", err))
			return
		}
		for _, e := range result.Rows {
			oldJSON, _ := json.Marshal(e.OldValue)
			newJSON, _ := json.Marshal(e.NewValue)
			_ = cw.Write([]string{
				e.CreatedAt.Format(time.RFC3339),
				e.Action,
				e.EntityType,
				strconv.FormatInt(e.EntityID, 10),
				e.ChangedBy,
				string(oldJSON),
				string(newJSON),
			})
		}
		if !result.HasNext {
			break
		}
		f.Page = result.Page + 1
	}
	cw.Flush()
}

func filtersFromQuery(r *http.Request) audit.TimelineFilters {
	q := r.URL.Query()
	f := audit.TimelineFilters{
		Action:    q.Get("action"),
		ChangedBy: q.Get("changedBy"),
	}
	if from, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		f.From = from
	}
	if to, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		f.To = to.AddDate(0, 0, 1)
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PageSize, _ = strconv.Atoi(q.Get("pageSize"))
	return f
}
