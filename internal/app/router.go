package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/tradewind-ops/tradewind/internal/audit/http"
	"github.com/tradewind-ops/tradewind/internal/costs"
	"github.com/tradewind-ops/tradewind/internal/masterdata"
	"github.com/tradewind-ops/tradewind/internal/observability"
	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/jobs"
	"github.com/tradewind-ops/tradewind/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	OrdersHandler     *orders.Handler
	CostsHandler      *costs.Handler
	MasterDataHandler *masterdata.Handler
	AuditHandler      *audithttp.Handler
	ReportHandler     *report.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Tradewind defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Cost and audit-history routes hang off the same /orders/{id} subtree,
	// so those handlers mount into one route group.
	r.Route("/orders", func(r chi.Router) {
		params.OrdersHandler.MountRoutes(r)
		if params.CostsHandler != nil {
			params.CostsHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountOrderRoutes(r)
		}
	})
	if params.MasterDataHandler != nil {
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
