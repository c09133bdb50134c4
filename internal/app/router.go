package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fiscal"
	"github.com/odyssey-erp/odyssey-invoicing/internal/masterdata"
	"github.com/odyssey-erp/odyssey-invoicing/internal/observability"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/invoices"
	"github.com/odyssey-erp/odyssey-invoicing/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Metrics           *observability.Metrics
	FiscalHandler     *fiscal.Handler
	InvoiceHandler    *invoices.Handler
	MasterDataHandler *masterdata.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.FiscalHandler != nil {
		r.Route("/fiscal-years", params.FiscalHandler.MountRoutes)
	}
	if params.InvoiceHandler != nil {
		r.Group(params.InvoiceHandler.MountRoutes)
	}
	if params.MasterDataHandler != nil {
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
