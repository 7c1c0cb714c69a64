package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/asiria/asiriapos/internal/catalog"
	"github.com/asiria/asiriapos/internal/observability"
	"github.com/asiria/asiriapos/internal/purchasing"
	"github.com/asiria/asiriapos/internal/registry"
	"github.com/asiria/asiriapos/internal/sales"
	"github.com/asiria/asiriapos/internal/shared"
	"github.com/asiria/asiriapos/internal/stock"
	"github.com/asiria/asiriapos/internal/tenants"
	"github.com/asiria/asiriapos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	StockHandler      *stock.Handler
	CatalogHandler    *catalog.Handler
	PurchasingHandler *purchasing.Handler
	SalesHandler      *sales.Handler
	RegistryHandler   *registry.Handler
	TenantsHandler    *tenants.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	Idempotency       *shared.IdempotencyStore
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		// Registration and login come before a tenant id exists.
		api.Route("/tenants", func(t chi.Router) {
			params.TenantsHandler.MountPublicRoutes(t)
			t.Group(func(me chi.Router) {
				me.Use(TenantMiddleware(params.Logger))
				params.TenantsHandler.MountRoutes(me)
			})
		})

		api.Group(func(authed chi.Router) {
			authed.Use(TenantMiddleware(params.Logger))
			if params.Idempotency != nil {
				authed.Use(IdempotencyMiddleware(params.Idempotency, params.Logger))
			}
			authed.Route("/stock", func(s chi.Router) {
				params.StockHandler.MountRoutes(s)
			})
			authed.Route("/catalog", func(c chi.Router) {
				params.CatalogHandler.MountRoutes(c)
			})
			authed.Route("/purchasing", func(p chi.Router) {
				params.PurchasingHandler.MountRoutes(p)
			})
			authed.Group(func(s chi.Router) {
				params.SalesHandler.MountRoutes(s)
			})
			authed.Route("/registry", func(g chi.Router) {
				params.RegistryHandler.MountRoutes(g)
			})
		})

		if params.JobHandler != nil {
			api.Route("/jobs", func(j chi.Router) {
				params.JobHandler.MountRoutes(j)
			})
		}
	})

	return r
}
