package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/progami/wms-ecomos-sub005/pkg/httputil"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// APIPrefix is the mount point of the versioned API
const APIPrefix = "/api/v1/inventory"

// Routes bundles the handlers and middleware settings of the router
type Routes struct {
	Logger         *logger.Logger
	Tokens         httputil.TokenValidator
	AllowedOrigins []string
	Timeout        time.Duration

	Health   *HealthHandler
	Catalog  *CatalogHandler
	Ledger   *LedgerHandler
	Costs    *CostHandler
	Invoices *InvoiceHandler
	Imports  *ImportHandler
}

// NewRouter builds the HTTP router. /health is public; everything under
// APIPrefix needs a bearer token.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(rt.Logger))
	r.Use(httputil.Recoverer(rt.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if rt.Timeout > 0 {
		r.Use(middleware.Timeout(rt.Timeout))
	}

	if rt.Health != nil {
		r.Get("/health", rt.Health.Health)
	}

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(httputil.Authenticate(rt.Tokens))

		if rt.Catalog != nil {
			rt.Catalog.Routes(r)
		}
		if rt.Ledger != nil {
			rt.Ledger.Routes(r)
		}
		if rt.Costs != nil {
			rt.Costs.Routes(r)
		}
		if rt.Invoices != nil {
			rt.Invoices.Routes(r)
		}
		if rt.Imports != nil {
			rt.Imports.Routes(r)
		}
	})

	return r
}
