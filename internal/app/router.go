package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fleetledger/fleetledger/internal/audit"
	"github.com/fleetledger/fleetledger/internal/auth"
	"github.com/fleetledger/fleetledger/internal/companies"
	"github.com/fleetledger/fleetledger/internal/expenses"
	"github.com/fleetledger/fleetledger/internal/rbac"
	"github.com/fleetledger/fleetledger/internal/users"
	"github.com/fleetledger/fleetledger/internal/vehicles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthMiddleware   auth.Middleware
	AuthHandler      *auth.Handler
	RolesHandler     *rbac.Handler
	CompaniesHandler *companies.Handler
	UsersHandler     *users.Handler
	VehiclesHandler  *vehicles.Handler
	ExpensesHandler  *expenses.Handler
	AuditHandler     *audit.Handler
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Verify)

			r.Route("/roles", params.RolesHandler.MountRoutes)
			r.Route("/companies", params.CompaniesHandler.MountRoutes)
			r.Route("/users", params.UsersHandler.MountRoutes)
			r.Route("/vehicles", params.VehiclesHandler.MountRoutes)
			r.Route("/expenses", params.ExpensesHandler.MountRoutes)
			r.Route("/audit", params.AuditHandler.MountRoutes)
		})
	})

	return r
}
