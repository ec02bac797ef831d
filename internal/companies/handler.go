package companies

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
	"github.com/fleetledger/fleetledger/internal/shared"
)

// Handler exposes company endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Middleware
	audit     rbac.Observer
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware, audit rbac.Observer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		audit:     audit,
		validator: validator.New(),
	}
}

// MountRoutes registers company routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin))
		r.Get("/", h.list)
		r.With(h.guard.RequireTenant("id")).Get("/{id}", h.get)
		r.With(h.guard.RequireTenant("id"), h.guard.RequirePermissions(rbac.PermCompanyManage), h.audit.Observe("COMPANY_UPDATE", "companies")).Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(rbac.RoleSuperAdmin))
		r.With(h.audit.Observe("COMPANY_BOOTSTRAP", "companies")).Post("/", h.bootstrap)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	result, err := h.service.List(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if result == nil {
		result = []Company{}
	}
	httpx.OK(w, http.StatusOK, result, "companies retrieved")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid company id")
		return
	}
	company, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, company, "company retrieved")
}

func (h *Handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	var input BootstrapInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	company, adminID, err := h.service.Bootstrap(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), strconv.FormatInt(company.ID, 10))
	shared.SetAuditDetail(r.Context(), "created company "+company.Name)
	httpx.OK(w, http.StatusCreated, map[string]any{
		"company":     company,
		"adminUserId": adminID,
	}, "company created")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var company Company
	if err := httpx.DecodeJSON(r, &company); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	company.ID = id
	updated, err := h.service.Update(r.Context(), actor, company)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, updated, "company updated")
}
