package users

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

// Handler exposes user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin, rbac.RoleManager))
		r.Use(h.guard.RequireTenant("companyId"))

		r.With(h.guard.RequirePermissions(rbac.PermUserRead)).Get("/", h.list)
		r.With(h.guard.RequirePermissions(rbac.PermUserRead)).Get("/{id}", h.get)

		r.With(h.guard.RequirePermissions(rbac.PermUserCreate), h.audit.Observe("USER_CREATE", "users")).Post("/", h.create)
		r.With(h.guard.RequirePermissions(rbac.PermUserUpdate), h.audit.Observe("USER_UPDATE", "users")).Put("/{id}", h.update)
		r.With(h.guard.RequirePermissions(rbac.PermUserDeactivate), h.audit.Observe("USER_DEACTIVATE", "users")).Post("/{id}/deactivate", h.deactivate)
		r.With(h.guard.RequirePermissions(rbac.PermUserDeactivate), h.audit.Observe("USER_REACTIVATE", "users")).Post("/{id}/reactivate", h.reactivate)
		r.With(h.guard.RequirePermissions(rbac.PermUserDeactivate), h.audit.Observe("USER_PURGE", "users")).Delete("/{id}", h.purge)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	var companyFilter int64
	if raw := r.URL.Query().Get("companyId"); raw != "" {
		companyFilter, _ = strconv.ParseInt(raw, 10, 64)
	}
	result, err := h.service.List(r.Context(), actor, companyFilter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if result == nil {
		result = []User{}
	}
	httpx.OK(w, http.StatusOK, result, "users retrieved")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, user, "user retrieved")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	var companyID int64
	if raw := r.URL.Query().Get("companyId"); raw != "" {
		companyID, _ = strconv.ParseInt(raw, 10, 64)
	}
	user, err := h.service.Create(r.Context(), actor, input, companyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), strconv.FormatInt(user.ID, 10))
	httpx.OK(w, http.StatusCreated, user, "user created")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, user, "user updated")
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.service.Deactivate(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, nil, "user deactivated")
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.service.Reactivate(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, nil, "user reactivated")
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.service.Purge(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, nil, "user purged")
}
