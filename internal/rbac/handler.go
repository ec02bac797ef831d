package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/shared"
)

// Observer wraps a route with audit recording for a declared action and
// module. Implemented by the audit recorder.
type Observer interface {
	Observe(action, module string) func(http.Handler) http.Handler
}

// Handler exposes the role and assignment management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Middleware
	audit     Observer
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware, audit Observer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		audit:     audit,
		validator: validator.New(),
	}
}

// MountRoutes registers the /roles surface. Identity verification runs in
// the outer router; role management is restricted to admins here.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(RoleSuperAdmin, RoleAdmin))

		r.Get("/", h.list)
		r.Get("/permissions", h.listPermissions)
		r.Get("/user/{userId}", h.listUserAssignments)
		r.Get("/{id}", h.get)

		r.With(h.audit.Observe("ROLE_CREATE", "roles")).Post("/", h.create)
		r.With(h.audit.Observe("ROLE_UPDATE", "roles")).Put("/{id}", h.update)
		r.With(h.audit.Observe("ROLE_DELETE", "roles")).Delete("/{id}", h.delete)

		r.With(h.audit.Observe("ROLE_ASSIGN", "roles")).Post("/assign", h.assign)
		r.With(h.audit.Observe("ROLE_ASSIGN_MULTIPLE", "roles")).Post("/assign-multiple", h.assignMany)
		r.With(h.audit.Observe("ROLE_REVOKE", "roles")).Delete("/assign/{userId}/{roleId}", h.revoke)
	})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
	}
	return actor, ok
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var companyFilter int64
	if raw := r.URL.Query().Get("companyId"); raw != "" {
		companyFilter, _ = strconv.ParseInt(raw, 10, 64)
	}
	roles, err := h.service.ListRoles(r.Context(), actor, companyFilter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.OK(w, http.StatusOK, roles, "roles retrieved")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid role id")
		return
	}
	role, err := h.service.GetRole(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, role, "role retrieved")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var input RoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), strconv.FormatInt(role.ID, 10))
	shared.SetAuditDetail(r.Context(), "created role "+role.Name)
	httpx.OK(w, http.StatusCreated, role, "role created")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid role id")
		return
	}
	var input RoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), strconv.FormatInt(role.ID, 10))
	httpx.OK(w, http.StatusOK, role, "role updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid role id")
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := h.service.DeleteRole(r.Context(), actor, id, force); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, nil, "role deleted")
}

type assignRequest struct {
	UserID    int64  `json:"userId" validate:"required,gt=0"`
	RoleID    int64  `json:"roleId" validate:"required,gt=0"`
	ExpiresAt string `json:"expiresAt" validate:"omitempty"`
}

type assignManyRequest struct {
	UserID    int64   `json:"userId" validate:"required,gt=0"`
	RoleIDs   []int64 `json:"roleIds" validate:"required,dive,gt=0"`
	ExpiresAt string  `json:"expiresAt" validate:"omitempty"`
}

func parseExpiry(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "expiresAt must be RFC 3339")
		return
	}
	assignment, err := h.service.Assign(r.Context(), actor, req.UserID, req.RoleID, expiresAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), strconv.FormatInt(assignment.ID, 10))
	httpx.OK(w, http.StatusCreated, assignment, "role assigned")
}

func (h *Handler) assignMany(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req assignManyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "expiresAt must be RFC 3339")
		return
	}
	assignments, err := h.service.AssignMany(r.Context(), actor, req.UserID, req.RoleIDs, expiresAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if assignments == nil {
		assignments = []RoleAssignment{}
	}
	shared.SetAuditReference(r.Context(), strconv.FormatInt(req.UserID, 10))
	httpx.OK(w, http.StatusOK, assignments, "assignments replaced")
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleId"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid role id")
		return
	}
	if err := h.service.Revoke(r.Context(), actor, userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "userId"))
	httpx.OK(w, http.StatusOK, nil, "assignment revoked")
}

func (h *Handler) listUserAssignments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var (
		assignments []RoleAssignment
	)
	if r.URL.Query().Get("history") == "true" {
		assignments, err = h.service.ListUserAssignmentHistory(r.Context(), actor, userID)
	} else {
		assignments, err = h.service.ListUserAssignments(r.Context(), actor, userID)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if assignments == nil {
		assignments = []RoleAssignment{}
	}
	httpx.OK(w, http.StatusOK, assignments, "assignments retrieved")
}
