package expenses

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

// Handler exposes expense endpoints.
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

// MountRoutes registers expense routes. Every primary role can read and
// submit; review and deletion stay behind their own tokens.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin, rbac.RoleManager, rbac.RoleViewer, rbac.RoleDriver))
		r.With(h.guard.RequirePermissions(rbac.PermExpenseRead)).Get("/", h.list)
		r.With(h.guard.RequirePermissions(rbac.PermExpenseRead)).Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin, rbac.RoleManager, rbac.RoleDriver))
		r.With(h.guard.RequirePermissions(rbac.PermExpenseCreate), h.audit.Observe("EXPENSE_CREATE", "expenses")).Post("/", h.create)
		r.With(h.guard.RequirePermissions(rbac.PermExpenseUpdate), h.audit.Observe("EXPENSE_UPDATE", "expenses")).Put("/{id}", h.update)
		r.With(h.guard.RequirePermissions(rbac.PermExpenseDelete), h.audit.Observe("EXPENSE_DELETE", "expenses")).Delete("/{id}", h.remove)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin, rbac.RoleManager))
		r.With(h.guard.RequirePermissions(rbac.PermExpenseApprove), h.audit.Observe("EXPENSE_APPROVE", "expenses")).Post("/{id}/approve", h.approve)
		r.With(h.guard.RequirePermissions(rbac.PermExpenseApprove), h.audit.Observe("EXPENSE_REJECT", "expenses")).Post("/{id}/reject", h.reject)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	filters := Filters{Status: Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("companyId"); raw != "" {
		filters.CompanyID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := r.URL.Query().Get("userId"); raw != "" {
		filters.UserID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := r.URL.Query().Get("vehicleId"); raw != "" {
		filters.VehicleID, _ = strconv.ParseInt(raw, 10, 64)
	}
	result, err := h.service.List(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if result == nil {
		result = []Expense{}
	}
	httpx.OK(w, http.StatusOK, result, "expenses retrieved")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid expense id")
		return
	}
	expense, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, expense, "expense retrieved")
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
	expense, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), strconv.FormatInt(expense.ID, 10))
	httpx.OK(w, http.StatusCreated, expense, "expense recorded")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid expense id")
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
	expense, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, expense, "expense updated")
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, true, "expense approved")
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, false, "expense rejected")
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, approve bool, message string) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid expense id")
		return
	}
	expense, err := h.service.Review(r.Context(), actor, id, approve)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, expense, message)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid expense id")
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, nil, "expense deleted")
}
