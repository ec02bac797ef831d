package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
)

// Handler exposes the audit timeline to privileged callers.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers the audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin))
		r.Use(h.guard.RequirePermissions(rbac.PermAuditView))
		r.Get("/", h.timeline)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	filters := TimelineFilters{
		Module: q.Get("module"),
		Action: q.Get("action"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("pageSize"))
	if raw := q.Get("actorId"); raw != "" {
		filters.ActorID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.To = t
		}
	}

	// Tenant admins only ever see their own company's trail.
	if actor.IsSuperAdmin() {
		if raw := q.Get("companyId"); raw != "" {
			filters.CompanyID, _ = strconv.ParseInt(raw, 10, 64)
		}
	} else {
		filters.CompanyID = actor.CompanyID
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if result.Rows == nil {
		result.Rows = []Entry{}
	}
	httpx.OK(w, http.StatusOK, map[string]any{
		"entries": result.Rows,
		"paging":  result.Paging,
	}, "audit trail retrieved")
}
