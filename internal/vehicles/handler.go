package vehicles

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

// Handler exposes fleet endpoints.
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

// MountRoutes registers vehicle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin, rbac.RoleManager, rbac.RoleDriver))
		r.With(h.guard.RequirePermissions(rbac.PermVehicleRead)).Get("/", h.list)
		r.With(h.guard.RequirePermissions(rbac.PermVehicleRead)).Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin, rbac.RoleManager))
		r.With(h.guard.RequirePermissions(rbac.PermVehicleCreate), h.audit.Observe("VEHICLE_CREATE", "vehicles")).Post("/", h.create)
		r.With(h.guard.RequirePermissions(rbac.PermVehicleUpdate), h.audit.Observe("VEHICLE_UPDATE", "vehicles")).Put("/{id}", h.update)
		r.With(h.guard.RequirePermissions(rbac.PermVehicleAssign), h.audit.Observe("VEHICLE_ASSIGN_DRIVER", "vehicles")).Post("/{id}/driver", h.assignDriver)
		r.With(h.guard.RequirePermissions(rbac.PermVehicleDelete), h.audit.Observe("VEHICLE_DELETE", "vehicles")).Delete("/{id}", h.remove)
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
		result = []Vehicle{}
	}
	httpx.OK(w, http.StatusOK, result, "vehicles retrieved")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}
	vehicle, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, vehicle, "vehicle retrieved")
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
	vehicle, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), strconv.FormatInt(vehicle.ID, 10))
	httpx.OK(w, http.StatusCreated, vehicle, "vehicle created")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid vehicle id")
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
	vehicle, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, vehicle, "vehicle updated")
}

func (h *Handler) assignDriver(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}
	var body struct {
		DriverID int64 `json:"driverId"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	vehicle, err := h.service.AssignDriver(r.Context(), actor, id, body.DriverID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, vehicle, "driver assigned")
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.SetAuditReference(r.Context(), chi.URLParam(r, "id"))
	httpx.OK(w, http.StatusOK, nil, "vehicle deleted")
}
