package rbac

import (
	"net/http"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
)

// listPermissions serves GET /roles/permissions: the grouped token
// enumeration, narrowed to what the caller's privilege level may grant.
func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	httpx.OK(w, http.StatusOK, PermissionCatalog(actor), "permissions retrieved")
}
