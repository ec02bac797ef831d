package rbac

import (
	"fmt"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
)

// Domain errors wrap the boundary sentinels so handlers map them to
// status codes with errors.Is alone.
var (
	ErrRoleNotFound       = fmt.Errorf("%w: role", httpx.ErrNotFound)
	ErrAssignmentNotFound = fmt.Errorf("%w: assignment", httpx.ErrNotFound)
	ErrDuplicateRole      = fmt.Errorf("%w: role name already exists for this company", httpx.ErrConflict)
	ErrDuplicateGrant     = fmt.Errorf("%w: user already holds an active assignment for this role", httpx.ErrConflict)
	ErrSystemRole         = fmt.Errorf("%w: system roles cannot be modified or deleted", httpx.ErrForbidden)
	ErrRestrictedGrant    = fmt.Errorf("%w: requested permissions are reserved for the platform operator", httpx.ErrForbidden)
	ErrTenantMismatch     = fmt.Errorf("%w: resource belongs to a different company", httpx.ErrForbidden)
	ErrRoleInUse          = fmt.Errorf("%w: role has active assignments", httpx.ErrConflict)
)
