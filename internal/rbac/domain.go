// Package rbac implements the authorization core: role and assignment
// stores, the permission resolver with its cache, and the middleware
// chain that gates every route.
package rbac

import (
	"fmt"
	"sort"
	"time"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
)

// Permission is an atomic capability token. Only the constants declared
// below are valid; ParsePermission rejects anything else.
type Permission string

const (
	PermExpenseRead    Permission = "EXPENSE_READ"
	PermExpenseCreate  Permission = "EXPENSE_CREATE"
	PermExpenseUpdate  Permission = "EXPENSE_UPDATE"
	PermExpenseDelete  Permission = "EXPENSE_DELETE"
	PermExpenseApprove Permission = "EXPENSE_APPROVE"
	PermExpenseExport  Permission = "EXPENSE_EXPORT"

	PermVehicleRead   Permission = "VEHICLE_READ"
	PermVehicleCreate Permission = "VEHICLE_CREATE"
	PermVehicleUpdate Permission = "VEHICLE_UPDATE"
	PermVehicleDelete Permission = "VEHICLE_DELETE"
	PermVehicleAssign Permission = "VEHICLE_ASSIGN"

	PermUserRead       Permission = "USER_READ"
	PermUserCreate     Permission = "USER_CREATE"
	PermUserUpdate     Permission = "USER_UPDATE"
	PermUserDeactivate Permission = "USER_DEACTIVATE"

	PermReportView   Permission = "REPORT_VIEW"
	PermReportExport Permission = "REPORT_EXPORT"

	PermDashboardView Permission = "DASHBOARD_VIEW"

	PermRoleManagement Permission = "ROLE_MANAGEMENT"
	PermAuditView      Permission = "AUDIT_VIEW"

	PermCompanyManage  Permission = "COMPANY_MANAGE"
	PermSystemSettings Permission = "SYSTEM_SETTINGS"
)

// PermissionGroup clusters tokens by the module they guard, for the
// permission catalog endpoint.
type PermissionGroup struct {
	Module      string       `json:"module"`
	Permissions []Permission `json:"permissions"`
}

var permissionCatalog = []PermissionGroup{
	{Module: "expenses", Permissions: []Permission{PermExpenseRead, PermExpenseCreate, PermExpenseUpdate, PermExpenseDelete, PermExpenseApprove, PermExpenseExport}},
	{Module: "vehicles", Permissions: []Permission{PermVehicleRead, PermVehicleCreate, PermVehicleUpdate, PermVehicleDelete, PermVehicleAssign}},
	{Module: "users", Permissions: []Permission{PermUserRead, PermUserCreate, PermUserUpdate, PermUserDeactivate}},
	{Module: "reports", Permissions: []Permission{PermReportView, PermReportExport}},
	{Module: "dashboard", Permissions: []Permission{PermDashboardView}},
	{Module: "administration", Permissions: []Permission{PermRoleManagement, PermAuditView}},
	{Module: "system", Permissions: []Permission{PermCompanyManage, PermSystemSettings}},
}

var allPermissions = func() map[Permission]struct{} {
	set := make(map[Permission]struct{})
	for _, group := range permissionCatalog {
		for _, p := range group.Permissions {
			set[p] = struct{}{}
		}
	}
	return set
}()

// ParsePermission validates a raw token against the catalog.
func ParsePermission(raw string) (Permission, error) {
	p := Permission(raw)
	if _, ok := allPermissions[p]; !ok {
		return "", fmt.Errorf("%w: unknown permission %q", httpx.ErrValidation, raw)
	}
	return p, nil
}

// AllPermissions returns the full token enumeration in sorted order.
func AllPermissions() []Permission {
	perms := make([]Permission, 0, len(allPermissions))
	for p := range allPermissions {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// PermissionCatalog returns the grouped catalog. Groups reserved for the
// platform operator are stripped for tenant-scoped callers.
func PermissionCatalog(actor Actor) []PermissionGroup {
	if actor.IsSuperAdmin() {
		return permissionCatalog
	}
	restricted := RestrictedForAdmins()
	groups := make([]PermissionGroup, 0, len(permissionCatalog))
	for _, group := range permissionCatalog {
		perms := make([]Permission, 0, len(group.Permissions))
		for _, p := range group.Permissions {
			if !restricted.Has(p) {
				perms = append(perms, p)
			}
		}
		if len(perms) > 0 {
			groups = append(groups, PermissionGroup{Module: group.Module, Permissions: perms})
		}
	}
	return groups
}

// PermissionSet is an unordered set of permission tokens.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from tokens.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Union merges other into a copy of s.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	merged := make(PermissionSet, len(s)+len(other))
	for p := range s {
		merged[p] = struct{}{}
	}
	for p := range other {
		merged[p] = struct{}{}
	}
	return merged
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	return s.Union(nil)
}

// Intersects reports whether the sets share any token.
func (s PermissionSet) Intersects(other PermissionSet) bool {
	for p := range other {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Sorted returns set members as a sorted slice for stable JSON output.
func (s PermissionSet) Sorted() []Permission {
	perms := make([]Permission, 0, len(s))
	for p := range s {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// PrimaryRole is the fixed role type stored directly on a user account.
type PrimaryRole string

const (
	RoleSuperAdmin PrimaryRole = "super_admin"
	RoleAdmin      PrimaryRole = "admin"
	RoleManager    PrimaryRole = "manager"
	RoleViewer     PrimaryRole = "viewer"
	RoleDriver     PrimaryRole = "driver"
)

// ParsePrimaryRole validates a raw primary role value.
func ParsePrimaryRole(raw string) (PrimaryRole, error) {
	switch PrimaryRole(raw) {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleViewer, RoleDriver:
		return PrimaryRole(raw), nil
	}
	return "", fmt.Errorf("%w: unknown primary role %q", httpx.ErrValidation, raw)
}

var defaultPermissions = map[PrimaryRole][]Permission{
	RoleAdmin: {
		PermExpenseRead, PermExpenseCreate, PermExpenseUpdate, PermExpenseDelete, PermExpenseApprove, PermExpenseExport,
		PermVehicleRead, PermVehicleCreate, PermVehicleUpdate, PermVehicleDelete, PermVehicleAssign,
		PermUserRead, PermUserCreate, PermUserUpdate, PermUserDeactivate,
		PermReportView, PermReportExport,
		PermDashboardView,
		PermRoleManagement, PermAuditView,
	},
	RoleManager: {
		PermExpenseRead, PermExpenseCreate, PermExpenseUpdate, PermExpenseApprove,
		PermVehicleRead, PermVehicleAssign,
		PermUserRead,
		PermReportView, PermReportExport,
		PermDashboardView,
	},
	RoleViewer: {
		PermExpenseRead,
		PermVehicleRead,
		PermUserRead,
		PermReportView,
		PermDashboardView,
	},
	RoleDriver: {
		PermExpenseRead, PermExpenseCreate,
		PermVehicleRead,
	},
}

// DefaultPermissions returns the static default set for a primary role.
// The super admin default equals the full enumeration.
func DefaultPermissions(role PrimaryRole) PermissionSet {
	if role == RoleSuperAdmin {
		return NewPermissionSet(AllPermissions()...)
	}
	return NewPermissionSet(defaultPermissions[role]...)
}

// RestrictedForAdmins returns the tokens a tenant-scoped admin may never
// place on a role: granting them is reserved for the platform operator.
func RestrictedForAdmins() PermissionSet {
	return NewPermissionSet(PermCompanyManage, PermSystemSettings)
}

// Role is a named permission set, either seeded by the platform
// (IsSystem, CompanyID zero) or created by a tenant admin.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	IsSystem    bool         `json:"isSystem"`
	CompanyID   int64        `json:"companyId,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PermissionSet returns the role's tokens as a set.
func (r Role) PermissionSet() PermissionSet {
	return NewPermissionSet(r.Permissions...)
}

// RoleAssignment binds a user to a role, optionally until ExpiresAt.
// A zero ExpiresAt means the assignment does not expire.
type RoleAssignment struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	RoleID    int64     `json:"roleId"`
	GrantedBy int64     `json:"grantedBy"`
	GrantedAt time.Time `json:"grantedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	IsActive  bool      `json:"isActive"`
}

// ActiveAt is the visibility predicate every authorization read path
// applies: inactive or expired assignments are logically absent. An
// assignment expiring exactly at now is already expired.
func (a RoleAssignment) ActiveAt(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.ExpiresAt.IsZero() {
		return true
	}
	return a.ExpiresAt.After(now)
}

// Actor is the authenticated identity all authorization decisions run
// against. CompanyID is zero only for the super admin.
type Actor struct {
	UserID    int64
	Email     string
	Role      PrimaryRole
	CompanyID int64
}

// IsSuperAdmin reports whether the actor is the tenant-less operator.
func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// SameTenant reports whether the actor may touch a resource owned by
// companyID. The super admin crosses tenant boundaries freely.
func (a Actor) SameTenant(companyID int64) bool {
	if a.IsSuperAdmin() {
		return true
	}
	return a.CompanyID == companyID
}
