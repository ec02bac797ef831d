package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("EXPENSE_APPROVE")
	require.NoError(t, err)
	require.Equal(t, PermExpenseApprove, p)

	_, err = ParsePermission("expense_approve")
	require.Error(t, err)
	_, err = ParsePermission("")
	require.Error(t, err)
}

func TestParsePrimaryRole(t *testing.T) {
	for _, raw := range []string{"super_admin", "admin", "manager", "viewer", "driver"} {
		_, err := ParsePrimaryRole(raw)
		require.NoError(t, err, raw)
	}
	_, err := ParsePrimaryRole("root")
	require.Error(t, err)
}

func TestDefaultPermissionsMonotonicity(t *testing.T) {
	driver := DefaultPermissions(RoleDriver)
	viewer := DefaultPermissions(RoleViewer)
	manager := DefaultPermissions(RoleManager)
	admin := DefaultPermissions(RoleAdmin)
	super := DefaultPermissions(RoleSuperAdmin)

	for _, p := range manager.Sorted() {
		require.True(t, admin.Has(p), "admin missing manager token %s", p)
	}
	for _, p := range viewer.Sorted() {
		require.True(t, manager.Has(p), "manager missing viewer token %s", p)
	}
	for _, p := range admin.Sorted() {
		require.True(t, super.Has(p), "super missing admin token %s", p)
	}
	require.True(t, driver.Has(PermExpenseCreate))
	require.False(t, viewer.Has(PermExpenseCreate))
}

func TestSuperAdminDefaultsEqualFullEnumeration(t *testing.T) {
	super := DefaultPermissions(RoleSuperAdmin)
	require.Equal(t, len(AllPermissions()), len(super))
}

func TestAdminDefaultsExcludeRestrictedTokens(t *testing.T) {
	admin := DefaultPermissions(RoleAdmin)
	require.False(t, admin.Has(PermCompanyManage))
	require.False(t, admin.Has(PermSystemSettings))
}

func TestPermissionCatalogStripsRestrictedGroups(t *testing.T) {
	forSuper := PermissionCatalog(superActor)
	forAdmin := PermissionCatalog(tenantAdmin)

	flat := func(groups []PermissionGroup) PermissionSet {
		set := make(PermissionSet)
		for _, g := range groups {
			for _, p := range g.Permissions {
				set[p] = struct{}{}
			}
		}
		return set
	}

	require.True(t, flat(forSuper).Has(PermCompanyManage))
	require.False(t, flat(forAdmin).Has(PermCompanyManage))
	require.False(t, flat(forAdmin).Has(PermSystemSettings))
}

func TestPermissionSetOps(t *testing.T) {
	a := NewPermissionSet(PermVehicleRead, PermExpenseRead)
	b := NewPermissionSet(PermExpenseRead, PermAuditView)

	union := a.Union(b)
	require.Len(t, union, 3)
	require.True(t, a.Intersects(b))
	require.False(t, a.Intersects(NewPermissionSet(PermSystemSettings)))

	clone := a.Clone()
	clone[PermAuditView] = struct{}{}
	require.False(t, a.Has(PermAuditView))
}

func TestActorTenancy(t *testing.T) {
	require.True(t, superActor.SameTenant(42))
	require.True(t, tenantAdmin.SameTenant(10))
	require.False(t, tenantAdmin.SameTenant(11))
}
