package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveIncludesDefaultsAndAssignedRoles(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "approver", CompanyID: 10, Permissions: []Permission{PermExpenseApprove, PermAuditView}})
	_, err := f.assignments.Create(context.Background(), RoleAssignment{UserID: 7, RoleID: role.ID})
	require.NoError(t, err)

	perms := f.resolver.Resolve(context.Background(), 7, RoleDriver)

	for _, p := range DefaultPermissions(RoleDriver).Sorted() {
		require.True(t, perms.Has(p), "missing default %s", p)
	}
	require.True(t, perms.Has(PermExpenseApprove))
	require.True(t, perms.Has(PermAuditView))
}

func TestResolveSkipsExpiredAndInactiveAssignments(t *testing.T) {
	f := newFixture()
	expired := f.roles.add(Role{Name: "a", CompanyID: 10, Permissions: []Permission{PermExpenseApprove}})
	revoked := f.roles.add(Role{Name: "b", CompanyID: 10, Permissions: []Permission{PermAuditView}})

	_, err := f.assignments.Create(context.Background(), RoleAssignment{UserID: 7, RoleID: expired.ID, ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	_, err = f.assignments.Create(context.Background(), RoleAssignment{UserID: 7, RoleID: revoked.ID})
	require.NoError(t, err)
	require.NoError(t, f.assignments.Deactivate(context.Background(), 7, revoked.ID))

	perms := f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.False(t, perms.Has(PermExpenseApprove))
	require.False(t, perms.Has(PermAuditView))
}

func TestResolveExpiryBoundary(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	onBoundary := RoleAssignment{IsActive: true, ExpiresAt: at}
	require.False(t, onBoundary.ActiveAt(at))

	justBefore := RoleAssignment{IsActive: true, ExpiresAt: at.Add(time.Nanosecond)}
	require.True(t, justBefore.ActiveAt(at))

	open := RoleAssignment{IsActive: true}
	require.True(t, open.ActiveAt(at))
}

func TestResolveMemoizesUntilInvalidated(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "approver", CompanyID: 10, Permissions: []Permission{PermExpenseApprove}})
	_, err := f.assignments.Create(context.Background(), RoleAssignment{UserID: 7, RoleID: role.ID})
	require.NoError(t, err)

	first := f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.True(t, first.Has(PermExpenseApprove))

	// A store-level change without invalidation stays invisible.
	require.NoError(t, f.assignments.Deactivate(context.Background(), 7, role.ID))
	cached := f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.True(t, cached.Has(PermExpenseApprove))

	f.resolver.Invalidate(7)
	fresh := f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.False(t, fresh.Has(PermExpenseApprove))
}

func TestResolveDegradesToDefaultsOnStoreFailure(t *testing.T) {
	f := newFixture()
	f.assignments.fail = true

	perms := f.resolver.Resolve(context.Background(), 7, RoleManager)
	require.Equal(t, DefaultPermissions(RoleManager).Sorted(), perms.Sorted())

	// The degraded result must not be memoized.
	require.Equal(t, 0, f.cache.Len())

	f.assignments.fail = false
	role := f.roles.add(Role{Name: "approver", CompanyID: 10, Permissions: []Permission{PermAuditView}})
	_, err := f.assignments.Create(context.Background(), RoleAssignment{UserID: 7, RoleID: role.ID})
	require.NoError(t, err)

	perms = f.resolver.Resolve(context.Background(), 7, RoleManager)
	require.True(t, perms.Has(PermAuditView))
}

func TestResolveNeverOverPermitsOnFailure(t *testing.T) {
	f := newFixture()
	f.assignments.fail = true
	perms := f.resolver.Resolve(context.Background(), 7, RoleDriver)
	require.False(t, perms.Has(PermExpenseApprove))
	require.False(t, perms.Has(PermRoleManagement))
}
