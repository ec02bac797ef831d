package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestWithActor(t *testing.T, target string, actor Actor) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(ContextWithActor(req.Context(), actor))
}

func TestRequireRolesWithoutActor(t *testing.T) {
	f := newFixture()
	guard := Middleware{Resolver: f.resolver}
	rec := httptest.NewRecorder()
	handler := guard.RequireRoles(RoleAdmin)(okHandler())
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRolesAllowList(t *testing.T) {
	f := newFixture()
	guard := Middleware{Resolver: f.resolver}
	handler := guard.RequireRoles(RoleSuperAdmin, RoleAdmin)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithActor(t, "/", tenantAdmin))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithActor(t, "/", Actor{UserID: 3, Role: RoleDriver, CompanyID: 10}))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireTenantScoping(t *testing.T) {
	f := newFixture()
	guard := Middleware{Resolver: f.resolver}

	router := chi.NewRouter()
	router.With(guard.RequireTenant("companyId")).Get("/companies/{companyId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestWithActor(t, "/companies/10", tenantAdmin))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestWithActor(t, "/companies/99", tenantAdmin))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestWithActor(t, "/companies/99", superActor))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireTenantQueryFallback(t *testing.T) {
	f := newFixture()
	guard := Middleware{Resolver: f.resolver}
	handler := guard.RequireTenant("companyId")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithActor(t, "/users?companyId=99", tenantAdmin))
	require.Equal(t, http.StatusForbidden, rec.Code)

	// No identifier on the request: scope checks fall to the service.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithActor(t, "/users", tenantAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermissionsDeniesWithMissingTokens(t *testing.T) {
	f := newFixture()
	guard := Middleware{Resolver: f.resolver}
	handler := guard.RequirePermissions(PermExpenseApprove)(okHandler())

	driver := Actor{UserID: 7, Role: RoleDriver, CompanyID: 10}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithActor(t, "/", driver))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "EXPENSE_APPROVE")
}

func TestRequirePermissionsHonorsAssignments(t *testing.T) {
	f := newFixture()
	guard := Middleware{Resolver: f.resolver}
	handler := guard.RequirePermissions(PermExpenseApprove)(okHandler())

	role := f.roles.add(Role{Name: "approver", CompanyID: 10, Permissions: []Permission{PermExpenseApprove}})
	_, err := f.assignments.Create(context.Background(), RoleAssignment{UserID: 7, RoleID: role.ID})
	require.NoError(t, err)

	driver := Actor{UserID: 7, Role: RoleDriver, CompanyID: 10}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithActor(t, "/", driver))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRoleAddedBeforeWindowIsDeniedThenGranted(t *testing.T) {
	f := newFixture()
	guard := Middleware{Resolver: f.resolver}
	handler := guard.RequirePermissions(PermAuditView)(okHandler())
	driver := Actor{UserID: 7, Role: RoleDriver, CompanyID: 10}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithActor(t, "/", driver))
	require.Equal(t, http.StatusForbidden, rec.Code)

	role := f.roles.add(Role{Name: "auditor", CompanyID: 10, Permissions: []Permission{PermAuditView}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleDriver, Active: true}
	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithActor(t, "/", driver))
	require.Equal(t, http.StatusOK, rec.Code)
}
