package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRolesStore struct {
	mu     sync.Mutex
	roles  map[int64]Role
	nextID int64
	failAt string

	assignments *memoryAssignmentsStore
}

func newMemoryRolesStore() *memoryRolesStore {
	return &memoryRolesStore{roles: make(map[int64]Role)}
}

func (s *memoryRolesStore) add(role Role) Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	role.ID = s.nextID
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	s.roles[role.ID] = role
	return role
}

func (s *memoryRolesStore) Create(ctx context.Context, role Role) (Role, error) {
	if s.failAt == "create" {
		return Role{}, errors.New("store down")
	}
	s.mu.Lock()
	for _, existing := range s.roles {
		if existing.Name == role.Name && existing.CompanyID == role.CompanyID {
			s.mu.Unlock()
			return Role{}, ErrDuplicateRole
		}
	}
	s.mu.Unlock()
	return s.add(role), nil
}

func (s *memoryRolesStore) Get(ctx context.Context, id int64) (Role, error) {
	if s.failAt == "get" {
		return Role{}, errors.New("store down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (s *memoryRolesStore) ListVisible(ctx context.Context, companyID int64) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Role
	for _, role := range s.roles {
		if companyID == 0 || role.IsSystem || role.CompanyID == companyID {
			out = append(out, role)
		}
	}
	return out, nil
}

func (s *memoryRolesStore) Update(ctx context.Context, role Role) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return Role{}, ErrRoleNotFound
	}
	role.UpdatedAt = time.Now()
	s.roles[role.ID] = role
	return role, nil
}

func (s *memoryRolesStore) Delete(ctx context.Context, id int64, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return ErrRoleNotFound
	}
	delete(s.roles, id)
	if cascade && s.assignments != nil {
		s.assignments.dropRole(id)
	}
	return nil
}

func (s *memoryRolesStore) ActiveAssignmentCount(ctx context.Context, roleID int64, now time.Time) (int, error) {
	if s.assignments == nil {
		return 0, nil
	}
	count := 0
	s.assignments.mu.Lock()
	defer s.assignments.mu.Unlock()
	for _, a := range s.assignments.rows {
		if a.RoleID == roleID && a.ActiveAt(now) {
			count++
		}
	}
	return count, nil
}

type memoryAssignmentsStore struct {
	mu     sync.Mutex
	rows   map[int64]RoleAssignment
	nextID int64
	fail   bool
}

func newMemoryAssignmentsStore() *memoryAssignmentsStore {
	return &memoryAssignmentsStore{rows: make(map[int64]RoleAssignment)}
}

func (s *memoryAssignmentsStore) dropRole(roleID int64) {
	for id, a := range s.rows {
		if a.RoleID == roleID {
			delete(s.rows, id)
		}
	}
}

func (s *memoryAssignmentsStore) Create(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	if s.fail {
		return RoleAssignment{}, errors.New("store down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	a.GrantedAt = time.Now()
	a.IsActive = true
	s.rows[a.ID] = a
	return a, nil
}

func (s *memoryAssignmentsStore) ReplaceAll(ctx context.Context, userID int64, assignments []RoleAssignment) ([]RoleAssignment, error) {
	s.mu.Lock()
	for id, a := range s.rows {
		if a.UserID == userID && a.IsActive {
			a.IsActive = false
			s.rows[id] = a
		}
	}
	s.mu.Unlock()
	out := make([]RoleAssignment, 0, len(assignments))
	for _, a := range assignments {
		created, err := s.Create(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

func (s *memoryAssignmentsStore) GetActive(ctx context.Context, userID, roleID int64, now time.Time) (RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.UserID == userID && a.RoleID == roleID && a.ActiveAt(now) {
			return a, nil
		}
	}
	return RoleAssignment{}, ErrAssignmentNotFound
}

func (s *memoryAssignmentsStore) Deactivate(ctx context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.rows {
		if a.UserID == userID && a.RoleID == roleID && a.IsActive {
			a.IsActive = false
			s.rows[id] = a
			return nil
		}
	}
	return ErrAssignmentNotFound
}

func (s *memoryAssignmentsStore) ListActiveFor(ctx context.Context, userID int64, now time.Time) ([]RoleAssignment, error) {
	if s.fail {
		return nil, errors.New("store down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RoleAssignment
	for _, a := range s.rows {
		if a.UserID == userID && a.ActiveAt(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memoryAssignmentsStore) ListHistoryFor(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RoleAssignment
	for _, a := range s.rows {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memoryAssignmentsStore) DeleteForUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.rows {
		if a.UserID == userID {
			delete(s.rows, id)
		}
	}
	return nil
}

type memoryDirectory struct {
	accounts map[int64]Account
}

func (d *memoryDirectory) GetAccount(ctx context.Context, userID int64) (Account, error) {
	account, ok := d.accounts[userID]
	if !ok {
		return Account{}, errors.New("account not found")
	}
	return account, nil
}

type fixture struct {
	roles       *memoryRolesStore
	assignments *memoryAssignmentsStore
	directory   *memoryDirectory
	cache       *PermissionCache
	resolver    *Resolver
	service     *Service
}

func newFixture() *fixture {
	roles := newMemoryRolesStore()
	assignments := newMemoryAssignmentsStore()
	roles.assignments = assignments
	directory := &memoryDirectory{accounts: map[int64]Account{}}
	cache := NewPermissionCache(DefaultCacheTTL)
	logger := slog.Default()
	resolver := NewResolver(roles, assignments, cache, logger)
	service := NewService(roles, assignments, directory, resolver, logger)
	return &fixture{
		roles:       roles,
		assignments: assignments,
		directory:   directory,
		cache:       cache,
		resolver:    resolver,
		service:     service,
	}
}

var (
	superActor  = Actor{UserID: 1, Role: RoleSuperAdmin}
	tenantAdmin = Actor{UserID: 2, Role: RoleAdmin, CompanyID: 10}
)

func TestCreateRoleTenantDefaulting(t *testing.T) {
	f := newFixture()
	role, err := f.service.CreateRole(context.Background(), tenantAdmin, RoleInput{
		Name:        "dispatcher",
		Permissions: []string{"VEHICLE_READ", "VEHICLE_ASSIGN"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), role.CompanyID)
	require.False(t, role.IsSystem)
}

func TestCreateRoleRejectsForeignTenant(t *testing.T) {
	f := newFixture()
	_, err := f.service.CreateRole(context.Background(), tenantAdmin, RoleInput{
		Name:        "dispatcher",
		Permissions: []string{"VEHICLE_READ"},
		CompanyID:   99,
	})
	require.ErrorIs(t, err, ErrTenantMismatch)
}

func TestCreateRoleRejectsRestrictedTokensForTenantAdmin(t *testing.T) {
	f := newFixture()
	_, err := f.service.CreateRole(context.Background(), tenantAdmin, RoleInput{
		Name:        "operator",
		Permissions: []string{"VEHICLE_READ", "COMPANY_MANAGE"},
	})
	require.ErrorIs(t, err, ErrRestrictedGrant)

	_, err = f.service.CreateRole(context.Background(), superActor, RoleInput{
		Name:        "operator",
		Permissions: []string{"VEHICLE_READ", "COMPANY_MANAGE"},
		CompanyID:   10,
	})
	require.NoError(t, err)
}

func TestCreateRoleRejectsUnknownToken(t *testing.T) {
	f := newFixture()
	_, err := f.service.CreateRole(context.Background(), superActor, RoleInput{
		Name:        "ghost",
		Permissions: []string{"NOT_A_TOKEN"},
	})
	require.Error(t, err)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	f := newFixture()
	input := RoleInput{Name: "dispatcher", Permissions: []string{"VEHICLE_READ"}}
	_, err := f.service.CreateRole(context.Background(), tenantAdmin, input)
	require.NoError(t, err)
	_, err = f.service.CreateRole(context.Background(), tenantAdmin, input)
	require.ErrorIs(t, err, ErrDuplicateRole)
}

func TestSystemRoleOnlyBySuperAdmin(t *testing.T) {
	f := newFixture()
	_, err := f.service.CreateRole(context.Background(), tenantAdmin, RoleInput{
		Name:        "global",
		Permissions: []string{"VEHICLE_READ"},
		IsSystem:    true,
	})
	require.ErrorIs(t, err, ErrSystemRole)

	role, err := f.service.CreateRole(context.Background(), superActor, RoleInput{
		Name:        "global",
		Permissions: []string{"VEHICLE_READ"},
		IsSystem:    true,
		CompanyID:   10,
	})
	require.NoError(t, err)
	require.True(t, role.IsSystem)
	require.Zero(t, role.CompanyID)
}

func TestSystemRoleImmutable(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "system_viewer", IsSystem: true, Permissions: []Permission{PermVehicleRead}})

	_, err := f.service.UpdateRole(context.Background(), superActor, role.ID, RoleInput{
		Name:        "system_viewer",
		Permissions: []string{"VEHICLE_READ", "VEHICLE_UPDATE"},
	})
	require.ErrorIs(t, err, ErrSystemRole)

	err = f.service.DeleteRole(context.Background(), superActor, role.ID, true)
	require.ErrorIs(t, err, ErrSystemRole)
}

func TestRoleVisibilityAcrossTenants(t *testing.T) {
	f := newFixture()
	foreign := f.roles.add(Role{Name: "other", CompanyID: 99, Permissions: []Permission{PermVehicleRead}})
	system := f.roles.add(Role{Name: "system_viewer", IsSystem: true, Permissions: []Permission{PermVehicleRead}})

	_, err := f.service.GetRole(context.Background(), tenantAdmin, foreign.ID)
	require.ErrorIs(t, err, ErrRoleNotFound)

	got, err := f.service.GetRole(context.Background(), tenantAdmin, system.ID)
	require.NoError(t, err)
	require.Equal(t, system.ID, got.ID)

	got, err = f.service.GetRole(context.Background(), superActor, foreign.ID)
	require.NoError(t, err)
	require.Equal(t, foreign.ID, got.ID)
}

func TestDeleteRoleInUseRequiresForce(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleRead}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}
	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.NoError(t, err)

	err = f.service.DeleteRole(context.Background(), tenantAdmin, role.ID, false)
	require.ErrorIs(t, err, ErrRoleInUse)

	err = f.service.DeleteRole(context.Background(), tenantAdmin, role.ID, true)
	require.NoError(t, err)

	active, err := f.assignments.ListActiveFor(context.Background(), 7, time.Now())
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestAssignRejectsDuplicateActiveGrant(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleRead}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}

	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.NoError(t, err)
	_, err = f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.ErrorIs(t, err, ErrDuplicateGrant)
}

func TestAssignAfterExpirySucceeds(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleRead}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}

	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.NoError(t, err)
}

func TestAssignTenantChecks(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleRead}})
	system := f.roles.add(Role{Name: "system_viewer", IsSystem: true, Permissions: []Permission{PermVehicleRead}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}
	f.directory.accounts[8] = Account{ID: 8, CompanyID: 99, Role: RoleViewer, Active: true}

	_, err := f.service.Assign(context.Background(), tenantAdmin, 8, role.ID, time.Time{})
	require.ErrorIs(t, err, ErrTenantMismatch)

	_, err = f.service.Assign(context.Background(), tenantAdmin, 7, system.ID, time.Time{})
	require.ErrorIs(t, err, ErrSystemRole)

	_, err = f.service.Assign(context.Background(), superActor, 7, system.ID, time.Time{})
	require.NoError(t, err)
}

func TestAssignManyReplacesExistingSet(t *testing.T) {
	f := newFixture()
	first := f.roles.add(Role{Name: "a", CompanyID: 10, Permissions: []Permission{PermVehicleRead}})
	second := f.roles.add(Role{Name: "b", CompanyID: 10, Permissions: []Permission{PermExpenseRead}})
	third := f.roles.add(Role{Name: "c", CompanyID: 10, Permissions: []Permission{PermUserRead}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}

	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, first.ID, time.Time{})
	require.NoError(t, err)

	created, err := f.service.AssignMany(context.Background(), tenantAdmin, 7, []int64{second.ID, third.ID, third.ID}, time.Time{})
	require.NoError(t, err)
	require.Len(t, created, 2)

	active, err := f.assignments.ListActiveFor(context.Background(), 7, time.Now())
	require.NoError(t, err)
	ids := make(map[int64]bool)
	for _, a := range active {
		ids[a.RoleID] = true
	}
	require.Equal(t, map[int64]bool{second.ID: true, third.ID: true}, ids)

	history, err := f.assignments.ListHistoryFor(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, history, 3)
}

func TestRevokeKeepsHistoryRow(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleRead}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}

	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.NoError(t, err)
	require.NoError(t, f.service.Revoke(context.Background(), tenantAdmin, 7, role.ID))

	active, err := f.service.ListUserAssignments(context.Background(), tenantAdmin, 7)
	require.NoError(t, err)
	require.Empty(t, active)

	history, err := f.service.ListUserAssignmentHistory(context.Background(), tenantAdmin, 7)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.False(t, history[0].IsActive)
}

func TestMutationsInvalidateResolverCache(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleAssign}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}

	perms := f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.False(t, perms.Has(PermVehicleAssign))

	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.NoError(t, err)

	perms = f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.True(t, perms.Has(PermVehicleAssign))

	require.NoError(t, f.service.Revoke(context.Background(), tenantAdmin, 7, role.ID))
	perms = f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.False(t, perms.Has(PermVehicleAssign))
}

func TestRoleEditReflectedInNextResolution(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleAssign}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}

	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.NoError(t, err)
	perms := f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.True(t, perms.Has(PermVehicleAssign))

	_, err = f.service.UpdateRole(context.Background(), tenantAdmin, role.ID, RoleInput{
		Name:        "dispatcher",
		Permissions: []string{"EXPENSE_APPROVE"},
	})
	require.NoError(t, err)

	perms = f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.False(t, perms.Has(PermVehicleAssign))
	require.True(t, perms.Has(PermExpenseApprove))
}

func TestRoleDeleteReflectedInNextResolution(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleAssign}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}

	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.NoError(t, err)
	perms := f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.True(t, perms.Has(PermVehicleAssign))

	require.NoError(t, f.service.DeleteRole(context.Background(), tenantAdmin, role.ID, true))

	perms = f.resolver.Resolve(context.Background(), 7, RoleViewer)
	require.False(t, perms.Has(PermVehicleAssign))
}

func TestSuperAdminAssignsAcrossTenants(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleRead}})
	f.directory.accounts[8] = Account{ID: 8, CompanyID: 99, Role: RoleViewer, Active: true}

	created, err := f.service.Assign(context.Background(), superActor, 8, role.ID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, role.ID, created.RoleID)
}

func TestPurgeUserAssignments(t *testing.T) {
	f := newFixture()
	role := f.roles.add(Role{Name: "dispatcher", CompanyID: 10, Permissions: []Permission{PermVehicleRead}})
	f.directory.accounts[7] = Account{ID: 7, CompanyID: 10, Role: RoleViewer, Active: true}
	_, err := f.service.Assign(context.Background(), tenantAdmin, 7, role.ID, time.Time{})
	require.NoError(t, err)

	require.NoError(t, f.service.PurgeUserAssignments(context.Background(), 7))
	history, err := f.assignments.ListHistoryFor(context.Background(), 7)
	require.NoError(t, err)
	require.Empty(t, history)
}
