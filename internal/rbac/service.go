package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
)

// RolesStore is the persistence port for roles.
type RolesStore interface {
	Create(ctx context.Context, role Role) (Role, error)
	Get(ctx context.Context, id int64) (Role, error)
	ListVisible(ctx context.Context, companyID int64) ([]Role, error)
	Update(ctx context.Context, role Role) (Role, error)
	Delete(ctx context.Context, id int64, cascade bool) error
	ActiveAssignmentCount(ctx context.Context, roleID int64, now time.Time) (int, error)
}

// AssignmentsStore is the persistence port for role assignments.
type AssignmentsStore interface {
	Create(ctx context.Context, a RoleAssignment) (RoleAssignment, error)
	ReplaceAll(ctx context.Context, userID int64, assignments []RoleAssignment) ([]RoleAssignment, error)
	GetActive(ctx context.Context, userID, roleID int64, now time.Time) (RoleAssignment, error)
	Deactivate(ctx context.Context, userID, roleID int64) error
	ListActiveFor(ctx context.Context, userID int64, now time.Time) ([]RoleAssignment, error)
	ListHistoryFor(ctx context.Context, userID int64) ([]RoleAssignment, error)
	DeleteForUser(ctx context.Context, userID int64) error
}

// Account is the slice of a user record the authorization core needs.
type Account struct {
	ID        int64
	CompanyID int64
	Role      PrimaryRole
	Active    bool
}

// UserDirectory resolves user accounts for tenant and status checks.
type UserDirectory interface {
	GetAccount(ctx context.Context, userID int64) (Account, error)
}

// Service enforces the role and assignment business rules.
type Service struct {
	roles       RolesStore
	assignments AssignmentsStore
	directory   UserDirectory
	resolver    *Resolver
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the service. The resolver receives invalidation
// hooks from every mutating path.
func NewService(roles RolesStore, assignments AssignmentsStore, directory UserDirectory, resolver *Resolver, logger *slog.Logger) *Service {
	return &Service{
		roles:       roles,
		assignments: assignments,
		directory:   directory,
		resolver:    resolver,
		logger:      logger,
		now:         time.Now,
	}
}

// RoleInput carries the client-supplied fields of a role.
type RoleInput struct {
	Name        string   `json:"name" validate:"required,min=2,max=64"`
	Label       string   `json:"label" validate:"max=128"`
	Description string   `json:"description" validate:"max=512"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
	CompanyID   int64    `json:"companyId"`
	IsSystem    bool     `json:"isSystem"`
}

func (s *Service) parsePermissions(raw []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(raw))
	seen := make(map[Permission]struct{}, len(raw))
	for _, token := range raw {
		p, err := ParsePermission(strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}
	return perms, nil
}

// checkGrantable rejects permission sets a tenant admin may not place on
// a role. Super admins bypass the blocklist.
func checkGrantable(actor Actor, perms []Permission) error {
	if actor.IsSuperAdmin() {
		return nil
	}
	if NewPermissionSet(perms...).Intersects(RestrictedForAdmins()) {
		return ErrRestrictedGrant
	}
	return nil
}

// CreateRole creates a system role (super admin only) or a tenant role.
func (s *Service) CreateRole(ctx context.Context, actor Actor, input RoleInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	perms, err := s.parsePermissions(input.Permissions)
	if err != nil {
		return Role{}, err
	}
	if err := checkGrantable(actor, perms); err != nil {
		return Role{}, err
	}

	role := Role{
		Name:        name,
		Label:       strings.TrimSpace(input.Label),
		Description: strings.TrimSpace(input.Description),
		Permissions: perms,
		IsSystem:    input.IsSystem,
		CompanyID:   input.CompanyID,
	}
	if actor.IsSuperAdmin() {
		if role.IsSystem {
			role.CompanyID = 0
		}
	} else {
		if role.IsSystem {
			return Role{}, ErrSystemRole
		}
		if role.CompanyID == 0 {
			role.CompanyID = actor.CompanyID
		}
		if role.CompanyID != actor.CompanyID {
			return Role{}, ErrTenantMismatch
		}
	}
	return s.roles.Create(ctx, role)
}

// GetRole fetches a role the actor is allowed to see.
func (s *Service) GetRole(ctx context.Context, actor Actor, id int64) (Role, error) {
	role, err := s.roles.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if !role.IsSystem && !actor.SameTenant(role.CompanyID) {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

// ListRoles returns the roles visible to the actor: system roles plus the
// actor's own tenant, or everything (optionally filtered) for the super
// admin.
func (s *Service) ListRoles(ctx context.Context, actor Actor, companyFilter int64) ([]Role, error) {
	scope := actor.CompanyID
	if actor.IsSuperAdmin() {
		scope = companyFilter
	}
	return s.roles.ListVisible(ctx, scope)
}

// UpdateRole edits a tenant role. System roles are immutable regardless
// of caller privilege.
func (s *Service) UpdateRole(ctx context.Context, actor Actor, id int64, input RoleInput) (Role, error) {
	role, err := s.GetRole(ctx, actor, id)
	if err != nil {
		return Role{}, err
	}
	if role.IsSystem {
		return Role{}, ErrSystemRole
	}
	if !actor.SameTenant(role.CompanyID) {
		return Role{}, ErrTenantMismatch
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	perms, err := s.parsePermissions(input.Permissions)
	if err != nil {
		return Role{}, err
	}
	if err := checkGrantable(actor, perms); err != nil {
		return Role{}, err
	}

	role.Name = name
	role.Label = strings.TrimSpace(input.Label)
	role.Description = strings.TrimSpace(input.Description)
	role.Permissions = perms
	updated, err := s.roles.Update(ctx, role)
	if err != nil {
		return Role{}, err
	}
	// The affected user set is unknown for a role edit.
	s.resolver.InvalidateAll()
	return updated, nil
}

// DeleteRole removes a tenant role. Roles with live assignments are kept
// unless the caller opts into a cascading delete.
func (s *Service) DeleteRole(ctx context.Context, actor Actor, id int64, force bool) error {
	role, err := s.GetRole(ctx, actor, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	if !actor.SameTenant(role.CompanyID) {
		return ErrTenantMismatch
	}
	count, err := s.roles.ActiveAssignmentCount(ctx, id, s.now())
	if err != nil {
		return err
	}
	if count > 0 && !force {
		return ErrRoleInUse
	}
	if err := s.roles.Delete(ctx, id, force); err != nil {
		return err
	}
	s.resolver.InvalidateAll()
	return nil
}

// checkAssignable validates a single (role, user) grant per the store
// rules: system roles only by the super admin, and role, user and actor
// tenants must line up for tenant-scoped callers. The super admin is
// exempt from the tenant match and may grant across tenants.
func (s *Service) checkAssignable(actor Actor, role Role, target Account) error {
	if role.IsSystem && !actor.IsSuperAdmin() {
		return ErrSystemRole
	}
	if actor.IsSuperAdmin() {
		return nil
	}
	if !actor.SameTenant(target.CompanyID) {
		return ErrTenantMismatch
	}
	if !role.IsSystem && role.CompanyID != target.CompanyID {
		return ErrTenantMismatch
	}
	return nil
}

// Assign grants one role to one user, optionally until expiresAt.
func (s *Service) Assign(ctx context.Context, actor Actor, userID, roleID int64, expiresAt time.Time) (RoleAssignment, error) {
	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return RoleAssignment{}, err
	}
	target, err := s.directory.GetAccount(ctx, userID)
	if err != nil {
		return RoleAssignment{}, err
	}
	if err := s.checkAssignable(actor, role, target); err != nil {
		return RoleAssignment{}, err
	}
	if _, err := s.assignments.GetActive(ctx, userID, roleID, s.now()); err == nil {
		return RoleAssignment{}, ErrDuplicateGrant
	}

	created, err := s.assignments.Create(ctx, RoleAssignment{
		UserID:    userID,
		RoleID:    roleID,
		GrantedBy: actor.UserID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return RoleAssignment{}, err
	}
	// Granting must invalidate as eagerly as revoking: a stale miss here
	// would deny the user their new permissions for up to a TTL.
	s.resolver.Invalidate(userID)
	return created, nil
}

// AssignMany atomically replaces the user's assignment set.
func (s *Service) AssignMany(ctx context.Context, actor Actor, userID int64, roleIDs []int64, expiresAt time.Time) ([]RoleAssignment, error) {
	target, err := s.directory.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	assignments := make([]RoleAssignment, 0, len(roleIDs))
	seen := make(map[int64]struct{}, len(roleIDs))
	for _, roleID := range roleIDs {
		if _, dup := seen[roleID]; dup {
			continue
		}
		seen[roleID] = struct{}{}
		role, err := s.roles.Get(ctx, roleID)
		if err != nil {
			return nil, err
		}
		if err := s.checkAssignable(actor, role, target); err != nil {
			return nil, err
		}
		assignments = append(assignments, RoleAssignment{
			UserID:    userID,
			RoleID:    roleID,
			GrantedBy: actor.UserID,
			ExpiresAt: expiresAt,
		})
	}
	created, err := s.assignments.ReplaceAll(ctx, userID, assignments)
	if err != nil {
		return nil, err
	}
	s.resolver.Invalidate(userID)
	return created, nil
}

// Revoke deactivates one assignment. The row survives for history.
func (s *Service) Revoke(ctx context.Context, actor Actor, userID, roleID int64) error {
	target, err := s.directory.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	if !actor.SameTenant(target.CompanyID) {
		return ErrTenantMismatch
	}
	if err := s.assignments.Deactivate(ctx, userID, roleID); err != nil {
		return err
	}
	s.resolver.Invalidate(userID)
	return nil
}

// ListUserAssignments returns the target user's visible assignments.
func (s *Service) ListUserAssignments(ctx context.Context, actor Actor, userID int64) ([]RoleAssignment, error) {
	target, err := s.directory.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !actor.SameTenant(target.CompanyID) {
		return nil, ErrTenantMismatch
	}
	return s.assignments.ListActiveFor(ctx, userID, s.now())
}

// ListUserAssignmentHistory returns every assignment row for the user,
// expired and revoked included. History is an audit surface, not an
// authorization read path.
func (s *Service) ListUserAssignmentHistory(ctx context.Context, actor Actor, userID int64) ([]RoleAssignment, error) {
	target, err := s.directory.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !actor.SameTenant(target.CompanyID) {
		return nil, ErrTenantMismatch
	}
	return s.assignments.ListHistoryFor(ctx, userID)
}

// PurgeUserAssignments hard-deletes all assignment rows for a user and
// drops the user's cache entry. Only the user purge path calls this.
func (s *Service) PurgeUserAssignments(ctx context.Context, userID int64) error {
	if err := s.assignments.DeleteForUser(ctx, userID); err != nil {
		return err
	}
	s.resolver.Invalidate(userID)
	return nil
}

// InvalidateUser drops the cached permission set for a user. Exposed for
// collaborators whose mutations change effective permissions, such as a
// primary role change or deactivation.
func (s *Service) InvalidateUser(userID int64) {
	s.resolver.Invalidate(userID)
}
