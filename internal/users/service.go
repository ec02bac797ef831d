package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetledger/fleetledger/internal/auth"
	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
)

// AssignmentPurger removes all role assignments for a user; the rbac
// service implements it.
type AssignmentPurger interface {
	PurgeUserAssignments(ctx context.Context, userID int64) error
	InvalidateUser(userID int64)
}

// ReferenceChecker reports whether financial records still reference a
// user; the expenses repository implements it.
type ReferenceChecker interface {
	CountByUser(ctx context.Context, userID int64) (int, error)
}

// Service handles user management rules.
type Service struct {
	repo        Repository
	assignments AssignmentPurger
	references  ReferenceChecker
}

// NewService builds a Service instance.
func NewService(repo Repository, assignments AssignmentPurger, references ReferenceChecker) *Service {
	return &Service{repo: repo, assignments: assignments, references: references}
}

// Input carries the client-supplied fields of a user.
type Input struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=2,max=128"`
	Password string `json:"password" validate:"omitempty,min=8"`
	Role     string `json:"role" validate:"required"`
}

// List returns users in the actor's scope.
func (s *Service) List(ctx context.Context, actor rbac.Actor, companyFilter int64) ([]User, error) {
	scope := actor.CompanyID
	if actor.IsSuperAdmin() {
		scope = companyFilter
	}
	return s.repo.List(ctx, scope)
}

// Get fetches a user within the actor's scope.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !actor.SameTenant(user.CompanyID) {
		return User{}, fmt.Errorf("%w: user", httpx.ErrNotFound)
	}
	return user, nil
}

func (s *Service) checkRoleGrant(actor rbac.Actor, role rbac.PrimaryRole) error {
	if role == rbac.RoleSuperAdmin && !actor.IsSuperAdmin() {
		return fmt.Errorf("%w: cannot grant the operator role", httpx.ErrForbidden)
	}
	return nil
}

// Create adds a user to the actor's company.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, input Input, companyID int64) (User, error) {
	role, err := rbac.ParsePrimaryRole(input.Role)
	if err != nil {
		return User{}, err
	}
	if err := s.checkRoleGrant(actor, role); err != nil {
		return User{}, err
	}
	if input.Password == "" {
		return User{}, fmt.Errorf("%w: password required", httpx.ErrValidation)
	}
	if companyID == 0 {
		companyID = actor.CompanyID
	}
	if !actor.SameTenant(companyID) {
		return User{}, fmt.Errorf("%w: cannot create users in another company", httpx.ErrForbidden)
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return User{}, err
	}
	return s.repo.Create(ctx, User{
		Email:     strings.TrimSpace(input.Email),
		Name:      strings.TrimSpace(input.Name),
		Role:      role,
		CompanyID: companyID,
	}, hash)
}

// Update edits profile fields, the primary role and, when a new password
// is supplied, the stored credential. A role change alters effective
// permissions, so the user's cache entry is dropped.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, input Input) (User, error) {
	user, err := s.Get(ctx, actor, id)
	if err != nil {
		return User{}, err
	}
	role, err := rbac.ParsePrimaryRole(input.Role)
	if err != nil {
		return User{}, err
	}
	if err := s.checkRoleGrant(actor, role); err != nil {
		return User{}, err
	}
	roleChanged := role != user.Role

	if input.Password != "" {
		hash, err := auth.HashPassword(input.Password)
		if err != nil {
			return User{}, err
		}
		if err := s.repo.SetPassword(ctx, id, hash); err != nil {
			return User{}, err
		}
	}

	user.Email = strings.TrimSpace(input.Email)
	user.Name = strings.TrimSpace(input.Name)
	user.Role = role
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return User{}, err
	}
	if roleChanged {
		s.assignments.InvalidateUser(id)
	}
	return updated, nil
}

// Deactivate soft-disables the account. The preferred removal for users
// still referenced by financial records.
func (s *Service) Deactivate(ctx context.Context, actor rbac.Actor, id int64) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.assignments.InvalidateUser(id)
	return nil
}

// Reactivate re-enables a deactivated account.
func (s *Service) Reactivate(ctx context.Context, actor rbac.Actor, id int64) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, id, true)
}

// Purge hard-deletes the account and cascades assignment cleanup. It is
// rejected while expense rows still reference the user; deactivate those
// accounts instead.
func (s *Service) Purge(ctx context.Context, actor rbac.Actor, id int64) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	count, err := s.references.CountByUser(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: user is referenced by %d expense records, deactivate instead", httpx.ErrConflict, count)
	}
	if err := s.assignments.PurgeUserAssignments(ctx, id); err != nil {
		return err
	}
	return s.repo.Purge(ctx, id)
}
