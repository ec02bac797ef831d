package companies

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetledger/fleetledger/internal/auth"
	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
)

// Service handles company business logic.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// BootstrapInput carries the company and its first admin.
type BootstrapInput struct {
	Name          string `json:"name" validate:"required,min=2,max=128"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"max=32"`
	Address       string `json:"address" validate:"max=256"`
	AdminEmail    string `json:"adminEmail" validate:"required,email"`
	AdminName     string `json:"adminName" validate:"required,min=2,max=128"`
	AdminPassword string `json:"adminPassword" validate:"required,min=8"`
}

// List returns companies visible to the actor: all of them for the super
// admin, only their own otherwise.
func (s *Service) List(ctx context.Context, actor rbac.Actor) ([]Company, error) {
	if actor.IsSuperAdmin() {
		return s.repo.List(ctx)
	}
	company, err := s.repo.Get(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	return []Company{company}, nil
}

// Get fetches one company within the actor's scope.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (Company, error) {
	if !actor.SameTenant(id) {
		return Company{}, fmt.Errorf("%w: company belongs to a different tenant", httpx.ErrForbidden)
	}
	return s.repo.Get(ctx, id)
}

// Bootstrap creates a company together with its first admin account.
// Only the platform operator may do this; the two inserts are atomic.
func (s *Service) Bootstrap(ctx context.Context, actor rbac.Actor, input BootstrapInput) (Company, int64, error) {
	if !actor.IsSuperAdmin() {
		return Company{}, 0, fmt.Errorf("%w: company creation is reserved", httpx.ErrForbidden)
	}
	hash, err := auth.HashPassword(input.AdminPassword)
	if err != nil {
		return Company{}, 0, err
	}
	company := Company{
		Name:    strings.TrimSpace(input.Name),
		Email:   strings.TrimSpace(input.Email),
		Phone:   strings.TrimSpace(input.Phone),
		Address: strings.TrimSpace(input.Address),
	}
	admin := AdminSeed{
		Email:        strings.TrimSpace(input.AdminEmail),
		Name:         strings.TrimSpace(input.AdminName),
		PasswordHash: hash,
	}
	return s.repo.CreateWithAdmin(ctx, company, admin)
}

// Update edits company details within the actor's scope.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, company Company) (Company, error) {
	if !actor.SameTenant(company.ID) {
		return Company{}, fmt.Errorf("%w: company belongs to a different tenant", httpx.ErrForbidden)
	}
	return s.repo.Update(ctx, company)
}
