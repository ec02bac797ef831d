// Package vehicles manages the fleet inventory of a company.
package vehicles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
)

// Vehicle is one fleet unit.
type Vehicle struct {
	ID               int64     `json:"id"`
	CompanyID        int64     `json:"companyId"`
	PlateNumber      string    `json:"plateNumber"`
	Make             string    `json:"make"`
	Model            string    `json:"model"`
	Year             int       `json:"year"`
	AssignedDriverID int64     `json:"assignedDriverId,omitempty"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Input carries the client-supplied fields of a vehicle.
type Input struct {
	PlateNumber string `json:"plateNumber" validate:"required,min=2,max=16"`
	Make        string `json:"make" validate:"required,max=64"`
	Model       string `json:"model" validate:"required,max=64"`
	Year        int    `json:"year" validate:"required,gte=1980,lte=2100"`
}

// Service handles vehicle business logic.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns vehicles in the actor's company.
func (s *Service) List(ctx context.Context, actor rbac.Actor, companyFilter int64) ([]Vehicle, error) {
	scope := actor.CompanyID
	if actor.IsSuperAdmin() {
		scope = companyFilter
	}
	return s.repo.List(ctx, scope)
}

// Get fetches one vehicle within the actor's scope.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (Vehicle, error) {
	vehicle, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vehicle{}, err
	}
	if !actor.SameTenant(vehicle.CompanyID) {
		return Vehicle{}, fmt.Errorf("%w: vehicle", httpx.ErrNotFound)
	}
	return vehicle, nil
}

// Create registers a vehicle in the actor's company.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, input Input) (Vehicle, error) {
	return s.repo.Create(ctx, Vehicle{
		CompanyID:   actor.CompanyID,
		PlateNumber: strings.ToUpper(strings.TrimSpace(input.PlateNumber)),
		Make:        strings.TrimSpace(input.Make),
		Model:       strings.TrimSpace(input.Model),
		Year:        input.Year,
	})
}

// Update edits a vehicle within the actor's scope.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, input Input) (Vehicle, error) {
	vehicle, err := s.Get(ctx, actor, id)
	if err != nil {
		return Vehicle{}, err
	}
	vehicle.PlateNumber = strings.ToUpper(strings.TrimSpace(input.PlateNumber))
	vehicle.Make = strings.TrimSpace(input.Make)
	vehicle.Model = strings.TrimSpace(input.Model)
	vehicle.Year = input.Year
	return s.repo.Update(ctx, vehicle)
}

// Delete removes a vehicle within the actor's scope.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// AssignDriver binds a driver to the vehicle. A zero driverID clears the
// assignment.
func (s *Service) AssignDriver(ctx context.Context, actor rbac.Actor, id, driverID int64) (Vehicle, error) {
	vehicle, err := s.Get(ctx, actor, id)
	if err != nil {
		return Vehicle{}, err
	}
	vehicle.AssignedDriverID = driverID
	return s.repo.Update(ctx, vehicle)
}
