// Package expenses tracks spending records attached to fleet vehicles.
package expenses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
)

// Status is the approval state of an expense.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Expense is one spending record.
type Expense struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"companyId"`
	UserID      int64     `json:"userId"`
	VehicleID   int64     `json:"vehicleId,omitempty"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Status      Status    `json:"status"`
	ReviewedBy  int64     `json:"reviewedBy,omitempty"`
	ReviewedAt  time.Time `json:"reviewedAt,omitempty"`
	IncurredAt  time.Time `json:"incurredAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Input carries the client-supplied fields of an expense. Amount is in the
// minor unit of the currency.
type Input struct {
	VehicleID   int64  `json:"vehicleId"`
	Category    string `json:"category" validate:"required,oneof=fuel maintenance toll parking insurance other"`
	Description string `json:"description" validate:"max=512"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
	IncurredAt  string `json:"incurredAt" validate:"required"`
}

// Service handles expense business logic.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Filters narrows expense listings.
type Filters struct {
	CompanyID int64
	UserID    int64
	VehicleID int64
	Status    Status
}

// List returns expenses visible to the actor. Drivers see only their own
// records; tenant staff see their company; super admins see everything.
func (s *Service) List(ctx context.Context, actor rbac.Actor, filters Filters) ([]Expense, error) {
	if !actor.IsSuperAdmin() {
		filters.CompanyID = actor.CompanyID
	}
	if actor.Role == rbac.RoleDriver {
		filters.UserID = actor.UserID
	}
	return s.repo.List(ctx, filters)
}

// Get fetches one expense within the actor's scope.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (Expense, error) {
	expense, err := s.repo.Get(ctx, id)
	if err != nil {
		return Expense{}, err
	}
	if !actor.SameTenant(expense.CompanyID) {
		return Expense{}, fmt.Errorf("%w: expense", httpx.ErrNotFound)
	}
	if actor.Role == rbac.RoleDriver && expense.UserID != actor.UserID {
		return Expense{}, fmt.Errorf("%w: expense", httpx.ErrNotFound)
	}
	return expense, nil
}

// Create records a new pending expense for the actor.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, input Input) (Expense, error) {
	incurred, err := time.Parse(time.RFC3339, input.IncurredAt)
	if err != nil {
		return Expense{}, fmt.Errorf("%w: incurredAt must be RFC 3339", httpx.ErrValidation)
	}
	return s.repo.Create(ctx, Expense{
		CompanyID:   actor.CompanyID,
		UserID:      actor.UserID,
		VehicleID:   input.VehicleID,
		Category:    input.Category,
		Description: strings.TrimSpace(input.Description),
		Amount:      input.Amount,
		Currency:    strings.ToUpper(input.Currency),
		Status:      StatusPending,
		IncurredAt:  incurred,
	})
}

// Update edits a pending expense. Approved and rejected records are frozen.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, input Input) (Expense, error) {
	expense, err := s.Get(ctx, actor, id)
	if err != nil {
		return Expense{}, err
	}
	if expense.Status != StatusPending {
		return Expense{}, fmt.Errorf("%w: only pending expenses can be edited", httpx.ErrConflict)
	}
	incurred, err := time.Parse(time.RFC3339, input.IncurredAt)
	if err != nil {
		return Expense{}, fmt.Errorf("%w: incurredAt must be RFC 3339", httpx.ErrValidation)
	}
	expense.VehicleID = input.VehicleID
	expense.Category = input.Category
	expense.Description = strings.TrimSpace(input.Description)
	expense.Amount = input.Amount
	expense.Currency = strings.ToUpper(input.Currency)
	expense.IncurredAt = incurred
	return s.repo.Update(ctx, expense)
}

// Review moves a pending expense to approved or rejected. Reviewers cannot
// review their own submissions.
func (s *Service) Review(ctx context.Context, actor rbac.Actor, id int64, approve bool) (Expense, error) {
	expense, err := s.Get(ctx, actor, id)
	if err != nil {
		return Expense{}, err
	}
	if expense.Status != StatusPending {
		return Expense{}, fmt.Errorf("%w: expense already reviewed", httpx.ErrConflict)
	}
	if expense.UserID == actor.UserID {
		return Expense{}, fmt.Errorf("%w: cannot review own expense", httpx.ErrForbidden)
	}
	expense.Status = StatusRejected
	if approve {
		expense.Status = StatusApproved
	}
	expense.ReviewedBy = actor.UserID
	expense.ReviewedAt = s.now()
	return s.repo.Update(ctx, expense)
}

// Delete removes a pending expense within the actor's scope.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	expense, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if expense.Status == StatusApproved {
		return fmt.Errorf("%w: approved expenses cannot be deleted", httpx.ErrConflict)
	}
	return s.repo.Delete(ctx, id)
}

// CountByUser reports how many expenses reference a user. User purging
// consults this before removing the row.
func (s *Service) CountByUser(ctx context.Context, userID int64) (int, error) {
	return s.repo.CountByUser(ctx, userID)
}
