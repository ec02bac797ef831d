// Package users manages accounts within a company: drivers, managers,
// viewers and admins.
package users

import (
	"time"

	"github.com/fleetledger/fleetledger/internal/rbac"
)

// User represents a user account for management.
type User struct {
	ID           int64            `json:"id"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	Role         rbac.PrimaryRole `json:"role"`
	CompanyID    int64            `json:"companyId,omitempty"`
	IsActive     bool             `json:"isActive"`
	LastActiveAt time.Time        `json:"lastActiveAt,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}
