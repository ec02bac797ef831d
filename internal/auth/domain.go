// Package auth implements bearer-token identity verification: token
// issue and verify, the revocation list, and the middleware that loads
// the acting account for every request.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fleetledger/fleetledger/internal/rbac"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         rbac.PrimaryRole
	CompanyID    int64
	IsActive     bool
	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor converts the account into the identity authorization runs on.
func (u User) Actor() rbac.Actor {
	return rbac.Actor{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		CompanyID: u.CompanyID,
	}
}

// Claims is the bearer token payload.
type Claims struct {
	UserID    int64  `json:"uid"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CompanyID int64  `json:"cid,omitempty"`
	jwt.RegisteredClaims
}
