// Package companies manages tenants. Every resource except the platform
// operator's own identity belongs to exactly one company.
package companies

import "time"

// Company is the tenant isolation boundary.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AdminSeed is the first admin account created with a company.
type AdminSeed struct {
	Email        string
	Name         string
	PasswordHash string
}
