package users

import (
	"context"

	"github.com/fleetledger/fleetledger/internal/rbac"
)

// Directory adapts the user repository to the authorization core's
// account lookup port.
type Directory struct {
	repo Repository
}

// NewDirectory constructs a Directory.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

// GetAccount implements rbac.UserDirectory.
func (d *Directory) GetAccount(ctx context.Context, userID int64) (rbac.Account, error) {
	user, err := d.repo.Get(ctx, userID)
	if err != nil {
		return rbac.Account{}, err
	}
	return rbac.Account{
		ID:        user.ID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		Active:    user.IsActive,
	}, nil
}

var _ rbac.UserDirectory = (*Directory)(nil)
