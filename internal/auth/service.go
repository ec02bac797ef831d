package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/fleetledger/fleetledger/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenManager
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates email/password credentials and returns a signed
// bearer token for the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, "", shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", shared.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, claims Claims) error {
	return s.tokens.Revoke(ctx, claims)
}

// LoadAccount fetches the current account for identity verification.
func (s *Service) LoadAccount(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// HashPassword produces a bcrypt hash for account creation paths.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
