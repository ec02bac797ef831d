package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetledger/fleetledger/internal/rbac"
	"github.com/fleetledger/fleetledger/internal/shared"
)

type memoryUserRepo struct {
	byEmail map[string]*User
	byID    map[int64]*User
	touched []int64
}

func newMemoryUserRepo(users ...User) *memoryUserRepo {
	repo := &memoryUserRepo{byEmail: map[string]*User{}, byID: map[int64]*User{}}
	for i := range users {
		u := users[i]
		repo.byEmail[u.Email] = &u
		repo.byID[u.ID] = &u
	}
	return repo
}

func (r *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	user, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) TouchLastActive(ctx context.Context, id int64) error {
	r.touched = append(r.touched, id)
	return nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthenticateSuccess(t *testing.T) {
	tokens, _ := newTestTokenManager(t, time.Hour)
	repo := newMemoryUserRepo(User{
		ID:           7,
		Email:        "driver@acme.test",
		PasswordHash: hashOf(t, "correct horse"),
		Role:         rbac.RoleDriver,
		CompanyID:    10,
		IsActive:     true,
	})
	svc := NewService(repo, tokens)

	user, token, err := svc.Authenticate(context.Background(), "driver@acme.test", "correct horse")
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)
	require.NotEmpty(t, token)

	claims, err := tokens.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.UserID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	tokens, _ := newTestTokenManager(t, time.Hour)
	repo := newMemoryUserRepo(User{
		ID:           7,
		Email:        "driver@acme.test",
		PasswordHash: hashOf(t, "correct horse"),
		Role:         rbac.RoleDriver,
		IsActive:     true,
	})
	svc := NewService(repo, tokens)

	_, _, err := svc.Authenticate(context.Background(), "driver@acme.test", "battery staple")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	tokens, _ := newTestTokenManager(t, time.Hour)
	svc := NewService(newMemoryUserRepo(), tokens)

	_, _, err := svc.Authenticate(context.Background(), "ghost@acme.test", "whatever")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateDeactivatedAccount(t *testing.T) {
	tokens, _ := newTestTokenManager(t, time.Hour)
	repo := newMemoryUserRepo(User{
		ID:           7,
		Email:        "driver@acme.test",
		PasswordHash: hashOf(t, "correct horse"),
		Role:         rbac.RoleDriver,
		IsActive:     false,
	})
	svc := NewService(repo, tokens)

	_, _, err := svc.Authenticate(context.Background(), "driver@acme.test", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	tokens, _ := newTestTokenManager(t, time.Hour)
	repo := newMemoryUserRepo(User{
		ID:           7,
		Email:        "driver@acme.test",
		PasswordHash: hashOf(t, "correct horse"),
		Role:         rbac.RoleDriver,
		IsActive:     true,
	})
	svc := NewService(repo, tokens)

	_, token, err := svc.Authenticate(context.Background(), "driver@acme.test", "correct horse")
	require.NoError(t, err)
	claims, err := tokens.Verify(context.Background(), token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), claims))
	_, err = tokens.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrTokenRevoked)
}
