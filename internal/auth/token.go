package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
)

// Token errors. All map to 401 at the boundary.
var (
	ErrTokenInvalid = fmt.Errorf("%w: invalid token", httpx.ErrUnauthorized)
	ErrTokenExpired = fmt.Errorf("%w: token expired", httpx.ErrUnauthorized)
	ErrTokenRevoked = fmt.Errorf("%w: token revoked", httpx.ErrUnauthorized)
)

// TokenManager signs and verifies bearer tokens and keeps the revocation
// list in Redis so logout takes effect before expiry.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	redis  *redis.Client
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(secret string, ttl time.Duration, client *redis.Client) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, redis: client}
}

// TTL exposes the configured token lifetime.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for the user.
func (m *TokenManager) Issue(user User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		CompanyID: user.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses the token, checks the signature and expiry, and rejects
// revoked tokens.
func (m *TokenManager) Verify(ctx context.Context, raw string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !token.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if _, err := rbac.ParsePrimaryRole(claims.Role); err != nil {
		return Claims{}, ErrTokenInvalid
	}
	if m.redis != nil && claims.ID != "" {
		revoked, err := m.redis.Exists(ctx, revocationKey(claims.ID)).Result()
		if err != nil {
			return Claims{}, fmt.Errorf("auth: revocation check: %w", err)
		}
		if revoked > 0 {
			return Claims{}, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Revoke adds the token to the revocation list until its natural expiry.
func (m *TokenManager) Revoke(ctx context.Context, claims Claims) error {
	if m.redis == nil || claims.ID == "" {
		return nil
	}
	ttl := m.ttl
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}
	return m.redis.Set(ctx, revocationKey(claims.ID), "1", ttl).Err()
}

func revocationKey(jti string) string {
	return "auth:revoked:" + jti
}
