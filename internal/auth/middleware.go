package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
)

// Middleware performs identity verification: it validates the bearer
// credential, loads the current account, rejects absent or deactivated
// accounts, and stores the actor in the request context. It also bumps
// the account's last-active timestamp off the latency path.
type Middleware struct {
	Service *Service
	Tokens  *TokenManager
	Logger  *slog.Logger
}

type claimsContextKey struct{}

// ClaimsFromContext returns the verified token claims, for logout.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(Claims)
	return claims, ok
}

// Verify is the first stage of the authorization chain.
func (m Middleware) Verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			httpx.Fail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := m.Tokens.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		user, err := m.Service.LoadAccount(r.Context(), claims.UserID)
		if err != nil {
			httpx.Fail(w, http.StatusUnauthorized, "account not found")
			return
		}
		if !user.IsActive {
			httpx.Fail(w, http.StatusUnauthorized, "account deactivated")
			return
		}

		go func(ctx context.Context, id int64) {
			if err := m.Service.repo.TouchLastActive(ctx, id); err != nil && m.Logger != nil {
				m.Logger.Warn("touch last active", slog.Int64("user_id", id), slog.Any("error", err))
			}
		}(context.WithoutCancel(r.Context()), user.ID)

		ctx := rbac.ContextWithActor(r.Context(), user.Actor())
		ctx = context.WithValue(ctx, claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
