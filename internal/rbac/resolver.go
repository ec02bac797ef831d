package rbac

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how stale a memoized permission set may get when
// no invalidation hook fires.
const DefaultCacheTTL = 5 * time.Minute

// Resolver computes a user's effective permission set: the union of
// their primary-role defaults and every currently valid assignment's
// role permissions. Results are memoized per user in an injected cache;
// mutating paths call Invalidate/InvalidateAll synchronously so TTL
// staleness can only ever under-permit, never over-permit.
type Resolver struct {
	roles       RolesStore
	assignments AssignmentsStore
	cache       *PermissionCache
	group       singleflight.Group
	logger      *slog.Logger
	now         func() time.Time
}

// NewResolver constructs a resolver around the given stores and cache.
func NewResolver(roles RolesStore, assignments AssignmentsStore, cache *PermissionCache, logger *slog.Logger) *Resolver {
	return &Resolver{
		roles:       roles,
		assignments: assignments,
		cache:       cache,
		logger:      logger,
		now:         time.Now,
	}
}

// Resolve returns the effective permission set for the user. On a store
// failure it degrades to the primary role's static defaults: the request
// proceeds with the guaranteed floor, never more.
func (r *Resolver) Resolve(ctx context.Context, userID int64, primary PrimaryRole) PermissionSet {
	if perms, ok := r.cache.Get(userID); ok {
		return perms
	}

	result, err, _ := r.group.Do(cacheKey(userID), func() (any, error) {
		perms, err := r.compute(ctx, userID, primary)
		if err != nil {
			return nil, err
		}
		r.cache.Set(userID, perms)
		return perms, nil
	})
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("permission resolve degraded to defaults",
				slog.Int64("user_id", userID),
				slog.String("primary_role", string(primary)),
				slog.Any("error", err))
		}
		return DefaultPermissions(primary)
	}
	return result.(PermissionSet)
}

func (r *Resolver) compute(ctx context.Context, userID int64, primary PrimaryRole) (PermissionSet, error) {
	perms := DefaultPermissions(primary)

	assignments, err := r.assignments.ListActiveFor(ctx, userID, r.now())
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		// The store already filters, but the predicate is the invariant,
		// not the query: apply it here as well.
		if !a.ActiveAt(r.now()) {
			continue
		}
		role, err := r.roles.Get(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		perms = perms.Union(role.PermissionSet())
	}
	return perms, nil
}

// Invalidate drops the cached set for one user.
func (r *Resolver) Invalidate(userID int64) {
	r.cache.Invalidate(userID)
}

// InvalidateAll drops every cached set.
func (r *Resolver) InvalidateAll() {
	r.cache.InvalidateAll()
}

func cacheKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
