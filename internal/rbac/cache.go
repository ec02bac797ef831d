package rbac

import (
	"sync"
	"time"
)

// PermissionCache memoizes effective permission sets per user for a
// bounded window. It is constructed once at process start and injected
// into the Resolver; mutation paths invalidate entries synchronously so
// TTL expiry is only ever a fallback, never the correctness mechanism.
type PermissionCache struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[int64]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	perms   PermissionSet
	expires time.Time
}

// NewPermissionCache constructs a cache with the given TTL.
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		ttl:   ttl,
		items: make(map[int64]cacheEntry),
		now:   time.Now,
	}
}

// Get returns the memoized set for userID if it is still fresh.
func (c *PermissionCache) Get(userID int64) (PermissionSet, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.items[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expires) {
		c.mu.Lock()
		// A concurrent Set may have refreshed the entry between the
		// locks; only drop it if it is still stale.
		if current, live := c.items[userID]; live && !c.now().Before(current.expires) {
			delete(c.items, userID)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.perms.Clone(), true
}

// Set memoizes the set for userID until TTL expiry.
func (c *PermissionCache) Set(userID int64, perms PermissionSet) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.items[userID] = cacheEntry{perms: perms.Clone(), expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops the entry for one user.
func (c *PermissionCache) Invalidate(userID int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, userID)
	c.mu.Unlock()
}

// InvalidateAll drops every entry. Used when a role edit or delete may
// affect an unknown set of users.
func (c *PermissionCache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.items = make(map[int64]cacheEntry)
	c.mu.Unlock()
}

// Len reports the number of live entries, expired or not.
func (c *PermissionCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
