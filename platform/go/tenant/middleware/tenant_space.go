// Package middleware resolves the requesting school and attaches its
// routing metadata to the request context.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

// HeaderTenantID carries the tenant UUID resolved by the upstream gateway.
const HeaderTenantID = "X-Tenant-ID"

// Resolver is the minimal lookup capability required to populate a tenant
// Space. Implemented by the tenant directory service; it must only resolve
// ready tenants.
type Resolver interface {
	ResolveSpace(ctx context.Context, tenantID uuid.UUID) (tenant.Space, error)
}

// Config controls middleware behavior.
type Config struct {
	// CacheTTL enables a small in-memory cache of resolved spaces to avoid
	// a directory lookup per request; zero disables caching.
	CacheTTL time.Duration
}

// WithTenantSpace resolves the tenant named by the X-Tenant-ID header and
// attaches its Space to the request context. Requests without a resolvable,
// ready tenant are rejected before reaching any handler that touches tenant
// data.
func WithTenantSpace(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}

	var cache *spaceCache
	if cfg.CacheTTL > 0 {
		cache = newSpaceCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderTenantID)
			if raw == "" {
				http.Error(w, "tenant required", http.StatusUnauthorized)
				return
			}
			tid, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid tenant id", http.StatusUnauthorized)
				return
			}

			if space, ok := cache.get(tid); ok {
				next.ServeHTTP(w, r.WithContext(tenant.WithSpace(r.Context(), space)))
				return
			}

			space, err := resolver.ResolveSpace(r.Context(), tid)
			if err != nil {
				http.Error(w, "tenant not found", http.StatusUnauthorized)
				return
			}
			cache.put(space)

			next.ServeHTTP(w, r.WithContext(tenant.WithSpace(r.Context(), space)))
		})
	}
}

type spaceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[uuid.UUID]cachedSpace
}

type cachedSpace struct {
	space     tenant.Space
	expiresAt time.Time
}

func newSpaceCache(ttl time.Duration) *spaceCache {
	return &spaceCache{ttl: ttl, entries: make(map[uuid.UUID]cachedSpace)}
}

// get is nil-safe so a disabled cache needs no branching at call sites.
func (c *spaceCache) get(id uuid.UUID) (tenant.Space, bool) {
	if c == nil {
		return tenant.Space{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return tenant.Space{}, false
	}
	return entry.space, true
}

func (c *spaceCache) put(space tenant.Space) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[space.TenantID] = cachedSpace{space: space, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
