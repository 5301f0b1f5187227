package cache

import (
	"sync"
	"time"
)

// BoolTTL is a small concurrency-safe cache mapping string keys to booleans
// with per-entry expiry. It is constructed once at process startup and
// injected into whichever component needs it; nothing in this package holds
// package-level state.
type BoolTTL struct {
	mu    sync.RWMutex
	items map[string]entry

	// now is overridable in tests.
	now func() time.Time
}

type entry struct {
	value     bool
	expiresAt time.Time
}

// NewBoolTTL returns an empty cache.
func NewBoolTTL() *BoolTTL {
	return &BoolTTL{items: make(map[string]entry), now: time.Now}
}

// Get returns the cached value and whether a live entry exists. Expired
// entries are treated as absent and dropped lazily.
func (c *BoolTTL) Get(key string) (bool, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return false, false
	}
	return e.value, true
}

// Put stores value under key until expiresAt.
func (c *BoolTTL) Put(key string, value bool, expiresAt time.Time) {
	c.mu.Lock()
	c.items[key] = entry{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}
