package agent

import (
	"context"
	"sync"
	"time"
)

// DefaultAvailabilityTTL is how long a cached availability probe is trusted.
const DefaultAvailabilityTTL = 5 * time.Minute

type availabilityEntry struct {
	available bool
	checkedAt time.Time
}

// AvailabilityCache memoizes backend availability probes for a fixed TTL.
// It is an explicit injectable object, not package-level state, so tests
// and concurrent runners each get their own.
type AvailabilityCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]availabilityEntry
	now     func() time.Time
}

// NewAvailabilityCache creates a cache. A non-positive ttl selects the default.
func NewAvailabilityCache(ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = DefaultAvailabilityTTL
	}
	return &AvailabilityCache{
		ttl:     ttl,
		entries: make(map[string]availabilityEntry),
		now:     time.Now,
	}
}

// SetClock replaces the clock. Test hook.
func (c *AvailabilityCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached availability for a backend and whether a fresh
// entry existed.
func (c *AvailabilityCache) Get(name string) (available, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[name]
	if !exists || c.now().Sub(entry.checkedAt) > c.ttl {
		return false, false
	}
	return entry.available, true
}

// Set records an availability probe result.
func (c *AvailabilityCache) Set(name string, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = availabilityEntry{available: available, checkedAt: c.now()}
}

// Clear drops all cached entries.
func (c *AvailabilityCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]availabilityEntry)
}

// Check returns the backend's availability, probing it only when the cache
// has no fresh entry.
func (c *AvailabilityCache) Check(ctx context.Context, a Agent) bool {
	if available, ok := c.Get(a.Name()); ok {
		return available
	}
	available := a.IsAvailable(ctx)
	c.Set(a.Name(), available)
	return available
}
