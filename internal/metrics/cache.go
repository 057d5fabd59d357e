package metrics

import (
	"strings"
	"sync"
	"time"
)

// cacheEntry is one cached metric result plus the tags (media/party/actor
// ids) it was derived from. Tags drive proactive invalidation on writes.
type cacheEntry struct {
	result    Result
	tags      []string
	expiresAt time.Time
}

// Cache is an in-process TTL map keyed by serialized metric query. Reads
// never return expired entries; writes to any tagged entity purge every
// entry touching it so readers within one process never see pre-write
// values after a bid lands.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache builds a cache with the given entry lifetime. A non-positive ttl
// disables caching entirely.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *Cache) Get(key string) (Result, bool) {
	if c == nil || c.ttl <= 0 {
		return Result{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return Result{}, false
	}
	return entry.result, true
}

func (c *Cache) Set(key string, result Result, tags []string) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		result:    result,
		tags:      tags,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// InvalidateTags drops every entry carrying at least one of the tags.
func (c *Cache) InvalidateTags(tags ...string) {
	if c == nil || len(tags) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if hasAnyTag(entry.tags, tags) {
			delete(c.entries, key)
		}
	}
}

// Purge drops everything. Used by full rebuilds.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Cache) len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func hasAnyTag(have, want []string) bool {
	for _, tag := range want {
		for _, candidate := range have {
			if candidate == tag {
				return true
			}
		}
	}
	return false
}

func mediaTag(id string) string { return "media:" + strings.ToLower(id) }
func partyTag(id string) string { return "party:" + strings.ToLower(id) }
func actorTag(id string) string { return "actor:" + strings.ToLower(id) }
