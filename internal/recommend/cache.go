package recommend

import (
	"sync"
	"time"

	"github.com/studysync/feedrank/internal/event"
)

// DefaultCacheTTL is how long a generated list stays fresh.
const DefaultCacheTTL = 60 * time.Second

// cache holds per-user recommendation lists with a purely time-based TTL.
// A fresh interaction does not invalidate an entry; staleness is bounded by
// the TTL alone.
type cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	posts     []event.RecommendedPost
	expiresAt time.Time
}

func newCache(ttl time.Duration) *cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &cache{
		ttl:     ttl,
		entries: make(map[int64]cacheEntry),
		now:     time.Now,
	}
}

// get returns the cached list for the user, or nil when absent or expired.
// Expired entries are dropped on read.
func (c *cache) get(userID int64) []event.RecommendedPost {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[userID]
	if !ok {
		return nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, userID)
		return nil
	}
	return entry.posts
}

func (c *cache) put(userID int64, posts []event.RecommendedPost) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{
		posts:     posts,
		expiresAt: c.now().Add(c.ttl),
	}
}
