package cache

import (
	"sync"
	"time"

	"github.com/feedscope/feedscope/app/feed"
)

const (
	// FreshTTL is how long a cached parse is served without refetching.
	FreshTTL = 30 * time.Minute
	// StaleTTL bounds how old an entry may be and still be served as a
	// degraded fallback after a failed fetch.
	StaleTTL = 6 * time.Hour
)

// Clock returns the current time; injectable so tests can move time.
type Clock func() time.Time

type entry struct {
	savedAt time.Time
	feed    *feed.ParsedFeed
}

// FeedCache is the process-lifetime feed cache. Entries are overwritten
// on every successful parse and evicted only by replacement or an
// explicit EvictExpired call.
type FeedCache struct {
	mu       sync.RWMutex
	entries  map[string]entry
	freshTTL time.Duration
	staleTTL time.Duration
	now      Clock
}

func New(freshTTL, staleTTL time.Duration, now Clock) *FeedCache {
	if freshTTL <= 0 {
		freshTTL = FreshTTL
	}
	if staleTTL <= 0 {
		staleTTL = StaleTTL
	}
	if now == nil {
		now = time.Now
	}
	return &FeedCache{
		entries:  make(map[string]entry),
		freshTTL: freshTTL,
		staleTTL: staleTTL,
		now:      now,
	}
}

// Get returns the cached feed when it is still fresh.
func (c *FeedCache) Get(key string) (*feed.ParsedFeed, bool) {
	return c.get(key, c.freshTTL)
}

// GetStale returns the cached feed when it is younger than the stale
// bound, regardless of freshness. Used as a fallback after fetch errors.
func (c *FeedCache) GetStale(key string) (*feed.ParsedFeed, bool) {
	return c.get(key, c.staleTTL)
}

func (c *FeedCache) get(key string, maxAge time.Duration) (*feed.ParsedFeed, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.savedAt) >= maxAge {
		return nil, false
	}
	return e.feed, true
}

func (c *FeedCache) Put(key string, f *feed.ParsedFeed) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{savedAt: c.now(), feed: f}
}

// EvictExpired removes entries past the stale bound and reports how
// many were dropped.
func (c *FeedCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.staleTTL)
	evicted := 0
	for key, e := range c.entries {
		if e.savedAt.Before(cutoff) || e.savedAt.Equal(cutoff) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

func (c *FeedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
