package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/feedscope/feedscope/app/feed"
)

func newTestCache() (*FeedCache, *time.Time) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(FreshTTL, StaleTTL, func() time.Time { return now })
	return c, &now
}

func TestGetFreshEntry(t *testing.T) {
	c, now := newTestCache()
	parsed := &feed.ParsedFeed{Title: "Fresh"}
	c.Put("key", parsed)

	*now = now.Add(29 * time.Minute)

	got, ok := c.Get("key")
	assert.True(t, ok)
	assert.Same(t, parsed, got)
}

func TestGetMissesAtFreshBoundary(t *testing.T) {
	c, now := newTestCache()
	c.Put("key", &feed.ParsedFeed{Title: "Aging"})

	*now = now.Add(FreshTTL)

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestGetStaleServesExpiredEntry(t *testing.T) {
	c, now := newTestCache()
	parsed := &feed.ParsedFeed{Title: "Stale"}
	c.Put("key", parsed)

	*now = now.Add(5 * time.Hour)

	_, ok := c.Get("key")
	assert.False(t, ok, "entry should no longer be fresh")

	got, ok := c.GetStale("key")
	assert.True(t, ok)
	assert.Same(t, parsed, got)
}

func TestGetStaleMissesAtStaleBoundary(t *testing.T) {
	c, now := newTestCache()
	c.Put("key", &feed.ParsedFeed{Title: "Ancient"})

	*now = now.Add(StaleTTL)

	_, ok := c.GetStale("key")
	assert.False(t, ok)
}

func TestGetUnknownKey(t *testing.T) {
	c, _ := newTestCache()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	_, ok = c.GetStale("missing")
	assert.False(t, ok)
}

func TestPutOverwritesEntry(t *testing.T) {
	c, now := newTestCache()
	c.Put("key", &feed.ParsedFeed{Title: "Old"})

	*now = now.Add(5 * time.Hour)
	replacement := &feed.ParsedFeed{Title: "New"}
	c.Put("key", replacement)

	got, ok := c.Get("key")
	assert.True(t, ok, "overwrite should reset the entry age")
	assert.Same(t, replacement, got)
	assert.Equal(t, 1, c.Len())
}

func TestEvictExpired(t *testing.T) {
	c, now := newTestCache()
	c.Put("old-1", &feed.ParsedFeed{})
	c.Put("old-2", &feed.ParsedFeed{})

	*now = now.Add(StaleTTL)
	c.Put("recent", &feed.ParsedFeed{})

	evicted := c.EvictExpired()
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 1, c.Len())

	_, ok := c.GetStale("recent")
	assert.True(t, ok)
}

func TestNewDefaults(t *testing.T) {
	c := New(0, 0, nil)
	c.Put("key", &feed.ParsedFeed{Title: "Defaults"})

	got, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "Defaults", got.Title)
}
