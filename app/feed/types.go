package feed

import (
	"fmt"
	"time"
)

// Enclosure carries an RSS enclosure through unmodified.
type Enclosure struct {
	URL    string `json:"url"`
	Type   string `json:"type,omitempty"`
	Length int64  `json:"length,omitempty"`
}

// Article is one normalized feed entry. Field names are part of the
// client contract: clients key their caches by feed URL and article id.
type Article struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Link           string     `json:"link,omitempty"`
	PubDate        string     `json:"pubDate,omitempty"`
	ContentSnippet string     `json:"contentSnippet,omitempty"`
	Image          string     `json:"image,omitempty"`
	Enclosure      *Enclosure `json:"enclosure,omitempty"`

	// published is the parsed pubDate used for merge sorting; zero when
	// the feed provided no parseable date.
	published time.Time
}

// PublishedAt exposes the parsed publication time; zero when absent.
func (a Article) PublishedAt() time.Time {
	return a.published
}

type ParsedFeed struct {
	Title    string    `json:"title,omitempty"`
	Link     string    `json:"link,omitempty"`
	Image    string    `json:"image,omitempty"`
	Language string    `json:"language,omitempty"`
	Items    []Article `json:"items"`
}

// Options selects the parse profile. Zero values fall back to the
// profile defaults: fast caps at 20 items with a 4s timeout and no OG
// enrichment, full caps at 60 items with a 10s timeout and enrichment on.
type Options struct {
	Fast        bool
	MaxItems    int
	Timeout     time.Duration
	EnrichOG    *bool
	UnsplashKey string
}

const (
	fastMaxItems = 20
	fullMaxItems = 60

	fastTimeout = 4 * time.Second
	fullTimeout = 10 * time.Second
)

func (o Options) maxItems() int {
	if o.MaxItems > 0 {
		return o.MaxItems
	}
	if o.Fast {
		return fastMaxItems
	}
	return fullMaxItems
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	if o.Fast {
		return fastTimeout
	}
	return fullTimeout
}

func (o Options) enrichOG() bool {
	if o.EnrichOG != nil {
		return *o.EnrichOG
	}
	return !o.Fast
}

func (o Options) stockFallback() bool {
	return !o.Fast && o.UnsplashKey != ""
}

func (o Options) profile() string {
	if o.Fast {
		return "fast"
	}
	return "full"
}

func (o Options) cacheKey(url string) string {
	return fmt.Sprintf("%s|%s|%d", url, o.profile(), o.maxItems())
}
