package feed

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/language"
)

// Cache is the slice of the feed cache the parser needs. Implemented by
// app/cache.FeedCache.
type Cache interface {
	Get(key string) (*ParsedFeed, bool)
	GetStale(key string) (*ParsedFeed, bool)
	Put(key string, f *ParsedFeed)
}

type Parser struct {
	fetcher *Fetcher
	cache   Cache
	gofeed  *gofeed.Parser
	images  *ImageResolver
}

func NewParser(fetcher *Fetcher, cache Cache, images *ImageResolver) *Parser {
	return &Parser{
		fetcher: fetcher,
		cache:   cache,
		gofeed:  gofeed.NewParser(),
		images:  images,
	}
}

// Parse fetches and normalizes one feed. A fresh cache entry skips the
// network entirely; after a fetch or parse failure an entry younger than
// the stale bound is served as a degraded success.
func (p *Parser) Parse(ctx context.Context, url string, opts Options) (*ParsedFeed, error) {
	key := opts.cacheKey(url)

	if cached, ok := p.cache.Get(key); ok {
		slog.Debug("Feed cache hit", "url", url, "profile", opts.profile())
		return cached, nil
	}

	data, err := p.fetcher.Fetch(ctx, url, opts.timeout())
	if err != nil {
		return p.staleOr(key, url, err)
	}

	parsed, err := p.gofeed.Parse(bytes.NewReader(data))
	if err != nil {
		return p.staleOr(key, url, &ParseError{URL: url, Err: err})
	}

	rawItems := parsed.Items
	if max := opts.maxItems(); len(rawItems) > max {
		rawItems = rawItems[:max]
	}

	out := &ParsedFeed{
		Title: parsed.Title,
		Link:  parsed.Link,
		Items: make([]Article, 0, len(rawItems)),
	}
	if parsed.Image != nil {
		out.Image = parsed.Image.URL
	}
	out.Language = canonicalLanguage(parsed.Language)

	for i, item := range rawItems {
		out.Items = append(out.Items, p.normalizeItem(ctx, item, i, opts))
	}

	p.cache.Put(key, out)

	slog.Debug("Feed parsed", "url", url, "profile", opts.profile(), "items", len(out.Items))

	return out, nil
}

func (p *Parser) staleOr(key, url string, err error) (*ParsedFeed, error) {
	if stale, ok := p.cache.GetStale(key); ok {
		slog.Warn("Serving stale feed after fetch failure", "url", url, "error", err)
		return stale, nil
	}
	return nil, err
}

func (p *Parser) normalizeItem(ctx context.Context, item *gofeed.Item, index int, opts Options) Article {
	article := Article{
		ID:    cmp.Or(item.GUID, fmt.Sprintf("%s-%d", item.Link, index)),
		Title: cmp.Or(strings.TrimSpace(item.Title), "Untitled"),
		Link:  item.Link,
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published != nil {
		article.published = *published
		article.PubDate = published.Format(time.RFC3339)
	}

	// Pass the first enclosure through unmodified (RSS 2.0 allows one).
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil && item.Enclosures[0].URL != "" {
		enc := item.Enclosures[0]
		article.Enclosure = &Enclosure{URL: enc.URL, Type: enc.Type}
		if enc.Length != "" {
			if length, err := strconv.ParseInt(enc.Length, 10, 64); err == nil {
				article.Enclosure.Length = length
			}
		}
	}

	article.Image = p.images.Resolve(ctx, item, imageOptions{
		enrichOG:    opts.enrichOG(),
		stock:       opts.stockFallback(),
		unsplashKey: opts.UnsplashKey,
	})

	article.ContentSnippet = p.resolveSnippet(ctx, item, opts.enrichOG())

	return article
}

func canonicalLanguage(lang string) string {
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	return tag.String()
}
