package feed

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	aggregateMaxItems = 60
	aggregateTimeout  = 5 * time.Second
)

// Aggregator merges many feeds into one time-sorted sequence. Individual
// feed failures contribute nothing; the merge itself never fails.
type Aggregator struct {
	parser *Parser
	images *ImageResolver
}

func NewAggregator(parser *Parser, images *ImageResolver) *Aggregator {
	return &Aggregator{
		parser: parser,
		images: images,
	}
}

type fetchOutcome struct {
	url  string
	feed *ParsedFeed
	err  error
}

// Aggregate fetches all feeds concurrently in the fast profile, flattens
// the successes, drops shorts and duplicate ids, and sorts by descending
// publication time. Undated items sort last, preserving their collection
// order.
func (a *Aggregator) Aggregate(ctx context.Context, urls []string) []Article {
	items := a.fetchAll(ctx, urls)
	items = dropShortFormVideos(items)
	items = dedupeByID(items)
	sortByDateDesc(items)
	return items
}

// fetchAll fans out one goroutine per feed and collects every outcome.
// One slow or failing feed never blocks or cancels its siblings.
func (a *Aggregator) fetchAll(ctx context.Context, urls []string) []Article {
	if len(urls) == 0 {
		return nil
	}

	results := make(chan fetchOutcome, len(urls))

	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			parsed, err := a.parser.Parse(ctx, u, Options{
				Fast:     true,
				MaxItems: aggregateMaxItems,
				Timeout:  aggregateTimeout,
			})
			results <- fetchOutcome{url: u, feed: parsed, err: err}
		}(u)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var items []Article
	for outcome := range results {
		if outcome.err != nil {
			slog.Warn("Feed skipped in aggregation", "url", outcome.url, "error", outcome.err)
			continue
		}
		items = append(items, outcome.feed.Items...)
	}
	return items
}

// DigestOptions tunes the time-windowed digest variant.
type DigestOptions struct {
	Window         time.Duration // how far back items may date, default 24h
	MaxScan        int           // cap on items considered, default 300
	BatchSize      int           // feeds fetched per concurrent batch, default 4
	Budget         time.Duration // wall-clock budget across batches, default 15s
	BackfillImages int           // missing images backfilled via page fetch, default 8
}

func (o DigestOptions) withDefaults() DigestOptions {
	if o.Window <= 0 {
		o.Window = 24 * time.Hour
	}
	if o.MaxScan <= 0 {
		o.MaxScan = 300
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 4
	}
	if o.Budget <= 0 {
		o.Budget = 15 * time.Second
	}
	if o.BackfillImages <= 0 {
		o.BackfillImages = 8
	}
	return o
}

// Digest produces a "today" view: feeds are fetched in small concurrent
// batches under a wall-clock budget (remaining batches are abandoned,
// not failed, once it runs out), items are windowed to the recent
// period, and a bounded subset of the result gets a best-effort image
// backfill.
func (a *Aggregator) Digest(ctx context.Context, urls []string, opts DigestOptions) []Article {
	opts = opts.withDefaults()

	start := time.Now()
	cutoff := start.Add(-opts.Window)

	var items []Article
	for batchStart := 0; batchStart < len(urls); batchStart += opts.BatchSize {
		if time.Since(start) > opts.Budget {
			slog.Warn("Digest budget exhausted, abandoning remaining feeds",
				"fetched", batchStart, "total", len(urls))
			break
		}
		batchEnd := min(batchStart+opts.BatchSize, len(urls))
		items = append(items, a.fetchAll(ctx, urls[batchStart:batchEnd])...)
		if len(items) >= opts.MaxScan {
			items = items[:opts.MaxScan]
			break
		}
	}

	windowed := items[:0:0]
	for _, item := range items {
		if item.published.After(cutoff) {
			windowed = append(windowed, item)
		}
	}

	windowed = dropShortFormVideos(windowed)
	windowed = dedupeByID(windowed)
	sortByDateDesc(windowed)
	a.backfillImages(ctx, windowed, opts.BackfillImages)

	return windowed
}

// backfillImages fills missing images for at most limit items via a
// secondary page fetch. Best effort; failures leave the field empty.
func (a *Aggregator) backfillImages(ctx context.Context, items []Article, limit int) {
	filled := 0
	for i := range items {
		if filled >= limit {
			return
		}
		if items[i].Image != "" || items[i].Link == "" {
			continue
		}
		filled++
		if u := a.images.PageImage(ctx, items[i].Link); u != "" {
			items[i].Image = u
		}
	}
}

// sortByDateDesc is stable: equal timestamps (including the zero time of
// undated items) keep their relative collection order.
func sortByDateDesc(items []Article) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].published.After(items[j].published)
	})
}

func dedupeByID(items []Article) []Article {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}

var shortsTitlePattern = regexp.MustCompile(`(?i)#shorts?\b`)

// dropShortFormVideos filters items recognized as short-form video by a
// /shorts/ path segment or a title/snippet marker.
func dropShortFormVideos(items []Article) []Article {
	out := items[:0:0]
	for _, item := range items {
		if isShortFormVideo(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func isShortFormVideo(item Article) bool {
	if u, err := url.Parse(item.Link); err == nil {
		for _, segment := range strings.Split(u.Path, "/") {
			if segment == "shorts" {
				return true
			}
		}
	}
	return shortsTitlePattern.MatchString(item.Title) || shortsTitlePattern.MatchString(item.ContentSnippet)
}
