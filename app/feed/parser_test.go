package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// testCache is a minimal Cache implementation: entries put during the
// test are always fresh, entries seeded into stale are only visible to
// GetStale.
type testCache struct {
	fresh map[string]*ParsedFeed
	stale map[string]*ParsedFeed
}

func newTestCache() *testCache {
	return &testCache{
		fresh: make(map[string]*ParsedFeed),
		stale: make(map[string]*ParsedFeed),
	}
}

func (c *testCache) Get(key string) (*ParsedFeed, bool) {
	f, ok := c.fresh[key]
	return f, ok
}

func (c *testCache) GetStale(key string) (*ParsedFeed, bool) {
	if f, ok := c.fresh[key]; ok {
		return f, true
	}
	f, ok := c.stale[key]
	return f, ok
}

func (c *testCache) Put(key string, f *ParsedFeed) {
	c.fresh[key] = f
}

func newTestParser(cache Cache) *Parser {
	fetcher := NewFetcher(nil, "Feedscope-Test/1.0")
	return NewParser(fetcher, cache, NewImageResolver(fetcher, nil))
}

func rssDocument(items ...string) string {
	return `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <language>en-us</language>
    ` + strings.Join(items, "\n") + `
  </channel>
</rss>`
}

func serveBody(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestParseNormalization(t *testing.T) {
	body := rssDocument(`
    <item>
      <title>First Item</title>
      <link>https://example.com/item1</link>
      <guid>item-1</guid>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
      <description>A short description</description>
      <enclosure url="https://example.com/audio.mp3" length="1234" type="audio/mpeg"/>
    </item>
    <item>
      <link>https://example.com/item2</link>
      <description>Second item description</description>
    </item>`)
	server := serveBody(t, body)

	parser := newTestParser(newTestCache())
	parsed, err := parser.Parse(context.Background(), server.URL, Options{Fast: true})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if parsed.Title != "Test Feed" {
		t.Errorf("Expected title 'Test Feed', got: %s", parsed.Title)
	}
	if parsed.Language != "en-US" {
		t.Errorf("Expected canonical language 'en-US', got: %s", parsed.Language)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("Expected 2 items, got: %d", len(parsed.Items))
	}

	first := parsed.Items[0]
	if first.ID != "item-1" {
		t.Errorf("Expected GUID-derived id 'item-1', got: %s", first.ID)
	}
	if first.PubDate != "2023-07-03T10:00:00Z" {
		t.Errorf("Expected RFC3339 pubDate, got: %s", first.PubDate)
	}
	if first.Enclosure == nil || first.Enclosure.URL != "https://example.com/audio.mp3" {
		t.Fatalf("Expected enclosure passthrough, got: %+v", first.Enclosure)
	}
	if first.Enclosure.Length != 1234 {
		t.Errorf("Expected enclosure length 1234, got: %d", first.Enclosure.Length)
	}
	if first.ContentSnippet != "A short description" {
		t.Errorf("Expected description snippet, got: %s", first.ContentSnippet)
	}

	second := parsed.Items[1]
	if second.ID != "https://example.com/item2-1" {
		t.Errorf("Expected synthesized id from link and index, got: %s", second.ID)
	}
	if second.Title != "Untitled" {
		t.Errorf("Expected placeholder title 'Untitled', got: %s", second.Title)
	}
	if second.PubDate != "" {
		t.Errorf("Expected empty pubDate for undated item, got: %s", second.PubDate)
	}
}

func TestParseMaxItemsTruncation(t *testing.T) {
	var items []string
	for i := 0; i < 100; i++ {
		items = append(items, fmt.Sprintf(`
    <item>
      <title>Item %d</title>
      <link>https://example.com/item%d</link>
      <guid>item-%d</guid>
    </item>`, i, i, i))
	}
	server := serveBody(t, rssDocument(items...))

	parser := newTestParser(newTestCache())
	parsed, err := parser.Parse(context.Background(), server.URL, Options{Fast: true, MaxItems: 20})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(parsed.Items) != 20 {
		t.Fatalf("Expected exactly 20 items, got: %d", len(parsed.Items))
	}
	for i, item := range parsed.Items {
		expected := fmt.Sprintf("Item %d", i)
		if item.Title != expected {
			t.Errorf("Expected item %d to be %q, got: %s", i, expected, item.Title)
		}
	}
}

func TestParseCacheFreshness(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, rssDocument(`<item><title>Cached</title><link>https://example.com/a</link></item>`))
	}))
	defer server.Close()

	parser := newTestParser(newTestCache())
	opts := Options{Fast: true}

	first, err := parser.Parse(context.Background(), server.URL, opts)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	second, err := parser.Parse(context.Background(), server.URL, opts)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := requests.Load(); got != 1 {
		t.Errorf("Expected exactly one network fetch, got: %d", got)
	}
	if first != second {
		t.Error("Expected the cached feed to be returned on the second call")
	}
}

func TestParseStaleFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cache := newTestCache()
	staleFeed := &ParsedFeed{Title: "Stale Copy"}
	opts := Options{Fast: true}
	cache.stale[opts.cacheKey(server.URL)] = staleFeed

	parser := newTestParser(cache)
	parsed, err := parser.Parse(context.Background(), server.URL, opts)
	if err != nil {
		t.Fatalf("Expected stale fallback, got error: %v", err)
	}
	if parsed != staleFeed {
		t.Error("Expected the stale cache entry to be served")
	}
}

func TestParseFetchErrorWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	parser := newTestParser(newTestCache())
	_, err := parser.Parse(context.Background(), server.URL, Options{Fast: true})
	if err == nil {
		t.Fatal("Expected error when fetch fails and no cache entry exists")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got: %T", err)
	}
	if fetchErr.Status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got: %d", fetchErr.Status)
	}
}

func TestParseInvalidBody(t *testing.T) {
	server := serveBody(t, "this is not a feed")

	parser := newTestParser(newTestCache())
	_, err := parser.Parse(context.Background(), server.URL, Options{Fast: true})
	if err == nil {
		t.Fatal("Expected error for unparseable body")
	}

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Expected ParseError, got: %T", err)
	}
}

func TestParseEmptyFeed(t *testing.T) {
	server := serveBody(t, rssDocument())

	parser := newTestParser(newTestCache())
	parsed, err := parser.Parse(context.Background(), server.URL, Options{Fast: true})
	if err != nil {
		t.Fatalf("Expected empty feed to be a valid result, got: %v", err)
	}
	if len(parsed.Items) != 0 {
		t.Errorf("Expected 0 items, got: %d", len(parsed.Items))
	}
}

func TestParseOpenGraphEnrichment(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head>
<meta property="og:image" content="https://cdn.example.com/hero.jpg"/>
<meta property="og:description" content="A much longer description pulled from the article page itself."/>
</head><body></body></html>`)
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssDocument(fmt.Sprintf(`
    <item>
      <title>Enriched</title>
      <link>%s/article</link>
      <guid>enriched-1</guid>
      <description>short</description>
    </item>`, server.URL)))
	})

	parser := newTestParser(newTestCache())
	parsed, err := parser.Parse(context.Background(), server.URL+"/feed", Options{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(parsed.Items) != 1 {
		t.Fatalf("Expected 1 item, got: %d", len(parsed.Items))
	}

	item := parsed.Items[0]
	if item.Image != "https://cdn.example.com/hero.jpg" {
		t.Errorf("Expected OG image enrichment, got: %s", item.Image)
	}
	if !strings.Contains(item.ContentSnippet, "longer description") {
		t.Errorf("Expected OG description enrichment, got: %s", item.ContentSnippet)
	}
}
