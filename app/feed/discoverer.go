package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultDiscoveryBudget  = 20 * time.Second
	discoveryFetchTimeout   = 5 * time.Second
	discoveryAttemptFloor   = 3 * time.Second
	discoveryAttemptCeiling = 5 * time.Second
	discoveryMaxItems       = 5
)

// Conventional feed locations probed relative to the page origin.
var conventionalFeedPaths = []string{
	"/feed",
	"/feed.xml",
	"/rss",
	"/rss.xml",
	"/atom.xml",
	"/feed/atom",
	"/index.xml",
	"/feeds/posts/default",
	"/blog/feed",
	"/blog/rss.xml",
}

var sectionLinkPattern = regexp.MustCompile(`(?i)/(news|blog|press|updates|articles)(/|$)`)

// Discovery is the outcome of locating a machine-readable feed.
type Discovery struct {
	FeedURL string `json:"feed_url"`
	Title   string `json:"title,omitempty"`
}

// Discoverer locates the actual feed URL behind an arbitrary page URL.
// Candidates are validated by parsing them, not by trusting content
// types or link text, so a page merely mentioning "rss" cannot win.
type Discoverer struct {
	fetcher *Fetcher
	parser  *Parser
}

func NewDiscoverer(fetcher *Fetcher, parser *Parser) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		parser:  parser,
	}
}

// Discover builds an ordered candidate set (input URL, conventional
// paths, alternate links, feed-ish anchors, one sub-page's alternates)
// and returns the first candidate that parses to at least one item.
// Candidates are tried sequentially: the first success short-circuits
// the rest, which concurrent probing could not guarantee.
func (d *Discoverer) Discover(ctx context.Context, pageURL string, budget time.Duration) (*Discovery, error) {
	if budget <= 0 {
		budget = defaultDiscoveryBudget
	}
	deadline := time.Now().Add(budget)

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid page URL %q", pageURL)
	}

	candidates := newCandidateList()
	candidates.add(pageURL)

	origin := base.Scheme + "://" + base.Host
	for _, path := range conventionalFeedPaths {
		candidates.add(origin + path)
	}

	d.collectPageCandidates(ctx, candidates, pageURL, base, true)

	for _, candidate := range candidates.urls {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			slog.Debug("Discovery budget exhausted", "page", pageURL, "tried", candidates.tried)
			break
		}

		timeout := remaining
		if timeout < discoveryAttemptFloor {
			timeout = discoveryAttemptFloor
		}
		if timeout > discoveryAttemptCeiling {
			timeout = discoveryAttemptCeiling
		}

		candidates.tried++
		parsed, err := d.parser.Parse(ctx, candidate, Options{
			Fast:     true,
			MaxItems: discoveryMaxItems,
			Timeout:  timeout,
		})
		if err != nil {
			slog.Debug("Discovery candidate failed", "candidate", candidate, "error", err)
			continue
		}
		if len(parsed.Items) > 0 {
			slog.Debug("Feed discovered", "page", pageURL, "feed", candidate)
			return &Discovery{FeedURL: candidate, Title: parsed.Title}, nil
		}
	}

	return nil, ErrNoFeedFound
}

// collectPageCandidates fetches an HTML page and extends the candidate
// list with its alternate links and feed-ish anchors. When followSection
// is set, one same-origin news/blog-style page is fetched too, one level
// deep, to cap latency.
func (d *Discoverer) collectPageCandidates(ctx context.Context, candidates *candidateList, pageURL string, base *url.URL, followSection bool) {
	doc, err := d.fetcher.FetchHTML(ctx, pageURL, discoveryFetchTimeout)
	if err != nil {
		slog.Debug("Discovery page fetch failed", "url", pageURL, "error", err)
		return
	}

	doc.Find(`link[rel="alternate"]`).Each(func(_ int, link *goquery.Selection) {
		linkType, _ := link.Attr("type")
		linkType = strings.ToLower(linkType)
		if !strings.Contains(linkType, "rss") && !strings.Contains(linkType, "atom") && !strings.Contains(linkType, "xml") {
			return
		}
		if href, ok := link.Attr("href"); ok {
			candidates.add(resolveHref(base, href))
		}
	})

	// High recall, low precision: anything with rss/atom/feed in the
	// href is a candidate because candidates are validated, not trusted.
	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		lowered := strings.ToLower(href)
		if strings.Contains(lowered, "rss") || strings.Contains(lowered, "atom") || strings.Contains(lowered, "feed") {
			candidates.add(resolveHref(base, href))
		}
	})

	if !followSection {
		return
	}

	if section := d.sectionLink(doc, base); section != "" {
		d.collectPageCandidates(ctx, candidates, section, base, false)
	}
}

// sectionLink picks one same-origin anchor that looks like a news or
// blog section.
func (d *Discoverer) sectionLink(doc *goquery.Document, base *url.URL) string {
	var section string
	doc.Find("a[href]").EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		href, _ := anchor.Attr("href")
		resolved := resolveHref(base, href)
		if resolved == "" {
			return true
		}
		u, err := url.Parse(resolved)
		if err != nil || u.Host != base.Host {
			return true
		}
		if sectionLinkPattern.MatchString(u.Path) {
			section = resolved
			return false
		}
		return true
	})
	return section
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// candidateList is an insertion-ordered, deduplicating URL list. The
// explicit ordering keeps the first-success winner deterministic.
type candidateList struct {
	urls  []string
	seen  map[string]struct{}
	tried int
}

func newCandidateList() *candidateList {
	return &candidateList{seen: make(map[string]struct{})}
}

func (c *candidateList) add(u string) {
	if u == "" {
		return
	}
	if _, ok := c.seen[u]; ok {
		return
	}
	c.seen[u] = struct{}{}
	c.urls = append(c.urls, u)
}
