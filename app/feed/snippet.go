package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	snippetMaxLen        = 280
	contentSnippetMaxLen = 240
	shortSnippetLen      = 30
	minParagraphLen      = 40
)

// Hosts whose feed descriptions are routinely useless boilerplate; their
// items go straight to page enrichment.
var lowQualityDescriptionHosts = map[string]bool{
	"news.google.com":      true,
	"www.reddit.com":       true,
	"old.reddit.com":       true,
	"feedproxy.google.com": true,
}

// resolveSnippet derives a short plain-text excerpt: the feed's own
// description first, stripped item content second, and a best-effort
// page fetch (OG description, JSON-LD, first paragraph) when enrichment
// is on and the snippet is too short or the host is known to be poor.
func (p *Parser) resolveSnippet(ctx context.Context, item *gofeed.Item, enrich bool) string {
	snippet := plainText(item.Description)
	if snippet == "" {
		snippet = truncate(plainText(item.Content), contentSnippetMaxLen)
	}

	if enrich && item.Link != "" && (len(snippet) < shortSnippetLen || lowQualityDescriptionHosts[hostOf(item.Link)]) {
		if better := p.pageDescription(ctx, item.Link); len(better) > len(snippet) {
			snippet = better
		}
	}

	return truncate(snippet, snippetMaxLen)
}

// pageDescription fetches the article page and reads, in order, Open
// Graph / meta descriptions, JSON-LD descriptions, and the first
// substantial paragraph. Failures degrade to "".
func (p *Parser) pageDescription(ctx context.Context, pageURL string) string {
	doc, err := p.fetcher.FetchHTML(ctx, pageURL, pageFetchTimeout)
	if err != nil {
		slog.Debug("Snippet enrichment fetch failed", "url", pageURL, "error", err)
		return ""
	}

	for _, sel := range []string{
		`meta[property="og:description"]`,
		`meta[name="description"]`,
		`meta[name="twitter:description"]`,
	} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if s := collapseWhitespace(content); s != "" {
				return s
			}
		}
	}

	if s := jsonLDDescription(doc); s != "" {
		return s
	}

	var paragraph string
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if text := collapseWhitespace(sel.Text()); len(text) >= minParagraphLen {
			paragraph = text
			return false
		}
		return true
	})
	return paragraph
}

// jsonLDDescription walks embedded JSON-LD, which arrives as objects,
// arrays of objects, or @graph wrappers.
func jsonLDDescription(doc *goquery.Document) string {
	var description string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(sel.Text()), &v); err != nil {
			return true
		}
		if d := ldDescription(v); d != "" {
			description = collapseWhitespace(d)
			return false
		}
		return true
	})
	return description
}

func ldDescription(v any) string {
	switch node := v.(type) {
	case map[string]any:
		if d, ok := node["description"].(string); ok && strings.TrimSpace(d) != "" {
			return d
		}
		if graph, ok := node["@graph"]; ok {
			return ldDescription(graph)
		}
	case []any:
		for _, element := range node {
			if d := ldDescription(element); d != "" {
				return d
			}
		}
	}
	return ""
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// plainText strips HTML tags and collapses whitespace.
func plainText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "<") {
		return collapseWhitespace(raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return collapseWhitespace(raw)
	}
	return collapseWhitespace(doc.Text())
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
