package feed

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	extractTimeout    = 10 * time.Second
	minReadableLength = 250
	headingScoreBound = 80
)

// ReaderView is the cleaned article content handed to the summarization
// collaborator and the reader UI.
type ReaderView struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
	HTML  string `json:"html,omitempty"`
	Image string `json:"image,omitempty"`
}

// Extractor pulls readable body text out of article pages. Readability
// does the heavy lifting; a selector list and a scored block scan cover
// pages it cannot handle.
type Extractor struct {
	fetcher *Fetcher
}

func NewExtractor(fetcher *Fetcher) *Extractor {
	return &Extractor{fetcher: fetcher}
}

var contentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".post-content",
	".entry-content",
	".article-body",
	".article-content",
	"#content",
	".content",
}

// Extract fetches pageURL and returns its reader view.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*ReaderView, error) {
	data, _, err := e.fetcher.fetch(ctx, pageURL, extractTimeout)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: err}
	}

	view := &ReaderView{URL: pageURL}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err == nil && len(collapseWhitespace(article.TextContent)) >= minReadableLength {
		view.Title = article.Title
		view.Text = collapseWhitespace(article.TextContent)
		view.HTML = sanitizeHTML(article.Content, base)
		view.Image = article.Image
	} else {
		selection := contentSelection(doc)
		if selection == nil {
			return nil, &ParseError{URL: pageURL, Err: errors.New("no readable content")}
		}
		view.Title = collapseWhitespace(doc.Find("title").First().Text())
		view.Text = collapseWhitespace(selection.Text())
		if fragment, err := goquery.OuterHtml(selection); err == nil {
			view.HTML = sanitizeHTML(fragment, base)
		}
	}

	if view.Text == "" {
		return nil, &ParseError{URL: pageURL, Err: errors.New("no readable content")}
	}

	view.Image = cmp.Or(view.Image, BestPageImage(doc, pageURL))

	return view, nil
}

// contentSelection strips non-content elements, tries the likely
// container selectors, and falls back to the scored block scan.
func contentSelection(doc *goquery.Document) *goquery.Selection {
	doc.Find("script,style,noscript,nav,header,footer,form,iframe,aside,object,embed").Remove()

	for _, selector := range contentSelectors {
		candidate := doc.Find(selector).First()
		if candidate.Length() == 0 {
			continue
		}
		if len(collapseWhitespace(candidate.Text())) >= minReadableLength {
			return candidate
		}
	}

	var best *goquery.Selection
	bestScore := 0.0
	doc.Find("p,div,section,td").Each(func(_ int, block *goquery.Selection) {
		text := collapseWhitespace(block.Text())
		linkText := collapseWhitespace(block.Find("a").Text())
		headingText := collapseWhitespace(block.Find("h1,h2,h3").Text())

		if score := blockScore(len(text), len(linkText), len(headingText)); score > bestScore {
			bestScore = score
			best = block
		}
	})
	return best
}

// blockScore rewards text volume, penalizes link-heavy navigation
// blocks, and gives a bounded bonus for headings.
func blockScore(textLen, linkTextLen, headingLen int) float64 {
	if textLen == 0 {
		return 0
	}
	linkDensity := float64(linkTextLen) / float64(textLen)
	heading := min(headingLen, headingScoreBound)
	return float64(textLen)*(1-linkDensity) + float64(heading)
}

var sanitizeAllowedTags = map[string]bool{
	"a": true, "p": true, "img": true, "br": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "blockquote": true,
	"pre": true, "code": true, "em": true, "strong": true, "b": true, "i": true,
	"figure": true, "figcaption": true,
	"table": true, "thead": true, "tbody": true, "tr": true, "td": true, "th": true,
}

var sanitizeDroppedTags = map[string]bool{
	"script": true, "style": true, "iframe": true, "form": true,
	"noscript": true, "object": true, "embed": true, "svg": true,
}

var sanitizeVoidTags = map[string]bool{"img": true, "br": true, "hr": true}

// sanitizeHTML keeps only allow-listed tags and attributes, drops
// script-like subtrees entirely, unwraps everything else, and rewrites
// relative img/a targets against the page URL.
func sanitizeHTML(fragment string, base *url.URL) string {
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		return ""
	}

	var buf strings.Builder
	for _, node := range nodes {
		writeSanitized(&buf, node, base)
	}
	return strings.TrimSpace(buf.String())
}

func writeSanitized(buf *strings.Builder, n *html.Node, base *url.URL) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(html.EscapeString(n.Data))
		return
	case html.ElementNode:
		name := strings.ToLower(n.Data)
		if sanitizeDroppedTags[name] {
			return
		}
		if !sanitizeAllowedTags[name] {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				writeSanitized(buf, c, base)
			}
			return
		}

		buf.WriteString("<")
		buf.WriteString(name)
		for _, attr := range n.Attr {
			key := strings.ToLower(attr.Key)
			if key != "href" && key != "src" && key != "alt" && key != "title" {
				continue
			}
			value := strings.TrimSpace(attr.Val)
			if key == "href" || key == "src" {
				value = absoluteTarget(value, base)
				if value == "" {
					continue
				}
			}
			buf.WriteString(" ")
			buf.WriteString(key)
			buf.WriteString(`="`)
			buf.WriteString(html.EscapeString(value))
			buf.WriteString(`"`)
		}
		if sanitizeVoidTags[name] {
			buf.WriteString("/>")
			return
		}
		buf.WriteString(">")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeSanitized(buf, c, base)
		}
		buf.WriteString("</")
		buf.WriteString(name)
		buf.WriteString(">")
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeSanitized(buf, c, base)
		}
	}
}

func absoluteTarget(value string, base *url.URL) string {
	if value == "" || strings.HasPrefix(strings.ToLower(value), "javascript:") {
		return ""
	}
	ref, err := url.Parse(value)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
