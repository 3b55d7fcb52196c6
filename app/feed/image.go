package feed

import (
	"cmp"
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const pageFetchTimeout = 5 * time.Second

// StockSearcher is the external stock-photo search endpoint. Only the
// "regular" resolution URL of one result comes back.
type StockSearcher interface {
	Search(ctx context.Context, query, accessKey string) (string, error)
}

// ImageResolver resolves one best-effort image URL per item through an
// ordered chain of strategies. Every step degrades to "" on failure;
// resolution never fails the caller.
type ImageResolver struct {
	fetcher *Fetcher
	stock   StockSearcher
}

func NewImageResolver(fetcher *Fetcher, stock StockSearcher) *ImageResolver {
	return &ImageResolver{
		fetcher: fetcher,
		stock:   stock,
	}
}

type imageOptions struct {
	enrichOG    bool
	stock       bool
	unsplashKey string
}

type imageStep func(ctx context.Context, item *gofeed.Item, opts imageOptions) string

// Resolve tries each strategy in order and returns the first hit.
func (r *ImageResolver) Resolve(ctx context.Context, item *gofeed.Item, opts imageOptions) string {
	steps := []imageStep{
		r.fromContent,
		r.fromEnclosure,
		r.fromMediaExtensions,
		r.fromPage,
		r.fromYouTube,
		r.fromStock,
	}

	for _, step := range steps {
		if u := step(ctx, item, opts); u != "" {
			return u
		}
	}
	return ""
}

// fromContent scans the item's embedded HTML for <img> tags, preferring
// src, then lazy-load attributes, then the widest srcset candidate, then
// <picture><source> sets.
func (r *ImageResolver) fromContent(_ context.Context, item *gofeed.Item, _ imageOptions) string {
	raw := cmp.Or(item.Content, item.Description)
	if raw == "" || !strings.Contains(raw, "<") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if u := imageFromTag(img); u != "" {
			found = normalizeImageURL(u, item.Link)
		}
		return found == ""
	})
	if found != "" {
		return found
	}

	doc.Find("picture source").EachWithBreak(func(_ int, source *goquery.Selection) bool {
		srcset, _ := source.Attr("srcset")
		if u := widestFromSrcSet(srcset); u != "" {
			found = normalizeImageURL(u, item.Link)
		}
		return found == ""
	})
	return found
}

var lazyImageAttrs = []string{"data-src", "data-lazy-src", "data-original", "data-lazy", "data-img-src"}

func imageFromTag(img *goquery.Selection) string {
	if src, ok := img.Attr("src"); ok && !strings.HasPrefix(src, "data:") && strings.TrimSpace(src) != "" {
		return src
	}
	for _, attr := range lazyImageAttrs {
		if src, ok := img.Attr(attr); ok && strings.TrimSpace(src) != "" {
			return src
		}
	}
	srcset, ok := img.Attr("srcset")
	if !ok {
		srcset, _ = img.Attr("data-srcset")
	}
	return widestFromSrcSet(srcset)
}

// widestFromSrcSet parses "url 640w, url2 1280w" pairs and picks the
// candidate with the largest width descriptor.
func widestFromSrcSet(srcset string) string {
	best := ""
	bestWidth := -1
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		width := 0
		if len(fields) > 1 && strings.HasSuffix(fields[1], "w") {
			if n, err := strconv.Atoi(strings.TrimSuffix(fields[1], "w")); err == nil {
				width = n
			}
		}
		if width > bestWidth {
			bestWidth = width
			best = fields[0]
		}
	}
	return best
}

// fromEnclosure accepts an enclosure whose MIME type is image/* or
// unspecified.
func (r *ImageResolver) fromEnclosure(_ context.Context, item *gofeed.Item, _ imageOptions) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

// fromMediaExtensions probes media:content, media:thumbnail, media:group
// and itunes:image, accepting the string and structured shapes feeds use.
func (r *ImageResolver) fromMediaExtensions(_ context.Context, item *gofeed.Item, _ imageOptions) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, e := range media["content"] {
			if u := mediaExtensionURL(e, true); u != "" {
				return u
			}
		}
		for _, e := range media["thumbnail"] {
			if u := mediaExtensionURL(e, false); u != "" {
				return u
			}
		}
		for _, group := range media["group"] {
			for _, e := range group.Children["thumbnail"] {
				if u := mediaExtensionURL(e, false); u != "" {
					return u
				}
			}
			for _, e := range group.Children["content"] {
				if u := mediaExtensionURL(e, true); u != "" {
					return u
				}
			}
		}
	}

	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		return item.ITunesExt.Image
	}
	return ""
}

// mediaExtensionURL matches the shapes media:* elements come in: a url
// attribute, an href attribute, or a bare text value. When the element
// declares a type or medium it must identify an image.
func mediaExtensionURL(e ext.Extension, checkKind bool) string {
	if checkKind {
		if t := e.Attrs["type"]; t != "" && !strings.HasPrefix(t, "image/") {
			return ""
		}
		if m := e.Attrs["medium"]; m != "" && m != "image" {
			return ""
		}
	}
	return cmp.Or(e.Attrs["url"], e.Attrs["href"], strings.TrimSpace(e.Value))
}

// fromPage fetches the article page and reads Open Graph / Twitter Card
// metadata. Enrichment only; skipped in fast profiles.
func (r *ImageResolver) fromPage(ctx context.Context, item *gofeed.Item, opts imageOptions) string {
	if !opts.enrichOG || item.Link == "" {
		return ""
	}
	return r.PageImage(ctx, item.Link)
}

// PageImage fetches a page and extracts its best preview image: meta
// tags first, then the scored in-content scan. Best effort, "" on any
// failure.
func (r *ImageResolver) PageImage(ctx context.Context, pageURL string) string {
	doc, err := r.fetcher.FetchHTML(ctx, pageURL, pageFetchTimeout)
	if err != nil {
		slog.Debug("Page image fetch failed", "url", pageURL, "error", err)
		return ""
	}
	if u := metaImage(doc, pageURL); u != "" {
		return u
	}
	return BestPageImage(doc, pageURL)
}

// metaImage reads preview metadata in priority order.
func metaImage(doc *goquery.Document, pageURL string) string {
	selectors := []struct {
		query string
		attr  string
	}{
		{`meta[property="og:image:secure_url"]`, "content"},
		{`meta[property="og:image"]`, "content"},
		{`meta[name="og:image"]`, "content"},
		{`meta[name="twitter:image"]`, "content"},
		{`meta[property="twitter:image"]`, "content"},
		{`link[rel="image_src"]`, "href"},
	}

	for _, sel := range selectors {
		if v, ok := doc.Find(sel.query).First().Attr(sel.attr); ok {
			if u := normalizeImageURL(v, pageURL); u != "" {
				return u
			}
		}
	}
	return ""
}

// fromYouTube synthesizes a thumbnail URL for recognized YouTube links
// without any network call.
func (r *ImageResolver) fromYouTube(_ context.Context, item *gofeed.Item, _ imageOptions) string {
	id := youtubeVideoID(item.Link)
	if id == "" {
		return ""
	}
	return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
}

func youtubeVideoID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch host {
	case "youtu.be":
		if len(segments) > 0 {
			return segments[0]
		}
	case "youtube.com", "m.youtube.com":
		if len(segments) == 0 {
			return ""
		}
		switch segments[0] {
		case "watch":
			return u.Query().Get("v")
		case "shorts", "embed":
			if len(segments) > 1 {
				return segments[1]
			}
		}
	}
	return ""
}

// fromStock is the last resort: query the stock-photo search with up to
// three significant title keywords. Full profile with an API key only.
func (r *ImageResolver) fromStock(ctx context.Context, item *gofeed.Item, opts imageOptions) string {
	if !opts.stock || r.stock == nil {
		return ""
	}

	keywords := titleKeywords(item.Title, 3)
	if len(keywords) == 0 {
		return ""
	}

	u, err := r.stock.Search(ctx, strings.Join(keywords, " "), opts.unsplashKey)
	if err != nil {
		slog.Debug("Stock image search failed", "title", item.Title, "error", err)
		return ""
	}
	return u
}

// titleKeywords keeps up to max words longer than three characters.
func titleKeywords(title string, max int) []string {
	var keywords []string
	for _, word := range strings.Fields(title) {
		word = strings.Trim(strings.ToLower(word), `.,!?:;"'()[]`)
		if len(word) <= 3 {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == max {
			break
		}
	}
	return keywords
}

// normalizeImageURL upgrades protocol-relative URLs to https and
// resolves relative paths against the article link.
func normalizeImageURL(raw, baseLink string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}

	base, err := url.Parse(baseLink)
	if err != nil || base.Host == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
