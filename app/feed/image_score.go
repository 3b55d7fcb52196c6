package feed

import (
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// Broader two-phase scored extraction used outside the per-item chain,
// e.g. for reader views: collect meta and in-content candidates, filter
// obvious junk, rank the rest.

type imageCandidate struct {
	URL    string
	Width  int
	Height int
	Alt    string
}

var (
	junkImagePattern    = regexp.MustCompile(`(?i)(tracking|pixel|sprite|spacer|advert|banner|badge|avatar|favicon|icon|logo|1x1)`)
	articleImagePattern = regexp.MustCompile(`(?i)(article|story|post|news|feature|upload|media|content)`)
)

// BestPageImage returns the top-ranked candidate image of a page, or "".
func BestPageImage(doc *goquery.Document, pageURL string) string {
	candidates := collectImageCandidates(doc, pageURL)

	best := ""
	bestScore := -1
	for _, c := range candidates {
		if s := scoreImageCandidate(c); s > bestScore {
			bestScore = s
			best = c.URL
		}
	}
	return best
}

func collectImageCandidates(doc *goquery.Document, pageURL string) []imageCandidate {
	var candidates []imageCandidate

	add := func(c imageCandidate) {
		if c.URL == "" || junkImagePattern.MatchString(c.URL) {
			return
		}
		// Tiny images are decoration, not content.
		if (c.Width > 0 && c.Width < 100) || (c.Height > 0 && c.Height < 100) {
			return
		}
		candidates = append(candidates, c)
	}

	for _, sel := range []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`} {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			content, _ := s.Attr("content")
			add(imageCandidate{URL: normalizeImageURL(content, pageURL)})
		})
	}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := imageFromTag(img)
		alt, _ := img.Attr("alt")
		add(imageCandidate{
			URL:    normalizeImageURL(src, pageURL),
			Width:  attrInt(img, "width"),
			Height: attrInt(img, "height"),
			Alt:    alt,
		})
	})

	return candidates
}

// scoreImageCandidate ranks adequate size above meaningful alt text
// above an article-ish URL keyword.
func scoreImageCandidate(c imageCandidate) int {
	score := 0
	if c.Width >= 200 || c.Height >= 200 {
		score += 4
	}
	if len(c.Alt) >= 10 {
		score += 2
	}
	if articleImagePattern.MatchString(c.URL) {
		score++
	}
	return score
}

func attrInt(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
