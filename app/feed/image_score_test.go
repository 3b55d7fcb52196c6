package feed

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("Failed to parse HTML fixture: %v", err)
	}
	return doc
}

func TestScoreImageCandidate(t *testing.T) {
	sized := imageCandidate{URL: "https://example.com/a.jpg", Width: 800}
	withAlt := imageCandidate{URL: "https://example.com/b.jpg", Alt: "a descriptive caption"}
	keyword := imageCandidate{URL: "https://example.com/article/c.jpg"}
	plain := imageCandidate{URL: "https://example.com/d.jpg"}

	if scoreImageCandidate(sized) <= scoreImageCandidate(withAlt) {
		t.Error("Expected adequate size to outrank alt text")
	}
	if scoreImageCandidate(withAlt) <= scoreImageCandidate(keyword) {
		t.Error("Expected alt text to outrank URL keyword")
	}
	if scoreImageCandidate(keyword) <= scoreImageCandidate(plain) {
		t.Error("Expected URL keyword to outrank a plain candidate")
	}
}

func TestBestPageImageFiltersJunk(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
<img src="https://example.com/tracking-pixel.gif" width="1" height="1"/>
<img src="https://example.com/logo.png" width="400"/>
<img src="https://example.com/tiny.jpg" width="50" height="50"/>
<img src="https://example.com/story/hero.jpg" width="900" alt="the story hero image"/>
</body></html>`)

	got := BestPageImage(doc, "https://example.com/page")
	if got != "https://example.com/story/hero.jpg" {
		t.Errorf("Expected junk and tiny images filtered out, got: %s", got)
	}
}

func TestBestPageImagePrefersMetaWhenContentIsWeak(t *testing.T) {
	doc := docFromHTML(t, `<html><head>
<meta property="og:image" content="https://example.com/media/preview.jpg"/>
</head><body>
<img src="https://example.com/decoration.jpg"/>
</body></html>`)

	got := BestPageImage(doc, "https://example.com/page")
	if got != "https://example.com/media/preview.jpg" {
		t.Errorf("Expected meta candidate to win, got: %s", got)
	}
}

func TestBestPageImageEmptyDocument(t *testing.T) {
	doc := docFromHTML(t, `<html><body><p>No images here</p></body></html>`)
	if got := BestPageImage(doc, "https://example.com/page"); got != "" {
		t.Errorf("Expected no image, got: %s", got)
	}
}
