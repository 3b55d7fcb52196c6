package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxResponseBytes = 10 << 20

// Fetcher performs plain HTTP GET requests with the configured
// User-Agent and a per-call timeout.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
	}
}

// Fetch downloads the resource at url. A non-2xx status is a failure.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	data, _, err := f.fetch(ctx, url, timeout)
	return data, err
}

// FetchHTML downloads an HTML page and parses it. A content-type that
// does not mention HTML is treated as a failure, so page-scraping steps
// never run against binaries or feed XML.
func (f *Fetcher) FetchHTML(ctx context.Context, url string, timeout time.Duration) (*goquery.Document, error) {
	data, contentType, err := f.fetch(ctx, url, timeout)
	if err != nil {
		return nil, err
	}

	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("unexpected content type %q", contentType)}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}

	return doc, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &FetchError{URL: url, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &FetchError{URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", &FetchError{URL: url, Err: err}
	}

	return data, resp.Header.Get("Content-Type"), nil
}
