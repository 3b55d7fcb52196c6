package unsplash

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.unsplash.com"
	searchTimeout  = 5 * time.Second
	perPage        = 5
)

// Client queries the Unsplash photo search API. It remembers which
// result URLs it already handed out and biases subsequent picks toward
// unused images when several results are available.
type Client struct {
	httpClient *http.Client
	accessKey  string
	baseURL    string

	mu   sync.Mutex
	used map[string]struct{}
}

func NewClient(httpClient *http.Client, accessKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		accessKey:  accessKey,
		baseURL:    defaultBaseURL,
		used:       make(map[string]struct{}),
	}
}

type searchResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

// Search returns the "regular" resolution URL of one matching photo, or
// "" when nothing matched. An explicit accessKey overrides the one the
// client was built with.
func (c *Client) Search(ctx context.Context, query, accessKey string) (string, error) {
	key := cmp.Or(accessKey, c.accessKey)
	if key == "" || query == "" {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/search/photos?query=%s&page=1&per_page=%d",
		c.baseURL, url.QueryEscape(query), perPage)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to search photos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("photo search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return c.pick(parsed), nil
}

// pick prefers the first result that has not been used yet, falling back
// to the first result when all are spent.
func (c *Client) pick(parsed searchResponse) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	fallback := ""
	for _, result := range parsed.Results {
		u := result.URLs.Regular
		if u == "" {
			continue
		}
		if fallback == "" {
			fallback = u
		}
		if _, ok := c.used[u]; !ok {
			c.used[u] = struct{}{}
			return u
		}
	}
	if fallback != "" {
		c.used[fallback] = struct{}{}
	}
	return fallback
}
