package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedscope/feedscope/app/cache"
	"github.com/feedscope/feedscope/app/feed"
	"github.com/feedscope/feedscope/app/sources"
)

func NewHandler(parser *feed.Parser, discoverer *feed.Discoverer, aggregator *feed.Aggregator,
	extractor *feed.Extractor, feedCache *cache.FeedCache, sourceStore *sources.Store,
	unsplashKey, version string) *Handler {
	return &Handler{
		parser:      parser,
		discoverer:  discoverer,
		aggregator:  aggregator,
		extractor:   extractor,
		cache:       feedCache,
		sources:     sourceStore,
		unsplashKey: unsplashKey,
		version:     version,
	}
}

func (h *Handler) ParseFeed(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url parameter"})
		return
	}

	opts := feed.Options{
		Fast:        parseBool(c.Query("fast")),
		UnsplashKey: h.unsplashKey,
	}
	if raw := c.Query("max_items"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			opts.MaxItems = n
		}
	}

	parsed, err := h.parser.Parse(c.Request.Context(), url, opts)
	if err != nil {
		slog.Error("Feed parse failed", "url", url, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to parse feed"})
		return
	}

	c.JSON(http.StatusOK, parsed)
}

func (h *Handler) DiscoverFeed(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url parameter"})
		return
	}

	discovery, err := h.discoverer.Discover(c.Request.Context(), url, 0)
	if err != nil {
		if errors.Is(err, feed.ErrNoFeedFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No feed detected"})
			return
		}
		slog.Error("Feed discovery failed", "url", url, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Discovery failed"})
		return
	}

	c.JSON(http.StatusOK, discovery)
}

func (h *Handler) GetDigest(c *gin.Context) {
	urls := c.QueryArray("url")
	if len(urls) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one url parameter is required"})
		return
	}

	items := h.aggregator.Aggregate(c.Request.Context(), urls)

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) GetTodayDigest(c *gin.Context) {
	urls := c.QueryArray("url")

	if name := c.Query("source"); name != "" {
		source, ok := h.sources.Get(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return
		}
		urls = source.Feeds
	}

	if len(urls) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provide a source name or url parameters"})
		return
	}

	items := h.aggregator.Digest(c.Request.Context(), urls, feed.DigestOptions{})

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) GetReader(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url parameter"})
		return
	}

	view, err := h.extractor.Extract(c.Request.Context(), url)
	if err != nil {
		slog.Error("Reader extraction failed", "url", url, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to extract article"})
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) ListSources(c *gin.Context) {
	all := h.sources.All()
	c.JSON(http.StatusOK, gin.H{
		"sources": all,
		"total":   len(all),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp":    time.Now().In(time.Local).Format(time.RFC3339),
		"sources":      h.sources.Count(),
		"cached_feeds": h.cache.Len(),
		"version":      h.version,
	})
}

func (h *Handler) APIGetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cached_feeds": h.cache.Len(),
		"sources":      h.sources.Count(),
		"version":      h.version,
	})
}

func (h *Handler) APIEvictCache(c *gin.Context) {
	evicted := h.cache.EvictExpired()
	slog.Info("Cache eviction requested", "evicted", evicted)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"evicted": evicted,
	})
}

func parseBool(raw string) bool {
	return raw == "1" || raw == "true"
}
