package api

import (
	"github.com/feedscope/feedscope/app/cache"
	"github.com/feedscope/feedscope/app/feed"
	"github.com/feedscope/feedscope/app/sources"
)

type Handler struct {
	parser      *feed.Parser
	discoverer  *feed.Discoverer
	aggregator  *feed.Aggregator
	extractor   *feed.Extractor
	cache       *cache.FeedCache
	sources     *sources.Store
	unsplashKey string
	version     string
}
