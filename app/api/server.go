package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// NewServer creates the HTTP server with all routes configured.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())

	// CORS for the browser client
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/feeds/parse", handler.ParseFeed)
	r.GET("/feeds/discover", handler.DiscoverFeed)
	r.GET("/digest", handler.GetDigest)
	r.GET("/digest/today", handler.GetTodayDigest)
	r.GET("/reader", handler.GetReader)
	r.GET("/sources", handler.ListSources)
	r.GET("/health", handler.GetHealth)

	// Ops endpoints, gated behind the access key when one is set
	if apiAccessKey != "" {
		ops := r.Group("/api")
		ops.Use(authMiddleware(apiAccessKey))
		{
			ops.GET("/stats", handler.APIGetStats)
			ops.POST("/cache/evict", handler.APIEvictCache)
		}
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"parse":    "/feeds/parse?url=<feed-url>",
			"discover": "/feeds/discover?url=<page-url>",
			"digest":   "/digest?url=<feed-url>&url=<feed-url>",
			"today":    "/digest/today?source=<name>",
			"reader":   "/reader?url=<article-url>",
			"sources":  "/sources",
			"health":   "/health",
		}
		if apiAccessKey != "" {
			endpoints["stats"] = "/api/stats (requires X-API-Key header)"
			endpoints["evict"] = "/api/cache/evict (POST, requires X-API-Key header)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Feedscope",
			"version":     handler.version,
			"description": "RSS/Atom aggregation service with feed discovery, image resolution and reader views",
			"endpoints":   endpoints,
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// authMiddleware protects the ops endpoints with the configured key.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
