package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedscope/feedscope/app/api"
	"github.com/feedscope/feedscope/app/cache"
	"github.com/feedscope/feedscope/app/cfg"
	"github.com/feedscope/feedscope/app/feed"
	"github.com/feedscope/feedscope/app/sources"
	"github.com/feedscope/feedscope/app/unsplash"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(appConfig.Debug)
	slog.Info("Starting Feedscope server", "version", appConfig.Version)

	httpClient := &http.Client{}
	fetcher := feed.NewFetcher(httpClient, appConfig.UserAgent)
	feedCache := cache.New(cache.FreshTTL, cache.StaleTTL, time.Now)
	stock := unsplash.NewClient(httpClient, appConfig.UnsplashKey)
	images := feed.NewImageResolver(fetcher, stock)
	parser := feed.NewParser(fetcher, feedCache, images)
	discoverer := feed.NewDiscoverer(fetcher, parser)
	aggregator := feed.NewAggregator(parser, images)
	extractor := feed.NewExtractor(fetcher)

	sourceStore := sources.NewStore(appConfig.SourcesFile)
	if err := sourceStore.Load(); err != nil {
		slog.Warn("Failed to load sources file", "path", appConfig.SourcesFile, "error", err)
	} else {
		slog.Info("Sources loaded", "count", sourceStore.Count())
	}

	handler := api.NewHandler(parser, discoverer, aggregator, extractor,
		feedCache, sourceStore, appConfig.UnsplashKey, appConfig.Version)
	server := api.NewServer(handler, appConfig.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Feedscope server shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
