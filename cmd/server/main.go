package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iconidentify/ytgrabba/internal/api"
	"github.com/iconidentify/ytgrabba/internal/api/handler"
	"github.com/iconidentify/ytgrabba/internal/cache"
	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/extractor"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/repository/sqlite"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/internal/worker"
	"github.com/iconidentify/ytgrabba/pkg/youtube"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ytgrabba %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting ytgrabba",
		"version", Version,
		"build_time", BuildTime,
		"mode", cfg.Mode,
	)

	// Initialize dependencies
	history, err := openHistory(cfg.History, logger)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}

	var (
		videoHandler  *handler.VideoHandler
		proxyHandler  *handler.ProxyHandler
		healthHandler *handler.HealthHandler
		janitor       *worker.Janitor
		metaCache     cache.Cache
	)

	switch cfg.Mode {
	case config.ModeProxy:
		proxyHandler, err = handler.NewProxyHandler(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, logger)
		if err != nil {
			logger.Error("failed to create proxy", "error", err)
			os.Exit(1)
		}
		healthHandler = handler.NewHealthHandler(history, "", "", logger)
		logger.Info("forwarding gateway requests", "upstream", cfg.Upstream.BaseURL)

	default:
		opts := extractor.Options{
			SocketTimeout: cfg.Extractor.SocketTimeout,
			MaxHeight:     cfg.Extractor.MaxHeight,
		}
		runner := extractor.NewExecRunner(cfg.Extractor.Path, logger)
		orchestrator := downloader.NewOrchestrator(runner, opts, cfg.Scratch.Dir, logger)

		fetcher, degraded := newFetcher(cfg, runner, opts, logger)

		metaCache = openCache(cfg.Cache, logger)
		if metaCache != nil {
			fetcher = service.NewCachedFetcher(fetcher, metaCache, cfg.Cache.TTL, logger)
		}

		extractorPath := cfg.Extractor.Path
		if degraded {
			extractorPath = ""
		}

		videoHandler = handler.NewVideoHandler(fetcher, orchestrator, history, logger)
		healthHandler = handler.NewHealthHandler(history, extractorPath, cfg.Scratch.Dir, logger)

		var purgers []worker.Purger
		if p, ok := metaCache.(worker.Purger); ok {
			purgers = append(purgers, p)
		}
		janitor = worker.NewJanitor(worker.Config{
			ScratchDir: cfg.Scratch.Dir,
			MaxAge:     cfg.Scratch.MaxAge,
			Interval:   cfg.Scratch.SweepInterval,
		}, logger, purgers...)
		janitor.Start()
	}

	// Setup router
	router := api.NewRouter(videoHandler, healthHandler, proxyHandler, api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		StaticDir:      cfg.Server.StaticDir,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
	})

	// Setup HTTP server; every request context derives from baseCtx
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Stop accepting new requests; in-flight downloads finish or are canceled
	if err := shutdown(srv, cancelRequests, 30*time.Second, logger); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if janitor != nil {
		if err := janitor.Stop(5 * time.Second); err != nil {
			logger.Error("janitor shutdown error", "error", err)
		}
	}
	if metaCache != nil {
		if err := metaCache.Close(); err != nil {
			logger.Error("cache close error", "error", err)
		}
	}
	if err := history.Close(); err != nil {
		logger.Error("history close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// shutdownGrace is how long canceled handlers get to kill the extractor and
// remove their scratch files.
const shutdownGrace = 5 * time.Second

// shutdown drains srv for up to timeout. Requests still running after that
// are canceled, which kills their extractor processes, and get a short grace
// period to clean up.
func shutdown(srv *http.Server, cancelRequests context.CancelFunc, timeout time.Duration, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	if err == nil {
		return nil
	}

	logger.Warn("in-flight requests outlived shutdown timeout, canceling", "timeout", timeout)
	cancelRequests()

	graceCtx, graceCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer graceCancel()
	if gerr := srv.Shutdown(graceCtx); gerr != nil {
		return errors.Join(err, gerr)
	}
	return err
}

// parseLevel maps LOG_LEVEL to a slog level, defaulting to info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newFetcher picks the metadata backend. The Data API is used only when the
// extractor cannot be resolved and an API key is configured.
func newFetcher(cfg *config.Config, runner extractor.Runner, opts extractor.Options, logger *slog.Logger) (service.MetadataFetcher, bool) {
	path, err := extractor.Resolve(cfg.Extractor.Path)
	if err == nil {
		logger.Info("using extractor", "path", path)
		return service.NewMetadataService(runner, opts, logger), false
	}

	if cfg.YouTube.APIKey == "" {
		logger.Warn("extractor not found; requests will fail until it is installed",
			"path", cfg.Extractor.Path,
			"error", err,
		)
		return service.NewMetadataService(runner, opts, logger), false
	}

	logger.Warn("extractor not found; serving metadata from the YouTube Data API",
		"path", cfg.Extractor.Path,
	)
	return service.NewAPIMetadataService(youtube.NewClient(youtube.Config{
		APIKey:  cfg.YouTube.APIKey,
		BaseURL: cfg.YouTube.BaseURL,
		Timeout: cfg.YouTube.Timeout,
	}), logger), true
}

// openCache returns nil when caching is disabled or Redis is unreachable.
func openCache(cfg config.CacheConfig, logger *slog.Logger) cache.Cache {
	switch cfg.Driver {
	case "memory":
		return cache.NewMemoryCache()
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx, cfg)
		if err != nil {
			logger.Error("redis unavailable, metadata cache disabled", "addr", cfg.RedisAddr, "error", err)
			return nil
		}
		logger.Info("using redis metadata cache", "addr", cfg.RedisAddr)
		return rc
	default:
		return nil
	}
}

// openHistory opens the configured request history store.
func openHistory(cfg config.HistoryConfig, logger *slog.Logger) (repository.HistoryRepository, error) {
	if cfg.Driver == "sqlite" {
		db, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite history", "path", cfg.Path)
		return db.History, nil
	}
	return repository.NewInMemoryHistoryRepository(repository.DefaultMemoryCapacity), nil
}
