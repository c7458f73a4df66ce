package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/ytgrabba/internal/api/handler"
	mw "github.com/iconidentify/ytgrabba/internal/api/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	APIKey         string
	StaticDir      string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
}

// NewRouter creates the HTTP router with all routes configured. When proxy is
// non-nil the gateway routes are forwarded to the upstream worker and
// videoHandler may be nil.
func NewRouter(
	videoHandler *handler.VideoHandler,
	healthHandler *handler.HealthHandler,
	proxy *handler.ProxyHandler,
	cfg RouterConfig,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// CORS for the browser front-end
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	// Gateway (authenticated when an API key is configured)
	r.Group(func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(mw.APIKeyAuth(cfg.APIKey))
		}
		r.Use(mw.RateLimit(cfg.RateLimit, cfg.RateBurst))

		if proxy != nil {
			r.Handle("/api/*", proxy)
			r.Handle("/download", proxy)
			return
		}

		// Downloads run until the extractor exits or the client goes away;
		// headers are already out once streaming starts.
		r.Post("/download", videoHandler.Download)

		r.Group(func(r chi.Router) {
			if cfg.RequestTimeout > 0 {
				r.Use(middleware.Timeout(cfg.RequestTimeout))
			}
			r.Post("/api/video-info", videoHandler.VideoInfo)
			r.Get("/api/history", videoHandler.History)
			r.Get("/api/stats", healthHandler.Stats)
		})
	})

	// Static front-end
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}
