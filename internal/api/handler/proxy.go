package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// ProxyHandler forwards gateway requests verbatim to a direct-mode worker.
type ProxyHandler struct {
	target  *url.URL
	timeout time.Duration
	proxy   *httputil.ReverseProxy
	logger  *slog.Logger
}

// downloadPath is never time-bounded: the worker sends no headers until the
// extractor has finished, which can take arbitrarily long.
const downloadPath = "/download"

// NewProxyHandler creates a reverse proxy to baseURL. timeout bounds every
// forwarded request except downloads; zero disables it.
func NewProxyHandler(baseURL string, timeout time.Duration, logger *slog.Logger) (*ProxyHandler, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream url must be absolute: %q", baseURL)
	}

	h := &ProxyHandler{
		target:  target,
		timeout: timeout,
		logger:  logger.With("component", "proxy", "upstream", target.String()),
	}

	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:    20,
			IdleConnTimeout: 90 * time.Second,
		},
		// Media bodies are flushed as they arrive.
		FlushInterval: -1,
		ErrorHandler:  h.handleError,
	}

	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.timeout > 0 && r.URL.Path != downloadPath {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}
	h.proxy.ServeHTTP(w, r)
}

func (h *ProxyHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && !errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		h.logger.Info("client canceled proxied request", "path", r.URL.Path)
		return
	}

	h.logger.Error("upstream request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusBadGateway, ErrorResponse{
		Error:    "Upstream worker unavailable",
		Category: domain.CategoryUnknown.String(),
		Details:  err.Error(),
	})
}
