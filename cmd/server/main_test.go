package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/iconidentify/ytgrabba/internal/cache"
	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/extractor"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFetcher(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-yt-dlp")
	opts := extractor.Options{SocketTimeout: 30, MaxHeight: 480}

	tests := []struct {
		name         string
		apiKey       string
		wantDegraded bool
	}{
		{"missing extractor without api key", "", false},
		{"missing extractor with api key", "key", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Extractor: config.ExtractorConfig{Path: missing},
				YouTube:   config.YouTubeConfig{APIKey: tt.apiKey, BaseURL: "http://127.0.0.1:1"},
			}
			runner := extractor.NewExecRunner(missing, testLogger())

			fetcher, degraded := newFetcher(cfg, runner, opts, testLogger())
			if degraded != tt.wantDegraded {
				t.Errorf("degraded = %v, want %v", degraded, tt.wantDegraded)
			}

			_, isAPI := fetcher.(*service.APIMetadataService)
			if isAPI != tt.wantDegraded {
				t.Errorf("fetcher = %T", fetcher)
			}
		})
	}
}

func TestOpenCache(t *testing.T) {
	if c := openCache(config.CacheConfig{Driver: "none"}, testLogger()); c != nil {
		t.Errorf("driver none = %T, want nil", c)
	}
	if _, ok := openCache(config.CacheConfig{Driver: "memory"}, testLogger()).(*cache.MemoryCache); !ok {
		t.Error("driver memory should return a MemoryCache")
	}
	if c := openCache(config.CacheConfig{Driver: "redis", RedisAddr: "127.0.0.1:1"}, testLogger()); c != nil {
		t.Errorf("unreachable redis = %T, want nil", c)
	}
}

func TestOpenHistory(t *testing.T) {
	mem, err := openHistory(config.HistoryConfig{Driver: "memory"}, testLogger())
	if err != nil {
		t.Fatalf("memory history failed: %v", err)
	}
	if _, ok := mem.(*repository.InMemoryHistoryRepository); !ok {
		t.Errorf("memory driver = %T", mem)
	}

	db, err := openHistory(config.HistoryConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "h.db")}, testLogger())
	if err != nil {
		t.Fatalf("sqlite history failed: %v", err)
	}
	defer db.Close()
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestShutdown_CancelsStuckRequests(t *testing.T) {
	entered := make(chan struct{})
	canceled := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-r.Context().Done()
		close(canceled)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	srv := &http.Server{
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	go srv.Serve(ln)

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/download")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the handler")
	}

	err = shutdown(srv, cancelRequests, 50*time.Millisecond, testLogger())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("shutdown error = %v, want deadline exceeded", err)
	}

	select {
	case <-canceled:
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request context was not canceled")
	}
}

func TestShutdown_IdleServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: http.NotFoundHandler()}
	go srv.Serve(ln)

	called := false
	if err := shutdown(srv, func() { called = true }, time.Second, testLogger()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}
	if called {
		t.Error("requests should not be canceled when draining succeeds")
	}
}
