package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/repository"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher is a test implementation of service.MetadataFetcher.
type fakeFetcher struct {
	mu    sync.Mutex
	meta  *domain.VideoMetadata
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceURL string) (*domain.VideoMetadata, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sourceURL)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeDownloader returns an artifact backed by a real temp file.
type fakeDownloader struct {
	mu      sync.Mutex
	content []byte
	name    string
	dir     string
	err     error
	calls   []string
	opened  []*downloader.Artifact
}

func newFakeDownloader(t *testing.T, content []byte) *fakeDownloader {
	t.Helper()
	return &fakeDownloader{
		content: content,
		name:    "video_1700000000000_test.mp4",
		dir:     t.TempDir(),
	}
}

func (f *fakeDownloader) Download(ctx context.Context, sourceURL string) (*downloader.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sourceURL)
	if f.err != nil {
		return nil, f.err
	}

	path := filepath.Join(f.dir, f.name)
	if err := os.WriteFile(path, f.content, 0644); err != nil {
		return nil, err
	}
	a, err := downloader.OpenArtifact(path, testLogger())
	if err != nil {
		return nil, err
	}
	f.opened = append(f.opened, a)
	return a, nil
}

func (f *fakeDownloader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// artifactPath returns where the fake writes its file.
func (f *fakeDownloader) artifactPath() string {
	return filepath.Join(f.dir, f.name)
}

// brokenHistory fails every call.
type brokenHistory struct{}

var errHistoryDown = errors.New("history store down")

func (brokenHistory) Record(context.Context, *domain.RequestRecord) error { return errHistoryDown }
func (brokenHistory) List(context.Context, int) ([]*domain.RequestRecord, error) {
	return nil, errHistoryDown
}
func (brokenHistory) Stats(context.Context) (*repository.HistoryStats, error) {
	return nil, errHistoryDown
}
func (brokenHistory) Ping(context.Context) error { return errHistoryDown }
func (brokenHistory) Close() error               { return nil }

func newTestHistory() *repository.InMemoryHistoryRepository {
	return repository.NewInMemoryHistoryRepository(100)
}

func sampleMetadata() *domain.VideoMetadata {
	duration := 212.0
	views := int64(1000)
	return &domain.VideoMetadata{
		ID:              "dQw4w9WgXcQ",
		Title:           "Never Gonna Give You Up",
		ThumbnailURL:    "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
		DurationSeconds: &duration,
		Uploader:        "Rick Astley",
		UploadDate:      "20091025",
		ViewCount:       &views,
		SourceURL:       "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}
}
