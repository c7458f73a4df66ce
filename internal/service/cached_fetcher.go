package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/iconidentify/ytgrabba/internal/cache"
	"github.com/iconidentify/ytgrabba/internal/domain"
)

// CachedFetcher serves repeat metadata lookups from a cache.
// Cache errors are logged and never reach the caller.
type CachedFetcher struct {
	next   MetadataFetcher
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedFetcher wraps next with c.
func NewCachedFetcher(next MetadataFetcher, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedFetcher {
	return &CachedFetcher{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

func metadataKey(sourceURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceURL)))
	return "metadata:" + hex.EncodeToString(sum[:])
}

// Fetch implements MetadataFetcher. Only successful lookups are cached.
func (f *CachedFetcher) Fetch(ctx context.Context, sourceURL string) (*domain.VideoMetadata, error) {
	key := metadataKey(sourceURL)

	if data, ok, err := f.cache.Get(ctx, key); err != nil {
		f.logger.Warn("metadata cache read failed", "error", err)
	} else if ok {
		var meta domain.VideoMetadata
		if err := json.Unmarshal(data, &meta); err == nil {
			f.logger.Debug("metadata cache hit", "url", sourceURL)
			return &meta, nil
		}
		f.logger.Warn("discarding corrupt metadata cache entry", "url", sourceURL)
	}

	meta, err := f.next.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(meta)
	if err == nil {
		err = f.cache.Set(ctx, key, data, f.ttl)
	}
	if err != nil {
		f.logger.Warn("metadata cache write failed", "error", err)
	}
	return meta, nil
}
