package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/pkg/youtube"
)

// VideoLookup fetches a single video from the Data API.
type VideoLookup interface {
	GetVideo(ctx context.Context, id string) (*youtube.Video, error)
}

// APIMetadataService serves metadata from the YouTube Data API. It is used
// when the extractor binary is not installed.
type APIMetadataService struct {
	lookup VideoLookup
	logger *slog.Logger
}

// NewAPIMetadataService creates a new Data API backed metadata service.
func NewAPIMetadataService(lookup VideoLookup, logger *slog.Logger) *APIMetadataService {
	return &APIMetadataService{
		lookup: lookup,
		logger: logger,
	}
}

// Fetch implements MetadataFetcher.
func (s *APIMetadataService) Fetch(ctx context.Context, sourceURL string) (*domain.VideoMetadata, error) {
	id := youtube.ExtractVideoID(sourceURL)
	if id == "" {
		return nil, domain.NewClassifiedError(domain.CategoryUnsupportedSource,
			"Unsupported URL. Please check if the video is available.", nil).
			WithDetails("no video ID found in " + sourceURL)
	}

	video, err := s.lookup.GetVideo(ctx, id)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, youtube.ErrVideoNotFound) {
			return nil, domain.NewClassifiedError(domain.CategoryContentUnavailable,
				"The video is unavailable. It may have been removed or made private.", err).
				WithDetails("no items returned for " + id)
		}

		details := err.Error()
		var apiErr *youtube.APIError
		if errors.As(err, &apiErr) {
			details = apiErr.Body
		}
		s.logger.Warn("data api lookup failed", "video_id", id, "error", err)
		return nil, domain.NewClassifiedError(domain.CategoryUnknown, metadataFailureMessage, err).
			WithDetails(details)
	}

	meta := &domain.VideoMetadata{
		ID:           id,
		Title:        video.Snippet.Title,
		ThumbnailURL: video.Snippet.BestThumbnail(),
		Uploader:     video.Snippet.ChannelTitle,
		UploadDate:   uploadDate(video.Snippet.PublishedAt),
		Description:  video.Snippet.Description,
		SourceURL:    "https://www.youtube.com/watch?v=" + id,
	}
	if video.ID != "" {
		meta.ID = video.ID
	}
	return meta, nil
}

// uploadDate converts an RFC 3339 timestamp to the YYYYMMDD form the
// extractor reports. Unparseable input is returned unchanged.
func uploadDate(publishedAt string) string {
	if publishedAt == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, publishedAt)
	if err != nil {
		return publishedAt
	}
	return t.UTC().Format("20060102")
}
