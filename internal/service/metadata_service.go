package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/extractor"
)

const metadataFailureMessage = "Failed to fetch video information"

// MetadataFetcher returns normalized metadata for a source URL.
type MetadataFetcher interface {
	Fetch(ctx context.Context, sourceURL string) (*domain.VideoMetadata, error)
}

// MetadataService fetches metadata by running the extractor in dump mode.
type MetadataService struct {
	runner extractor.Runner
	opts   extractor.Options
	logger *slog.Logger
}

// NewMetadataService creates a new metadata service.
func NewMetadataService(runner extractor.Runner, opts extractor.Options, logger *slog.Logger) *MetadataService {
	return &MetadataService{
		runner: runner,
		opts:   opts,
		logger: logger,
	}
}

// Fetch runs the extractor once and parses its JSON dump.
// All failures are *domain.ClassifiedError except context cancellation.
func (s *MetadataService) Fetch(ctx context.Context, sourceURL string) (*domain.VideoMetadata, error) {
	res, err := s.runner.Run(ctx, extractor.MetadataArgs(s.opts, sourceURL))
	if err != nil {
		return nil, extractor.ClassifyRunError(err, metadataFailureMessage)
	}

	if res.ExitCode != 0 {
		ce := extractor.Classify(string(res.Stderr), res.ExitCode, metadataFailureMessage)
		s.logger.Warn("metadata extraction failed",
			"url", sourceURL,
			"exit_code", res.ExitCode,
			"category", ce.Category,
		)
		return nil, ce
	}

	meta, err := parseMetadata(res.Stdout, sourceURL)
	if err != nil {
		s.logger.Warn("metadata output not parseable", "url", sourceURL, "error", err)
		return nil, domain.NewClassifiedError(domain.CategoryParseError, "Failed to parse video information", err).
			WithExitCode(res.ExitCode).
			WithDetails(err.Error())
	}

	s.logger.Info("metadata fetched",
		"url", sourceURL,
		"video_id", meta.ID,
		"duration", res.Duration,
	)
	return meta, nil
}

// extractorInfo mirrors the fields of yt-dlp's info JSON that are exposed.
type extractorInfo struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Thumbnail   string   `json:"thumbnail"`
	Duration    *float64 `json:"duration"`
	Uploader    string   `json:"uploader"`
	UploadDate  string   `json:"upload_date"`
	ViewCount   *float64 `json:"view_count"`
	Description string   `json:"description"`
	WebpageURL  string   `json:"webpage_url"`

	Formats          []extractorFormat `json:"formats"`
	RequestedFormats []extractorFormat `json:"requested_formats"`
}

type extractorFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Resolution     string   `json:"resolution"`
	Height         *int     `json:"height"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
}

// videoFormats keeps mp4 and webm entries that carry a height, tallest first.
// The selected formats win over the full list when the extractor reports them.
func videoFormats(info *extractorInfo) []domain.VideoFormat {
	src := info.Formats
	if len(info.RequestedFormats) > 0 {
		src = info.RequestedFormats
	}

	var out []domain.VideoFormat
	for _, f := range src {
		if f.Height == nil || *f.Height <= 0 {
			continue
		}
		if f.Ext != "mp4" && f.Ext != "webm" {
			continue
		}
		vf := domain.VideoFormat{
			FormatID:   f.FormatID,
			Ext:        f.Ext,
			Resolution: f.Resolution,
			Height:     *f.Height,
		}
		size := f.Filesize
		if size == nil {
			size = f.FilesizeApprox
		}
		if size != nil {
			n := int64(math.Round(*size))
			vf.Filesize = &n
		}
		out = append(out, vf)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Height > out[j].Height })
	return out
}

// parseMetadata decodes the first JSON object in stdout.
func parseMetadata(stdout []byte, sourceURL string) (*domain.VideoMetadata, error) {
	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, fmt.Errorf("empty output")
	}

	var info extractorInfo
	if err := json.NewDecoder(bytes.NewReader(stdout)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	if info.Title == "" {
		return nil, fmt.Errorf("missing title")
	}

	meta := &domain.VideoMetadata{
		ID:              info.ID,
		Title:           info.Title,
		ThumbnailURL:    info.Thumbnail,
		DurationSeconds: info.Duration,
		Uploader:        info.Uploader,
		UploadDate:      info.UploadDate,
		Description:     info.Description,
		SourceURL:       info.WebpageURL,
		Formats:         videoFormats(&info),
	}
	if meta.SourceURL == "" {
		meta.SourceURL = sourceURL
	}
	if info.ViewCount != nil {
		views := int64(math.Round(*info.ViewCount))
		meta.ViewCount = &views
	}
	return meta, nil
}
