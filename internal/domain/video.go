package domain

import (
	"time"
)

// VideoMetadata is the normalized description of a single video.
type VideoMetadata struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	ThumbnailURL    string   `json:"thumbnail"`
	DurationSeconds *float64 `json:"duration,omitempty"`
	Uploader        string   `json:"uploader,omitempty"`
	UploadDate      string   `json:"upload_date,omitempty"`
	ViewCount       *int64   `json:"view_count,omitempty"`
	Description     string   `json:"description,omitempty"`
	SourceURL       string   `json:"webpage_url"`
	// Formats lists the mp4 and webm video renditions, tallest first.
	Formats []VideoFormat `json:"formats,omitempty"`
}

// VideoFormat is one rendition reported by the extractor.
type VideoFormat struct {
	FormatID   string `json:"format_id"`
	Ext        string `json:"ext"`
	Resolution string `json:"resolution,omitempty"`
	Height     int    `json:"height"`
	Filesize   *int64 `json:"filesize,omitempty"`
}

// RequestKind distinguishes the two gateway operations.
type RequestKind string

const (
	KindMetadata RequestKind = "metadata"
	KindDownload RequestKind = "download"
)

// DownloadRequest is the per-call context passed from the gateway down to
// the services. It replaces any page-wide "current URL" state.
type DownloadRequest struct {
	ID         string
	Kind       RequestKind
	SourceURL  string
	ReceivedAt time.Time
}

// NewDownloadRequest creates a request stamped with the current time.
func NewDownloadRequest(id string, kind RequestKind, sourceURL string) *DownloadRequest {
	return &DownloadRequest{
		ID:         id,
		Kind:       kind,
		SourceURL:  sourceURL,
		ReceivedAt: time.Now(),
	}
}
