package downloader

import (
	"context"
)

// Downloader produces a finished media file for a source URL.
type Downloader interface {
	// Download runs the extractor and returns the resulting artifact.
	// Caller is responsible for closing the artifact, which also deletes it.
	Download(ctx context.Context, sourceURL string) (*Artifact, error)
}
