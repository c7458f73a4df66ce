package extractor

import (
	"fmt"
	"strconv"
)

// Options are the tunable parts of the argument templates.
type Options struct {
	SocketTimeout int
	MaxHeight     int
}

// FormatSelector prefers an mp4 video stream no taller than maxHeight merged
// with m4a audio, then a progressive mp4, then whatever is best.
func FormatSelector(maxHeight int) string {
	return fmt.Sprintf(
		"bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/best[height<=%d][ext=mp4]/best",
		maxHeight, maxHeight,
	)
}

// MetadataArgs builds the arguments for a JSON metadata dump of sourceURL.
func MetadataArgs(opts Options, sourceURL string) []string {
	return []string{
		"--dump-json",
		"--no-warnings",
		"--no-check-certificate",
		"--no-playlist",
		"--geo-bypass",
		"--socket-timeout", strconv.Itoa(opts.SocketTimeout),
		"--",
		sourceURL,
	}
}

// DownloadArgs builds the arguments for downloading sourceURL to outputTemplate.
func DownloadArgs(opts Options, outputTemplate, sourceURL string) []string {
	return []string{
		"--no-warnings",
		"--no-check-certificate",
		"--newline",
		"-f", FormatSelector(opts.MaxHeight),
		"--merge-output-format", "mp4",
		"--output", outputTemplate,
		"--no-playlist",
		"--geo-bypass",
		"--socket-timeout", strconv.Itoa(opts.SocketTimeout),
		"--no-part",
		"--no-embed-metadata",
		"--no-embed-subs",
		"--no-embed-thumbnail",
		"--",
		sourceURL,
	}
}
