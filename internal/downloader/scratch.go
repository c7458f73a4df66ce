package downloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScratchPrefix starts every file name the orchestrator allocates.
const ScratchPrefix = "video_"

// NewPrefix returns a scratch prefix unique to one download.
func NewPrefix(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", ScratchPrefix, now.UnixMilli(), uuid.NewString())
}

// isPartial reports whether name is an in-progress or intermediate file.
func isPartial(name string) bool {
	return strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".ytdl") ||
		strings.HasSuffix(name, ".temp") ||
		strings.Contains(name, ".temp.") ||
		strings.Contains(name, ".part-Frag")
}

// matchesPrefix requires a dot right after the prefix so that one request's
// prefix can never match another request's files.
func matchesPrefix(name, prefix string) bool {
	return strings.HasPrefix(name, prefix+".")
}

// FindArtifacts returns the finished regular files in dir that belong to prefix.
func FindArtifacts(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scratch dir: %w", err)
	}

	var matches []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !matchesPrefix(name, prefix) || isPartial(name) {
			continue
		}
		matches = append(matches, filepath.Join(dir, name))
	}
	sort.Strings(matches)
	return matches, nil
}

// RemoveMatching deletes every file in dir that belongs to prefix, partial
// files included, and returns how many were removed.
func RemoveMatching(dir, prefix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read scratch dir: %w", err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !matchesPrefix(e.Name(), prefix) {
			continue
		}
		err := os.Remove(filepath.Join(dir, e.Name()))
		switch {
		case err == nil:
			removed++
		case !errors.Is(err, fs.ErrNotExist):
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// contentTypeFor maps the container extension of path to a MIME type.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".m4a":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
