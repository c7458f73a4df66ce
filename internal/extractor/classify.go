package extractor

import (
	"context"
	"errors"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

type classifyRule struct {
	pattern  string
	category domain.Category
	message  string
}

const regionMessage = "This video is not available in your country or has been removed."

// ToolNotInstalledMessage is the message used when the binary cannot be spawned.
const ToolNotInstalledMessage = "yt-dlp is not installed. Please install yt-dlp to continue."

// Order matters: the first matching rule wins.
var classifyRules = []classifyRule{
	{"Unsupported URL", domain.CategoryUnsupportedSource, "Unsupported URL. Please check if the video is available."},
	{"Private video", domain.CategoryPrivateContent, "This video is private and cannot be downloaded."},
	{"Video unavailable", domain.CategoryContentUnavailable, "The video is unavailable. It may have been removed or made private."},
	{"This video is not available", domain.CategoryRegionRestricted, regionMessage},
	{"not available in your country", domain.CategoryRegionRestricted, regionMessage},
	{"command not found", domain.CategoryToolNotInstalled, ToolNotInstalledMessage},
}

// Classify maps extractor diagnostics to a category. Unmatched output becomes
// CategoryUnknown with fallback as its message. The raw text and exit code are
// always preserved.
func Classify(stderr string, exitCode int, fallback string) *domain.ClassifiedError {
	details := stderr
	if strings.TrimSpace(details) == "" {
		details = "Unknown error occurred"
	}

	for _, rule := range classifyRules {
		if strings.Contains(stderr, rule.pattern) {
			return domain.NewClassifiedError(rule.category, rule.message, nil).
				WithExitCode(exitCode).
				WithDetails(details)
		}
	}

	return domain.NewClassifiedError(domain.CategoryUnknown, fallback, nil).
		WithExitCode(exitCode).
		WithDetails(details)
}

// ClassifyRunError converts a Runner error into a ClassifiedError. Context
// cancellation is returned unchanged so callers can tell a disconnect apart
// from an extractor failure.
func ClassifyRunError(err error, fallback string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, domain.ErrToolNotInstalled) {
		return domain.NewClassifiedError(domain.CategoryToolNotInstalled, ToolNotInstalledMessage, err).
			WithDetails(err.Error())
	}
	return domain.NewClassifiedError(domain.CategoryUnknown, fallback, err).
		WithDetails(err.Error())
}
