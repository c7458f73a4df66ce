package downloader

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/extractor"
)

const downloadFailureMessage = "Error downloading video"

// Artifact is a downloaded file open for reading. Closing it deletes the file
// and, for artifacts produced by an Orchestrator, every sibling sharing its
// scratch prefix.
type Artifact struct {
	Filename    string
	Path        string
	Size        int64
	ContentType string

	dir      string
	prefix   string
	file     *os.File
	once     sync.Once
	closeErr error
	logger   *slog.Logger
}

// OpenArtifact opens the finished file at path.
func OpenArtifact(path string, logger *slog.Logger) (*Artifact, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Artifact{
		Filename:    filepath.Base(path),
		Path:        path,
		Size:        info.Size(),
		ContentType: contentTypeFor(path),
		file:        f,
		logger:      logger,
	}, nil
}

// Read implements io.Reader.
func (a *Artifact) Read(p []byte) (int, error) {
	return a.file.Read(p)
}

// Close closes the file and removes it from the scratch directory.
// It is safe to call more than once.
func (a *Artifact) Close() error {
	a.once.Do(func() {
		closeErr := a.file.Close()
		rmErr := os.Remove(a.Path)
		if errors.Is(rmErr, fs.ErrNotExist) {
			rmErr = nil
		}
		var sweepErr error
		if a.prefix != "" {
			_, sweepErr = RemoveMatching(a.dir, a.prefix)
		}
		a.closeErr = errors.Join(closeErr, rmErr, sweepErr)
		if a.closeErr != nil {
			a.logger.Warn("failed to clean up artifact", "path", a.Path, "error", a.closeErr)
		} else {
			a.logger.Debug("artifact removed", "path", a.Path)
		}
	})
	return a.closeErr
}

// Orchestrator turns a source URL into a single Artifact in a scratch directory.
type Orchestrator struct {
	runner     extractor.Runner
	opts       extractor.Options
	scratchDir string
	now        func() time.Time
	logger     *slog.Logger
}

// NewOrchestrator creates a new download orchestrator.
func NewOrchestrator(runner extractor.Runner, opts extractor.Options, scratchDir string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		runner:     runner,
		opts:       opts,
		scratchDir: scratchDir,
		now:        time.Now,
		logger:     logger,
	}
}

// ScratchDir returns the directory downloads are written to.
func (o *Orchestrator) ScratchDir() string {
	return o.scratchDir
}

// Download runs the extractor into a fresh scratch prefix and returns the
// produced file. On every failure path all files with that prefix are removed;
// on success they are removed when the Artifact is closed.
func (o *Orchestrator) Download(ctx context.Context, sourceURL string) (*Artifact, error) {
	if err := os.MkdirAll(o.scratchDir, 0755); err != nil {
		return nil, domain.NewClassifiedError(domain.CategoryUnknown, downloadFailureMessage, err).
			WithDetails(err.Error())
	}

	prefix := NewPrefix(o.now())
	logger := o.logger.With("prefix", prefix)

	success := false
	defer func() {
		if success {
			return
		}
		n, err := RemoveMatching(o.scratchDir, prefix)
		if err != nil {
			logger.Warn("scratch cleanup failed", "error", err)
		} else if n > 0 {
			logger.Debug("scratch files removed", "count", n)
		}
	}()

	template := filepath.Join(o.scratchDir, prefix+".%(ext)s")
	logger.Info("starting download", "url", sourceURL)

	res, err := o.runner.Run(ctx, extractor.DownloadArgs(o.opts, template, sourceURL))
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("download canceled", "url", sourceURL)
		}
		return nil, extractor.ClassifyRunError(err, downloadFailureMessage)
	}

	if res.ExitCode != 0 {
		ce := extractor.Classify(string(res.Stderr), res.ExitCode, downloadFailureMessage)
		logger.Warn("extractor failed",
			"url", sourceURL,
			"exit_code", res.ExitCode,
			"category", ce.Category,
		)
		return nil, ce
	}

	matches, err := FindArtifacts(o.scratchDir, prefix)
	if err != nil {
		return nil, domain.NewClassifiedError(domain.CategoryArtifactMissing, "Downloaded file not found", err).
			WithExitCode(res.ExitCode).
			WithDetails(err.Error())
	}
	switch len(matches) {
	case 0:
		logger.Warn("extractor exited cleanly but produced no file")
		return nil, domain.NewClassifiedError(domain.CategoryArtifactMissing, "Downloaded file not found", nil).
			WithExitCode(res.ExitCode).
			WithDetails(string(res.Stderr))
	case 1:
	default:
		logger.Warn("extractor produced more than one file", "files", matches)
		return nil, domain.NewClassifiedError(domain.CategoryArtifactMissing, "Downloaded file is ambiguous", nil).
			WithExitCode(res.ExitCode).
			WithDetails("multiple files: " + strings.Join(baseNames(matches), ", "))
	}

	a, err := OpenArtifact(matches[0], logger)
	if err != nil {
		return nil, domain.NewClassifiedError(domain.CategoryArtifactMissing, "Downloaded file not found", err).
			WithDetails(err.Error())
	}

	// Leftover intermediates are swept by Close once the body is streamed.
	a.dir, a.prefix = o.scratchDir, prefix
	success = true
	logger.Info("download complete",
		"file", a.Filename,
		"size", humanize.IBytes(uint64(a.Size)),
		"duration", res.Duration,
	)
	return a, nil
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
