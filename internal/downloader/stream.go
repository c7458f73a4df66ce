package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// StreamBufferSize is the fixed copy buffer used when streaming artifacts.
const StreamBufferSize = 32 * 1024

// progressReader wraps an io.Reader to track streaming progress and stop
// as soon as the request context is done.
type progressReader struct {
	ctx      context.Context
	reader   io.Reader
	total    int64
	read     int64
	logEvery time.Duration
	lastLog  time.Time
	logger   *slog.Logger
}

func newProgressReader(ctx context.Context, r io.Reader, total int64, logger *slog.Logger) *progressReader {
	return &progressReader{
		ctx:      ctx,
		reader:   r,
		total:    total,
		logEvery: 10 * time.Second,
		lastLog:  time.Now(),
		logger:   logger,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := p.reader.Read(buf)
	if n > 0 {
		p.read += int64(n)
		if time.Since(p.lastLog) > p.logEvery {
			p.logProgress()
			p.lastLog = time.Now()
		}
	}
	return n, err
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.read) / float64(p.total) * 100
		p.logger.Info("stream progress",
			"sent", humanize.IBytes(uint64(p.read)),
			"total", humanize.IBytes(uint64(p.total)),
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
	} else {
		p.logger.Info("stream progress", "sent", humanize.IBytes(uint64(p.read)))
	}
}

// writerOnly hides io.ReaderFrom so the copy goes through our buffer.
type writerOnly struct {
	io.Writer
}

// Stream copies the artifact to dst in StreamBufferSize chunks and returns the
// number of bytes written. It stops with ctx.Err() once ctx is done.
func Stream(ctx context.Context, dst io.Writer, a *Artifact) (int64, error) {
	logger := a.logger
	if logger == nil {
		logger = slog.Default()
	}
	pr := newProgressReader(ctx, a, a.Size, logger)
	buf := make([]byte, StreamBufferSize)

	n, err := io.CopyBuffer(writerOnly{dst}, pr, buf)
	if err != nil {
		logger.Info("stream aborted",
			"sent", humanize.IBytes(uint64(n)),
			"error", err,
		)
		return n, err
	}
	logger.Debug("stream finished", "sent", humanize.IBytes(uint64(n)))
	return n, nil
}
