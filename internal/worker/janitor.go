package worker

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

	"github.com/iconidentify/ytgrabba/internal/downloader"
)

// ErrShutdownTimeout is returned when the janitor doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("janitor shutdown timed out")

// Purger drops expired entries from an in-process store.
type Purger interface {
	Purge() int
}

// Config holds janitor configuration.
type Config struct {
	ScratchDir string
	MaxAge     time.Duration
	Interval   time.Duration
}

// Janitor periodically removes scratch files left behind by crashed or killed
// requests, and purges expired cache entries.
type Janitor struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	purgers  []Purger
	now      func() time.Time
	logger   *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewJanitor creates a new janitor.
func NewJanitor(cfg Config, logger *slog.Logger, purgers ...Purger) *Janitor {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Janitor{
		dir:      cfg.ScratchDir,
		maxAge:   cfg.MaxAge,
		interval: cfg.Interval,
		purgers:  purgers,
		now:      time.Now,
		logger:   logger.With("component", "janitor"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs one sweep immediately and then every interval.
func (j *Janitor) Start() {
	j.logger.Info("starting janitor",
		"dir", j.dir,
		"max_age", j.maxAge,
		"interval", j.interval,
	)

	j.wg.Add(1)
	go j.run()
}

// Stop gracefully stops the janitor.
func (j *Janitor) Stop(timeout time.Duration) error {
	j.logger.Info("stopping janitor")
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("janitor stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (j *Janitor) run() {
	defer j.wg.Done()

	j.tick()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *Janitor) tick() {
	if _, _, err := j.Sweep(); err != nil {
		j.logger.Error("scratch sweep failed", "error", err)
	}
	for _, p := range j.purgers {
		if n := p.Purge(); n > 0 {
			j.logger.Debug("purged expired cache entries", "count", n)
		}
	}
}

// Sweep removes scratch files older than the max age and returns how many
// files and bytes were reclaimed. Files of in-flight requests are younger
// than any sensible max age and are left alone.
func (j *Janitor) Sweep() (int, int64, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	var reclaimed int64
	var errs []error

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), downloader.ScratchPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(j.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
		reclaimed += info.Size()
	}

	if removed > 0 {
		j.logger.Info("removed stale scratch files",
			"count", removed,
			"reclaimed", humanize.IBytes(uint64(reclaimed)),
		)
	}
	return removed, reclaimed, errors.Join(errs...)
}
