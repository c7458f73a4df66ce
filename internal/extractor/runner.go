// Package extractor runs the external yt-dlp binary and interprets its output.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// Result is the outcome of a single extractor invocation.
// A non-zero ExitCode is not an error at this level.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Runner spawns the extractor with the given arguments and waits for it to exit.
type Runner interface {
	Run(ctx context.Context, args []string) (*Result, error)
}

// ExecRunner runs the extractor as a child process.
type ExecRunner struct {
	binary    string
	waitDelay time.Duration
	logger    *slog.Logger
}

// NewExecRunner creates a runner for binary, which is either an absolute path
// or a name looked up in PATH on every call.
func NewExecRunner(binary string, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{
		binary:    binary,
		waitDelay: 5 * time.Second,
		logger:    logger.With("component", "extractor"),
	}
}

// Resolve returns the absolute path of binary or ErrToolNotInstalled.
func Resolve(binary string) (string, error) {
	if binary == "" {
		return "", fmt.Errorf("%w: no extractor path configured", domain.ErrToolNotInstalled)
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrToolNotInstalled, binary, err)
	}
	return path, nil
}

// Binary returns the configured extractor name or path.
func (r *ExecRunner) Binary() string {
	return r.binary
}

// Run starts the extractor and blocks until it exits or ctx is canceled.
// Cancellation kills the whole process tree and returns ctx.Err().
func (r *ExecRunner) Run(ctx context.Context, args []string) (*Result, error) {
	path, err := Resolve(r.binary)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, args...)
	configureProcess(cmd)
	cmd.WaitDelay = r.waitDelay

	var stdout, stderr bytes.Buffer
	outLog := &lineWriter{buf: &stdout, logger: r.logger, stream: "stdout"}
	errLog := &lineWriter{buf: &stderr, logger: r.logger, stream: "stderr"}
	cmd.Stdout = outLog
	cmd.Stderr = errLog

	r.logger.Debug("starting extractor",
		"command", shellescape.QuoteCommand(append([]string{path}, args...)),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", domain.ErrToolNotInstalled, err)
		}
		return nil, fmt.Errorf("start extractor: %w", err)
	}

	waitErr := cmd.Wait()
	outLog.flush()
	errLog.flush()

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.Info("extractor canceled", "duration", result.Duration)
		return nil, ctxErr
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay):
			// exited, but a grandchild kept the pipes open
			result.ExitCode = cmd.ProcessState.ExitCode()
		default:
			return nil, fmt.Errorf("wait extractor: %w", waitErr)
		}
	}

	r.logger.Debug("extractor exited",
		"exit_code", result.ExitCode,
		"duration", result.Duration,
		"stdout_bytes", len(result.Stdout),
		"stderr_bytes", len(result.Stderr),
	)
	return result, nil
}

const maxLoggedLine = 512

// lineWriter keeps everything written to it and logs complete lines at debug.
type lineWriter struct {
	buf     *bytes.Buffer
	pending []byte
	logger  *slog.Logger
	stream  string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if !w.logger.Enabled(context.Background(), slog.LevelDebug) {
		return len(p), nil
	}

	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.log(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.pending) > 0 {
		w.log(w.pending)
		w.pending = nil
	}
}

func (w *lineWriter) log(b []byte) {
	line := strings.TrimRight(string(b), "\r")
	if line == "" {
		return
	}
	if len(line) > maxLoggedLine {
		line = line[:maxLoggedLine] + "..."
	}
	w.logger.Debug("extractor output", "stream", w.stream, "line", line)
}
