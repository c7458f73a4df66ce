package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/ytgrabba/internal/extractor"
	"github.com/iconidentify/ytgrabba/internal/repository"
)

var startTime = time.Now()

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	history       repository.HistoryRepository
	extractorPath string
	scratchDir    string
	logger        *slog.Logger
}

// NewHealthHandler creates a new health handler. An empty extractorPath
// skips the extractor check (proxy and degraded modes).
func NewHealthHandler(history repository.HistoryRepository, extractorPath, scratchDir string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		history:       history,
		extractorPath: extractorPath,
		scratchDir:    scratchDir,
		logger:        logger,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if err := h.history.Ping(ctx); err != nil {
		h.logger.Warn("history store not reachable", "error", err)
		checks["history"] = "error: " + err.Error()
		healthy = false
	} else {
		checks["history"] = "ok"
	}

	if h.extractorPath == "" {
		checks["extractor"] = "skipped"
	} else if path, err := extractor.Resolve(h.extractorPath); err != nil {
		checks["extractor"] = "error: " + err.Error()
		healthy = false
	} else {
		checks["extractor"] = path
		// The extractor needs ffmpeg to merge separate video and audio
		// streams; without it downloads fall back to single-file formats.
		if ff, err := extractor.Resolve("ffmpeg"); err != nil {
			checks["ffmpeg"] = "missing"
		} else {
			checks["ffmpeg"] = ff
		}
	}

	if h.scratchDir != "" {
		total, free, _, _ := getDiskStats(h.scratchDir)
		if total > 0 {
			checks["scratch"] = humanize.IBytes(uint64(free)) + " free"
		} else {
			checks["scratch"] = "unknown"
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "error", http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64                    `json:"uptime_seconds"`
	UptimeHuman    string                   `json:"uptime_human"`
	MemAllocMB     int64                    `json:"mem_alloc_mb"`
	MemSysMB       int64                    `json:"mem_sys_mb"`
	MemHeapMB      int64                    `json:"mem_heap_mb"`
	NumGoroutines  int                      `json:"num_goroutines"`
	NumCPU         int                      `json:"num_cpu"`
	CPUPercent     float64                  `json:"cpu_percent"`
	DiskUsedBytes  int64                    `json:"disk_used_bytes"`
	DiskFreeBytes  int64                    `json:"disk_free_bytes"`
	DiskTotalBytes int64                    `json:"disk_total_bytes"`
	DiskUsedPct    float64                  `json:"disk_used_pct"`
	ScratchDir     string                   `json:"scratch_dir"`
	Requests       *repository.HistoryStats `json:"requests,omitempty"`
}

// Stats handles GET /api/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPercent:    getCPUUsage(),
		ScratchDir:    h.scratchDir,
	}

	if h.scratchDir != "" {
		stats.DiskTotalBytes, stats.DiskFreeBytes, stats.DiskUsedBytes, stats.DiskUsedPct = getDiskStats(h.scratchDir)
	}

	if hs, err := h.history.Stats(r.Context()); err != nil {
		h.logger.Warn("failed to read history stats", "error", err)
	} else {
		stats.Requests = hs
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
