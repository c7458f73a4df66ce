package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
)

const (
	maxRequestBody  = 64 << 10
	recordTimeout   = 5 * time.Second
	missingURLError = "Video URL is required"
	missingURLHint  = "Please provide a valid video URL"
)

// VideoHandler serves the metadata and download endpoints.
type VideoHandler struct {
	fetcher    service.MetadataFetcher
	downloader downloader.Downloader
	history    repository.HistoryRepository
	logger     *slog.Logger
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(
	fetcher service.MetadataFetcher,
	dl downloader.Downloader,
	history repository.HistoryRepository,
	logger *slog.Logger,
) *VideoHandler {
	return &VideoHandler{
		fetcher:    fetcher,
		downloader: dl,
		history:    history,
		logger:     logger,
	}
}

// VideoRequest is the JSON body of both gateway operations. Older clients
// send videoUrl instead of url.
type VideoRequest struct {
	URL      string `json:"url"`
	VideoURL string `json:"videoUrl"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Category string `json:"category"`
	Details  string `json:"details,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

// VideoInfo handles POST /api/video-info.
func (h *VideoHandler) VideoInfo(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r, domain.KindMetadata)
	if !ok {
		return
	}
	rec := domain.NewRequestRecord(req)

	meta, err := h.fetcher.Fetch(r.Context(), req.SourceURL)
	if err != nil {
		h.fail(w, r, rec, err, nil)
		return
	}

	rec.MarkCompleted(0)
	h.record(r.Context(), rec)

	writeJSON(w, http.StatusOK, meta)
}

// Download handles POST /download. The artifact is streamed back and deleted
// when the handler returns, however the stream ends.
func (h *VideoHandler) Download(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r, domain.KindDownload)
	if !ok {
		return
	}
	rec := domain.NewRequestRecord(req)
	logger := h.logger.With("request_id", req.ID)

	artifact, err := h.downloader.Download(r.Context(), req.SourceURL)
	if err != nil {
		h.fail(w, r, rec, err, nil)
		return
	}
	defer artifact.Close()

	tw := newTrackingWriter(w)
	tw.Header().Set("Content-Type", artifact.ContentType)
	tw.Header().Set("Content-Disposition", contentDisposition(artifact.Filename))
	tw.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	tw.WriteHeader(http.StatusOK)

	n, err := downloader.Stream(r.Context(), tw, artifact)
	if err != nil {
		h.fail(tw, r, rec, err, tw)
		return
	}

	rec.MarkCompleted(n)
	h.record(r.Context(), rec)

	logger.Info("download served",
		"url", req.SourceURL,
		"file", artifact.Filename,
		"bytes", n,
	)
}

// HistoryResponse is the JSON body of GET /api/history.
type HistoryResponse struct {
	Requests []HistoryEntry `json:"requests"`
	Count    int            `json:"count"`
}

// HistoryEntry is one recorded request.
type HistoryEntry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	SourceURL  string    `json:"url"`
	Status     string    `json:"status"`
	Category   string    `json:"category,omitempty"`
	ExitCode   *int      `json:"exitCode,omitempty"`
	Bytes      int64     `json:"bytes"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// History handles GET /api/history.
func (h *VideoHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := repository.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ErrorResponse{
				Error:    "Invalid limit",
				Category: domain.CategoryValidation.String(),
				Details:  "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	records, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{
			Error:    "Failed to list request history",
			Category: domain.CategoryUnknown.String(),
		})
		return
	}

	resp := HistoryResponse{
		Requests: make([]HistoryEntry, 0, len(records)),
		Count:    len(records),
	}
	for _, rec := range records {
		resp.Requests = append(resp.Requests, HistoryEntry{
			ID:         rec.ID,
			Kind:       string(rec.Kind),
			SourceURL:  rec.SourceURL,
			Status:     string(rec.Status),
			Category:   string(rec.Category),
			ExitCode:   rec.ExitCode,
			Bytes:      rec.Bytes,
			StartedAt:  rec.StartedAt.UTC(),
			DurationMS: rec.Duration().Milliseconds(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseRequest decodes and validates the body. On failure it writes the 400
// response itself and records the rejected request.
func (h *VideoHandler) parseRequest(w http.ResponseWriter, r *http.Request, kind domain.RequestKind) (*domain.DownloadRequest, bool) {
	id := middleware.GetReqID(r.Context())
	if id == "" {
		id = uuid.NewString()
	}

	var body VideoRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.reject(w, r, domain.NewDownloadRequest(id, kind, ""), "Invalid request body", "Request body must be a JSON object")
		return nil, false
	}

	sourceURL := strings.TrimSpace(body.URL)
	if sourceURL == "" {
		sourceURL = strings.TrimSpace(body.VideoURL)
	}
	req := domain.NewDownloadRequest(id, kind, sourceURL)
	if sourceURL == "" {
		h.reject(w, r, req, missingURLError, missingURLHint)
		return nil, false
	}

	return req, true
}

func (h *VideoHandler) reject(w http.ResponseWriter, r *http.Request, req *domain.DownloadRequest, msg, details string) {
	rec := domain.NewRequestRecord(req)
	rec.MarkFailed(domain.NewClassifiedError(domain.CategoryValidation, msg, nil))
	h.record(r.Context(), rec)

	writeError(w, http.StatusBadRequest, ErrorResponse{
		Error:    msg,
		Category: domain.CategoryValidation.String(),
		Details:  details,
	})
}

// fail records err and, if nothing has been written yet, sends the error
// response. tw is nil before streaming starts.
func (h *VideoHandler) fail(w http.ResponseWriter, r *http.Request, rec *domain.RequestRecord, err error, tw *trackingWriter) {
	var sent int64
	if tw != nil {
		sent = tw.Written()
	}
	logger := h.logger.With("request_id", rec.ID, "url", rec.SourceURL)

	// Client went away or the request timed out: nobody is reading.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || r.Context().Err() != nil {
		rec.MarkCanceled(sent)
		h.record(r.Context(), rec)
		logger.Info("request canceled", "kind", rec.Kind, "sent", sent, "error", err)
		return
	}

	ce, ok := domain.AsClassified(err)
	if !ok {
		ce = domain.NewClassifiedError(domain.CategoryUnknown, "Internal server error", err).WithDetails(err.Error())
	}
	rec.MarkFailed(ce)
	h.record(r.Context(), rec)

	if tw != nil && tw.HeadersSent() {
		logger.Error("stream failed after headers were sent", "sent", sent, "error", err)
		return
	}

	logger.Warn("request failed",
		"kind", rec.Kind,
		"category", ce.Category,
		"exit_code", ce.ExitCode,
	)
	writeClassified(w, ce)
}

// record stores rec even when the request context is already canceled.
func (h *VideoHandler) record(ctx context.Context, rec *domain.RequestRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := h.history.Record(ctx, rec); err != nil {
		h.logger.Warn("failed to record request", "request_id", rec.ID, "error", err)
	}
}

// contentDisposition builds an attachment header for a scratch file name.
func contentDisposition(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("attachment; filename=%q", name)
}

// trackingWriter remembers whether the status line has gone out so late
// failures never try to write a second set of headers.
type trackingWriter struct {
	http.ResponseWriter
	headersSent bool
	written     int64
}

func newTrackingWriter(w http.ResponseWriter) *trackingWriter {
	return &trackingWriter{ResponseWriter: w}
}

func (t *trackingWriter) WriteHeader(code int) {
	if t.headersSent {
		return
	}
	t.headersSent = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.headersSent = true
	n, err := t.ResponseWriter.Write(b)
	t.written += int64(n)
	return n, err
}

// HeadersSent reports whether the response status has been written.
func (t *trackingWriter) HeadersSent() bool {
	return t.headersSent
}

// Written returns the number of body bytes sent.
func (t *trackingWriter) Written() int64 {
	return t.written
}

func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

// statusFor maps an error category to an HTTP status.
func statusFor(c domain.Category) int {
	if c == domain.CategoryValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeClassified(w http.ResponseWriter, ce *domain.ClassifiedError) {
	details := ce.RawDetails
	if details == "" && ce.Err != nil {
		details = ce.Err.Error()
	}
	writeError(w, statusFor(ce.Category), ErrorResponse{
		Error:    ce.Message,
		Message:  ce.Message,
		Category: ce.Category.String(),
		Details:  details,
		ExitCode: ce.ExitCode,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}
