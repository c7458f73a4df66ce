package domain

import (
	"time"
)

// RequestStatus represents the final state of a gateway request.
type RequestStatus string

const (
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusFailed    RequestStatus = "failed"
	RequestStatusCanceled  RequestStatus = "canceled"
)

// RequestRecord is the outcome of one metadata or download request.
type RequestRecord struct {
	ID         string
	Kind       RequestKind
	SourceURL  string
	Status     RequestStatus
	Category   Category
	ExitCode   *int
	Bytes      int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRequestRecord starts a record for req.
func NewRequestRecord(req *DownloadRequest) *RequestRecord {
	return &RequestRecord{
		ID:        req.ID,
		Kind:      req.Kind,
		SourceURL: req.SourceURL,
		StartedAt: req.ReceivedAt,
	}
}

// MarkCompleted marks the request as successful.
func (r *RequestRecord) MarkCompleted(bytes int64) {
	r.Status = RequestStatusCompleted
	r.Bytes = bytes
	r.FinishedAt = time.Now()
}

// MarkFailed records the classified failure.
func (r *RequestRecord) MarkFailed(ce *ClassifiedError) {
	r.Status = RequestStatusFailed
	r.Category = ce.Category
	r.ExitCode = ce.ExitCode
	r.FinishedAt = time.Now()
}

// MarkCanceled records a client disconnect after bytes were sent.
func (r *RequestRecord) MarkCanceled(bytes int64) {
	r.Status = RequestStatusCanceled
	r.Bytes = bytes
	r.FinishedAt = time.Now()
}

// Duration returns how long the request took.
func (r *RequestRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
