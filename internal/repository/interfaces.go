package repository

import (
	"context"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// HistoryRepository records the outcome of every gateway request.
type HistoryRepository interface {
	// Record stores a finished request.
	Record(ctx context.Context, rec *domain.RequestRecord) error

	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]*domain.RequestRecord, error)

	// Stats returns aggregate counts over all stored records.
	Stats(ctx context.Context) (*HistoryStats, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying store.
	Close() error
}

// HistoryStats contains request outcome statistics.
type HistoryStats struct {
	Total       int                     `json:"total"`
	Completed   int                     `json:"completed"`
	Failed      int                     `json:"failed"`
	Canceled    int                     `json:"canceled"`
	BytesServed int64                   `json:"bytes_served"`
	ByCategory  map[domain.Category]int `json:"by_category"`
}

// DefaultListLimit is used when a caller asks for a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps a single List call.
const MaxListLimit = 500

// ClampLimit normalizes a caller-supplied list limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
