package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// DefaultMemoryCapacity bounds the in-memory history.
const DefaultMemoryCapacity = 1000

// InMemoryHistoryRepository implements HistoryRepository using a bounded
// in-memory log. The oldest records are dropped once capacity is reached.
type InMemoryHistoryRepository struct {
	mu       sync.RWMutex
	records  []*domain.RequestRecord
	capacity int
}

// NewInMemoryHistoryRepository creates a new in-memory history repository.
func NewInMemoryHistoryRepository(capacity int) *InMemoryHistoryRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &InMemoryHistoryRepository{
		records:  make([]*domain.RequestRecord, 0),
		capacity: capacity,
	}
}

// Record stores a copy of rec.
func (r *InMemoryHistoryRepository) Record(ctx context.Context, rec *domain.RequestRecord) error {
	cp := *rec

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, &cp)
	if over := len(r.records) - r.capacity; over > 0 {
		r.records = append(r.records[:0:0], r.records[over:]...)
	}
	return nil
}

// List returns up to limit records, newest first.
func (r *InMemoryHistoryRepository) List(ctx context.Context, limit int) ([]*domain.RequestRecord, error) {
	limit = ClampLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.RequestRecord, 0, min(limit, len(r.records)))
	for i := len(r.records) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *r.records[i]
		result = append(result, &cp)
	}
	return result, nil
}

// Stats returns outcome statistics.
func (r *InMemoryHistoryRepository) Stats(ctx context.Context) (*HistoryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &HistoryStats{ByCategory: make(map[domain.Category]int)}
	for _, rec := range r.records {
		stats.Total++
		stats.BytesServed += rec.Bytes
		switch rec.Status {
		case domain.RequestStatusCompleted:
			stats.Completed++
		case domain.RequestStatusFailed:
			stats.Failed++
			stats.ByCategory[rec.Category]++
		case domain.RequestStatusCanceled:
			stats.Canceled++
		}
	}
	return stats, nil
}

// Ping always succeeds.
func (r *InMemoryHistoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (r *InMemoryHistoryRepository) Close() error {
	return nil
}

// Clear removes all records (useful for testing).
func (r *InMemoryHistoryRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make([]*domain.RequestRecord, 0)
}
