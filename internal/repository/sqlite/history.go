package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
)

// HistoryRepository implements repository.HistoryRepository on SQLite.
type HistoryRepository struct {
	db *sqlx.DB
}

var _ repository.HistoryRepository = (*HistoryRepository)(nil)

// NewHistoryRepository creates a new SQLite history repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// requestRow maps the requests table.
type requestRow struct {
	Seq        int64         `db:"seq"`
	ID         string        `db:"id"`
	Kind       string        `db:"kind"`
	SourceURL  string        `db:"source_url"`
	Status     string        `db:"status"`
	Category   string        `db:"category"`
	ExitCode   sql.NullInt64 `db:"exit_code"`
	Bytes      int64         `db:"bytes"`
	StartedAt  int64         `db:"started_at"`
	FinishedAt int64         `db:"finished_at"`
}

// Record inserts a finished request.
func (r *HistoryRepository) Record(ctx context.Context, rec *domain.RequestRecord) error {
	query := `
		INSERT INTO requests (id, kind, source_url, status, category, exit_code, bytes, started_at, finished_at)
		VALUES (:id, :kind, :source_url, :status, :category, :exit_code, :bytes, :started_at, :finished_at)
	`

	var exitCode interface{}
	if rec.ExitCode != nil {
		exitCode = *rec.ExitCode
	}

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          rec.ID,
		"kind":        string(rec.Kind),
		"source_url":  rec.SourceURL,
		"status":      string(rec.Status),
		"category":    string(rec.Category),
		"exit_code":   exitCode,
		"bytes":       rec.Bytes,
		"started_at":  rec.StartedAt.UnixMilli(),
		"finished_at": rec.FinishedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]*domain.RequestRecord, error) {
	var rows []requestRow
	query := `SELECT * FROM requests ORDER BY seq DESC LIMIT ?`
	if err := r.db.SelectContext(ctx, &rows, query, repository.ClampLimit(limit)); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	records := make([]*domain.RequestRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rowToDomain(&rows[i]))
	}
	return records, nil
}

// Stats aggregates request outcomes.
func (r *HistoryRepository) Stats(ctx context.Context) (*repository.HistoryStats, error) {
	stats := &repository.HistoryStats{ByCategory: make(map[domain.Category]int)}

	var totals struct {
		Total     int   `db:"total"`
		Completed int   `db:"completed"`
		Failed    int   `db:"failed"`
		Canceled  int   `db:"canceled"`
		Bytes     int64 `db:"bytes"`
	}
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(CASE WHEN status = 'canceled' THEN 1 ELSE 0 END), 0) AS canceled,
			COALESCE(SUM(bytes), 0) AS bytes
		FROM requests
	`
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	stats.Total = totals.Total
	stats.Completed = totals.Completed
	stats.Failed = totals.Failed
	stats.Canceled = totals.Canceled
	stats.BytesServed = totals.Bytes

	var byCategory []struct {
		Category string `db:"category"`
		Count    int    `db:"n"`
	}
	query = `SELECT category, COUNT(*) AS n FROM requests WHERE status = 'failed' GROUP BY category`
	if err := r.db.SelectContext(ctx, &byCategory, query); err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	for _, c := range byCategory {
		stats.ByCategory[domain.Category(c.Category)] = c.Count
	}

	return stats, nil
}

// Ping checks the connection.
func (r *HistoryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database.
func (r *HistoryRepository) Close() error {
	return r.db.Close()
}

func rowToDomain(row *requestRow) *domain.RequestRecord {
	rec := &domain.RequestRecord{
		ID:         row.ID,
		Kind:       domain.RequestKind(row.Kind),
		SourceURL:  row.SourceURL,
		Status:     domain.RequestStatus(row.Status),
		Category:   domain.Category(row.Category),
		Bytes:      row.Bytes,
		StartedAt:  time.UnixMilli(row.StartedAt),
		FinishedAt: time.UnixMilli(row.FinishedAt),
	}
	if row.ExitCode.Valid {
		code := int(row.ExitCode.Int64)
		rec.ExitCode = &code
	}
	return rec
}
