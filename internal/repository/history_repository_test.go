package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

func newRecord(id string, status domain.RequestStatus, bytes int64) *domain.RequestRecord {
	rec := domain.NewRequestRecord(domain.NewDownloadRequest(id, domain.KindDownload, "https://youtu.be/"+id))
	switch status {
	case domain.RequestStatusCompleted:
		rec.MarkCompleted(bytes)
	case domain.RequestStatusCanceled:
		rec.MarkCanceled(bytes)
	case domain.RequestStatusFailed:
		rec.MarkFailed(domain.NewClassifiedError(domain.CategoryPrivateContent, "private", nil).WithExitCode(1))
	}
	return rec
}

func TestNewInMemoryHistoryRepository(t *testing.T) {
	repo := NewInMemoryHistoryRepository(0)

	if repo == nil {
		t.Fatal("repo should not be nil")
	}
	if repo.records == nil {
		t.Error("records should be initialized")
	}
	if repo.capacity != DefaultMemoryCapacity {
		t.Errorf("capacity = %d, want %d", repo.capacity, DefaultMemoryCapacity)
	}
}

func TestInMemoryHistoryRepository_RecordAndList(t *testing.T) {
	repo := NewInMemoryHistoryRepository(10)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := repo.Record(ctx, newRecord(fmt.Sprintf("req-%d", i), domain.RequestStatusCompleted, 10)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	list, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != "req-3" || list[1].ID != "req-2" {
		t.Errorf("List order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}
}

func TestInMemoryHistoryRepository_RecordCopies(t *testing.T) {
	repo := NewInMemoryHistoryRepository(10)
	ctx := context.Background()

	rec := newRecord("req-1", domain.RequestStatusCompleted, 10)
	repo.Record(ctx, rec)
	rec.Bytes = 999

	list, _ := repo.List(ctx, 1)
	if list[0].Bytes != 10 {
		t.Errorf("stored record mutated: Bytes = %d", list[0].Bytes)
	}
}

func TestInMemoryHistoryRepository_Capacity(t *testing.T) {
	repo := NewInMemoryHistoryRepository(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		repo.Record(ctx, newRecord(fmt.Sprintf("req-%d", i), domain.RequestStatusCompleted, 1))
	}

	list, _ := repo.List(ctx, 10)
	if len(list) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(list))
	}
	if list[2].ID != "req-3" {
		t.Errorf("oldest kept = %s, want req-3", list[2].ID)
	}
}

func TestInMemoryHistoryRepository_Stats(t *testing.T) {
	repo := NewInMemoryHistoryRepository(10)
	ctx := context.Background()

	repo.Record(ctx, newRecord("a", domain.RequestStatusCompleted, 100))
	repo.Record(ctx, newRecord("b", domain.RequestStatusCompleted, 50))
	repo.Record(ctx, newRecord("c", domain.RequestStatusFailed, 0))
	repo.Record(ctx, newRecord("d", domain.RequestStatusCanceled, 25))

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.Completed != 2 {
		t.Errorf("Completed = %d, want 2", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if stats.Canceled != 1 {
		t.Errorf("Canceled = %d, want 1", stats.Canceled)
	}
	if stats.BytesServed != 175 {
		t.Errorf("BytesServed = %d, want 175", stats.BytesServed)
	}
	if stats.ByCategory[domain.CategoryPrivateContent] != 1 {
		t.Errorf("ByCategory = %v", stats.ByCategory)
	}
}

func TestInMemoryHistoryRepository_Clear(t *testing.T) {
	repo := NewInMemoryHistoryRepository(10)
	ctx := context.Background()

	repo.Record(ctx, newRecord("a", domain.RequestStatusCompleted, 1))
	repo.Clear()

	list, _ := repo.List(ctx, 10)
	if len(list) != 0 {
		t.Errorf("len(list) = %d after Clear", len(list))
	}
}

func TestInMemoryHistoryRepository_Concurrent(t *testing.T) {
	repo := NewInMemoryHistoryRepository(100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo.Record(ctx, newRecord(fmt.Sprintf("req-%d", i), domain.RequestStatusCompleted, 1))
			repo.List(ctx, 5)
			repo.Stats(ctx)
		}(i)
	}
	wg.Wait()

	stats, _ := repo.Stats(ctx)
	if stats.Total != 50 {
		t.Errorf("Total = %d, want 50", stats.Total)
	}
}

func TestClampLimit(t *testing.T) {
	tests := map[int]int{
		-1:   DefaultListLimit,
		0:    DefaultListLimit,
		10:   10,
		5000: MaxListLimit,
	}
	for in, want := range tests {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
