package domain

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// ClassifiedError Tests
// =============================================================================

func TestClassifiedError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ClassifiedError
		want string
	}{
		{
			name: "message only",
			err:  NewClassifiedError(CategoryParseError, "bad json", nil),
			want: "ParseError: bad json",
		},
		{
			name: "with exit code",
			err:  NewClassifiedError(CategoryPrivateContent, "private", nil).WithExitCode(1),
			want: "PrivateContent: private (exit code 1)",
		},
		{
			name: "with cause",
			err:  NewClassifiedError(CategoryUnknown, "boom", io.EOF),
			want: "Unknown: boom: EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifiedError_Is(t *testing.T) {
	cause := errors.New("root cause")
	err := NewClassifiedError(CategoryRegionRestricted, "blocked", cause)

	if !errors.Is(err, ErrRegionRestricted) {
		t.Error("errors.Is should match the category sentinel")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should match the wrapped cause")
	}
	if errors.Is(err, ErrPrivateContent) {
		t.Error("errors.Is should not match another category")
	}
}

func TestClassifiedError_CopiesAreIndependent(t *testing.T) {
	base := NewClassifiedError(CategoryUnknown, "x", nil)
	withCode := base.WithExitCode(2).WithDetails("stderr text")

	if base.ExitCode != nil || base.RawDetails != "" {
		t.Error("With* must not mutate the receiver")
	}
	if withCode.ExitCode == nil || *withCode.ExitCode != 2 {
		t.Errorf("ExitCode = %v, want 2", withCode.ExitCode)
	}
	if withCode.RawDetails != "stderr text" {
		t.Errorf("RawDetails = %q", withCode.RawDetails)
	}
}

func TestAsClassified(t *testing.T) {
	ce := NewClassifiedError(CategoryArtifactMissing, "missing", nil)
	wrapped := errors.Join(errors.New("outer"), ce)

	got, ok := AsClassified(wrapped)
	if !ok {
		t.Fatal("AsClassified should find the wrapped error")
	}
	if got.Category != CategoryArtifactMissing {
		t.Errorf("Category = %q", got.Category)
	}

	if _, ok := AsClassified(io.EOF); ok {
		t.Error("AsClassified should not match plain errors")
	}
}

func TestEveryCategoryHasSentinel(t *testing.T) {
	categories := []Category{
		CategoryValidation, CategoryToolNotInstalled, CategoryUnsupportedSource,
		CategoryPrivateContent, CategoryContentUnavailable, CategoryRegionRestricted,
		CategoryArtifactMissing, CategoryParseError, CategoryUnknown,
	}
	for _, c := range categories {
		if categorySentinels[c] == nil {
			t.Errorf("category %q has no sentinel", c)
		}
		if !strings.Contains(NewClassifiedError(c, "m", nil).Error(), c.String()) {
			t.Errorf("Error() for %q should include the category", c)
		}
	}
}

// =============================================================================
// Request Tests
// =============================================================================

func TestNewDownloadRequest(t *testing.T) {
	before := time.Now()
	req := NewDownloadRequest("req-1", KindDownload, "https://youtu.be/dQw4w9WgXcQ")

	if req.ID != "req-1" || req.Kind != KindDownload {
		t.Errorf("unexpected request %+v", req)
	}
	if req.ReceivedAt.Before(before) {
		t.Error("ReceivedAt should be set to now")
	}
}

func TestRequestRecord_Lifecycle(t *testing.T) {
	req := NewDownloadRequest("req-2", KindMetadata, "https://example.com/v")

	rec := NewRequestRecord(req)
	if rec.Duration() != 0 {
		t.Error("unfinished record should have zero duration")
	}

	rec.MarkCompleted(1024)
	if rec.Status != RequestStatusCompleted || rec.Bytes != 1024 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Duration() < 0 {
		t.Error("duration should not be negative")
	}

	failed := NewRequestRecord(req)
	failed.MarkFailed(NewClassifiedError(CategoryPrivateContent, "private", nil).WithExitCode(1))
	if failed.Status != RequestStatusFailed || failed.Category != CategoryPrivateContent {
		t.Errorf("unexpected record %+v", failed)
	}
	if failed.ExitCode == nil || *failed.ExitCode != 1 {
		t.Errorf("ExitCode = %v, want 1", failed.ExitCode)
	}

	canceled := NewRequestRecord(req)
	canceled.MarkCanceled(10)
	if canceled.Status != RequestStatusCanceled || canceled.Bytes != 10 {
		t.Errorf("unexpected record %+v", canceled)
	}
}
