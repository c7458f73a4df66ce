package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/extractor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner returns a canned result and records the arguments it saw.
type fakeRunner struct {
	result *extractor.Result
	err    error

	mu    sync.Mutex
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, args []string) (*extractor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newMetadataService(r extractor.Runner) *MetadataService {
	return NewMetadataService(r, extractor.Options{SocketTimeout: 30, MaxHeight: 480}, testLogger())
}

const sampleInfo = `{"id":"dQw4w9WgXcQ","title":"Never Gonna Give You Up",
"thumbnail":"https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
"duration":212.0,"uploader":"Rick Astley","upload_date":"20091025",
"view_count":1500000000,"description":"The official video",
"webpage_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ","formats":[]}`

func TestMetadataService_Fetch_Success(t *testing.T) {
	runner := &fakeRunner{result: &extractor.Result{ExitCode: 0, Stdout: []byte(sampleInfo)}}
	svc := newMetadataService(runner)

	meta, err := svc.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if meta.ID != "dQw4w9WgXcQ" {
		t.Errorf("ID = %q", meta.ID)
	}
	if meta.Title != "Never Gonna Give You Up" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.DurationSeconds == nil || *meta.DurationSeconds != 212 {
		t.Errorf("DurationSeconds = %v, want 212", meta.DurationSeconds)
	}
	if meta.ViewCount == nil || *meta.ViewCount != 1500000000 {
		t.Errorf("ViewCount = %v", meta.ViewCount)
	}
	if meta.UploadDate != "20091025" || meta.Uploader != "Rick Astley" {
		t.Errorf("unexpected uploader fields %+v", meta)
	}

	if runner.callCount() != 1 {
		t.Fatalf("runner called %d times, want 1", runner.callCount())
	}
	args := runner.calls[0]
	if !slices.Contains(args, "--dump-json") {
		t.Errorf("args missing --dump-json: %v", args)
	}
	if args[len(args)-1] != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("last arg = %q, want source URL", args[len(args)-1])
	}
}

func TestMetadataService_Fetch_OptionalFieldsAbsent(t *testing.T) {
	runner := &fakeRunner{result: &extractor.Result{Stdout: []byte(`{"id":"abc","title":"Live"}`)}}
	svc := newMetadataService(runner)

	meta, err := svc.Fetch(context.Background(), "https://example.com/live")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if meta.DurationSeconds != nil {
		t.Errorf("DurationSeconds = %v, want nil", *meta.DurationSeconds)
	}
	if meta.ViewCount != nil {
		t.Errorf("ViewCount = %v, want nil", *meta.ViewCount)
	}
	if meta.SourceURL != "https://example.com/live" {
		t.Errorf("SourceURL = %q, want request URL fallback", meta.SourceURL)
	}
	if meta.Formats != nil {
		t.Errorf("Formats = %v, want none", meta.Formats)
	}
}

func TestMetadataService_Fetch_Formats(t *testing.T) {
	stdout := `{"id":"abc","title":"Formats","formats":[
{"format_id":"140","ext":"m4a","resolution":"audio only","height":null,"filesize":3400000},
{"format_id":"18","ext":"mp4","resolution":"640x360","height":360,"filesize":9000000},
{"format_id":"sb0","ext":"mhtml","resolution":"160x90","height":90},
{"format_id":"137","ext":"mp4","resolution":"1920x1080","height":1080,"filesize":null,"filesize_approx":81000000.4},
{"format_id":"248","ext":"webm","resolution":"1920x1080","height":1080,"filesize":62000000},
{"format_id":"244","ext":"webm","resolution":"854x480","height":480}
]}`
	svc := newMetadataService(&fakeRunner{result: &extractor.Result{Stdout: []byte(stdout)}})

	meta, err := svc.Fetch(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	var ids []string
	for _, f := range meta.Formats {
		ids = append(ids, f.FormatID)
	}
	if want := []string{"137", "248", "244", "18"}; !slices.Equal(ids, want) {
		t.Fatalf("format ids = %v, want %v", ids, want)
	}

	if f := meta.Formats[0]; f.Filesize == nil || *f.Filesize != 81000000 {
		t.Errorf("approximate filesize not used: %+v", f)
	}
	if f := meta.Formats[2]; f.Filesize != nil {
		t.Errorf("Filesize = %d, want nil", *f.Filesize)
	}
	if f := meta.Formats[3]; f.Ext != "mp4" || f.Resolution != "640x360" || f.Height != 360 {
		t.Errorf("unexpected format %+v", f)
	}
}

func TestMetadataService_Fetch_RequestedFormatsWin(t *testing.T) {
	stdout := `{"id":"abc","title":"Merged",
"formats":[{"format_id":"18","ext":"mp4","height":360},{"format_id":"22","ext":"mp4","height":720}],
"requested_formats":[{"format_id":"135","ext":"mp4","height":480},{"format_id":"140","ext":"m4a"}]}`
	svc := newMetadataService(&fakeRunner{result: &extractor.Result{Stdout: []byte(stdout)}})

	meta, err := svc.Fetch(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(meta.Formats) != 1 || meta.Formats[0].FormatID != "135" {
		t.Errorf("Formats = %+v, want only the selected video stream", meta.Formats)
	}
}

func TestMetadataService_Fetch_NonZeroExit(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   domain.Category
	}{
		{"private", "ERROR: [youtube] x: Private video", domain.CategoryPrivateContent},
		{"unsupported", "ERROR: Unsupported URL: https://example.com", domain.CategoryUnsupportedSource},
		{"unknown", "ERROR: something else", domain.CategoryUnknown},
		{"empty", "", domain.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: &extractor.Result{ExitCode: 1, Stderr: []byte(tt.stderr)}}
			_, err := newMetadataService(runner).Fetch(context.Background(), "https://x")

			ce, ok := domain.AsClassified(err)
			if !ok {
				t.Fatalf("err = %v, want ClassifiedError", err)
			}
			if ce.Category != tt.want {
				t.Errorf("Category = %q, want %q", ce.Category, tt.want)
			}
			if ce.ExitCode == nil || *ce.ExitCode != 1 {
				t.Errorf("ExitCode = %v, want 1", ce.ExitCode)
			}
			if tt.want == domain.CategoryUnknown && ce.Message != metadataFailureMessage {
				t.Errorf("Message = %q", ce.Message)
			}
		})
	}
}

func TestMetadataService_Fetch_ParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
	}{
		{"empty", ""},
		{"not json", "this is not json"},
		{"missing id", `{"title":"x"}`},
		{"missing title", `{"id":"x"}`},
		{"array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: &extractor.Result{ExitCode: 0, Stdout: []byte(tt.stdout)}}
			_, err := newMetadataService(runner).Fetch(context.Background(), "https://x")

			if !errors.Is(err, domain.ErrParse) {
				t.Errorf("err = %v, want ErrParse", err)
			}
		})
	}
}

func TestMetadataService_Fetch_FirstObjectOnly(t *testing.T) {
	stdout := `{"id":"first","title":"One"}` + "\n" + `{"id":"second","title":"Two"}`
	runner := &fakeRunner{result: &extractor.Result{Stdout: []byte(stdout)}}

	meta, err := newMetadataService(runner).Fetch(context.Background(), "https://x")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if meta.ID != "first" {
		t.Errorf("ID = %q, want first", meta.ID)
	}
}

func TestMetadataService_Fetch_ToolNotInstalled(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: yt-dlp", domain.ErrToolNotInstalled)}
	_, err := newMetadataService(runner).Fetch(context.Background(), "https://x")

	ce, ok := domain.AsClassified(err)
	if !ok || ce.Category != domain.CategoryToolNotInstalled {
		t.Fatalf("err = %v, want ToolNotInstalled", err)
	}
}

func TestMetadataService_Fetch_Canceled(t *testing.T) {
	runner := &fakeRunner{err: context.Canceled}
	_, err := newMetadataService(runner).Fetch(context.Background(), "https://x")

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if _, ok := domain.AsClassified(err); ok {
		t.Error("cancellation should not be classified")
	}
}
