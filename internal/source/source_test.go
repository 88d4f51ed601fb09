package source_test

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/buzzer/internal/source"
)

type stubSource struct{ url string }

func (s *stubSource) Read(context.Context) ([]byte, error) { return nil, io.EOF }
func (s *stubSource) Close() error                         { return nil }

func TestRegistry_UnsupportedScheme(t *testing.T) {
	t.Parallel()
	_, err := source.NewRegistry().Open(source.Config{URL: "rtsp://example.com/stream"})
	if !errors.Is(err, source.ErrUnsupportedScheme) {
		t.Fatalf("got %v, want ErrUnsupportedScheme", err)
	}
}

func TestRegistry_RegisterOverridesAndNormalisesScheme(t *testing.T) {
	t.Parallel()
	r := source.NewRegistry()
	var gotCfg source.Config
	r.Register("TEST", func(u *url.URL, cfg source.Config) (source.Source, error) {
		gotCfg = cfg
		return &stubSource{url: u.String()}, nil
	})

	src, err := r.Open(source.Config{URL: "Test://host/path"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := src.(*stubSource).url; got != "test://host/path" {
		t.Errorf("url: got %q", got)
	}
	if gotCfg.ChunkSize != source.DefaultChunkSize || gotCfg.ConnectTimeout != source.DefaultConnectTimeout {
		t.Errorf("defaults not applied: %+v", gotCfg)
	}
	if !slices.Equal(r.Schemes(), []string{"test"}) {
		t.Errorf("schemes: got %v", r.Schemes())
	}
}

func TestDefault_Schemes(t *testing.T) {
	t.Parallel()
	want := []string{"device", "file", "http", "https"}
	if got := source.Default().Schemes(); !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOpen_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := source.Open(source.Config{URL: "  "}); err == nil {
		t.Fatal("expected an error for an empty URL")
	}
}

func TestOpen_FileRouting(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	raw := filepath.Join(dir, "capture.raw")
	if err := os.WriteFile(raw, make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	wavPath := filepath.Join(dir, "capture.WAV")
	writeWAV(t, wavPath, 44100, 16, 1, make([]int, 10))

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"bare path", raw, "*source.File"},
		{"file URL", "file://" + raw, "*source.File"},
		{"wav by extension", "file://" + wavPath, "*source.WAV"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src, err := source.Open(source.Config{URL: tc.url})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer src.Close()
			var got string
			switch src.(type) {
			case *source.File:
				got = "*source.File"
			case *source.WAV:
				got = "*source.WAV"
			default:
				got = "other"
			}
			if got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestOpen_HTTPNeedsHost(t *testing.T) {
	t.Parallel()
	if _, err := source.Open(source.Config{URL: "http:///stream"}); err == nil {
		t.Fatal("expected an error for a URL without host")
	}
}

func TestFile_ChunksAndEOF(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "stream.bin")
	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := source.OpenFile(path, source.Config{ChunkSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx := context.Background()
	var sizes []int
	var all []byte
	for {
		chunk, err := src.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sizes = append(sizes, len(chunk))
		all = append(all, chunk...)
	}
	if !slices.Equal(sizes, []int{4, 4, 2}) {
		t.Errorf("chunk sizes: got %v, want [4 4 2]", sizes)
	}
	if !slices.Equal(all, data) {
		t.Errorf("content: got %v, want %v", all, data)
	}
}

func TestFile_ReadAfterClose(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "stream.bin")
	if err := os.WriteFile(path, make([]byte, 8), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := source.OpenFile(path, source.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, err := src.Read(context.Background()); !errors.Is(err, source.ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestFile_RealtimePacingHonoursCancel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "stream.bin")
	// 44100 samples of int16 would take one second to play back.
	if err := os.WriteFile(path, make([]byte, 88200), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := source.OpenFile(path, source.Config{ChunkSize: 88200, Realtime: true})
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := src.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("read did not stop on cancel: took %v", elapsed)
	}
}

func TestPresets(t *testing.T) {
	t.Parallel()
	ps := source.Presets()
	if len(ps) != 4 {
		t.Fatalf("got %d presets, want 4", len(ps))
	}
	ps[0].URL = "mutated"
	if source.Presets()[0].URL == "mutated" {
		t.Error("Presets must return a copy")
	}

	p, ok := source.LookupPreset("local test file")
	if !ok || p.URL != "file://test_recording.wav" {
		t.Errorf("lookup: got %+v ok=%v", p, ok)
	}
	if _, ok := source.LookupPreset("nope"); ok {
		t.Error("unexpected preset match")
	}
	if source.DefaultConfig().URL != source.DefaultURL {
		t.Error("default config must use the default URL")
	}
}
