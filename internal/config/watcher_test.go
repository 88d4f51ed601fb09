package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/buzzer/internal/config"
)

const baseYAML = `
server:
  log_level: info
source:
  url: file://test_recording.wav
decoder:
  min_signal_strength: 15
`

const tunedYAML = `
server:
  log_level: debug
source:
  url: file://test_recording.wav
decoder:
  min_signal_strength: 25
`

const brokenYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// newWatcher writes content to a fresh file and watches it. Changes are
// delivered on the returned channel.
func newWatcher(t *testing.T, content string, opts ...config.WatcherOption) (*config.Watcher, string, <-chan config.Change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buzzer.yaml")
	writeFile(t, path, content)

	changes := make(chan config.Change, 8)
	w, err := config.NewWatcher(context.Background(), path, func(ch config.Change) {
		changes <- ch
	}, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path, changes
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _, _ := newWatcher(t, baseYAML)

	cfg := w.Current()
	if cfg.Server.LogLevel != config.LogInfo || cfg.Decoder.MinSignalStrength != 15 {
		t.Errorf("initial config: %+v", cfg)
	}
	if n, err := w.Status(); n != 0 || err != nil {
		t.Errorf("status = %d, %v", n, err)
	}
}

func TestWatcher_PollDetectsEdit(t *testing.T) {
	t.Parallel()
	w, path, changes := newWatcher(t, baseYAML, config.WithInterval(20*time.Millisecond))

	writeFile(t, path, tunedYAML)
	// Force a distinct mtime on filesystems with coarse timestamps.
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	var ch config.Change
	select {
	case ch = <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}
	if ch.Old.Server.LogLevel != config.LogInfo || ch.New.Server.LogLevel != config.LogDebug {
		t.Errorf("levels: old %q new %q", ch.Old.Server.LogLevel, ch.New.Server.LogLevel)
	}
	if !ch.Diff.LogLevelChanged || !ch.Diff.DecoderChanged || ch.Diff.SourceChanged {
		t.Errorf("diff = %+v", ch.Diff)
	}
	if w.Current() != ch.New {
		t.Error("Current does not return the new config")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	w, path, changes := newWatcher(t, baseYAML, config.WithInterval(time.Hour))

	if applied, err := w.Reload(); err != nil || applied {
		t.Fatalf("unchanged file: applied=%v err=%v", applied, err)
	}

	writeFile(t, path, tunedYAML)
	if applied, err := w.Reload(); err != nil || !applied {
		t.Fatalf("edited file: applied=%v err=%v", applied, err)
	}
	if ch := <-changes; ch.New.Decoder.MinSignalStrength != 25 {
		t.Errorf("callback config: %+v", ch.New.Decoder)
	}

	writeFile(t, path, brokenYAML)
	if _, err := w.Reload(); err == nil {
		t.Fatal("expected error for invalid file")
	}
	if w.Current().Decoder.MinSignalStrength != 25 {
		t.Error("invalid reload replaced the config")
	}
	n, err := w.Status()
	if n != 1 || err == nil {
		t.Errorf("status = %d, %v; want 1 and the validation error", n, err)
	}

	// A good file clears the error.
	writeFile(t, path, baseYAML)
	if _, err := w.Reload(); err != nil {
		t.Fatal(err)
	}
	if n, err := w.Status(); n != 2 || err != nil {
		t.Errorf("status = %d, %v", n, err)
	}
}

func TestWatcher_TouchIsNotAChange(t *testing.T) {
	t.Parallel()
	w, path, changes := newWatcher(t, baseYAML, config.WithInterval(20*time.Millisecond))

	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if applied, err := w.Reload(); err != nil || applied {
		t.Fatalf("touch: applied=%v err=%v", applied, err)
	}
	select {
	case ch := <-changes:
		t.Errorf("unexpected change: %+v", ch.Diff)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_OverrideSurvivesReload(t *testing.T) {
	t.Parallel()
	const pinned = "http://example.com/uvb76"
	w, path, changes := newWatcher(t, baseYAML, config.WithInterval(time.Hour),
		config.WithOverride(func(c *config.Config) { c.Source.URL = pinned }))

	if got := w.Current().Source.URL; got != pinned {
		t.Fatalf("initial url = %q", got)
	}

	writeFile(t, path, tunedYAML)
	if _, err := w.Reload(); err != nil {
		t.Fatal(err)
	}
	ch := <-changes
	if ch.New.Source.URL != pinned {
		t.Errorf("reloaded url = %q", ch.New.Source.URL)
	}
	if ch.Diff.SourceChanged {
		t.Error("override reported as a source change")
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(context.Background(), "/nonexistent/buzzer.yaml", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcher_StopAndCancel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "buzzer.yaml")
	writeFile(t, path, baseYAML)

	ctx, cancel := context.WithCancel(context.Background())
	w, err := config.NewWatcher(ctx, path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	// Stop after the context ended, twice.
	w.Stop()
	w.Stop()
}
