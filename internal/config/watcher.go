package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Change is one accepted config update handed to the watcher callback.
type Change struct {
	Old, New *Config
	Diff     ConfigDiff
}

// fileStamp identifies one version of the watched file.
type fileStamp struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher polls a config file and reports valid content changes. Touching
// the file without editing it is not a change.
type Watcher struct {
	path     string
	interval time.Duration
	override func(*Config)
	onChange func(Change)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
	reloads int
	lastErr error

	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOverride applies fn to every config the watcher loads, before it is
// diffed. Command-line overrides such as -url go here so they survive a
// reload and never show up as a change.
func WithOverride(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.override = fn }
}

// NewWatcher loads path and polls it until ctx is cancelled or Stop is
// called. onChange may be nil.
func NewWatcher(ctx context.Context, path string, onChange func(Change), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.stamp = stamp

	ctx, w.cancel = context.WithCancel(ctx)
	go w.poll(ctx)
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Status returns how many reloads were applied and the error of the last
// rejected one, cleared by the next successful reload.
func (w *Watcher) Status() (reloads int, lastErr error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.lastErr
}

// Stop ends polling and waits for an in-flight callback to return. It is
// safe to call more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.modified() {
				if _, err := w.Reload(); err != nil {
					slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
				}
			}
		}
	}
}

// modified reports whether the file's mtime moved since the last read.
func (w *Watcher) modified() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.stamp.mtime)
}

// Reload re-reads the file now and reports whether a new config was
// accepted. An invalid file leaves the current config in place.
func (w *Watcher) Reload() (bool, error) {
	cfg, stamp, err := w.read()

	w.mu.Lock()
	if err != nil {
		w.lastErr = err
		w.mu.Unlock()
		return false, fmt.Errorf("config: reload %q: %w", w.path, err)
	}
	w.lastErr = nil
	w.stamp.mtime = stamp.mtime
	if stamp.sum == w.stamp.sum {
		w.mu.Unlock()
		return false, nil
	}
	ch := Change{Old: w.current, New: cfg, Diff: Diff(w.current, cfg)}
	w.current = cfg
	w.stamp = stamp
	w.reloads++
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"next_session", ch.Diff.NextSession(),
		"restart_required", strings.Join(ch.Diff.RestartRequired(), ","),
	)
	if w.onChange != nil {
		w.onChange(ch)
	}
	return true, nil
}

// read loads, overrides and validates the file and stamps its content.
func (w *Watcher) read() (*Config, fileStamp, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fileStamp{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	if w.override != nil {
		w.override(cfg)
	}
	return cfg, fileStamp{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
