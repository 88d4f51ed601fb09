// Package source opens the byte streams a decoding session reads from.
//
// A [Source] is picked by URL scheme through a [Registry]: http and https
// stream a web SDR feed, file reads raw bytes (or decodes a WAV file when the
// path ends in .wav), and device captures a sound card when the binary is
// built with the portaudio tag.
//
// Every source returns chunks of roughly [Config.ChunkSize] bytes and
// [io.EOF] once the stream is exhausted. The bytes of http and raw file
// sources are passed through untouched; WAV and device sources produce mono
// int16 little-endian PCM at the nominal sample rate.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnsupportedScheme is returned by [Registry.Open] when no factory is
	// registered for the URL scheme.
	ErrUnsupportedScheme = errors.New("source: unsupported scheme")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("source: closed")
)

// Source is a chunked byte stream.
type Source interface {
	// Read blocks until the next chunk is available. It returns io.EOF at
	// the end of the stream and the context error on cancellation.
	Read(ctx context.Context) ([]byte, error)

	// Close releases the underlying connection or file. Pending and future
	// reads fail with [ErrClosed].
	Close() error
}

// Default stream parameters.
const (
	DefaultChunkSize      = 4096
	DefaultSampleRate     = 44100
	DefaultConnectTimeout = 10 * time.Second
	DefaultRetryBackoff   = time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Config describes which stream to open and how to read it.
type Config struct {
	// URL selects the source. A value without a scheme is treated as a
	// local file path.
	URL string

	// ChunkSize is the read size in bytes for byte streams and in frames
	// for WAV and device sources.
	ChunkSize int

	// SampleRate is the nominal rate WAV and device sources convert to, and
	// the rate used to pace raw files.
	SampleRate int

	// ConnectTimeout bounds dialling and waiting for response headers.
	ConnectTimeout time.Duration

	// Realtime paces file and WAV sources at playback speed.
	Realtime bool

	// MaxRetries is the number of extra connection attempts after a failed
	// connect or an interrupted stream. Zero disables retries.
	MaxRetries int

	// RetryBackoff is the initial wait between attempts. It doubles up to
	// MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	// Device names the capture device for device:// URLs when the URL
	// carries no host.
	Device string
}

// DefaultConfig returns the stream settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		URL:            DefaultURL,
		ChunkSize:      DefaultChunkSize,
		SampleRate:     DefaultSampleRate,
		ConnectTimeout: DefaultConnectTimeout,
		RetryBackoff:   DefaultRetryBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxBackoff < c.RetryBackoff {
		c.MaxBackoff = c.RetryBackoff
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Factory builds a source for a parsed URL. cfg has defaults applied.
type Factory func(u *url.URL, cfg Config) (Source, error)

// Registry maps URL schemes to source factories. It is safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry with the built-in http, https, file and device
// schemes.
func Default() *Registry {
	r := NewRegistry()
	r.Register("http", openHTTP)
	r.Register("https", openHTTP)
	r.Register("file", openFile)
	registerDevice(r)
	return r
}

// Register installs factory for scheme. Subsequent calls with the same
// scheme overwrite the previous registration.
func (r *Registry) Register(scheme string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(scheme)] = factory
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Open parses cfg.URL and builds a source with the factory registered for
// its scheme. Returns [ErrUnsupportedScheme] if there is none.
func (r *Registry) Open(cfg Config) (Source, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("source: open: empty URL")
	}
	u, err := parseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("source: open: %w", err)
	}

	r.mu.RLock()
	factory, ok := r.factories[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return factory(u, cfg)
}

// Open builds a source from the [Default] registry.
func Open(cfg Config) (Source, error) {
	return Default().Open(cfg)
}

// parseURL accepts bare paths as file URLs.
func parseURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		return &url.URL{Scheme: "file", Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// filePath recovers the local path of a file URL. "file://rec.wav" is read
// as the relative path rec.wav.
func filePath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}

func openFile(u *url.URL, cfg Config) (Source, error) {
	path := filePath(u)
	if path == "" {
		return nil, errors.New("source: file: empty path")
	}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return OpenWAV(path, cfg)
	}
	return OpenFile(path, cfg)
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
