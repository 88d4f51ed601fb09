package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// File streams the raw bytes of a local file in fixed-size chunks. The
// content is not interpreted; the decoding pipeline guesses the encoding.
type File struct {
	f        *os.File
	chunk    int
	rate     int
	realtime bool
	closed   atomic.Bool
}

// OpenFile opens path for chunked reading.
func OpenFile(path string, cfg Config) (*File, error) {
	cfg = cfg.withDefaults()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: file: %w", err)
	}
	return &File{f: f, chunk: cfg.ChunkSize, rate: cfg.SampleRate, realtime: cfg.Realtime}, nil
}

// Read returns the next chunk. The final chunk may be short.
func (s *File) Read(ctx context.Context) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, s.chunk)
	n, err := io.ReadFull(s.f, buf)
	switch {
	case n == 0 && (err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF)):
		return nil, io.EOF
	case err != nil && !errors.Is(err, io.ErrUnexpectedEOF):
		if s.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("source: file: read: %w", err)
	}

	if s.realtime {
		// Raw bytes are paced as if they were 16-bit mono samples.
		d := time.Duration(n/2) * time.Second / time.Duration(s.rate)
		if err := wait(ctx, d); err != nil {
			return nil, err
		}
	}
	return buf[:n], nil
}

// Close closes the file. It is safe to call more than once.
func (s *File) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.f.Close()
}
