package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// HTTP streams the body of a GET request in fixed-size chunks.
//
// The connection is established lazily by the first Read so that the
// request is bound to the reader's context. Failed connects and interrupted
// streams are retried with exponential backoff when MaxRetries is set.
//
// Read must be called from a single goroutine. Close may be called from any
// goroutine.
type HTTP struct {
	url        string
	client     *http.Client
	chunk      int
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	ctx    context.Context // cancelled by Close
	cancel context.CancelFunc

	mu       sync.Mutex
	body     io.ReadCloser
	release  func()
	failures int
}

// NewHTTP returns a source for rawURL. No connection is made until Read.
func NewHTTP(rawURL string, cfg Config) *HTTP {
	cfg = cfg.withDefaults()
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTP{
		url:        rawURL,
		client:     &http.Client{Transport: transport},
		chunk:      cfg.ChunkSize,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		maxBackoff: cfg.MaxBackoff,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func openHTTP(u *url.URL, cfg Config) (Source, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("source: http: missing host in %q", u.String())
	}
	return NewHTTP(u.String(), cfg), nil
}

// Read returns the next chunk of the response body. The final chunk may be
// short.
func (s *HTTP) Read(ctx context.Context) ([]byte, error) {
	for {
		if s.ctx.Err() != nil {
			return nil, ErrClosed
		}
		body, err := s.stream(ctx)
		if err != nil {
			return nil, err
		}

		buf := make([]byte, s.chunk)
		n, err := io.ReadFull(body, buf)
		if n > 0 && (err == nil || errors.Is(err, io.ErrUnexpectedEOF)) {
			s.mu.Lock()
			s.failures = 0
			s.mu.Unlock()
			return buf[:n], nil
		}
		if err == io.EOF {
			return nil, io.EOF
		}

		s.drop()
		switch {
		case s.ctx.Err() != nil:
			return nil, ErrClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		if !s.retryAfterInterrupt() {
			return nil, fmt.Errorf("source: http: read: %w", err)
		}
		slog.Warn("stream interrupted, reconnecting", "url", s.url, "err", err)
	}
}

// retryAfterInterrupt counts a mid-stream failure and reports whether
// another connection may be attempted.
func (s *HTTP) retryAfterInterrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.failures <= s.maxRetries
}

// stream returns the open response body, connecting first if needed.
func (s *HTTP) stream(ctx context.Context) (io.Reader, error) {
	s.mu.Lock()
	body := s.body
	s.mu.Unlock()
	if body != nil {
		return body, nil
	}

	body, release, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		release()
		_ = body.Close()
		return nil, ErrClosed
	}
	s.body, s.release = body, release
	return body, nil
}

// connect performs the GET with up to MaxRetries extra attempts.
func (s *HTTP) connect(ctx context.Context) (io.ReadCloser, func(), error) {
	backoff := s.backoff
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("stream connect failed, retrying",
				"url", s.url,
				"attempt", attempt,
				"backoff", backoff,
				"err", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-s.ctx.Done():
				return nil, nil, ErrClosed
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, s.maxBackoff)
		}

		body, release, err := s.dial(ctx)
		if err == nil {
			return body, release, nil
		}
		lastErr = err
		switch {
		case s.ctx.Err() != nil:
			return nil, nil, ErrClosed
		case ctx.Err() != nil:
			return nil, nil, ctx.Err()
		}
	}
	return nil, nil, lastErr
}

func (s *HTTP) dial(ctx context.Context) (io.ReadCloser, func(), error) {
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.url, nil)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("source: http: %w", err)
	}
	req.Header.Set("User-Agent", "buzzer")

	resp, err := s.client.Do(req)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("source: http: connect: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		release()
		return nil, nil, fmt.Errorf("source: http: unexpected status %s", resp.Status)
	}

	slog.Info("stream connected",
		"url", s.url,
		"content_type", resp.Header.Get("Content-Type"),
	)
	return resp.Body, release, nil
}

// drop closes the current body so the next Read reconnects.
func (s *HTTP) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body != nil {
		_ = s.body.Close()
		s.release()
		s.body, s.release = nil, nil
	}
}

// Close aborts any in-flight request and closes the response body.
func (s *HTTP) Close() error {
	s.cancel()
	s.drop()
	return nil
}
