// Package app wires all buzzer subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the control API and blocks until the context ends,
// and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithOpener,
// WithPublisher, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/buzzer/internal/config"
	"github.com/MrWong99/buzzer/internal/export"
	"github.com/MrWong99/buzzer/internal/health"
	"github.com/MrWong99/buzzer/internal/observe"
	"github.com/MrWong99/buzzer/internal/pattern"
	"github.com/MrWong99/buzzer/internal/publish"
)

// mqttConnectTimeout bounds the initial broker connection. The publisher is
// skipped when the broker is unreachable at startup.
const mqttConnectTimeout = 10 * time.Second

// stallWindow is how long an active session may go without receiving a
// byte before /readyz reports the stream as stalled.
const stallWindow = 30 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New, torn down in Shutdown.
	metrics   *observe.Metrics
	opener    Opener
	store     *export.SQLite
	publisher *publish.Publisher
	sessions  *SessionManager
	health    *health.Handler
	server    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOpener injects the function that opens session sources.
func WithOpener(o Opener) Option {
	return func(a *App) { a.opener = o }
}

// WithPublisher injects an MQTT publisher instead of connecting to the
// configured broker.
func WithPublisher(p *publish.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithStore injects a SQLite store instead of opening export.sqlite.
func WithStore(s *export.SQLite) Option {
	return func(a *App) { a.store = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Optional
// subsystems that fail to start (an unreachable broker) are logged and
// skipped; configuration errors are returned.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. SQLite store ──────────────────────────────────────────────────
	if err := a.initStore(); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. MQTT publisher ────────────────────────────────────────────────
	a.initPublisher(ctx)

	// ── 3. Session manager ───────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:  cfg,
		Open:    a.opener,
		Metrics: a.metrics,
		Store:   a.store,
	})
	if a.publisher != nil {
		a.sessions.AddListener(a.publisher)
	}

	// ── 4. Health checks ─────────────────────────────────────────────────
	checkers := []health.Checker{
		health.LastError("session", a.sessions.LastError),
		health.Progress("stream", stallWindow, a.sessions.Received),
	}
	if a.publisher != nil {
		checkers = append(checkers, health.Connection("mqtt", a.publisher.Connected))
	}
	a.health = health.New(checkers...)

	return a, nil
}

func (a *App) initStore() error {
	if a.store == nil && a.cfg.Export.SQLite != "" {
		store, err := export.OpenSQLite(a.cfg.Export.SQLite)
		if err != nil {
			return err
		}
		a.store = store
		slog.Info("session store opened", "path", a.cfg.Export.SQLite)
	}
	if a.store != nil {
		a.closers = append(a.closers, a.store.Close)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) {
	if a.publisher == nil && a.cfg.MQTT.Broker != "" {
		cctx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		p, err := publish.Connect(cctx, publishConfig(a.cfg))
		cancel()
		if err != nil {
			slog.Warn("mqtt publisher disabled", "broker", a.cfg.MQTT.Broker, "err", err)
			return
		}
		a.publisher = p
	}
	if a.publisher != nil {
		// Sessions stop before the broker goes away.
		a.closers = append(a.closers, a.publisher.Close)
	}
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Health returns the health handler.
func (a *App) Health() *health.Handler { return a.health }

// Metrics returns the metric instruments the app records to.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// ApplyConfig hands a reloaded config to the running app. Log level changes
// are applied by the caller; decoder, buffer, logging and export changes
// take effect with the next session.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.NextSession() {
		a.sessions.UpdateConfig(new)
		slog.Info("config applied to next session",
			"decoder", d.DecoderChanged,
			"buffers", d.BuffersChanged,
			"logging", d.LoggingChanged,
			"export", d.ExportChanged,
		)
	}
	if r := d.RestartRequired(); len(r) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", r)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves handler on the configured listen address (unless disabled or
// handler is nil), starts a session when source.auto_start is set,
// publishes periodic reports, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context, handler http.Handler) error {
	errCh := make(chan error, 1)
	if handler != nil && a.cfg.HTTPEnabled() {
		ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
		a.server = &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http server listening", "addr", ln.Addr().String())
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			} else {
				err = a.server.Serve(ln)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("app: http server: %w", err)
			}
		}()
	}

	if a.cfg.Source.AutoStart {
		if _, err := a.sessions.Start(ctx, ""); err != nil {
			slog.Error("auto start failed", "url", a.cfg.Source.URL, "err", err)
		}
	}

	if a.publisher != nil {
		go a.publisher.RunReports(ctx, a.cfg.MQTT.ReportInterval, a.report)
	}

	slog.Info("app running", "http", a.server != nil, "mqtt", a.publisher != nil)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// report returns the current pattern report, or nil while no session runs.
func (a *App) report() *pattern.Report {
	if !a.sessions.IsActive() {
		return nil
	}
	r, err := a.sessions.Report(context.Background())
	if err != nil {
		return nil
	}
	return r
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and the active session, then runs the
// closers in order. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error
// is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}

		if _, err := a.sessions.Stop(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			slog.Warn("session stop error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
