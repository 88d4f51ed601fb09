package app_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/buzzer/internal/app"
	"github.com/MrWong99/buzzer/internal/config"
	"github.com/MrWong99/buzzer/internal/export"
	"github.com/MrWong99/buzzer/internal/session"
	"github.com/MrWong99/buzzer/internal/source"
)

// testConfig returns a config without HTTP, broker or store.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = "-"
	cfg.Source.URL = "http://example.com/uvb76"
	return cfg
}

func blockingOpener(source.Config) (session.Source, error) { return blockingSource{}, nil }

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), app.WithOpener(blockingOpener))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if a.Sessions() == nil || a.Health() == nil || a.Metrics() == nil {
		t.Fatal("New() left a subsystem nil")
	}
	checks, ok := a.Health().Check(context.Background())
	if !ok {
		t.Errorf("fresh app should be ready, checks = %v", checks)
	}
	if _, has := checks["mqtt"]; has {
		t.Error("mqtt check registered without a broker")
	}
	if checks["stream"] != "ok" {
		t.Errorf("stream check = %q with no session", checks["stream"])
	}
}

func TestNew_OpensStore(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Export.SQLite = filepath.Join(t.TempDir(), "sessions.db")
	a, err := app.New(context.Background(), cfg, app.WithOpener(blockingOpener))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestNew_StoreError(t *testing.T) {
	t.Parallel()

	// A regular file where the database directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Export.SQLite = filepath.Join(blocker, "sessions.db")
	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an unreachable store path")
	}
}

func TestRun_AutoStartAndShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Source.AutoStart = true
	a, err := app.New(context.Background(), cfg, app.WithOpener(blockingOpener))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, nil) }()

	deadline := time.Now().Add(5 * time.Second)
	for !a.Sessions().IsActive() {
		if time.Now().After(deadline) {
			t.Fatal("auto start did not begin a session")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := a.Shutdown(sctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if a.Sessions().IsActive() {
		t.Error("session still active after Shutdown")
	}
	if got := a.Sessions().Info().Status; got != app.StatusStopped {
		t.Errorf("status = %q, want %q", got, app.StatusStopped)
	}

	// Idempotent.
	if err := a.Shutdown(sctx); err != nil {
		t.Errorf("second Shutdown() error: %v", err)
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "no-port-here"
	a, err := app.New(context.Background(), cfg, app.WithOpener(blockingOpener))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Run(context.Background(), http.NotFoundHandler()); err == nil {
		t.Fatal("expected a listen error")
	}
}

func TestRun_ServesHTTP(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a, err := app.New(context.Background(), cfg, app.WithOpener(blockingOpener))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, http.NotFoundHandler()) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestShutdown_ExpiredContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Export.SQLite = filepath.Join(t.TempDir(), "sessions.db")
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() = %v, want context.Canceled", err)
	}
}

func TestApplyConfig_NextSession(t *testing.T) {
	t.Parallel()

	old := testConfig()
	a, err := app.New(context.Background(), old, app.WithOpener(blockingOpener))
	if err != nil {
		t.Fatal(err)
	}

	next := testConfig()
	next.Decoder.MinSignalStrength = 25
	a.ApplyConfig(old, next)
	if a.Sessions().Config() != next {
		t.Error("decoder change should reach the session manager")
	}

	// Restart-only changes are not applied.
	later := *next
	later.Server.ListenAddr = ":9000"
	a.ApplyConfig(next, &later)
	if a.Sessions().Config() != next {
		t.Error("server-only change must not replace the session config")
	}
}

func TestWithStore_ClosedOnShutdown(t *testing.T) {
	t.Parallel()

	store, err := export.OpenSQLite(filepath.Join(t.TempDir(), "s.db"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Export.Dir = t.TempDir()
	a, err := app.New(context.Background(), cfg, app.WithStore(store), app.WithOpener(blockingOpener))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Sessions().Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The injected store is closed with the app.
	if _, err := store.SessionBits(context.Background(), "x"); err == nil {
		t.Error("store should be closed after Shutdown")
	}
}
