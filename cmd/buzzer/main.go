// Command buzzer decodes the UVB-76 FSK data channel from a live stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/buzzer/internal/app"
	"github.com/MrWong99/buzzer/internal/config"
	"github.com/MrWong99/buzzer/internal/health"
	"github.com/MrWong99/buzzer/internal/observe"
	"github.com/MrWong99/buzzer/internal/tui"
	"github.com/MrWong99/buzzer/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "buzzer.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	url := flag.String("url", "", "stream URL (overrides source.url)")
	useTUI := flag.Bool("tui", false, "run the terminal interface")
	logFile := flag.String("log-file", "buzzer.log", "log destination while the terminal interface runs")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watchable, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "buzzer: %v\n", err)
		return 1
	}
	// sourceURL pins the stream across config reloads when set on the
	// command line or picked in the terminal UI.
	sourceURL := *url
	if sourceURL != "" {
		cfg.Source.URL = sourceURL
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	var logOut io.Writer = os.Stderr
	if *useTUI {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "buzzer: open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: &level})))

	slog.Info("buzzer starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Stream picker ─────────────────────────────────────────────────────────
	if *useTUI && sourceURL == "" {
		picked, err := tui.PickStream(cfg.Source.URL)
		if errors.Is(err, tui.ErrCancelled) {
			return 0
		}
		if err != nil {
			slog.Error("stream selection failed", "err", err)
			return 1
		}
		sourceURL = picked
		cfg.Source.URL = picked
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	server := web.New(web.Config{
		Sessions:       application.Sessions(),
		Health:         application.Health(),
		Metrics:        application.Metrics(),
		MetricsHandler: provider.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	defer server.Close()

	// ── Config hot reload ─────────────────────────────────────────────────────
	if watchable {
		var opts []config.WatcherOption
		if sourceURL != "" {
			opts = append(opts, config.WithOverride(func(c *config.Config) { c.Source.URL = sourceURL }))
		}
		watcher, err := config.NewWatcher(ctx, *configPath, func(ch config.Change) {
			if ch.Diff.LogLevelChanged {
				level.Set(slogLevel(ch.Diff.NewLogLevel))
				slog.Info("log level changed", "level", ch.Diff.NewLogLevel)
			}
			application.ApplyConfig(ch.Old, ch.New)
		}, opts...)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
			application.Health().Add(health.LastError("config", func() error {
				_, err := watcher.Status()
				return err
			}))
			go reloadOnHangup(ctx, watcher)
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	var runErr error
	if *useTUI {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- application.Run(runCtx, server.Handler()) }()

		runErr = tui.New(application.Sessions(), cfg.Source.URL).Run(runCtx)
		cancel()
		if err := <-done; runErr == nil {
			runErr = err
		}
	} else {
		printStartupSummary(cfg)
		slog.Info("decoder ready, press Ctrl+C to shut down")
		runErr = application.Run(ctx, server.Handler())
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig loads path. A missing file at the default path yields the
// built-in defaults; watchable reports whether the file exists.
func loadConfig(path string) (cfg *config.Config, watchable bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist) && path == defaultConfigPath:
		return config.Default(), false, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
	default:
		return nil, false, err
	}
}

// reloadOnHangup re-reads the config file on SIGHUP.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			changed, err := w.Reload()
			if err != nil {
				slog.Warn("config reload failed", "err", err)
				continue
			}
			slog.Info("config reloaded", "changed", changed)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         buzzer - startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Stream", orDisabled(cfg.Source.URL))
	printRow("Auto start", fmt.Sprint(cfg.Source.AutoStart))
	printRow("Tones (Hz)", fmt.Sprintf("%.2f/%.2f/%.2f", tone(cfg, 0), tone(cfg, 1), tone(cfg, 2)))
	printRow("Window", fmt.Sprintf("%d @ %d Hz", cfg.Decoder.WindowSize, cfg.Source.SampleRate))
	if cfg.HTTPEnabled() {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	printRow("MQTT", orDisabled(cfg.MQTT.Broker))
	printRow("SQLite", orDisabled(cfg.Export.SQLite))
	printRow("Export dir", cfg.Export.Dir)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func orDisabled(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}

func tone(cfg *config.Config, i int) float64 {
	if i < len(cfg.Decoder.Tones) {
		return cfg.Decoder.Tones[i]
	}
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
