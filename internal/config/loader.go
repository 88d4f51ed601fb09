package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSourceSchemes lists the URL schemes a source can be opened with.
// Used by [Validate] to warn about unrecognised schemes.
var ValidSourceSchemes = []string{"http", "https", "file", "device"}

// ValidBrokerSchemes lists the URL schemes the MQTT client accepts.
var ValidBrokerSchemes = []string{"tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{Binary: true, Frequency: true},
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Defaults must
// already be applied. It returns a joined error listing all validation
// failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	for _, o := range cfg.Server.AllowedOrigins {
		if _, err := path.Match(o, ""); err != nil {
			errs = append(errs, fmt.Errorf("server.allowed_origins %q: %w", o, err))
		}
	}

	// Source
	s := cfg.Source
	if s.URL != "" {
		validateSourceURL(s.URL)
	} else if s.AutoStart {
		errs = append(errs, errors.New("source.auto_start requires source.url"))
	}
	if s.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("source.max_retries %d must not be negative", s.MaxRetries))
	}
	if s.ChunkSize%2 != 0 {
		errs = append(errs, fmt.Errorf("source.chunk_size %d must be even", s.ChunkSize))
	}

	// Decoder
	d := cfg.Decoder
	if len(d.Tones) != 3 {
		errs = append(errs, fmt.Errorf("decoder.tones has %d entries; want exactly 3 (data zero, data one, carrier)", len(d.Tones)))
	} else if !slices.IsSorted(d.Tones) || d.Tones[0] == d.Tones[1] || d.Tones[1] == d.Tones[2] {
		errs = append(errs, fmt.Errorf("decoder.tones %v must be strictly ascending", d.Tones))
	} else if 2*d.Tolerance >= d.Tones[1]-d.Tones[0] || 2*d.Tolerance >= d.Tones[2]-d.Tones[1] {
		errs = append(errs, fmt.Errorf("decoder.tolerance %.2f makes neighbouring tone labels overlap", d.Tolerance))
	}
	if d.BandLow >= d.BandHigh {
		errs = append(errs, fmt.Errorf("decoder.band_low %.2f must be below band_high %.2f", d.BandLow, d.BandHigh))
	}
	if d.MinWindow > d.WindowSize {
		errs = append(errs, fmt.Errorf("decoder.min_window %d exceeds window_size %d", d.MinWindow, d.WindowSize))
	}
	if d.StrongSignalStrength < d.MinSignalStrength {
		slog.Warn("decoder.strong_signal_strength is below min_signal_strength; every peak will be strong",
			"strong", d.StrongSignalStrength,
			"min", d.MinSignalStrength,
		)
	}
	if resolution := float64(s.SampleRate) / float64(d.WindowSize); len(d.Tones) == 3 && resolution > d.Tones[1]-d.Tones[0] {
		slog.Warn("decoder.window_size is too small to separate the tones",
			"bin_hz", resolution,
			"window_size", d.WindowSize,
		)
	}

	// Export
	if cfg.Export.OnStop && cfg.Export.Dir == "" {
		errs = append(errs, errors.New("export.on_stop requires export.dir"))
	}

	// MQTT
	if cfg.MQTT.Broker != "" {
		u, err := url.Parse(cfg.MQTT.Broker)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("mqtt.broker %q: %w", cfg.MQTT.Broker, err))
		case !slices.Contains(ValidBrokerSchemes, u.Scheme):
			errs = append(errs, fmt.Errorf("mqtt.broker scheme %q is invalid; valid values: %v", u.Scheme, ValidBrokerSchemes))
		}
	}
	if cfg.MQTT.ReportInterval < 0 {
		slog.Warn("mqtt.report_interval is negative; periodic reports are disabled")
	}

	return errors.Join(errs...)
}

// validateSourceURL logs a warning if the URL has a scheme no source
// handles. Bare paths are files.
func validateSourceURL(raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return
	}
	if slices.Contains(ValidSourceSchemes, u.Scheme) {
		return
	}
	slog.Warn("unknown source scheme; starting a session with it will fail",
		"url", raw,
		"scheme", u.Scheme,
		"known", ValidSourceSchemes,
	)
}
