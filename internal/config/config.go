// Package config provides the configuration schema, loader and file watcher
// for the buzzer decoder.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Source    SourceConfig    `yaml:"source"`
	Decoder   DecoderConfig   `yaml:"decoder"`
	Buffers   BuffersConfig   `yaml:"buffers"`
	Logging   LoggingConfig   `yaml:"logging"`
	Export    ExportConfig    `yaml:"export"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the HTTP control API.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8076").
	// An explicit "-" disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists cross-origin pages that may open the live feed,
	// as host patterns ("*.example.com") or full origins
	// ("https://dash.example.com"). Pages served from the API host itself
	// are always allowed.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds paths to a PEM-encoded certificate and private key.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SourceConfig selects and tunes the audio stream source.
type SourceConfig struct {
	// URL is the stream to decode. http(s), file and device URLs are
	// supported; a bare path is treated as a file.
	URL string `yaml:"url"`

	// AutoStart starts a session on URL as soon as the process is up.
	AutoStart bool `yaml:"auto_start"`

	ChunkSize      int           `yaml:"chunk_size"`
	SampleRate     int           `yaml:"sample_rate"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Realtime paces file and WAV sources at the nominal sample rate.
	Realtime bool `yaml:"realtime"`

	// MaxRetries is the number of reconnect attempts for network sources.
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Device names the capture device for device:// URLs.
	Device string `yaml:"device"`
}

// DecoderConfig holds the spectral front end and tone classifier settings.
type DecoderConfig struct {
	// Tones are the data-zero, data-one and carrier frequencies in Hz.
	Tones []float64 `yaml:"tones"`

	Tolerance            float64 `yaml:"tolerance"`
	MinSignalStrength    float64 `yaml:"min_signal_strength"`
	StrongSignalStrength float64 `yaml:"strong_signal_strength"`
	MinAudioLevel        float64 `yaml:"min_audio_level"`
	WindowSize           int     `yaml:"window_size"`
	MinWindow            int     `yaml:"min_window"`
	BandLow              float64 `yaml:"band_low"`
	BandHigh             float64 `yaml:"band_high"`
}

// BuffersConfig holds the live ring capacities.
type BuffersConfig struct {
	Frequency  int `yaml:"frequency"`
	Bits       int `yaml:"bits"`
	Waterfall  int `yaml:"waterfall"`
	History    int `yaml:"history"`
	AudioLevel int `yaml:"audio_level"`
	Queue      int `yaml:"queue"`
}

// LoggingConfig selects the unbounded logs kept per session.
type LoggingConfig struct {
	Binary    bool `yaml:"binary"`
	Frequency bool `yaml:"frequency"`
	Waterfall bool `yaml:"waterfall"`
}

// ExportConfig controls where session logs are written.
type ExportConfig struct {
	Dir string `yaml:"dir"`

	// Base is the file name prefix. Default: "uvb76".
	Base string `yaml:"base"`

	// OnStop exports all logs whenever a session ends.
	OnStop bool `yaml:"on_stop"`

	// SQLite, when set, also records each stopped session in this database.
	SQLite string `yaml:"sqlite"`
}

// MQTTConfig configures the optional event publisher. An empty Broker
// disables it.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// TelemetryConfig configures the OpenTelemetry providers.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Binary: true, Frequency: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
// Logging flags are booleans and are defaulted by [LoadFromReader] instead.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8076"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	s := &cfg.Source
	if s.ChunkSize <= 0 {
		s.ChunkSize = 4096
	}
	if s.SampleRate <= 0 {
		s.SampleRate = 44100
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = 10 * time.Second
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = time.Second
	}

	d := &cfg.Decoder
	if len(d.Tones) == 0 {
		d.Tones = []float64{21.53, 26.92, 32.30}
	}
	if d.Tolerance <= 0 {
		d.Tolerance = 0.5
	}
	if d.MinSignalStrength <= 0 {
		d.MinSignalStrength = 15
	}
	if d.StrongSignalStrength <= 0 {
		d.StrongSignalStrength = 45
	}
	if d.MinAudioLevel <= 0 {
		d.MinAudioLevel = 0.001
	}
	if d.WindowSize <= 0 {
		d.WindowSize = 8192
	}
	if d.MinWindow <= 0 {
		d.MinWindow = 2048
	}
	if d.BandLow <= 0 {
		d.BandLow = 20
	}
	if d.BandHigh <= 0 {
		d.BandHigh = 34
	}

	b := &cfg.Buffers
	setDefault(&b.Frequency, 1000)
	setDefault(&b.Bits, 500)
	setDefault(&b.Waterfall, 100)
	setDefault(&b.History, 50)
	setDefault(&b.AudioLevel, 1000)
	setDefault(&b.Queue, 64)

	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "exports"
	}
	if cfg.Export.Base == "" {
		cfg.Export.Base = "uvb76"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "buzzer"
	}
	if cfg.MQTT.ReportInterval == 0 {
		cfg.MQTT.ReportInterval = 30 * time.Second
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "buzzer"
	}
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// HTTPEnabled reports whether the control API should be served.
func (c *Config) HTTPEnabled() bool { return c.Server.ListenAddr != "-" }
