package config

import "slices"

// ConfigDiff describes what changed between two configs and when each change
// can take effect.
type ConfigDiff struct {
	// LogLevelChanged is applied immediately.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Decoder, buffer, logging and export changes apply to the next session.
	DecoderChanged bool
	BuffersChanged bool
	LoggingChanged bool
	ExportChanged  bool

	// Source, server, MQTT and telemetry changes need a restart.
	SourceChanged    bool
	ServerChanged    bool
	MQTTChanged      bool
	TelemetryChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.DecoderChanged = !decoderEqual(old.Decoder, new.Decoder)
	d.BuffersChanged = old.Buffers != new.Buffers
	d.LoggingChanged = old.Logging != new.Logging
	d.ExportChanged = old.Export != new.Export

	d.SourceChanged = old.Source != new.Source
	d.ServerChanged = old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins)
	d.MQTTChanged = old.MQTT != new.MQTT
	d.TelemetryChanged = old.Telemetry != new.Telemetry

	return d
}

// NextSession reports whether any change applies when the next session
// starts.
func (d ConfigDiff) NextSession() bool {
	return d.DecoderChanged || d.BuffersChanged || d.LoggingChanged || d.ExportChanged
}

// RestartRequired lists the sections whose changes only take effect after a
// process restart.
func (d ConfigDiff) RestartRequired() []string {
	var out []string
	if d.SourceChanged {
		out = append(out, "source")
	}
	if d.ServerChanged {
		out = append(out, "server")
	}
	if d.MQTTChanged {
		out = append(out, "mqtt")
	}
	if d.TelemetryChanged {
		out = append(out, "telemetry")
	}
	return out
}

func decoderEqual(a, b DecoderConfig) bool {
	if !slices.Equal(a.Tones, b.Tones) {
		return false
	}
	a.Tones, b.Tones = nil, nil
	return a.Tolerance == b.Tolerance &&
		a.MinSignalStrength == b.MinSignalStrength &&
		a.StrongSignalStrength == b.StrongSignalStrength &&
		a.MinAudioLevel == b.MinAudioLevel &&
		a.WindowSize == b.WindowSize &&
		a.MinWindow == b.MinWindow &&
		a.BandLow == b.BandLow &&
		a.BandHigh == b.BandHigh
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
