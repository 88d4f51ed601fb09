package app

import (
	"github.com/MrWong99/buzzer/internal/config"
	"github.com/MrWong99/buzzer/internal/publish"
	"github.com/MrWong99/buzzer/internal/session"
	"github.com/MrWong99/buzzer/internal/source"
)

// sessionConfig converts the decoder, buffer and logging sections.
func sessionConfig(cfg *config.Config) session.Config {
	sc := session.DefaultConfig()

	sp := &sc.Spectral
	sp.SampleRate = cfg.Source.SampleRate
	sp.ChunkSize = cfg.Source.ChunkSize
	sp.WindowSize = cfg.Decoder.WindowSize
	sp.MinWindow = cfg.Decoder.MinWindow
	sp.BandLow = cfg.Decoder.BandLow
	sp.BandHigh = cfg.Decoder.BandHigh
	sp.MinSignalStrength = cfg.Decoder.MinSignalStrength
	sp.StrongSignalStrength = cfg.Decoder.StrongSignalStrength
	sp.MinAudioLevel = cfg.Decoder.MinAudioLevel

	if len(cfg.Decoder.Tones) == 3 {
		copy(sc.Tone.Tones[:], cfg.Decoder.Tones)
	}
	sc.Tone.Tolerance = cfg.Decoder.Tolerance

	sc.Buffers = session.Buffers{
		Frequency:  cfg.Buffers.Frequency,
		Bits:       cfg.Buffers.Bits,
		Waterfall:  cfg.Buffers.Waterfall,
		History:    cfg.Buffers.History,
		AudioLevel: cfg.Buffers.AudioLevel,
		Queue:      cfg.Buffers.Queue,
	}
	sc.Logging = sessionLogging(cfg.Logging)
	return sc
}

func sessionLogging(l config.LoggingConfig) session.Logging {
	return session.Logging{Binary: l.Binary, Frequency: l.Frequency, Waterfall: l.Waterfall}
}

// sourceConfig converts the source section for a stream at url.
func sourceConfig(cfg *config.Config, url string) source.Config {
	sc := source.DefaultConfig()
	sc.URL = url
	sc.ChunkSize = cfg.Source.ChunkSize
	sc.SampleRate = cfg.Source.SampleRate
	sc.ConnectTimeout = cfg.Source.ConnectTimeout
	sc.Realtime = cfg.Source.Realtime
	sc.MaxRetries = cfg.Source.MaxRetries
	sc.RetryBackoff = cfg.Source.RetryBackoff
	sc.Device = cfg.Source.Device
	return sc
}

// publishConfig converts the mqtt section.
func publishConfig(cfg *config.Config) publish.Config {
	return publish.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}
}
