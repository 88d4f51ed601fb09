// Package audio defines the sample-level types that flow through the buzzer
// decoding pipeline and the helpers that turn opaque byte chunks into
// normalised samples.
//
// Streams arriving from a web SDR or a file carry no header the pipeline can
// trust, so [Decode] guesses the sample encoding from a fixed priority list.
// The PCM helpers in convert.go are used by sources that do know their format
// (WAV files, sound cards) to produce the nominal mono int16 stream.
//
// This package lives under pkg/ because external tools (e.g. custom stream
// sources) are expected to produce [AudioChunk] values.
package audio

import "time"

// AudioChunk is one raw byte chunk as delivered by a stream source.
type AudioChunk struct {
	// Data holds the undecoded bytes. The encoding is unknown at this point.
	Data []byte

	// Received marks when the chunk arrived from the source.
	Received time.Time
}

// AudioFrame is a block of normalised samples derived from buffered chunks.
type AudioFrame struct {
	// Samples are mono floating-point values, nominally in [-1, 1].
	Samples []float64

	// SampleRate in Hz (e.g., 44100 for the default web SDR stream).
	SampleRate int

	// Encoding records which interpretation [Decode] picked for the bytes.
	Encoding Encoding
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
