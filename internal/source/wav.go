package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/go-audio/wav"

	"github.com/MrWong99/buzzer/pkg/audio"
)

// WAV decodes a PCM WAV file into mono int16 little-endian chunks at the
// nominal sample rate. Each Read consumes ChunkSize frames from the file.
// Mono and stereo frames go to the format converter as they are; files with
// more channels are downmixed first.
type WAV struct {
	f        *os.File
	dec      *wav.Decoder
	buf      *goaudio.IntBuffer
	conv     audio.FormatConverter
	rate     int
	channels int
	depth    int
	realtime bool
	closed   atomic.Bool
}

// OpenWAV opens and validates a WAV file.
func OpenWAV(path string, cfg Config) (*WAV, error) {
	cfg = cfg.withDefaults()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: wav: %w", err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("source: wav: %s is not a valid WAV file", path)
	}

	format := dec.Format()
	depth := int(dec.SampleBitDepth())
	switch depth {
	case 8, 16, 24, 32:
	default:
		_ = f.Close()
		return nil, fmt.Errorf("source: wav: unsupported bit depth %d", depth)
	}
	channels := max(format.NumChannels, 1)

	return &WAV{
		f:   f,
		dec: dec,
		buf: &goaudio.IntBuffer{
			Format:         format,
			Data:           make([]int, cfg.ChunkSize*channels),
			SourceBitDepth: depth,
		},
		conv:     audio.FormatConverter{TargetRate: cfg.SampleRate},
		rate:     format.SampleRate,
		channels: channels,
		depth:    depth,
		realtime: cfg.Realtime,
	}, nil
}

// Read decodes the next chunk of frames.
func (s *WAV) Read(ctx context.Context) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return nil, fmt.Errorf("source: wav: read: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}

	chunk := &goaudio.IntBuffer{Format: s.buf.Format, Data: s.buf.Data[:n]}
	fb := chunk.AsFloatBuffer()
	from := audio.Format{SampleRate: s.rate, Channels: s.channels}
	if s.channels > 2 {
		if err := transforms.MonoDownmix(fb); err != nil {
			return nil, fmt.Errorf("source: wav: downmix: %w", err)
		}
		from.Channels = 1
	}
	normalise(fb.Data, s.depth)

	pcm := s.conv.Convert(audio.EncodeInt16LE(fb.Data), from)

	if s.realtime && s.rate > 0 {
		d := time.Duration(n/s.channels) * time.Second / time.Duration(s.rate)
		if err := wait(ctx, d); err != nil {
			return nil, err
		}
	}
	return pcm, nil
}

// Close closes the file. It is safe to call more than once.
func (s *WAV) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.f.Close()
}

// normalise maps integer PCM values of the given bit depth onto [-1, 1].
// 8-bit WAV data is unsigned.
func normalise(samples []float64, depth int) {
	if depth == 8 {
		for i, v := range samples {
			samples[i] = (v - 128) / 128
		}
		return
	}
	scale := float64(int64(1) << (depth - 1))
	for i, v := range samples {
		samples[i] = v / scale
	}
}
