//go:build portaudio

package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/buzzer/pkg/audio"
)

func registerDevice(r *Registry) {
	r.Register("device", openDevice)
}

func openDevice(u *url.URL, cfg Config) (Source, error) {
	name := u.Host + strings.TrimPrefix(u.Path, "/")
	if name == "" {
		name = cfg.Device
	}
	return OpenDevice(name, cfg)
}

// Device captures mono audio from a sound card input. Each Read blocks for
// ChunkSize frames.
type Device struct {
	stream *portaudio.Stream
	buf    goaudio.Float32Buffer

	mu     sync.Mutex
	closed bool
}

// ListDevices returns the names of all capture-capable devices. Index i+1
// of the result can be used as a device name.
func ListDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("source: device: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("source: device: %w", err)
	}
	var out []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			out = append(out, d.Name)
		}
	}
	return out, nil
}

// OpenDevice opens and starts an input stream. name is a 1-based device
// index, a device name prefix, or empty/"default" for the system default.
func OpenDevice(name string, cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("source: device: %w", err)
	}

	info, err := findInput(name)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	p := portaudio.HighLatencyParameters(info, nil)
	p.Input.Channels = 1
	p.Output.Channels = 0
	p.SampleRate = float64(cfg.SampleRate)
	p.FramesPerBuffer = cfg.ChunkSize

	buf := goaudio.Float32Buffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: cfg.SampleRate},
		Data:   make([]float32, cfg.ChunkSize),
	}
	stream, err := portaudio.OpenStream(p, buf.Data)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("source: device: open input: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("source: device: start input: %w", err)
	}
	return &Device{stream: stream, buf: buf}, nil
}

func findInput(name string) (*portaudio.DeviceInfo, error) {
	if name == "" || strings.EqualFold(name, "default") {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("source: device: %w", err)
		}
		return info, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("source: device: %w", err)
	}
	if i, err := strconv.Atoi(name); err == nil && i > 0 && i <= len(devices) {
		return devices[i-1], nil
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.HasPrefix(d.Name, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("source: device: not found: %s", name)
}

// Read captures the next block and returns it as int16 little-endian PCM.
func (s *Device) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("source: device: read: %w", err)
	}
	fb := s.buf.AsFloatBuffer()
	return audio.EncodeInt16LE(fb.Data), nil
}

// Close stops the stream and releases PortAudio.
func (s *Device) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
