// Package spectral turns buffered audio bytes into magnitude spectra and picks
// the dominant tone inside the target band.
//
// A [FrontEnd] accumulates raw bytes until four nominal chunks are buffered,
// analyses the first window of samples, then drops two chunks so that
// consecutive passes overlap by half.
package spectral

import (
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/MrWong99/buzzer/pkg/audio"
)

// Config holds the analysis parameters of a [FrontEnd].
type Config struct {
	// SampleRate is the nominal stream sample rate in Hz.
	SampleRate int

	// ChunkSize is the nominal source chunk size in bytes. Analysis triggers
	// at 4×ChunkSize buffered bytes and advances by 2×ChunkSize.
	ChunkSize int

	// WindowSize is the maximum number of samples per FFT.
	WindowSize int

	// MinWindow is the smallest usable window; shorter passes are skipped.
	MinWindow int

	// BandLow and BandHigh bound the peak search in Hz (inclusive).
	BandLow  float64
	BandHigh float64

	// MinSignalStrength is the magnitude a bin needs to count as a peak.
	MinSignalStrength float64

	// StrongSignalStrength marks peaks as strong for display purposes.
	StrongSignalStrength float64

	// MinAudioLevel skips passes whose mean absolute sample is lower.
	MinAudioLevel float64
}

// DefaultConfig returns the parameters tuned for the 21–33 Hz tone set at
// 44.1 kHz: an 8192-point window puts the three tones exactly on bins 4–6.
func DefaultConfig() Config {
	return Config{
		SampleRate:           44100,
		ChunkSize:            4096,
		WindowSize:           8192,
		MinWindow:            2048,
		BandLow:              20.0,
		BandHigh:             34.0,
		MinSignalStrength:    15.0,
		StrongSignalStrength: 45.0,
		MinAudioLevel:        0.001,
	}
}

// Status is the outcome of one analysis pass.
type Status int

const (
	// StatusPeak means an in-band peak was found.
	StatusPeak Status = iota

	// StatusNoSignal means a spectrum was computed but no in-band bin met the
	// minimum signal strength.
	StatusNoSignal

	// StatusQuiet means the audio level was below the configured gate.
	StatusQuiet

	// StatusShort means fewer than MinWindow samples were available.
	StatusShort

	// StatusUndecodable means no sample encoding fit the buffered bytes.
	StatusUndecodable
)

// String returns the snake_case name of the status.
func (s Status) String() string {
	switch s {
	case StatusPeak:
		return "peak"
	case StatusNoSignal:
		return "no_signal"
	case StatusQuiet:
		return "quiet"
	case StatusShort:
		return "short"
	case StatusUndecodable:
		return "undecodable"
	default:
		return "unknown"
	}
}

// Frame is one analysis window's positive-frequency magnitude spectrum.
type Frame struct {
	Time       time.Time
	Magnitudes []float64
	BinWidth   float64
	SampleRate int
	WindowSize int
}

// Frequency returns the centre frequency of bin k in Hz.
func (f *Frame) Frequency(k int) float64 {
	return float64(k) * f.BinWidth
}

// Frequencies returns the frequency axis matching Magnitudes.
func (f *Frame) Frequencies() []float64 {
	out := make([]float64, len(f.Magnitudes))
	for k := range out {
		out[k] = f.Frequency(k)
	}
	return out
}

// Peak is the dominant in-band bin of a frame.
type Peak struct {
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
	Bin       int     `json:"bin"`
	Strong    bool    `json:"strong"`
}

// Pass is the result of one [FrontEnd.Next] call.
type Pass struct {
	Status   Status
	Time     time.Time
	Encoding audio.Encoding
	Samples  int
	Level    float64

	// Frame is set for StatusPeak and StatusNoSignal.
	Frame *Frame

	// Peak is valid only when Status is StatusPeak.
	Peak Peak

	// Err carries the decode failure for StatusUndecodable.
	Err error
}

// FrontEnd buffers stream bytes and runs overlapping spectral passes.
// It is not safe for concurrent use.
type FrontEnd struct {
	cfg     Config
	buf     []byte
	ffts    map[int]*fourier.FFT
	windows map[int][]float64
}

// New creates a FrontEnd with cfg. Zero fields fall back to [DefaultConfig].
func New(cfg Config) *FrontEnd {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = def.MinWindow
	}
	if cfg.BandLow == 0 && cfg.BandHigh == 0 {
		cfg.BandLow, cfg.BandHigh = def.BandLow, def.BandHigh
	}
	return &FrontEnd{
		cfg:     cfg,
		ffts:    make(map[int]*fourier.FFT),
		windows: make(map[int][]float64),
	}
}

// Config returns the effective configuration.
func (fe *FrontEnd) Config() Config { return fe.cfg }

// Write appends p to the analysis buffer. It never fails.
func (fe *FrontEnd) Write(p []byte) (int, error) {
	fe.buf = append(fe.buf, p...)
	return len(p), nil
}

// Buffered returns the number of buffered bytes.
func (fe *FrontEnd) Buffered() int { return len(fe.buf) }

// Ready reports whether enough bytes are buffered for a pass.
func (fe *FrontEnd) Ready() bool {
	return len(fe.buf) >= 4*fe.cfg.ChunkSize
}

// Reset drops all buffered bytes.
func (fe *FrontEnd) Reset() {
	fe.buf = fe.buf[:0]
}

// Next analyses the buffered bytes and then advances the buffer by two
// chunks, whatever the outcome. Expected skips are reported through
// [Pass.Status]; a non-nil error means the spectrum itself was malformed.
func (fe *FrontEnd) Next(now time.Time) (Pass, error) {
	defer fe.advance()

	pass := Pass{Time: now}
	frame, err := audio.Decode(fe.buf, fe.cfg.SampleRate)
	if err != nil {
		pass.Status = StatusUndecodable
		pass.Err = err
		return pass, nil
	}
	pass.Encoding = frame.Encoding
	pass.Samples = len(frame.Samples)
	pass.Level = audio.Level(frame.Samples)

	if pass.Level < fe.cfg.MinAudioLevel {
		pass.Status = StatusQuiet
		return pass, nil
	}

	n := min(len(frame.Samples), fe.cfg.WindowSize)
	if n < fe.cfg.MinWindow {
		pass.Status = StatusShort
		return pass, nil
	}

	spec, err := fe.spectrum(frame.Samples[:n], now)
	if err != nil {
		return pass, err
	}
	pass.Frame = spec

	peak, ok := FindPeak(spec, fe.cfg.BandLow, fe.cfg.BandHigh, fe.cfg.MinSignalStrength)
	if !ok {
		pass.Status = StatusNoSignal
		return pass, nil
	}
	peak.Strong = fe.cfg.StrongSignalStrength > 0 && peak.Magnitude >= fe.cfg.StrongSignalStrength
	pass.Status = StatusPeak
	pass.Peak = peak
	return pass, nil
}

// advance drops the analysed half of the buffer.
func (fe *FrontEnd) advance() {
	step := min(2*fe.cfg.ChunkSize, len(fe.buf))
	n := copy(fe.buf, fe.buf[step:])
	fe.buf = fe.buf[:n]
}

// spectrum windows samples, runs the FFT and keeps the first n/2 magnitudes.
func (fe *FrontEnd) spectrum(samples []float64, now time.Time) (*Frame, error) {
	n := len(samples)
	fft, ok := fe.ffts[n]
	if !ok {
		fft = fourier.NewFFT(n)
		fe.ffts[n] = fft
	}
	win, ok := fe.windows[n]
	if !ok {
		win = Hann(n)
		fe.windows[n] = win
	}

	windowed := make([]float64, n)
	for i, s := range samples {
		windowed[i] = s * win[i]
	}
	coeffs := fft.Coefficients(nil, windowed)

	mags := make([]float64, n/2)
	for k := range mags {
		m := cmplx.Abs(coeffs[k])
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("spectral: non-finite magnitude at bin %d", k)
		}
		mags[k] = m
	}
	return &Frame{
		Time:       now,
		Magnitudes: mags,
		BinWidth:   float64(fe.cfg.SampleRate) / float64(n),
		SampleRate: fe.cfg.SampleRate,
		WindowSize: n,
	}, nil
}
