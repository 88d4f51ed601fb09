package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/buzzer/internal/bitstream"
	"github.com/MrWong99/buzzer/internal/ring"
	"github.com/MrWong99/buzzer/internal/spectral"
	"github.com/MrWong99/buzzer/internal/tone"
)

// FrequencySample is one detected peak in the live frequency buffer.
type FrequencySample struct {
	Time      time.Time `json:"time"`
	Frequency float64   `json:"frequency"`
	Magnitude float64   `json:"magnitude"`
}

// LevelSample is the audio level of one decoded pass.
type LevelSample struct {
	Time  time.Time `json:"time"`
	Level float64   `json:"level"`
}

// FrequencyRecord is one entry of the frequency log.
type FrequencyRecord struct {
	Timestamp   time.Time
	SessionTime time.Duration
	Frequency   float64
	Magnitude   float64
	AudioLevel  float64
}

// WaterfallRecord is one entry of the waterfall log.
type WaterfallRecord struct {
	Timestamp   time.Time
	SessionTime time.Duration
	Frequencies []float64
	Magnitudes  []float64
}

// Outcome describes what one spectral pass changed.
type Outcome struct {
	Pass     spectral.Pass
	Decision *tone.Decision
	Bit      *bitstream.Record
}

// State is the shared state of one session. The consumer writes to it and
// any number of readers may snapshot it concurrently.
type State struct {
	cfg Config

	mu          sync.RWMutex
	start       time.Time
	fe          *spectral.FrontEnd
	classifier  *tone.Classifier
	bits        *bitstream.Accumulator
	frequencies *ring.Ring[FrequencySample]
	levels      *ring.Ring[LevelSample]
	waterfall   *ring.Ring[*spectral.Frame]
	freqLog     []FrequencyRecord
	wfLog       []WaterfallRecord
	logging     Logging
	peak        spectral.Peak
	hasPeak     bool
	lastStatus  spectral.Status

	bytesReceived  atomic.Uint64
	chunksReceived atomic.Uint64
	passes         atomic.Uint64
	decodeFailures atomic.Uint64
	passErrors     atomic.Uint64
}

// NewState creates an empty State. Call [State.Reset] before feeding it.
func NewState(cfg Config) *State {
	cfg = cfg.withDefaults()
	s := &State{
		cfg:         cfg,
		fe:          spectral.New(cfg.Spectral),
		classifier:  tone.NewClassifier(cfg.Tone),
		bits:        bitstream.New(cfg.Buffers.Bits, cfg.Logging.Binary),
		frequencies: ring.New[FrequencySample](cfg.Buffers.Frequency),
		levels:      ring.New[LevelSample](cfg.Buffers.AudioLevel),
		waterfall:   ring.New[*spectral.Frame](cfg.Buffers.Waterfall),
		logging:     cfg.Logging,
	}
	return s
}

// Config returns the effective configuration.
func (s *State) Config() Config { return s.cfg }

// Reset clears every buffer, log and counter and restarts the session clock
// at now. Readers never observe a partially reset state.
func (s *State) Reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.start = now
	s.fe.Reset()
	s.classifier.Reset()
	s.bits.Reset(now)
	s.frequencies.Clear()
	s.levels.Clear()
	s.waterfall.Clear()
	s.freqLog = nil
	s.wfLog = nil
	s.peak = spectral.Peak{}
	s.hasPeak = false
	s.lastStatus = spectral.StatusNoSignal

	s.bytesReceived.Store(0)
	s.chunksReceived.Store(0)
	s.passes.Store(0)
	s.decodeFailures.Store(0)
	s.passErrors.Store(0)
}

// SetLogging changes the active logs. Disabling a log keeps its entries.
func (s *State) SetLogging(l Logging) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logging = l
	s.bits.SetLogging(l.Binary)
}

// received counts n stream bytes delivered by the producer.
func (s *State) received(n int) {
	s.bytesReceived.Add(uint64(n))
	s.chunksReceived.Add(1)
}

// feed appends stream bytes to the analysis buffer.
func (s *State) feed(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.fe.Write(data)
}

// ready reports whether a pass can run.
func (s *State) ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fe.Ready()
}

// step runs one pass. A panic inside the pass is recovered and returned as
// an error; the front end still advances past the offending bytes.
func (s *State) step(now time.Time) (out Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session: pass panicked: %v", r)
		}
		if err != nil {
			s.passErrors.Add(1)
		}
	}()

	s.passes.Add(1)
	pass, err := s.fe.Next(now)
	if err != nil {
		return Outcome{}, fmt.Errorf("session: spectral pass: %w", err)
	}
	out.Pass = pass
	s.lastStatus = pass.Status

	if pass.Status == spectral.StatusUndecodable {
		s.decodeFailures.Add(1)
		return out, nil
	}
	s.levels.Push(LevelSample{Time: now, Level: pass.Level})
	if pass.Frame == nil {
		return out, nil
	}

	st := s.sessionTime(now)
	s.waterfall.Push(pass.Frame)
	if s.logging.Waterfall {
		s.wfLog = append(s.wfLog, WaterfallRecord{
			Timestamp:   now,
			SessionTime: st,
			Frequencies: pass.Frame.Frequencies(),
			Magnitudes:  append([]float64(nil), pass.Frame.Magnitudes...),
		})
	}
	if pass.Status != spectral.StatusPeak {
		return out, nil
	}

	p := pass.Peak
	s.peak, s.hasPeak = p, true
	s.frequencies.Push(FrequencySample{Time: now, Frequency: p.Frequency, Magnitude: p.Magnitude})
	if s.logging.Frequency {
		s.freqLog = append(s.freqLog, FrequencyRecord{
			Timestamp:   now,
			SessionTime: st,
			Frequency:   p.Frequency,
			Magnitude:   p.Magnitude,
			AudioLevel:  pass.Level,
		})
	}

	d := s.classifier.Observe(p.Frequency, p.Magnitude, now)
	out.Decision = &d
	if d.HasBit {
		rec := s.bits.Append(d.Bit, p.Frequency, now)
		out.Bit = &rec
	}
	return out, nil
}

func (s *State) sessionTime(now time.Time) time.Duration {
	if s.start.IsZero() {
		return 0
	}
	return max(now.Sub(s.start), 0)
}

// Metrics are the session counters.
type Metrics struct {
	Start           time.Time     `json:"start"`
	Elapsed         time.Duration `json:"elapsed"`
	BytesReceived   uint64        `json:"bytes_received"`
	ChunksReceived  uint64        `json:"chunks_received"`
	ChunksProcessed uint64        `json:"chunks_processed"`
	DecodeFailures  uint64        `json:"decode_failures"`
	PassErrors      uint64        `json:"pass_errors"`
	BitsDecoded     uint64        `json:"bits_decoded"`
	KBps            float64       `json:"kbps"`
}

// Metrics returns the counters as of now.
func (s *State) Metrics(now time.Time) Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metricsLocked(now)
}

func (s *State) metricsLocked(now time.Time) Metrics {
	m := Metrics{
		Start:           s.start,
		Elapsed:         s.sessionTime(now),
		BytesReceived:   s.bytesReceived.Load(),
		ChunksReceived:  s.chunksReceived.Load(),
		ChunksProcessed: s.passes.Load(),
		DecodeFailures:  s.decodeFailures.Load(),
		PassErrors:      s.passErrors.Load(),
		BitsDecoded:     s.bits.Total(),
	}
	if secs := m.Elapsed.Seconds(); secs > 0 {
		m.KBps = float64(m.BytesReceived) / 1024 / secs
	}
	return m
}

// Snapshot is a consistent copy of the live session state.
type Snapshot struct {
	Metrics     Metrics            `json:"metrics"`
	Peak        *spectral.Peak     `json:"peak,omitempty"`
	Tone        *tone.State        `json:"tone,omitempty"`
	Description string             `json:"description,omitempty"`
	LastStatus  string             `json:"last_status"`
	Frequencies []FrequencySample  `json:"frequencies"`
	Levels      []LevelSample      `json:"levels"`
	Bits        []bitstream.Record `json:"bits"`
	History     []tone.Event       `json:"history"`
	ToneCounts  map[tone.Class]int `json:"tone_counts"` // per class, over History
	ToneChanges uint64             `json:"tone_changes"`
	Logging     Logging            `json:"logging"`
	Buffers     Buffers            `json:"buffers"`

	BitLogLen       int `json:"bit_log_len"`
	FrequencyLogLen int `json:"frequency_log_len"`
	WaterfallLogLen int `json:"waterfall_log_len"`
	WaterfallLen    int `json:"waterfall_len"`
}

// Snapshot copies the live state as of now.
func (s *State) Snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Metrics:         s.metricsLocked(now),
		LastStatus:      s.lastStatus.String(),
		Frequencies:     s.frequencies.Snapshot(),
		Levels:          s.levels.Snapshot(),
		Bits:            s.bits.Records(),
		History:         s.classifier.History(),
		ToneCounts:      s.classifier.Counts(),
		ToneChanges:     s.classifier.Changes(),
		Logging:         s.logging,
		Buffers:         s.cfg.Buffers,
		BitLogLen:       s.bits.LogLen(),
		FrequencyLogLen: len(s.freqLog),
		WaterfallLogLen: len(s.wfLog),
		WaterfallLen:    s.waterfall.Len(),
	}
	if s.hasPeak {
		p := s.peak
		snap.Peak = &p
		snap.Description = s.classifier.Config().Describe(p.Frequency)
	}
	if st, ok := s.classifier.State(); ok {
		snap.Tone = &st
	}
	return snap
}

// Bits returns the bits of the display buffer, oldest first.
func (s *State) Bits() []uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bits.Bits()
}

// BitLog returns a copy of the bit log.
func (s *State) BitLog() []bitstream.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bits.Log()
}

// FrequencyLog returns a copy of the frequency log.
func (s *State) FrequencyLog() []FrequencyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FrequencyRecord(nil), s.freqLog...)
}

// WaterfallLog returns a copy of the waterfall log. Entries share their
// slices with the state and must not be modified.
func (s *State) WaterfallLog() []WaterfallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]WaterfallRecord(nil), s.wfLog...)
}

// Waterfall returns the frames in the live waterfall buffer, oldest first.
func (s *State) Waterfall() []*spectral.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waterfall.Snapshot()
}
