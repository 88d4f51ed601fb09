// Package bitstream accumulates decoded bits into a bounded display buffer
// and an optional unbounded log.
package bitstream

import (
	"strings"
	"time"

	"github.com/MrWong99/buzzer/internal/ring"
)

// Record is one decoded data bit.
type Record struct {
	// Seq is the 1-based position of the bit in the session.
	Seq         uint64        `json:"seq"`
	Bit         uint8         `json:"bit"`
	Frequency   float64       `json:"frequency"`
	Timestamp   time.Time     `json:"timestamp"`
	SessionTime time.Duration `json:"session_time"`
}

// Accumulator holds the bits of one session. It is not safe for concurrent
// use.
type Accumulator struct {
	display *ring.Ring[Record]
	log     []Record
	logging bool

	start       time.Time
	seq         uint64
	lastSession time.Duration
}

// New creates an Accumulator whose display buffer keeps the last capacity
// bits. When logging is true every bit is also appended to the log.
func New(capacity int, logging bool) *Accumulator {
	return &Accumulator{
		display: ring.New[Record](capacity),
		logging: logging,
	}
}

// Reset clears all bits and starts a new session clock at start.
func (a *Accumulator) Reset(start time.Time) {
	a.display.Clear()
	a.log = nil
	a.start = start
	a.seq = 0
	a.lastSession = 0
}

// Start returns the session start time.
func (a *Accumulator) Start() time.Time { return a.start }

// SetLogging toggles the unbounded log. Disabling it keeps what was logged.
func (a *Accumulator) SetLogging(on bool) { a.logging = on }

// Logging reports whether the log is enabled.
func (a *Accumulator) Logging() bool { return a.logging }

// Append records bit, observed at frequency freq at time at. Session time
// never runs backwards: a timestamp earlier than the previous bit is clamped.
func (a *Accumulator) Append(bit uint8, freq float64, at time.Time) Record {
	a.seq++
	st := max(at.Sub(a.start), 0)
	if a.start.IsZero() {
		st = 0
	}
	st = max(st, a.lastSession)
	a.lastSession = st

	rec := Record{
		Seq:         a.seq,
		Bit:         bit & 1,
		Frequency:   freq,
		Timestamp:   at,
		SessionTime: st,
	}
	a.display.Push(rec)
	if a.logging {
		a.log = append(a.log, rec)
	}
	return rec
}

// Total returns the number of bits appended since the last reset.
func (a *Accumulator) Total() uint64 { return a.seq }

// Len returns the number of bits in the display buffer.
func (a *Accumulator) Len() int { return a.display.Len() }

// Records returns the display buffer, oldest first.
func (a *Accumulator) Records() []Record { return a.display.Snapshot() }

// Bits returns the bits of the display buffer, oldest first.
func (a *Accumulator) Bits() []uint8 {
	return BitsOf(a.display.Snapshot())
}

// Log returns a copy of the unbounded log.
func (a *Accumulator) Log() []Record {
	out := make([]Record, len(a.log))
	copy(out, a.log)
	return out
}

// LogLen returns the number of logged bits.
func (a *Accumulator) LogLen() int { return len(a.log) }

// BitsOf extracts the bit values of recs.
func BitsOf(recs []Record) []uint8 {
	out := make([]uint8, len(recs))
	for i, r := range recs {
		out[i] = r.Bit
	}
	return out
}

// String renders bits as a string of '0' and '1'.
func String(bits []uint8) string {
	var b strings.Builder
	b.Grow(len(bits))
	for _, v := range bits {
		b.WriteByte('0' + v&1)
	}
	return b.String()
}

// Parse converts a string of '0' and '1' into bits. Any other character is
// skipped.
func Parse(s string) []uint8 {
	out := make([]uint8, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			out = append(out, 0)
		case '1':
			out = append(out, 1)
		}
	}
	return out
}
