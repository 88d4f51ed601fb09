// Package tone classifies spectral peaks into FSK symbols and tracks the
// labelled tone state of a session.
package tone

import (
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/buzzer/internal/ring"
)

// Class is the symbol class of a peak frequency.
type Class int

const (
	// ClassDataZero is the first data tone; it decodes to bit 0.
	ClassDataZero Class = iota

	// ClassDataOne is the second data tone; it decodes to bit 1.
	ClassDataOne

	// ClassCarrier is the third tone, the carrier or buzzer. It carries no bit.
	ClassCarrier

	// ClassUnknownInBand is any other frequency inside the unknown band.
	ClassUnknownInBand

	// ClassOutOfBand is everything else.
	ClassOutOfBand
)

// String returns the snake_case name of the class.
func (c Class) String() string {
	switch c {
	case ClassDataZero:
		return "data_zero"
	case ClassDataOne:
		return "data_one"
	case ClassCarrier:
		return "carrier"
	case ClassUnknownInBand:
		return "unknown_in_band"
	case ClassOutOfBand:
		return "out_of_band"
	default:
		return "invalid"
	}
}

// MarshalText encodes the class by name.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a name produced by [Class.MarshalText].
func (c *Class) UnmarshalText(text []byte) error {
	for cls := ClassDataZero; cls <= ClassOutOfBand; cls++ {
		if cls.String() == string(text) {
			*c = cls
			return nil
		}
	}
	return fmt.Errorf("tone: unknown class %q", text)
}

// Bit returns the decoded bit for data classes. ok is false for every class
// that carries no data.
func (c Class) Bit() (bit uint8, ok bool) {
	switch c {
	case ClassDataZero:
		return 0, true
	case ClassDataOne:
		return 1, true
	default:
		return 0, false
	}
}

// Config holds the classifier parameters.
type Config struct {
	// Tones are the data-zero, data-one and carrier frequencies in Hz.
	Tones [3]float64

	// Tolerance is the tight match tolerance in Hz used for bit decisions.
	// Labels use twice this value.
	Tolerance float64

	// UnknownLow and UnknownHigh bound the unknown-in-band class.
	UnknownLow  float64
	UnknownHigh float64

	// HistorySize is the capacity of the transition history.
	HistorySize int
}

// DefaultConfig returns the standard three-tone set.
func DefaultConfig() Config {
	return Config{
		Tones:       [3]float64{21.53, 26.92, 32.30},
		Tolerance:   0.5,
		UnknownLow:  20.0,
		UnknownHigh: 35.0,
		HistorySize: 50,
	}
}

// match returns the class for f with tolerance tol.
func (c Config) match(f, tol float64) Class {
	switch {
	case math.Abs(f-c.Tones[0]) <= tol:
		return ClassDataZero
	case math.Abs(f-c.Tones[1]) <= tol:
		return ClassDataOne
	case math.Abs(f-c.Tones[2]) <= tol:
		return ClassCarrier
	case f >= c.UnknownLow && f <= c.UnknownHigh:
		return ClassUnknownInBand
	default:
		return ClassOutOfBand
	}
}

// Classify applies the tight tolerance to f.
func (c Config) Classify(f float64) Class {
	return c.match(f, c.Tolerance)
}

// Label returns the display label of f using the wide tolerance, for example
// "FSK-1 (21.53Hz)" or "Unknown (24.10Hz)".
func (c Config) Label(f float64) string {
	switch cls := c.match(f, 2*c.Tolerance); cls {
	case ClassDataZero, ClassDataOne, ClassCarrier:
		return fmt.Sprintf("FSK-%d (%.2fHz)", int(cls)+1, c.Tones[cls])
	case ClassUnknownInBand:
		return fmt.Sprintf("Unknown (%.2fHz)", f)
	default:
		return fmt.Sprintf("Out of band (%.2fHz)", f)
	}
}

// Describe returns the one-line live indicator text for f, such as
// "21.5 Hz (FSK-1: Binary 0)".
func (c Config) Describe(f float64) string {
	var what string
	switch c.match(f, 2*c.Tolerance) {
	case ClassDataZero:
		what = "FSK-1: Binary 0"
	case ClassDataOne:
		what = "FSK-2: Binary 1"
	case ClassCarrier:
		what = "FSK-3: Carrier/Buzzer"
	case ClassUnknownInBand:
		what = "Unknown UVB tone"
	default:
		what = "Non-UVB"
	}
	return fmt.Sprintf("%.1f Hz (%s)", f, what)
}

// State is the current labelled tone state.
type State struct {
	Class     Class     `json:"class"`
	Label     string    `json:"label"`
	Frequency float64   `json:"frequency"`
	Magnitude float64   `json:"magnitude"`
	Since     time.Time `json:"since"` // when Label began
	At        time.Time `json:"at"`    // last observation
}

// Event is one label transition.
type Event struct {
	// Previous and PreviousClass are unset on the first event of a session.
	Previous      string    `json:"previous,omitempty"`
	PreviousClass *Class    `json:"previous_class,omitempty"`
	Label         string    `json:"label"`
	Class         Class     `json:"class"`
	Frequency     float64   `json:"frequency"`
	Magnitude     float64   `json:"magnitude"`
	At            time.Time `json:"at"`

	// Duration is how long the previous label lasted. Zero for the first
	// event of a session.
	Duration time.Duration `json:"duration"`
}

// Decision is the outcome of one [Classifier.Observe] call.
type Decision struct {
	Class Class
	Label string

	// Bit and HasBit mirror [Class.Bit].
	Bit    uint8
	HasBit bool

	// Event is non-nil when the label changed.
	Event *Event
}

// Classifier is the per-session tone state machine. It is not safe for
// concurrent use.
type Classifier struct {
	cfg     Config
	state   State
	started bool
	history *ring.Ring[Event]
}

// NewClassifier creates a Classifier. Zero fields of cfg fall back to
// [DefaultConfig].
func NewClassifier(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.Tones == [3]float64{} {
		cfg.Tones = def.Tones
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.UnknownLow == 0 && cfg.UnknownHigh == 0 {
		cfg.UnknownLow, cfg.UnknownHigh = def.UnknownLow, def.UnknownHigh
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	return &Classifier{cfg: cfg, history: ring.New[Event](cfg.HistorySize)}
}

// Config returns the effective configuration.
func (c *Classifier) Config() Config { return c.cfg }

// Observe classifies a peak seen at time at and updates the state. An event
// is recorded when the wide-tolerance label differs from the current one.
func (c *Classifier) Observe(freq, mag float64, at time.Time) Decision {
	cls := c.cfg.Classify(freq)
	label := c.cfg.Label(freq)
	d := Decision{Class: cls, Label: label}
	d.Bit, d.HasBit = cls.Bit()

	if !c.started || label != c.state.Label {
		ev := Event{
			Label:     label,
			Class:     cls,
			Frequency: freq,
			Magnitude: mag,
			At:        at,
		}
		if c.started {
			ev.Previous = c.state.Label
			prev := c.state.Class
			ev.PreviousClass = &prev
			ev.Duration = at.Sub(c.state.Since)
		}
		c.history.Push(ev)
		d.Event = &ev
		c.state.Since = at
		c.started = true
	}

	c.state.Class = cls
	c.state.Label = label
	c.state.Frequency = freq
	c.state.Magnitude = mag
	c.state.At = at
	return d
}

// State returns the current state. ok is false before the first observation.
func (c *Classifier) State() (State, bool) {
	return c.state, c.started
}

// History returns the recorded transitions, oldest first.
func (c *Classifier) History() []Event {
	return c.history.Snapshot()
}

// Changes returns the total number of transitions since the last reset,
// including those evicted from the history.
func (c *Classifier) Changes() uint64 { return c.history.Total() }

// Counts returns how many events in the current history carry each class.
func (c *Classifier) Counts() map[Class]int {
	out := make(map[Class]int)
	for _, ev := range c.history.Snapshot() {
		out[ev.Class]++
	}
	return out
}

// Reset clears the state and history.
func (c *Classifier) Reset() {
	c.state = State{}
	c.started = false
	c.history.Clear()
}
