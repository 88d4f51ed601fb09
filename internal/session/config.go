// Package session owns the per-session decode state and runs the
// producer/consumer pipeline that feeds it.
//
// A [State] holds every buffer, log and counter of one session behind a
// single lock. [Run] drives a [Source] into a State with exactly two
// goroutines: a producer that queues chunks and a consumer that turns them
// into spectral passes, tone decisions and bits.
package session

import (
	"time"

	"github.com/MrWong99/buzzer/internal/spectral"
	"github.com/MrWong99/buzzer/internal/tone"
)

// Buffers holds the capacities of the live ring buffers.
type Buffers struct {
	Frequency  int
	Bits       int
	Waterfall  int
	History    int
	AudioLevel int

	// Queue is the capacity of the producer/consumer chunk queue.
	Queue int
}

// Logging selects which unbounded logs are kept.
type Logging struct {
	Binary    bool `json:"binary"`
	Frequency bool `json:"frequency"`
	Waterfall bool `json:"waterfall"`
}

// Config is the complete per-session configuration.
type Config struct {
	Spectral spectral.Config
	Tone     tone.Config
	Buffers  Buffers
	Logging  Logging

	// PopTimeout bounds how long the consumer waits for a chunk before it
	// re-checks for cancellation.
	PopTimeout time.Duration
}

// DefaultConfig returns the standard session configuration.
func DefaultConfig() Config {
	return Config{
		Spectral: spectral.DefaultConfig(),
		Tone:     tone.DefaultConfig(),
		Buffers: Buffers{
			Frequency:  1000,
			Bits:       500,
			Waterfall:  100,
			History:    50,
			AudioLevel: 1000,
			Queue:      64,
		},
		Logging: Logging{
			Binary:    true,
			Frequency: true,
			Waterfall: false,
		},
		PopTimeout: time.Second,
	}
}

// withDefaults fills zero fields from [DefaultConfig].
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Buffers.Frequency <= 0 {
		c.Buffers.Frequency = def.Buffers.Frequency
	}
	if c.Buffers.Bits <= 0 {
		c.Buffers.Bits = def.Buffers.Bits
	}
	if c.Buffers.Waterfall <= 0 {
		c.Buffers.Waterfall = def.Buffers.Waterfall
	}
	if c.Buffers.History <= 0 {
		c.Buffers.History = def.Buffers.History
	}
	if c.Buffers.AudioLevel <= 0 {
		c.Buffers.AudioLevel = def.Buffers.AudioLevel
	}
	if c.Buffers.Queue <= 0 {
		c.Buffers.Queue = def.Buffers.Queue
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = def.PopTimeout
	}
	c.Tone.HistorySize = c.Buffers.History
	return c
}
