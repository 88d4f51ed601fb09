// Package resilience provides a failure breaker for side channels that must
// never stall the decoding pipeline, such as publishing to an MQTT broker.
//
// [Breaker] is a three-state breaker (closed → open → half-open). While open
// it rejects calls immediately, so a slow or unreachable dependency costs one
// timeout per cooldown period instead of one per call.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Execute] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker].
type Config struct {
	// Name labels log messages.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close.
	// Default: 3.
	Probes int

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time

	// OnStateChange is called with the lock released after every
	// transition.
	OnStateChange func(from, to State)
}

// Breaker implements the three-state breaker.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	now         func() time.Time
	onChange    func(from, to State)

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probeCalls int
	probeOK    int
	trips      uint64
	rejected   uint64
}

// New creates a [Breaker]. Zero config fields get defaults.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		now:         cfg.Now,
		onChange:    cfg.OnStateChange,
	}
}

// Execute runs fn unless the breaker is open. In the half-open state at most
// Probes calls are in flight or completed before the breaker decides.
func (b *Breaker) Execute(fn func() error) error {
	probe, changed, err := b.admit()
	b.notify(changed)
	if err != nil {
		return err
	}

	err = fn()

	b.notify(b.record(probe, err))
	return err
}

type transition struct{ from, to State }

func (b *Breaker) admit() (probe bool, changed *transition, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.rejected++
			return false, nil, ErrOpen
		}
		changed = b.setState(StateHalfOpen)
		b.probeCalls, b.probeOK = 0, 0
	case StateHalfOpen:
		if b.probeCalls >= b.probes {
			b.rejected++
			return false, nil, ErrOpen
		}
	}
	if b.state == StateHalfOpen {
		b.probeCalls++
		return true, changed, nil
	}
	return false, changed, nil
}

func (b *Breaker) record(probe bool, err error) *transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		if probe {
			if b.state != StateHalfOpen {
				return nil
			}
			return b.open()
		}
		b.failures++
		if b.state == StateClosed && b.failures >= b.maxFailures {
			return b.open()
		}
		return nil
	}

	if !probe {
		b.failures = 0
		return nil
	}
	if b.state != StateHalfOpen {
		return nil
	}
	b.probeOK++
	if b.probeOK >= b.probes {
		b.failures = 0
		return b.setState(StateClosed)
	}
	return nil
}

// open trips the breaker. Must be called with b.mu held.
func (b *Breaker) open() *transition {
	b.openedAt = b.now()
	b.trips++
	return b.setState(StateOpen)
}

// setState must be called with b.mu held.
func (b *Breaker) setState(to State) *transition {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to
	return &transition{from: from, to: to}
}

func (b *Breaker) notify(t *transition) {
	if t == nil {
		return
	}
	level := slog.LevelInfo
	if t.to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "breaker state changed",
		"name", b.name,
		"from", t.from.String(),
		"to", t.to.String(),
	)
	if b.onChange != nil {
		b.onChange(t.from, t.to)
	}
}

// State returns the current state. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// Execute.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Stats reports how often the breaker opened and how many calls it
// rejected.
func (b *Breaker) Stats() (trips, rejected uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips, b.rejected
}

// Reset forces the breaker closed and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	t := b.setState(StateClosed)
	b.failures, b.probeCalls, b.probeOK = 0, 0, 0
	b.mu.Unlock()
	b.notify(t)
}
