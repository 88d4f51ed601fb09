package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNew_Defaults(t *testing.T) {
	b := New(Config{Name: "test"})
	if b.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", b.maxFailures)
	}
	if b.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", b.cooldown)
	}
	if b.probes != 3 {
		t.Errorf("probes = %d, want 3", b.probes)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := newFakeClock()
	b := New(Config{Name: "test", MaxFailures: 3, Now: clock.Now})

	for range 3 {
		if err := b.Execute(fail); !errors.Is(err, errTest) {
			t.Fatalf("got %v, want the call's own error", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
	if trips, rejected := b.Stats(); trips != 1 || rejected != 1 {
		t.Errorf("stats: trips=%d rejected=%d, want 1/1", trips, rejected)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 3})
	_ = b.Execute(fail)
	_ = b.Execute(fail)
	_ = b.Execute(succeed)
	_ = b.Execute(fail)
	_ = b.Execute(fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenCloses(t *testing.T) {
	clock := newFakeClock()
	b := New(Config{Name: "test", MaxFailures: 2, Cooldown: time.Minute, Probes: 2, Now: clock.Now})
	_ = b.Execute(fail)
	_ = b.Execute(fail)

	clock.Advance(59 * time.Second)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open before cooldown", b.State())
	}
	clock.Advance(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", b.State())
	}

	for i := range 2 {
		if err := b.Execute(succeed); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := New(Config{Name: "test", MaxFailures: 1, Cooldown: time.Second, Probes: 3, Now: clock.Now})
	_ = b.Execute(fail)
	clock.Advance(time.Second)

	if err := b.Execute(fail); !errors.Is(err, errTest) {
		t.Fatalf("got %v, want probe error", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if trips, _ := b.Stats(); trips != 2 {
		t.Errorf("trips = %d, want 2", trips)
	}
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	clock := newFakeClock()
	var got []string
	b := New(Config{
		Name:        "test",
		MaxFailures: 1,
		Cooldown:    time.Second,
		Probes:      1,
		Now:         clock.Now,
		OnStateChange: func(from, to State) {
			got = append(got, from.String()+">"+to.String())
		},
	})
	_ = b.Execute(fail)
	clock.Advance(time.Second)
	_ = b.Execute(succeed)

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(got) != len(want) {
		t.Fatalf("transitions: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 1, Cooldown: time.Hour})
	_ = b.Execute(fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", b.State())
	}
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
