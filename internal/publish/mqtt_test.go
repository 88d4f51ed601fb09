package publish_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"github.com/MrWong99/buzzer/internal/bitstream"
	"github.com/MrWong99/buzzer/internal/pattern"
	"github.com/MrWong99/buzzer/internal/publish"
	"github.com/MrWong99/buzzer/internal/resilience"
	"github.com/MrWong99/buzzer/internal/session"
	"github.com/MrWong99/buzzer/internal/spectral"
	"github.com/MrWong99/buzzer/internal/tone"
)

// doneToken is an already completed mqtt.Token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	msgs         []published
	err          error
	disconnected bool
	notify       chan struct{}
}

func newFakeClient() *fakeClient { return &fakeClient{notify: make(chan struct{}, 64)} }

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	c.msgs = append(c.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	err := c.err
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return doneToken{err: err}
}

func (c *fakeClient) IsConnectionOpen() bool { return true }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

func waitFor(t *testing.T, c *fakeClient, n int) {
	t.Helper()
	for range n {
		select {
		case <-c.notify:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d publishes, got %d", n, len(c.messages()))
		}
	}
}

func TestPublisher_Topics(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	p := publish.New(client, publish.Config{TopicPrefix: "uvb"})
	defer p.Close()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p.OnBit(bitstream.Record{Seq: 7, Bit: 1, Frequency: 26.9, Timestamp: at, SessionTime: 3 * time.Second})
	p.OnTransition(tone.Event{Label: "FSK-2 (26.92Hz)", Class: tone.ClassDataOne, At: at, Duration: time.Second})
	p.PublishReport(&pattern.Report{Bits: 8})
	waitFor(t, client, 3)

	msgs := client.messages()
	wantTopics := []string{"uvb/bit", "uvb/state", "uvb/report"}
	for i, want := range wantTopics {
		if msgs[i].topic != want {
			t.Errorf("message %d: topic %q, want %q", i, msgs[i].topic, want)
		}
	}
	if msgs[0].retained || !msgs[1].retained {
		t.Error("state must be retained, bits must not")
	}

	var bit map[string]any
	if err := jsoniter.Unmarshal(msgs[0].payload, &bit); err != nil {
		t.Fatal(err)
	}
	if bit["seq"] != float64(7) || bit["session_time"] != float64(3) {
		t.Errorf("bit payload: %v", bit)
	}
	var state map[string]any
	if err := jsoniter.Unmarshal(msgs[1].payload, &state); err != nil {
		t.Fatal(err)
	}
	if state["class"] != "data_one" {
		t.Errorf("state class: got %v", state["class"])
	}
}

func TestPublisher_StatusOnlyOnChange(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	p := publish.New(client, publish.Config{})
	defer p.Close()

	pass := func(s spectral.Status) session.Outcome {
		return session.Outcome{Pass: spectral.Pass{Status: s}}
	}
	p.OnPass(pass(spectral.StatusQuiet))
	p.OnPass(pass(spectral.StatusQuiet))
	p.OnPass(pass(spectral.StatusPeak))
	waitFor(t, client, 2)

	time.Sleep(20 * time.Millisecond)
	msgs := client.messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d status messages, want 2", len(msgs))
	}
	if msgs[0].topic != "buzzer/status" {
		t.Errorf("topic: got %q", msgs[0].topic)
	}
}

func TestPublisher_BreakerOpensOnFailures(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.err = errors.New("broker gone")
	p := publish.New(client, publish.Config{
		Breaker: resilience.Config{MaxFailures: 2, Cooldown: time.Hour},
	})
	defer p.Close()

	for i := range 5 {
		p.OnBit(bitstream.Record{Seq: uint64(i + 1)})
	}
	waitFor(t, client, 2)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, dropped := p.Stats(); dropped == 5 {
			break
		}
		if time.Now().After(deadline) {
			_, dropped := p.Stats()
			t.Fatalf("dropped = %d, want 5", dropped)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(client.messages()); got != 2 {
		t.Errorf("broker saw %d publishes, want 2 before the breaker opened", got)
	}
	if p.BreakerState() != resilience.StateOpen {
		t.Errorf("breaker: got %v, want open", p.BreakerState())
	}
}

func TestPublisher_CloseDisconnects(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	p := publish.New(client, publish.Config{})
	_ = p.Close()
	_ = p.Close()
	p.OnBit(bitstream.Record{})

	client.mu.Lock()
	defer client.mu.Unlock()
	if !client.disconnected {
		t.Error("Close must disconnect the client")
	}
	if len(client.msgs) != 0 {
		t.Error("no messages may be sent after Close")
	}
}

func TestPublisher_RunReports(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	p := publish.New(client, publish.Config{})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.RunReports(ctx, 10*time.Millisecond, func() *pattern.Report {
		return &pattern.Report{Bits: 1, Insufficient: true}
	})
	waitFor(t, client, 1)
	if got := client.messages()[0].topic; got != "buzzer/report" {
		t.Errorf("topic: got %q", got)
	}
}

func TestConnect_RequiresBroker(t *testing.T) {
	t.Parallel()
	if _, err := publish.Connect(context.Background(), publish.Config{}); err == nil {
		t.Fatal("expected an error without a broker")
	}
}
