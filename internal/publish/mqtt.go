// Package publish forwards live decoder events to an MQTT broker.
//
// The [Publisher] implements the session listener interface. Events are
// queued without blocking and sent by a single worker goroutine; a full
// queue drops messages and an unreachable broker trips a breaker, so the
// decoding pipeline never waits on the network.
package publish

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"github.com/MrWong99/buzzer/internal/bitstream"
	"github.com/MrWong99/buzzer/internal/pattern"
	"github.com/MrWong99/buzzer/internal/resilience"
	"github.com/MrWong99/buzzer/internal/session"
	"github.com/MrWong99/buzzer/internal/tone"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Topic suffixes below the configured prefix.
const (
	TopicBit    = "bit"
	TopicState  = "state"
	TopicStatus = "status"
	TopicReport = "report"
)

var errPublishTimeout = errors.New("publish: timed out waiting for broker")

// Client is the subset of [mqtt.Client] the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// Config configures the publisher and its broker connection.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte

	// PublishTimeout bounds the wait for one publish acknowledgement.
	PublishTimeout time.Duration

	// QueueSize is the number of pending messages kept before dropping.
	QueueSize int

	Breaker resilience.Config
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "buzzer"
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Breaker.Name == "" {
		c.Breaker.Name = "mqtt"
	}
	return c
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// Publisher sends session events to MQTT. All methods are safe for
// concurrent use.
type Publisher struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
	breaker *resilience.Breaker

	queue chan message
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	lastStatus atomic.Value // string
	sent       atomic.Uint64
	dropped    atomic.Uint64
}

// clientID returns a random broker client ID.
func clientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "buzzer_" + hex.EncodeToString(b)
}

// Connect dials the broker and returns a running publisher. The paho client
// reconnects on its own after the initial connection.
func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	cfg = cfg.withDefaults()
	if cfg.Broker == "" {
		return nil, errors.New("publish: broker address is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	id := cfg.ClientID
	if id == "" {
		id = clientID()
	}
	opts.SetClientID(id)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", cfg.Broker, "err", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		slog.Info("mqtt reconnecting", "broker", cfg.Broker)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("publish: connect %s: %w", cfg.Broker, err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, fmt.Errorf("publish: connect %s: %w", cfg.Broker, ctx.Err())
	}
	return New(client, cfg), nil
}

// New wraps an existing client and starts the send worker.
func New(client Client, cfg Config) *Publisher {
	cfg = cfg.withDefaults()
	p := &Publisher{
		client:  client,
		prefix:  cfg.TopicPrefix,
		qos:     cfg.QoS,
		timeout: cfg.PublishTimeout,
		breaker: resilience.New(cfg.Breaker),
		queue:   make(chan message, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	p.lastStatus.Store("")
	p.wg.Add(1)
	go p.run()
	return p
}

// Topic returns the full topic for suffix.
func (p *Publisher) Topic(suffix string) string { return p.prefix + "/" + suffix }

// Connected reports whether the broker connection is up.
func (p *Publisher) Connected() bool { return p.client.IsConnectionOpen() }

// Stats returns the number of sent and dropped messages.
func (p *Publisher) Stats() (sent, dropped uint64) { return p.sent.Load(), p.dropped.Load() }

// BreakerState reports the state of the send breaker.
func (p *Publisher) BreakerState() resilience.State { return p.breaker.State() }

type bitPayload struct {
	Seq         uint64  `json:"seq"`
	Bit         uint8   `json:"bit"`
	Frequency   float64 `json:"frequency"`
	Timestamp   int64   `json:"timestamp_ms"`
	SessionTime float64 `json:"session_time"`
}

// OnBit publishes a decoded bit.
func (p *Publisher) OnBit(rec bitstream.Record) {
	p.enqueue(TopicBit, bitPayload{
		Seq:         rec.Seq,
		Bit:         rec.Bit,
		Frequency:   rec.Frequency,
		Timestamp:   rec.Timestamp.UnixMilli(),
		SessionTime: rec.SessionTime.Seconds(),
	}, false)
}

type statePayload struct {
	Label     string     `json:"label"`
	Class     tone.Class `json:"class"`
	Previous  string     `json:"previous,omitempty"`
	Frequency float64    `json:"frequency"`
	Magnitude float64    `json:"magnitude"`
	Timestamp int64      `json:"timestamp_ms"`
	Duration  float64    `json:"previous_duration"`
}

// OnTransition publishes a tone label change as a retained message.
func (p *Publisher) OnTransition(ev tone.Event) {
	p.enqueue(TopicState, statePayload{
		Label:     ev.Label,
		Class:     ev.Class,
		Previous:  ev.Previous,
		Frequency: ev.Frequency,
		Magnitude: ev.Magnitude,
		Timestamp: ev.At.UnixMilli(),
		Duration:  ev.Duration.Seconds(),
	}, true)
}

type statusPayload struct {
	Status    string  `json:"status"`
	Level     float64 `json:"level"`
	Timestamp int64   `json:"timestamp_ms"`
}

// OnPass publishes the pass status whenever it differs from the last one.
func (p *Publisher) OnPass(out session.Outcome) {
	status := out.Pass.Status.String()
	if p.lastStatus.Swap(status) == status {
		return
	}
	p.enqueue(TopicStatus, statusPayload{
		Status:    status,
		Level:     out.Pass.Level,
		Timestamp: out.Pass.Time.UnixMilli(),
	}, true)
}

// PublishReport publishes a pattern report.
func (p *Publisher) PublishReport(r *pattern.Report) {
	if r == nil {
		return
	}
	p.enqueue(TopicReport, r, false)
}

// RunReports publishes report() every interval until ctx is done.
func (p *Publisher) RunReports(ctx context.Context, interval time.Duration, report func() *pattern.Report) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.PublishReport(report())
		}
	}
}

func (p *Publisher) enqueue(suffix string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("mqtt: encode payload", "topic", suffix, "err", err)
		return
	}
	m := message{topic: p.Topic(suffix), payload: payload, retained: retained}
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- m:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case m := <-p.queue:
			p.send(m)
		}
	}
}

func (p *Publisher) send(m message) {
	err := p.breaker.Execute(func() error {
		token := p.client.Publish(m.topic, p.qos, m.retained, m.payload)
		if !token.WaitTimeout(p.timeout) {
			return errPublishTimeout
		}
		return token.Error()
	})
	switch {
	case err == nil:
		p.sent.Add(1)
	case errors.Is(err, resilience.ErrOpen):
		p.dropped.Add(1)
	default:
		p.dropped.Add(1)
		slog.Debug("mqtt publish failed", "topic", m.topic, "err", err)
	}
}

// Close stops the worker and disconnects from the broker. Pending messages
// are discarded.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.client.Disconnect(250)
	})
	return nil
}
