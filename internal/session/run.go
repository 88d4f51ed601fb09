package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/buzzer/internal/bitstream"
	"github.com/MrWong99/buzzer/internal/observe"
	"github.com/MrWong99/buzzer/internal/tone"
	"github.com/MrWong99/buzzer/pkg/audio"
)

// Source is a byte stream consumed by [Run]. Read blocks until data is
// available and returns [io.EOF] at the end of the stream.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// StreamError reports that the source failed mid-session.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return "session: stream: " + e.Err.Error() }

func (e *StreamError) Unwrap() error { return e.Err }

// Listener receives pipeline events. Methods are called from the consumer
// goroutine outside the state lock and must not block for long.
type Listener interface {
	OnBit(rec bitstream.Record)
	OnTransition(ev tone.Event)
	OnPass(out Outcome)
}

// Listeners fans events out to several listeners in order.
type Listeners []Listener

func (ls Listeners) OnBit(rec bitstream.Record) {
	for _, l := range ls {
		l.OnBit(rec)
	}
}

func (ls Listeners) OnTransition(ev tone.Event) {
	for _, l := range ls {
		l.OnTransition(ev)
	}
}

func (ls Listeners) OnPass(out Outcome) {
	for _, l := range ls {
		l.OnPass(out)
	}
}

// Option configures [Run].
type Option func(*runner)

// WithMetrics records pipeline metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *runner) { r.metrics = m }
}

// WithListener delivers pipeline events to l.
func WithListener(l Listener) Option {
	return func(r *runner) { r.listener = l }
}

// WithClock overrides the time source used to stamp passes.
func WithClock(now func() time.Time) Option {
	return func(r *runner) { r.now = now }
}

type runner struct {
	state    *State
	src      Source
	metrics  *observe.Metrics
	listener Listener
	now      func() time.Time
}

// Run streams src into state until ctx is cancelled, the source ends or the
// source fails. The caller is expected to have reset state. Run returns nil
// on cancellation or end of stream and a [*StreamError] on source failure.
// Chunks already queued when the source ends are still analysed.
//
// Run does not close src.
func Run(ctx context.Context, src Source, state *State, opts ...Option) error {
	r := &runner{
		state:    state,
		src:      src,
		metrics:  observe.DefaultMetrics(),
		listener: Listeners(nil),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}

	ctx, span := observe.StartSpan(ctx, "session.run")
	defer span.End()

	queue := make(chan audio.AudioChunk, state.cfg.Buffers.Queue)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.produce(gctx, queue) })
	g.Go(func() error { return r.consume(gctx, queue) })

	err := g.Wait()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// produce reads chunks from the source into queue. The queue is closed when
// the producer returns so the consumer can drain it.
func (r *runner) produce(ctx context.Context, queue chan<- audio.AudioChunk) error {
	defer close(queue)
	log := observe.Logger(ctx)
	var chunks uint64

	for {
		if ctx.Err() != nil {
			return nil
		}
		data, err := r.src.Read(ctx)
		if len(data) > 0 {
			chunk := audio.AudioChunk{Data: data, Received: r.now()}
			select {
			case queue <- chunk:
			case <-ctx.Done():
				return nil
			}
			r.state.received(len(data))
			r.metrics.RecordChunk(ctx, len(data))
			chunks++
			if chunks%100 == 0 {
				log.Debug("streaming", "chunks", chunks, "bytes", r.state.bytesReceived.Load())
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.Info("stream ended", "chunks", chunks)
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			log.Warn("stream failed", "err", err, "chunks", chunks)
			return &StreamError{Err: err}
		}
	}
}

// consume pops chunks and runs every pass the buffered bytes allow.
func (r *runner) consume(ctx context.Context, queue <-chan audio.AudioChunk) error {
	timeout := r.state.cfg.PopTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		timer.Reset(timeout)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			continue
		case chunk, ok := <-queue:
			if !ok {
				return nil
			}
			r.state.feed(chunk.Data)
			for r.state.ready() {
				if ctx.Err() != nil {
					return nil
				}
				r.pass(ctx)
			}
		}
	}
}

// pass runs one analysis step and dispatches its events.
func (r *runner) pass(ctx context.Context) {
	started := time.Now()
	out, err := r.state.step(r.now())
	if err != nil {
		observe.Logger(ctx).Warn("analysis pass discarded", "err", err)
		r.metrics.PassErrors.Add(ctx, 1)
		return
	}
	r.metrics.RecordPass(ctx, out.Pass.Status.String(), time.Since(started).Seconds())

	p := out.Pass
	switch {
	case p.Err != nil:
		r.metrics.DecodeFailures.Add(ctx, 1)
		slog.Debug("could not decode audio", "err", p.Err)
	case out.Decision != nil:
		r.metrics.PeakMagnitude.Record(ctx, p.Peak.Magnitude)
		slog.Debug("peak in band",
			"frequency", fmt.Sprintf("%.2f", p.Peak.Frequency),
			"magnitude", fmt.Sprintf("%.2f", p.Peak.Magnitude),
			"class", out.Decision.Class,
		)
	}

	if ev := eventOf(out); ev != nil {
		r.metrics.RecordTransition(ctx, ev.Class.String())
		slog.Debug("tone state change", "label", ev.Label, "magnitude", ev.Magnitude, "duration", ev.Duration)
		r.listener.OnTransition(*ev)
	}
	if out.Bit != nil {
		r.metrics.RecordBit(ctx, out.Bit.Bit)
		r.listener.OnBit(*out.Bit)
	}
	r.listener.OnPass(out)
}

func eventOf(out Outcome) *tone.Event {
	if out.Decision == nil {
		return nil
	}
	return out.Decision.Event
}
