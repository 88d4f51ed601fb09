// Package observe provides application-wide observability primitives for
// buzzer: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all buzzer metrics.
const meterName = "github.com/MrWong99/buzzer"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Stream counters ---

	// BytesReceived counts raw stream bytes pulled from the source.
	BytesReceived metric.Int64Counter

	// ChunksReceived counts chunks handed from the producer to the consumer.
	ChunksReceived metric.Int64Counter

	// --- Pipeline counters ---

	// Passes counts spectral passes. Use with attribute:
	//   attribute.String("status", ...)
	Passes metric.Int64Counter

	// DecodeFailures counts passes whose bytes fit no sample encoding.
	DecodeFailures metric.Int64Counter

	// PassErrors counts passes discarded after an error or panic.
	PassErrors metric.Int64Counter

	// BitsDecoded counts decoded data bits. Use with attribute:
	//   attribute.String("bit", "0"|"1")
	BitsDecoded metric.Int64Counter

	// ToneTransitions counts tone label changes. Use with attribute:
	//   attribute.String("class", ...)
	ToneTransitions metric.Int64Counter

	// --- Histograms ---

	// PassDuration tracks the processing time of one spectral pass.
	PassDuration metric.Float64Histogram

	// PeakMagnitude tracks the magnitude of detected in-band peaks.
	PeakMagnitude metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of running decode sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control API latency by "method" and the
	// matched mux "route". The live feed is not recorded.
	HTTPRequestDuration metric.Float64Histogram
}

// passBuckets defines histogram bucket boundaries (in seconds) for a single
// FFT pass.
var passBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// magnitudeBuckets covers the unnormalised FFT magnitudes of typical peaks.
var magnitudeBuckets = []float64{
	15, 20, 30, 45, 60, 100, 200, 500, 1000, 5000,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.BytesReceived, err = m.Int64Counter("buzzer.bytes.received",
		metric.WithDescription("Total stream bytes received from the source."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ChunksReceived, err = m.Int64Counter("buzzer.chunks.received",
		metric.WithDescription("Total stream chunks queued for analysis."),
	); err != nil {
		return nil, err
	}
	if met.Passes, err = m.Int64Counter("buzzer.passes",
		metric.WithDescription("Total spectral passes by outcome."),
	); err != nil {
		return nil, err
	}
	if met.DecodeFailures, err = m.Int64Counter("buzzer.decode.failures",
		metric.WithDescription("Passes whose bytes matched no sample encoding."),
	); err != nil {
		return nil, err
	}
	if met.PassErrors, err = m.Int64Counter("buzzer.pass.errors",
		metric.WithDescription("Passes discarded after an analysis error."),
	); err != nil {
		return nil, err
	}
	if met.BitsDecoded, err = m.Int64Counter("buzzer.bits.decoded",
		metric.WithDescription("Total decoded data bits by value."),
	); err != nil {
		return nil, err
	}
	if met.ToneTransitions, err = m.Int64Counter("buzzer.tone.transitions",
		metric.WithDescription("Total tone label changes by new class."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.PassDuration, err = m.Float64Histogram("buzzer.pass.duration",
		metric.WithDescription("Processing time of one spectral pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(passBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PeakMagnitude, err = m.Float64Histogram("buzzer.peak.magnitude",
		metric.WithDescription("Magnitude of detected in-band peaks."),
		metric.WithExplicitBucketBoundaries(magnitudeBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("buzzer.active_sessions",
		metric.WithDescription("Number of running decode sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("buzzer.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordPass records one spectral pass with its outcome and duration in
// seconds.
func (m *Metrics) RecordPass(ctx context.Context, status string, seconds float64) {
	m.Passes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.PassDuration.Record(ctx, seconds)
}

// RecordBit records one decoded data bit.
func (m *Metrics) RecordBit(ctx context.Context, bit uint8) {
	m.BitsDecoded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("bit", strconv.Itoa(int(bit)))),
	)
}

// RecordTransition records a tone label change into class.
func (m *Metrics) RecordTransition(ctx context.Context, class string) {
	m.ToneTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("class", class)),
	)
}

// RecordChunk records one received chunk of n bytes.
func (m *Metrics) RecordChunk(ctx context.Context, n int) {
	m.ChunksReceived.Add(ctx, 1)
	m.BytesReceived.Add(ctx, int64(n))
}
