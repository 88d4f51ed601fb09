package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useTestTracer installs an in-memory tracer provider globally for the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestSessionID(t *testing.T) {
	if got := SessionID(context.Background()); got != "" {
		t.Errorf("background: %q", got)
	}
	ctx := WithSession(context.Background(), "session-1")
	if got := SessionID(ctx); got != "session-1" {
		t.Errorf("tagged: %q", got)
	}
}

func TestStartSpan_TagsSession(t *testing.T) {
	exp := useTestTracer(t)

	ctx := WithSession(context.Background(), "session-42")
	ctx, span := StartSpan(ctx, "session.run")
	if len(CorrelationID(ctx)) != 32 {
		t.Errorf("correlation id = %q", CorrelationID(ctx))
	}
	span.End()

	_, plain := StartSpan(context.Background(), "pattern.analyze")
	plain.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	var found bool
	for _, kv := range spans[0].Attributes {
		if kv.Key == AttrSessionID && kv.Value.AsString() == "session-42" {
			found = true
		}
	}
	if !found {
		t.Errorf("session.run attributes = %v", spans[0].Attributes)
	}
	for _, kv := range spans[1].Attributes {
		if kv.Key == AttrSessionID {
			t.Errorf("untagged span carries %v", kv)
		}
	}
}

func TestCorrelationID_EmptyWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q", got)
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)

	tests := []struct {
		name    string
		session string
		span    bool
		want    []string
		absent  []string
	}{
		{name: "bare", absent: []string{"session_id", "trace_id"}},
		{name: "session only", session: "session-7", want: []string{"session_id=session-7"}, absent: []string{"trace_id"}},
		{name: "span only", span: true, want: []string{"trace_id=", "span_id="}, absent: []string{"session_id"}},
		{name: "both", session: "session-8", span: true, want: []string{"session_id=session-8", "trace_id="}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx := context.Background()
			if tt.session != "" {
				ctx = WithSession(ctx, tt.session)
			}
			if tt.span {
				var span trace.Span
				ctx, span = Tracer().Start(ctx, "test")
				defer span.End()
			}
			Logger(ctx).Info("pass discarded")

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("missing %q in %s", w, out)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(out, a) {
					t.Errorf("unexpected %q in %s", a, out)
				}
			}
		})
	}
}
