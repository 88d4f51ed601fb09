package observe

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup returns metrics on a manual reader and installs an in-memory
// tracer.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)
	return m, reader, useTestTracer(t)
}

// apiMux mirrors the shape of the control API: method patterns on a mux,
// wrapped by the middleware.
func apiMux(m *Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/report", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /api/session", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {})
	return Middleware(m)(mux)
}

// routes returns the recorded sample count per route attribute.
func routes(t *testing.T, reader *sdkmetric.ManualReader) map[string]uint64 {
	t.Helper()
	met := findMetric(collect(t, reader), "buzzer.http.request.duration")
	if met == nil {
		return nil
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration is %T, want a histogram", met.Data)
	}
	out := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		out[route.AsString()] += dp.Count
	}
	return out
}

func TestMiddleware_RecordsPerRoute(t *testing.T) {
	m, reader, _ := testSetup(t)
	h := apiMux(m)

	for _, target := range []string{"/api/report", "/api/report?format=text", "/nope", "/also/nope"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	got := routes(t, reader)
	if got["GET /api/report"] != 2 {
		t.Errorf("report samples = %d, want 2 (all: %v)", got["GET /api/report"], got)
	}
	if got[unmatched] != 2 {
		t.Errorf("unmatched samples = %d, want 2 (all: %v)", got[unmatched], got)
	}
}

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	m, _, exp := testSetup(t)
	rec := httptest.NewRecorder()
	apiMux(m).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/session", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP DELETE /api/session" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	attrs := make(map[string]attribute.Value)
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value
	}
	if attrs["http.response.status_code"].AsInt64() != 404 {
		t.Errorf("status attribute = %v", attrs["http.response.status_code"])
	}
	if attrs["http.route"].AsString() != "DELETE /api/session" {
		t.Errorf("route attribute = %v", attrs["http.route"])
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	m, _, _ := testSetup(t)

	tests := []struct {
		name        string
		traceparent string
	}{
		{name: "new trace"},
		{name: "continued trace", traceparent: "00-" + traceID + "-00f067aa0ba902b7-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if len(seen) != 32 {
				t.Fatalf("correlation id = %q", seen)
			}
			if tt.traceparent != "" && seen != traceID {
				t.Errorf("correlation id = %q, want %q", seen, traceID)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != seen {
				t.Errorf("header = %q, want %q", got, seen)
			}
		})
	}
}

// hijackable is a recorder whose connection can be taken over.
type hijackable struct {
	*httptest.ResponseRecorder
	conn net.Conn
}

func (h hijackable) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, bufio.NewReadWriter(bufio.NewReader(h.conn), bufio.NewWriter(h.conn)), nil
}

func TestMiddleware_LiveFeedNotTimed(t *testing.T) {
	m, reader, exp := testSetup(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/live", func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	})
	h := Middleware(m)(mux)

	server, client := net.Pipe()
	defer client.Close()
	h.ServeHTTP(hijackable{httptest.NewRecorder(), server}, httptest.NewRequest(http.MethodGet, "/api/live", nil))

	if got := routes(t, reader); got["GET /api/live"] != 0 {
		t.Errorf("live feed recorded in latency histogram: %v", got)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP GET /api/live" {
		t.Fatalf("spans = %v", spans)
	}
	for _, kv := range spans[0].Attributes {
		if kv.Key == "http.response.status_code" && kv.Value.AsInt64() != http.StatusSwitchingProtocols {
			t.Errorf("status = %v, want 101", kv.Value)
		}
	}
}

func TestStatusRecorder_NotHijackable(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: inner, statusCode: http.StatusOK}
	if rec.Unwrap() != inner {
		t.Error("Unwrap should return the wrapped writer")
	}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("expected an error hijacking a non-hijackable writer")
	}
	if rec.hijacked {
		t.Error("failed hijack marked the recorder hijacked")
	}
}

func TestQuietRoutes(t *testing.T) {
	m, reader, _ := testSetup(t)
	apiMux(m).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !quietRoutes["GET /healthz"] {
		t.Fatal("healthz should be quiet")
	}
	// Quiet routes are still timed.
	if got := routes(t, reader); got["GET /healthz"] != 1 {
		t.Errorf("healthz samples = %v", got)
	}
}
