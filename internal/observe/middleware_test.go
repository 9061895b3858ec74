package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// serveInstrumented runs one request through the middleware and returns the
// recorder plus the correlation id the handler observed.
func serveInstrumented(t *testing.T, m *Metrics, target string, traceparent string, status int) (*httptest.ResponseRecorder, string) {
	t.Helper()

	var seen string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
		w.WriteHeader(status)
	}))

	req := httptest.NewRequest("GET", target, nil)
	if traceparent != "" {
		req.Header.Set("traceparent", traceparent)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareAssignsCorrelationID(t *testing.T) {
	setupTracing(t)
	m, _ := newTestMetrics(t)

	rec, seen := serveInstrumented(t, m, "/healthz", "", http.StatusOK)

	if seen == "" {
		t.Fatal("handler saw no correlation id")
	}
	if len(seen) != 32 {
		t.Errorf("correlation id length = %d, want 32", len(seen))
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
	}
}

func TestMiddlewareContinuesIncomingTrace(t *testing.T) {
	setupTracing(t)
	m, _ := newTestMetrics(t)

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	rec, seen := serveInstrumented(t, m, "/readyz", parent, http.StatusOK)

	if seen != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("correlation id = %q, want trace id from traceparent", seen)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
	}
}

func TestMiddlewareSpansRequest(t *testing.T) {
	exp := setupTracing(t)
	m, _ := newTestMetrics(t)

	_, _ = serveInstrumented(t, m, "/metrics", "", http.StatusOK)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /metrics" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP GET /metrics")
	}
}

func TestMiddlewareRecordsStatusOnSpan(t *testing.T) {
	exp := setupTracing(t)
	m, _ := newTestMetrics(t)

	rec, _ := serveInstrumented(t, m, "/nope", "", http.StatusNotFound)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("response status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	var status int64 = -1
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != 404 {
		t.Errorf("span http.response.status_code = %d, want 404", status)
	}
}

func TestMiddlewareRecordsDuration(t *testing.T) {
	setupTracing(t)
	m, reader := newTestMetrics(t)

	_, _ = serveInstrumented(t, m, "/healthz", "", http.StatusOK)

	rm := collect(t, reader)
	met := findMetric(rm, "sussurro.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	var path string
	for _, kv := range dp.Attributes.ToSlice() {
		if string(kv.Key) == "path" {
			path = kv.Value.AsString()
		}
	}
	if path != "/healthz" {
		t.Errorf("path attribute = %q, want %q", path, "/healthz")
	}
}
