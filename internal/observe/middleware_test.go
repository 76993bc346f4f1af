package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMiddleware_SetsCorrelationID(t *testing.T) {
	newTestTracerProvider(t)
	m, _ := newTestMetrics(t)

	var captured string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if len(captured) != 32 {
		t.Fatalf("correlation ID = %q, want 32 hex chars", captured)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != captured {
		t.Errorf("X-Correlation-ID = %q, want %q", got, captured)
	}
}

// TestMiddleware_SpanAndDuration verifies the span name, the status code
// attribute and the duration histogram attributes.
func TestMiddleware_SpanAndDuration(t *testing.T) {
	exp := newTestTracerProvider(t)
	m, reader := newTestMetrics(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP GET /readyz" {
		t.Fatalf("spans = %+v, want one HTTP GET /readyz span", spans)
	}
	var found bool
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" && a.Value.AsInt64() == 503 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code=503")
	}

	rm := collect(t, reader)
	if got := histogramCount(t, rm, "weatherbridge.http.request.duration"); got != 1 {
		t.Fatalf("duration samples = %d, want 1", got)
	}
	hist := findMetric(rm, "weatherbridge.http.request.duration").Data.(metricdata.Histogram[float64])
	attrs := hist.DataPoints[0].Attributes
	if v, _ := attrs.Value(attribute.Key("method")); v.AsString() != http.MethodGet {
		t.Errorf("method attribute = %q, want GET", v.AsString())
	}
	if v, _ := attrs.Value(attribute.Key("path")); v.AsString() != "/readyz" {
		t.Errorf("path attribute = %q, want /readyz", v.AsString())
	}
}

func TestMiddleware_PropagatesW3CTraceContext(t *testing.T) {
	newTestTracerProvider(t)
	m, _ := newTestMetrics(t)

	var captured string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/exchanges", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	const want = "4bf92f3577b34da6a3ce929d0e0e4736"
	if captured != want {
		t.Errorf("correlation ID = %q, want %q", captured, want)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != want {
		t.Errorf("X-Correlation-ID = %q, want %q", got, want)
	}
}
