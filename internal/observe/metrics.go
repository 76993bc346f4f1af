// Package observe provides the observability primitives of weatherbridge:
// OpenTelemetry metrics and tracing, trace-aware structured logging, and HTTP
// middleware for the ops server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/weatherbridge"

// Status attribute values shared by the counters.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks one inference turn. Attributes: provider.
	LLMDuration metric.Float64Histogram

	// ToolDuration tracks one MCP tool invocation. Attributes: tool.
	ToolDuration metric.Float64Histogram

	// QueryDuration tracks one full query (one or two turns plus at most one
	// invocation). Attributes: outcome.
	QueryDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts inference calls. Attributes: provider, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts inference failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// IntentDetections counts extractor outcomes. Attributes: strategy
	// ("structured", "heuristic" or "none").
	IntentDetections metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks ops server requests. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Local models on CPU
// regularly take tens of seconds per turn.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LLMDuration, err = m.Float64Histogram("weatherbridge.llm.duration",
		metric.WithDescription("Latency of one LLM inference turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("weatherbridge.tool.duration",
		metric.WithDescription("Latency of one MCP tool invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueryDuration, err = m.Float64Histogram("weatherbridge.query.duration",
		metric.WithDescription("End-to-end latency of a user query."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("weatherbridge.provider.requests",
		metric.WithDescription("Total LLM provider requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("weatherbridge.provider.errors",
		metric.WithDescription("Total LLM provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("weatherbridge.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.IntentDetections, err = m.Int64Counter("weatherbridge.intent.detections",
		metric.WithDescription("Tool intents detected in model output by strategy."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("weatherbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// status maps an error to a status attribute value.
func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// RecordInference records one inference turn: its latency, the request
// counter, and the error counter when err is non-nil.
func (m *Metrics) RecordInference(ctx context.Context, provider string, d time.Duration, err error) {
	m.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("provider", provider)))
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("status", status(err)),
	))
	if err != nil {
		m.RecordProviderError(ctx, provider, "completion")
	}
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
	))
}

// RecordToolCall records one tool invocation and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, d time.Duration, err error) {
	m.ToolDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("tool", tool)))
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		Attr("tool", tool),
		Attr("status", status(err)),
	))
}

// RecordIntent records the strategy that produced a tool call, or "none".
func (m *Metrics) RecordIntent(ctx context.Context, strategy string) {
	m.IntentDetections.Add(ctx, 1, metric.WithAttributes(Attr("strategy", strategy)))
}

// RecordQuery records the end-to-end latency of a query. outcome is one of
// "answered", "tool_error" or "failed".
func (m *Metrics) RecordQuery(ctx context.Context, outcome string, d time.Duration) {
	m.QueryDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("outcome", outcome)))
}
