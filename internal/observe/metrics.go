// Package observe provides application-wide observability primitives for
// the chatbot: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all chatbot metrics.
const meterName = "github.com/MrWong99/glyphoxa-chat"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks one full inference engine call, warm or hot path.
	LLMDuration metric.Float64Histogram

	// ToolExecutionDuration tracks one tool dispatcher invocation.
	ToolExecutionDuration metric.Float64Histogram

	// SendDuration tracks one outbound message send.
	SendDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// SessionCacheResults counts warm-session load attempts. Use with:
	//   attribute.String("result", "hit"|"miss"|"fallback")
	SessionCacheResults metric.Int64Counter

	// TokensGenerated counts output tokens produced across all inferences.
	TokensGenerated metric.Int64Counter

	// InvalidTransitions counts dropped (state, action) pairs. Use with:
	//   attribute.String("state", ...), attribute.String("action", ...)
	InvalidTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveUsers tracks the number of users with a live kernel entity.
	ActiveUsers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time for inbound
	// requests served through [Middleware]. Use with attributes:
	// attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds), wide
// enough to span a fast tool HTTP call and a slow local decode.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LLMDuration, err = m.Float64Histogram("chatbot.llm.duration",
		metric.WithDescription("Latency of one inference engine call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("chatbot.tool_execution.duration",
		metric.WithDescription("Latency of one tool dispatcher invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SendDuration, err = m.Float64Histogram("chatbot.send.duration",
		metric.WithDescription("Latency of one outbound message send."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("chatbot.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.SessionCacheResults, err = m.Int64Counter("chatbot.session_cache.results",
		metric.WithDescription("Warm-session load attempts by result."),
	); err != nil {
		return nil, err
	}
	if met.TokensGenerated, err = m.Int64Counter("chatbot.tokens.generated",
		metric.WithDescription("Total output tokens generated across all inferences."),
	); err != nil {
		return nil, err
	}
	if met.InvalidTransitions, err = m.Int64Counter("chatbot.kernel.invalid_transitions",
		metric.WithDescription("Total (state, action) pairs dropped as invalid."),
	); err != nil {
		return nil, err
	}
	if met.ActiveUsers, err = m.Int64UpDownCounter("chatbot.active_users",
		metric.WithDescription("Number of users with a live kernel entity."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("chatbot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set. Nil-safe so callers need not guard on metrics being wired.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	if m == nil {
		return
	}
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordSessionCacheResult records one warm-session load attempt outcome.
func (m *Metrics) RecordSessionCacheResult(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.SessionCacheResults.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordInvalidTransition records one dropped (state, action) pair.
func (m *Metrics) RecordInvalidTransition(ctx context.Context, state, action string) {
	if m == nil {
		return
	}
	m.InvalidTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("state", state),
			attribute.String("action", action),
		),
	)
}
