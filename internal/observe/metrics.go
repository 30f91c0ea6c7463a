// Package observe provides application-wide observability primitives for
// tutorcore: OpenTelemetry metrics, distributed tracing, structured logging,
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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tutorcore metrics.
const meterName = "github.com/lumenforge/tutorcore"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end chat turn latency, from user message
	// received to response persisted.
	TurnDuration metric.Float64Histogram

	// RetrievalDuration tracks hybrid retrieval latency (dense + sparse +
	// fuse + rerank).
	RetrievalDuration metric.Float64Histogram

	// IngestStageDuration tracks the latency of a single ingest pipeline
	// stage. Use with attribute.String("stage", ...).
	IngestStageDuration metric.Float64Histogram

	// BrokerClaimLatency tracks the time a queued task spends waiting
	// before a worker claims it.
	BrokerClaimLatency metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// RetrievalQueries counts retrieval invocations by the degradation
	// rung that ultimately served the result. Use with attribute:
	//   attribute.String("rung", ...) // full_hybrid|dense_rerank|dense_only|empty
	RetrievalQueries metric.Int64Counter

	// IntentClassifications counts intent router decisions. Use with
	// attribute.String("label", ...).
	IntentClassifications metric.Int64Counter

	// BrokerRedeliveries counts task redeliveries caused by a claimed
	// task's visibility timeout expiring before an ack.
	BrokerRedeliveries metric.Int64Counter

	// GarbageOutputDetections counts LLM responses rejected by the
	// garbage-output guard. Use with attribute.String("heuristic", ...).
	GarbageOutputDetections metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of currently active teaching
	// sessions (one active session per user, per the session manager
	// invariant).
	ActiveSessions metric.Int64UpDownCounter

	// QueueDepth tracks the number of pending tasks per queue priority.
	// Use with attribute.String("priority", ...).
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for the voice-teaching pipeline's budgets, from 10 ms up to 10 s.
// IngestStageDuration does not use them and keeps the SDK's default
// boundaries.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("tutorcore.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("tutorcore.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("tutorcore.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("tutorcore.turn.duration",
		metric.WithDescription("End-to-end chat turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("tutorcore.retrieval.duration",
		metric.WithDescription("Latency of hybrid retrieval (dense + sparse + fuse + rerank)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IngestStageDuration, err = m.Float64Histogram("tutorcore.ingest.stage_duration",
		metric.WithDescription("Latency of a single ingest pipeline stage."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.BrokerClaimLatency, err = m.Float64Histogram("tutorcore.broker.claim_latency",
		metric.WithDescription("Time a queued task waits before a worker claims it."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("tutorcore.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.RetrievalQueries, err = m.Int64Counter("tutorcore.retrieval.queries",
		metric.WithDescription("Total retrieval invocations by degradation rung."),
	); err != nil {
		return nil, err
	}
	if met.IntentClassifications, err = m.Int64Counter("tutorcore.intent.classifications",
		metric.WithDescription("Total intent router decisions by label."),
	); err != nil {
		return nil, err
	}
	if met.BrokerRedeliveries, err = m.Int64Counter("tutorcore.broker.redeliveries",
		metric.WithDescription("Total task redeliveries caused by visibility timeout expiry."),
	); err != nil {
		return nil, err
	}
	if met.GarbageOutputDetections, err = m.Int64Counter("tutorcore.guard.garbage_output",
		metric.WithDescription("Total LLM responses rejected by the garbage-output guard, by heuristic."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("tutorcore.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("tutorcore.active_sessions",
		metric.WithDescription("Number of currently active teaching sessions."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("tutorcore.queue.depth",
		metric.WithDescription("Number of pending tasks per queue priority."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tutorcore.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordRetrievalQuery is a convenience method that records a retrieval
// invocation counter increment for the degradation rung that served it.
func (m *Metrics) RecordRetrievalQuery(ctx context.Context, rung string) {
	m.RetrievalQueries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("rung", rung)),
	)
}

// RecordIntentClassification is a convenience method that records an intent
// router decision counter increment.
func (m *Metrics) RecordIntentClassification(ctx context.Context, label string) {
	m.IntentClassifications.Add(ctx, 1,
		metric.WithAttributes(attribute.String("label", label)),
	)
}

// RecordGarbageOutputDetection is a convenience method that records a
// garbage-output guard rejection counter increment.
func (m *Metrics) RecordGarbageOutputDetection(ctx context.Context, heuristic string) {
	m.GarbageOutputDetections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("heuristic", heuristic)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
