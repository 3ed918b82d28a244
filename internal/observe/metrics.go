// Package observe provides application-wide observability primitives: OpenTelemetry
// metrics, distributed tracing, structured logging, and HTTP middleware that ties
// them together.
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/semem-go/semem"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// LLMDuration tracks LLM inference latency (generate, extractConcepts,
	// generateHypothesis).
	LLMDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding provider call latency.
	EmbeddingDuration metric.Float64Histogram

	// RetrievalDuration tracks hybrid retriever end-to-end latency.
	RetrievalDuration metric.Float64Histogram

	// TriplestoreDuration tracks SPARQL query/update round-trip latency.
	TriplestoreDuration metric.Float64Histogram

	// VerbDuration tracks verb dispatcher end-to-end latency per verb.
	VerbDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// VerbDispatches counts verb dispatch invocations. Use with attributes:
	//   attribute.String("verb", ...), attribute.String("status", ...)
	VerbDispatches metric.Int64Counter

	// DecayPasses counts completed interaction-store decay passes.
	DecayPasses metric.Int64Counter

	// InteractionsForgotten counts interactions evicted by a decay pass.
	InteractionsForgotten metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live navigation sessions held by the
	// session registry.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned for
// LLM and retrieval latencies.
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
	if met.LLMDuration, err = m.Float64Histogram("semem.llm.duration",
		metric.WithDescription("Latency of LLM inference calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("semem.embedding.duration",
		metric.WithDescription("Latency of embedding provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("semem.retrieval.duration",
		metric.WithDescription("End-to-end latency of hybrid retrieval."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TriplestoreDuration, err = m.Float64Histogram("semem.triplestore.duration",
		metric.WithDescription("Latency of SPARQL query/update round-trips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VerbDuration, err = m.Float64Histogram("semem.verb.duration",
		metric.WithDescription("End-to-end latency of verb dispatch, by verb."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("semem.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.VerbDispatches, err = m.Int64Counter("semem.verb.dispatches",
		metric.WithDescription("Total verb dispatch invocations by verb and status."),
	); err != nil {
		return nil, err
	}
	if met.DecayPasses, err = m.Int64Counter("semem.interactions.decay_passes",
		metric.WithDescription("Total completed interaction-store decay passes."),
	); err != nil {
		return nil, err
	}
	if met.InteractionsForgotten, err = m.Int64Counter("semem.interactions.forgotten",
		metric.WithDescription("Total interactions evicted by a decay pass."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("semem.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("semem.active_sessions",
		metric.WithDescription("Number of live navigation sessions held by the session registry."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("semem.http.request.duration",
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

// RecordVerbDispatch is a convenience method that records a verb dispatch
// counter increment with the standard attribute set.
func (m *Metrics) RecordVerbDispatch(ctx context.Context, verb, status string) {
	m.VerbDispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verb", verb),
			attribute.String("status", status),
		),
	)
}

// RecordDecayPass is a convenience method that records a completed decay pass
// and the number of interactions it forgot.
func (m *Metrics) RecordDecayPass(ctx context.Context, forgotten int64) {
	m.DecayPasses.Add(ctx, 1)
	if forgotten > 0 {
		m.InteractionsForgotten.Add(ctx, forgotten)
	}
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
