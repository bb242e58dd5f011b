// Package observe provides application-wide observability primitives for
// Quorum: OpenTelemetry metrics, distributed tracing, structured logging,
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Quorum metrics.
const meterName = "github.com/daybreakhan/quorum"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks per-call LLM latency. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("provider", ...)
	StageDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end pipeline latency per invocation.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("stage", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts exhausted provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("stage", ...)
	ProviderErrors metric.Int64Counter

	// InputTokens and OutputTokens count tokens by provider.
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter

	// CostUSD accumulates imputed call cost by provider.
	CostUSD metric.Float64Counter

	// PipelineRuns counts invocations by gate decision. Use with attribute:
	//   attribute.String("decision", ...)
	PipelineRuns metric.Int64Counter

	// BudgetGuardTrips counts invocations cut short by the budget ceiling.
	BudgetGuardTrips metric.Int64Counter

	// --- Gauges ---

	// ActivePipelines tracks the number of in-flight pipeline invocations.
	ActivePipelines metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM round trips: sub-second for cache hits and gates, tens of seconds for
// long synthesis calls.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("quorum.stage.duration",
		metric.WithDescription("Latency of one LLM call, all attempts summed."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("quorum.pipeline.duration",
		metric.WithDescription("End-to-end pipeline latency per invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("quorum.provider.requests",
		metric.WithDescription("Total provider API calls by provider, stage, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("quorum.provider.errors",
		metric.WithDescription("Total exhausted provider calls by provider and stage."),
	); err != nil {
		return nil, err
	}
	if met.InputTokens, err = m.Int64Counter("quorum.tokens.input",
		metric.WithDescription("Total prompt tokens by provider."),
	); err != nil {
		return nil, err
	}
	if met.OutputTokens, err = m.Int64Counter("quorum.tokens.output",
		metric.WithDescription("Total completion tokens by provider."),
	); err != nil {
		return nil, err
	}
	if met.CostUSD, err = m.Float64Counter("quorum.cost.usd",
		metric.WithDescription("Accumulated call cost in USD by provider."),
	); err != nil {
		return nil, err
	}
	if met.PipelineRuns, err = m.Int64Counter("quorum.pipeline.runs",
		metric.WithDescription("Total pipeline invocations by gate decision."),
	); err != nil {
		return nil, err
	}
	if met.BudgetGuardTrips, err = m.Int64Counter("quorum.budget_guard.trips",
		metric.WithDescription("Invocations cut short by the cost ceiling."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActivePipelines, err = m.Int64UpDownCounter("quorum.active_pipelines",
		metric.WithDescription("Number of in-flight pipeline invocations."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("quorum.http.request.duration",
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

// RecordCall records one finished provider call: request counter, latency
// histogram, token and cost counters, and the error counter on failure. It
// satisfies the orchestrator's telemetry sink interface.
func (m *Metrics) RecordCall(ctx context.Context, stage, provider, model, status string, latency time.Duration, inputTokens, outputTokens int, costUSD float64) {
	providerAttr := attribute.String("provider", provider)
	stageAttr := attribute.String("stage", stage)

	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		providerAttr, stageAttr, attribute.String("status", status),
	))
	m.StageDuration.Record(ctx, latency.Seconds(), metric.WithAttributes(providerAttr, stageAttr))

	if status != "ok" {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(providerAttr, stageAttr))
		return
	}
	m.InputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(providerAttr))
	m.OutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(providerAttr))
	m.CostUSD.Add(ctx, costUSD, metric.WithAttributes(providerAttr))
}

// RecordPipeline records one finished pipeline invocation.
func (m *Metrics) RecordPipeline(ctx context.Context, decision string, latency time.Duration, budgetTripped bool) {
	m.PipelineRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
	m.PipelineDuration.Record(ctx, latency.Seconds())
	if budgetTripped {
		m.BudgetGuardTrips.Add(ctx, 1)
	}
}
