// Package observe provides the observability primitives of the assistant:
// OpenTelemetry metrics, distributed tracing, trace-aware structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/maxassist"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Listening ---

	// WakeDetections counts wake-phrase hits. Attribute "outcome" is
	// "fired" or "debounced".
	WakeDetections metric.Int64Counter

	// CommandsAccepted counts commands emitted by the listening machine.
	// Attribute "forced" is "true" for low-confidence force-accepts.
	CommandsAccepted metric.Int64Counter

	// CaptureTimeouts counts command captures abandoned on timeout.
	CaptureTimeouts metric.Int64Counter

	// RecognitionRestarts counts recognition stream restarts. Attribute
	// "reason" is "ended" or "error".
	RecognitionRestarts metric.Int64Counter

	// --- Resolution ---

	// IntentsResolved counts answered utterances. Attributes "intent" and
	// "strategy" (template, compute, lookup, generated, degraded, command).
	IntentsResolved metric.Int64Counter

	// Escalations counts generative escalations. Attribute "outcome" is
	// "generated" or "degraded".
	Escalations metric.Int64Counter

	// GenerationDuration tracks model generation latency.
	GenerationDuration metric.Float64Histogram

	// LookupDuration tracks weather and directions lookups. Attributes
	// "kind" and "status".
	LookupDuration metric.Float64Histogram

	// SpeechDuration tracks speech synthesis of one reply.
	SpeechDuration metric.Float64Histogram

	// --- Providers ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes
	// "name" and "to".
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// generation, lookup and synthesis latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Listening counters.
	if met.WakeDetections, err = m.Int64Counter("maxassist.wake.detections",
		metric.WithDescription("Wake-phrase detections by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CommandsAccepted, err = m.Int64Counter("maxassist.commands.accepted",
		metric.WithDescription("Commands accepted by the listening machine."),
	); err != nil {
		return nil, err
	}
	if met.CaptureTimeouts, err = m.Int64Counter("maxassist.capture.timeouts",
		metric.WithDescription("Command captures abandoned on timeout."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionRestarts, err = m.Int64Counter("maxassist.recognition.restarts",
		metric.WithDescription("Recognition stream restarts by reason."),
	); err != nil {
		return nil, err
	}

	// Resolution.
	if met.IntentsResolved, err = m.Int64Counter("maxassist.intents.resolved",
		metric.WithDescription("Resolved utterances by intent and strategy."),
	); err != nil {
		return nil, err
	}
	if met.Escalations, err = m.Int64Counter("maxassist.escalations",
		metric.WithDescription("Generative escalations by outcome."),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("maxassist.generation.duration",
		metric.WithDescription("Latency of model generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LookupDuration, err = m.Float64Histogram("maxassist.lookup.duration",
		metric.WithDescription("Latency of weather and directions lookups."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("maxassist.speech.duration",
		metric.WithDescription("Latency of speech synthesis for one reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Providers.
	if met.ProviderRequests, err = m.Int64Counter("maxassist.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("maxassist.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("maxassist.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("maxassist.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("maxassist.http.request.duration",
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

// RecordWake records a wake-phrase detection.
func (m *Metrics) RecordWake(ctx context.Context, debounced bool) {
	outcome := "fired"
	if debounced {
		outcome = "debounced"
	}
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordCommand records an accepted command.
func (m *Metrics) RecordCommand(ctx context.Context, forced bool) {
	m.CommandsAccepted.Add(ctx, 1,
		metric.WithAttributes(Attr("forced", strconv.FormatBool(forced))),
	)
}

// RecordRestart records a recognition stream restart.
func (m *Metrics) RecordRestart(ctx context.Context, reason string) {
	m.RecognitionRestarts.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordIntent records one resolved utterance.
func (m *Metrics) RecordIntent(ctx context.Context, intent, strategy string) {
	m.IntentsResolved.Add(ctx, 1,
		metric.WithAttributes(
			Attr("intent", intent),
			Attr("strategy", strategy),
		),
	)
}

// RecordEscalation records a generative escalation and how it ended.
func (m *Metrics) RecordEscalation(ctx context.Context, outcome string) {
	m.Escalations.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordLookup records the latency of one lookup.
func (m *Metrics) RecordLookup(ctx context.Context, kind, status string, d time.Duration) {
	m.LookupDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			Attr("kind", kind),
			Attr("status", status),
		),
	)
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

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			Attr("name", name),
			Attr("to", to),
		),
	)
}
