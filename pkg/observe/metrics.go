// Package observe provides the OpenTelemetry metric instruments used across
// lingomorph and the Prometheus bridge that exposes them on /metrics.
//
// Tests should use [NewMetrics] with their own [metric.MeterProvider] to
// avoid cross-test pollution; [DefaultMetrics] uses the global provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/japaniel/lingomorph"

// Metrics holds all metric instruments for the application.
type Metrics struct {
	// CompletionDuration tracks text-completion latency. Attributes: provider, status.
	CompletionDuration metric.Float64Histogram

	// CompletionErrors counts failed completions. Attribute: provider.
	CompletionErrors metric.Int64Counter

	// SyncRecords counts vocabulary records written by syncs.
	SyncRecords metric.Int64Counter

	// BatchFailures counts AI normalization batches that were abandoned.
	BatchFailures metric.Int64Counter

	// Adaptations counts adaptation runs. Attribute: status.
	Adaptations metric.Int64Counter

	// HTTPRequestDuration tracks API request time. Attributes: method, route, code.
	HTTPRequestDuration metric.Float64Histogram
}

// Completions take seconds, not milliseconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CompletionDuration, err = m.Float64Histogram("lingomorph.completion.duration",
		metric.WithDescription("Latency of text completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompletionErrors, err = m.Int64Counter("lingomorph.completion.errors",
		metric.WithDescription("Total failed text completions by provider."),
	); err != nil {
		return nil, err
	}
	if met.SyncRecords, err = m.Int64Counter("lingomorph.sync.records",
		metric.WithDescription("Total vocabulary records written by syncs."),
	); err != nil {
		return nil, err
	}
	if met.BatchFailures, err = m.Int64Counter("lingomorph.normalize.batch_failures",
		metric.WithDescription("Total AI normalization batches that failed after retries."),
	); err != nil {
		return nil, err
	}
	if met.Adaptations, err = m.Int64Counter("lingomorph.adapt.runs",
		metric.WithDescription("Total adaptation runs by status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("lingomorph.http.request.duration",
		metric.WithDescription("Duration of API requests."),
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

// DefaultMetrics returns the package-level instance built on
// [otel.GetMeterProvider]. Call it after [InitProvider] so the instruments
// reach the Prometheus exporter.
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

// RecordCompletion records one completion outcome.
func (m *Metrics) RecordCompletion(ctx context.Context, provider string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.CompletionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
	}
	m.CompletionDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

// RecordAdaptation counts one adaptation run.
func (m *Metrics) RecordAdaptation(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Adaptations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
