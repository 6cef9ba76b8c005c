// Package observability holds the metric instruments, tracer and
// Server-Timing helpers shared by the generation pipeline.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// MeterName is the instrumentation scope for all instruments.
	MeterName = "letssora/generation"
	// TracerName is the instrumentation scope for all spans.
	TracerName = "letssora/generation"
)

// Metrics holds the generation metric instruments.
type Metrics struct {
	submitCount     metric.Int64Counter
	pollCount       metric.Int64Counter
	pollErrors      metric.Int64Counter
	duration        metric.Float64Histogram
	persistWarnings metric.Int64Counter
}

// NewMetrics creates instruments on mp. A nil provider uses the global one.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	var err error
	m.submitCount, err = meter.Int64Counter(
		"generation.submit.count",
		metric.WithDescription("Generation submissions by mode and outcome"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		m.submitCount, _ = meter.Int64Counter("generation.submit.count")
	}

	m.pollCount, err = meter.Int64Counter(
		"generation.poll.count",
		metric.WithDescription("Status polls issued against video jobs"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		m.pollCount, _ = meter.Int64Counter("generation.poll.count")
	}

	m.pollErrors, err = meter.Int64Counter(
		"generation.poll.errors",
		metric.WithDescription("Status polls that failed in transport"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.pollErrors, _ = meter.Int64Counter("generation.poll.errors")
	}

	m.duration, err = meter.Float64Histogram(
		"generation.duration",
		metric.WithDescription("Time from submission to terminal state in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.duration, _ = meter.Float64Histogram("generation.duration")
	}

	m.persistWarnings, err = meter.Int64Counter(
		"generation.persist.warnings",
		metric.WithDescription("Completed generations whose history or media write failed"),
		metric.WithUnit("{warning}"),
	)
	if err != nil {
		m.persistWarnings, _ = meter.Int64Counter("generation.persist.warnings")
	}

	return m
}

// RecordSubmit counts a submission with its outcome (completed, polling, failed, invalid).
func (m *Metrics) RecordSubmit(ctx context.Context, mode, outcome string) {
	if m == nil {
		return
	}
	m.submitCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMode, mode),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordPoll counts one poll attempt; failed marks a transport error.
func (m *Metrics) RecordPoll(ctx context.Context, failed bool) {
	if m == nil {
		return
	}
	m.pollCount.Add(ctx, 1)
	if failed {
		m.pollErrors.Add(ctx, 1)
	}
}

// RecordDuration records how long a submission took to reach a terminal state.
func (m *Metrics) RecordDuration(ctx context.Context, mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String(AttrMode, mode),
		attribute.String(AttrOutcome, outcome),
	))
}

func (m *Metrics) RecordPersistWarning(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.persistWarnings.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStage, stage)))
}
