// Package metrics records pipeline counters through OpenTelemetry. The
// default Recorder is a no-op; hosts that configure an OTLP endpoint get
// a periodic exporter.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName scopes every instrument.
const MeterName = "github.com/roach88/beacon"

// Instrument names.
const (
	MetricEventsAdmitted = "beacon.events.admitted"
	MetricEventsBlocked  = "beacon.events.blocked"
	MetricEventsSent     = "beacon.events.sent"
	MetricEventsDropped  = "beacon.events.dropped"
	MetricEventsRetried  = "beacon.events.retried"
	MetricFlushDuration  = "beacon.flush.duration"
	MetricSessions       = "beacon.sessions.started"
)

// Recorder wraps the pipeline's instruments.
type Recorder struct {
	admitted metric.Int64Counter
	blocked  metric.Int64Counter
	sent     metric.Int64Counter
	dropped  metric.Int64Counter
	retried  metric.Int64Counter
	flush    metric.Float64Histogram
	sessions metric.Int64Counter
}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(MeterName)
	r := &Recorder{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&r.admitted, MetricEventsAdmitted, "Events written to the local buffer"},
		{&r.blocked, MetricEventsBlocked, "Events refused before reaching the buffer"},
		{&r.sent, MetricEventsSent, "Events accepted by the collector"},
		{&r.dropped, MetricEventsDropped, "Claimed events deleted after a definitive failure"},
		{&r.retried, MetricEventsRetried, "Claimed events returned to the buffer"},
		{&r.sessions, MetricSessions, "Sessions started"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1")); err != nil {
			return nil, fmt.Errorf("failed to create metric %s: %w", c.name, err)
		}
	}

	if r.flush, err = meter.Float64Histogram(MetricFlushDuration,
		metric.WithDescription("Duration of one flush including the upload"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create metric %s: %w", MetricFlushDuration, err)
	}
	return r, nil
}

// Noop returns a Recorder that discards everything.
func Noop() *Recorder {
	r, err := New(noop.NewMeterProvider())
	if err != nil {
		panic("metrics: noop provider failed: " + err.Error())
	}
	return r
}

// Admitted counts one buffered event.
func (r *Recorder) Admitted(ctx context.Context, category string) {
	r.admitted.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// Blocked counts one refused event.
func (r *Recorder) Blocked(ctx context.Context, category, reason string) {
	r.blocked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("reason", reason),
	))
}

// Sent counts events the collector accepted.
func (r *Recorder) Sent(ctx context.Context, n int) {
	r.sent.Add(ctx, int64(n))
}

// Dropped counts claimed events deleted after outcome.
func (r *Recorder) Dropped(ctx context.Context, n int, outcome string) {
	r.dropped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Retried counts claimed events returned to the buffer.
func (r *Recorder) Retried(ctx context.Context, n int) {
	r.retried.Add(ctx, int64(n))
}

// Flushed records one flush duration.
func (r *Recorder) Flushed(ctx context.Context, d time.Duration, outcome string) {
	r.flush.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SessionStarted counts one session start.
func (r *Recorder) SessionStarted(ctx context.Context) {
	r.sessions.Add(ctx, 1)
}

// NewOTLPProvider exports to an OTLP/HTTP collector at endpoint
// (host:port) on a periodic reader. Callers own Shutdown.
func NewOTLPProvider(ctx context.Context, endpoint string) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	), nil
}
