package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics counts seat and lifecycle outcomes.
type EngineMetrics struct {
	activations metric.Int64Counter
	rejections  metric.Int64Counter
	releases    metric.Int64Counter
	transitions metric.Int64Counter
}

func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	activations, err := meter.Int64Counter("m91.seat.activations",
		metric.WithDescription("Seats granted, including reactivations"))
	if err != nil {
		return nil, fmt.Errorf("seat activations counter: %w", err)
	}
	rejections, err := meter.Int64Counter("m91.seat.rejections",
		metric.WithDescription("Activation attempts refused, by reason"))
	if err != nil {
		return nil, fmt.Errorf("seat rejections counter: %w", err)
	}
	releases, err := meter.Int64Counter("m91.seat.releases",
		metric.WithDescription("Seats released, by reason"))
	if err != nil {
		return nil, fmt.Errorf("seat releases counter: %w", err)
	}
	transitions, err := meter.Int64Counter("m91.license.transitions",
		metric.WithDescription("License lifecycle operations applied"))
	if err != nil {
		return nil, fmt.Errorf("license transitions counter: %w", err)
	}
	return &EngineMetrics{
		activations: activations,
		rejections:  rejections,
		releases:    releases,
		transitions: transitions,
	}, nil
}

func (m *EngineMetrics) SeatActivated(ctx context.Context, reactivated bool) {
	m.activations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("reactivated", reactivated)))
}

func (m *EngineMetrics) SeatRejected(ctx context.Context, reason string) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *EngineMetrics) SeatsReleased(ctx context.Context, reason string, count int) {
	m.releases.Add(ctx, int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *EngineMetrics) LicenseTransitioned(ctx context.Context, operation string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	requests, err := meter.Int64Counter("m91.http.requests",
		metric.WithDescription("HTTP requests served"))
	if err != nil {
		return nil, fmt.Errorf("http requests counter: %w", err)
	}
	duration, err := meter.Float64Histogram("m91.http.request.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("http duration histogram: %w", err)
	}
	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// Observe records one request. route is the chi route pattern, never the raw
// path, to keep label cardinality bounded.
func (m *HTTPMetrics) Observe(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
