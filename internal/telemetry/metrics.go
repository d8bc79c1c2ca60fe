package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcomes recorded on auth metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuthMetrics counts auth lifecycle operations by event type and outcome.
type AuthMetrics struct {
	events metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on meter. A nil meter yields no-op metrics.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("session-auth")
	}
	events, err := meter.Int64Counter(
		"auth.events",
		metric.WithDescription("Auth lifecycle operations by type and outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{events: events}, nil
}

// Record counts one operation. Safe on a nil receiver.
func (m *AuthMetrics) Record(ctx context.Context, eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("outcome", outcome),
	))
}
