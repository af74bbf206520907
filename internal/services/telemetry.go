package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hanko-field/product-studio/internal/services"

var tracer = otel.Tracer(instrumentationName)

type lifecycleMetrics struct {
	operations  metric.Int64Counter
	transitions metric.Int64Counter
}

func newLifecycleMetrics(meter metric.Meter) (lifecycleMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	var (
		m   lifecycleMetrics
		err error
	)
	if m.operations, err = meter.Int64Counter(
		"studio.version.operations",
		metric.WithDescription("Count of version lifecycle operations by outcome"),
	); err != nil {
		return lifecycleMetrics{}, err
	}
	if m.transitions, err = meter.Int64Counter(
		"studio.status.transitions",
		metric.WithDescription("Count of status transitions accepted by the catalog"),
	); err != nil {
		return lifecycleMetrics{}, err
	}
	return m, nil
}

func (m lifecycleMetrics) operation(ctx context.Context, op string, err error) {
	if m.operations == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (m lifecycleMetrics) transition(ctx context.Context, from, to string) {
	if m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
