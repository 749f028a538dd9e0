// Package telemetry records engine metrics through the OpenTelemetry global meter.
package telemetry

import (
	"context"
	"fmt"
	"time"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics implements interfaces.MetricsRecorder using OpenTelemetry.
type Metrics struct {
	ordersPlaced     metric.Int64Counter
	ordersRejected   metric.Int64Counter
	rateLimited      metric.Int64Counter
	triggers         metric.Int64Counter
	priceUnavailable metric.Int64Counter
	tickDuration     metric.Float64Histogram
}

// NewMetrics creates the instruments on the meter named meterName.
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	placed, err := meter.Int64Counter(
		"orders_placed_total",
		metric.WithDescription("Orders accepted by the placement service"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders_placed_total counter: %w", err)
	}

	rejected, err := meter.Int64Counter(
		"orders_rejected_total",
		metric.WithDescription("Orders refused or rejected, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders_rejected_total counter: %w", err)
	}

	limited, err := meter.Int64Counter(
		"rate_limited_total",
		metric.WithDescription("Order submissions denied by the rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limited_total counter: %w", err)
	}

	triggers, err := meter.Int64Counter(
		"monitor_triggers_total",
		metric.WithDescription("Resting orders changed by the conditional order monitor"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor_triggers_total counter: %w", err)
	}

	unavailable, err := meter.Int64Counter(
		"oracle_unavailable_total",
		metric.WithDescription("Price lookups that returned no usable quote"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle_unavailable_total counter: %w", err)
	}

	tick, err := meter.Float64Histogram(
		"monitor_tick_duration_seconds",
		metric.WithDescription("Time taken by one monitor pass"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor_tick_duration_seconds histogram: %w", err)
	}

	return &Metrics{
		ordersPlaced:     placed,
		ordersRejected:   rejected,
		rateLimited:      limited,
		triggers:         triggers,
		priceUnavailable: unavailable,
		tickDuration:     tick,
	}, nil
}

func (m *Metrics) RecordOrderPlaced(ctx context.Context, orderType, status string) {
	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", orderType),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordOrderRejected(ctx context.Context, reason string) {
	m.ordersRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordRateLimited(ctx context.Context) {
	m.rateLimited.Add(ctx, 1)
}

func (m *Metrics) RecordTrigger(ctx context.Context, orderType string) {
	m.triggers.Add(ctx, 1, metric.WithAttributes(attribute.String("type", orderType)))
}

func (m *Metrics) RecordPriceUnavailable(ctx context.Context, pair string) {
	m.priceUnavailable.Add(ctx, 1, metric.WithAttributes(attribute.String("pair", pair)))
}

// RecordTickDuration records how long one monitor pass took.
func (m *Metrics) RecordTickDuration(ctx context.Context, d time.Duration) {
	m.tickDuration.Record(ctx, d.Seconds())
}

type nopMetrics struct{}

// Nop returns a recorder that discards everything.
func Nop() interfaces.MetricsRecorder { return nopMetrics{} }

func (nopMetrics) RecordOrderPlaced(context.Context, string, string) {}
func (nopMetrics) RecordOrderRejected(context.Context, string)       {}
func (nopMetrics) RecordRateLimited(context.Context)                 {}
func (nopMetrics) RecordTrigger(context.Context, string)             {}
func (nopMetrics) RecordPriceUnavailable(context.Context, string)    {}
func (nopMetrics) RecordTickDuration(context.Context, time.Duration) {}

var (
	_ interfaces.MetricsRecorder = (*Metrics)(nil)
	_ interfaces.MetricsRecorder = nopMetrics{}
)
