package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/multiread/internal/ports/outbound"
)

const meterName = "github.com/archon-research/multiread"

// Compile-time check that BatchMetrics implements outbound.BatchMetrics
var _ outbound.BatchMetrics = (*BatchMetrics)(nil)

// BatchMetrics records aggregator round trips using OpenTelemetry.
type BatchMetrics struct {
	batchDuration metric.Float64Histogram
	batches       metric.Int64Counter
	subcalls      metric.Int64Counter
	failures      metric.Int64Counter
}

// NewBatchMetrics creates a recorder on the global meter provider.
func NewBatchMetrics() (*BatchMetrics, error) {
	return NewBatchMetricsWithProvider(otel.GetMeterProvider())
}

// NewBatchMetricsWithProvider creates a recorder on mp.
func NewBatchMetricsWithProvider(mp metric.MeterProvider) (*BatchMetrics, error) {
	meter := mp.Meter(meterName)

	duration, err := meter.Float64Histogram(
		"multicall_batch_duration_seconds",
		metric.WithDescription("Time taken by one aggregator round trip"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create multicall_batch_duration_seconds histogram: %w", err)
	}

	batches, err := meter.Int64Counter(
		"multicall_batches_total",
		metric.WithDescription("Total number of aggregator round trips"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create multicall_batches_total counter: %w", err)
	}

	subcalls, err := meter.Int64Counter(
		"multicall_subcalls_total",
		metric.WithDescription("Total number of subcalls sent through the aggregator"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create multicall_subcalls_total counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"multicall_subcall_failures_total",
		metric.WithDescription("Total number of subcalls that reported success=false"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create multicall_subcall_failures_total counter: %w", err)
	}

	return &BatchMetrics{
		batchDuration: duration,
		batches:       batches,
		subcalls:      subcalls,
		failures:      failures,
	}, nil
}

// RecordBatch records one aggregator round trip.
func (m *BatchMetrics) RecordBatch(ctx context.Context, calls, failed int, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))

	m.batchDuration.Record(ctx, duration.Seconds(), attrs)
	m.batches.Add(ctx, 1, attrs)
	m.subcalls.Add(ctx, int64(calls), attrs)
	if failed > 0 {
		m.failures.Add(ctx, int64(failed))
	}
}
