// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"
)

// BatchMetrics records the outcome of multicall batches without tying the
// batching code to a telemetry implementation.
type BatchMetrics interface {
	// RecordBatch records one aggregator round trip. calls is the batch size,
	// failed the number of subcalls that reported success=false, and err the
	// error that aborted the batch, if any.
	RecordBatch(ctx context.Context, calls, failed int, duration time.Duration, err error)
}
