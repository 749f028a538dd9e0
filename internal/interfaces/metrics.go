package interfaces

import (
	"context"
	"time"
)

// MetricsRecorder receives the engine's operational counters.
type MetricsRecorder interface {
	RecordOrderPlaced(ctx context.Context, orderType, status string)
	RecordOrderRejected(ctx context.Context, reason string)
	RecordRateLimited(ctx context.Context)
	RecordTrigger(ctx context.Context, orderType string)
	RecordPriceUnavailable(ctx context.Context, pair string)
	RecordTickDuration(ctx context.Context, d time.Duration)
}
