package sink

import (
	"context"

	"codeberg.org/mutker/thermopoll/internal/metric"
)

// Sink accepts normalized metric points. Implementations must treat each
// Submit independently; the poller logs failures and keeps going.
type Sink interface {
	Submit(ctx context.Context, point metric.Point) error
	Close() error
}
