package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// DefaultUptimeWindow is the rolling window uptime is reported over.
const DefaultUptimeWindow = 24 * time.Hour

// ResultCounter is the slice of the repository the calculator needs.
type ResultCounter interface {
	CountCheckResults(ctx context.Context, serviceID uuid.UUID, since time.Time) (total, healthy int64, err error)
}

// UptimeCalculator computes the healthy-check ratio over a sliding window
// from persisted history. It is always recomputed from storage rather than
// maintained incrementally, so restarts and races cannot make it drift.
type UptimeCalculator struct {
	counter ResultCounter
	now     func() time.Time
}

func NewUptimeCalculator(counter ResultCounter) *UptimeCalculator {
	return &UptimeCalculator{counter: counter, now: time.Now}
}

// Compute returns the uptime percentage for the service over the window,
// rounded to two decimals. An empty window yields 0.0: absence of data is
// not evidence of health.
func (c *UptimeCalculator) Compute(ctx context.Context, serviceID uuid.UUID, window time.Duration) (float64, error) {
	if window <= 0 {
		window = DefaultUptimeWindow
	}
	since := c.now().Add(-window)

	total, healthy, err := c.counter.CountCheckResults(ctx, serviceID, since)
	if err != nil {
		return 0, fmt.Errorf("count check results: %w", err)
	}
	if total == 0 {
		return 0.0, nil
	}
	return round2(float64(healthy) / float64(total) * 100), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
