package cache

import (
	"context"
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
)

// instrumentedClaimer decorates a BatchClaimer with latency and contention
// metrics. Claim round trips sit on every stage run's critical path, so a
// degraded redis shows up here before it shows up as missed stage intervals.
type instrumentedClaimer struct {
	inner      shared.BatchClaimer
	opDuration *telemetry.Histogram
	contention *telemetry.Counter
}

func newInstrumentedClaimer(inner shared.BatchClaimer, meter metric.Meter) (*instrumentedClaimer, error) {
	opDuration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "claim_store_op_duration_seconds",
		Description: "Claim store operation round-trip time",
		Unit:        "s",
		Boundaries:  telemetry.SmallDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	contention, err := telemetry.NewCounter(meter,
		"claim_contention_total",
		"Claim acquisitions refused because another worker held the claim",
		"1",
	)
	if err != nil {
		return nil, err
	}

	return &instrumentedClaimer{
		inner:      inner,
		opDuration: opDuration,
		contention: contention,
	}, nil
}

// Acquire times the acquisition and counts refusals as contention.
func (c *instrumentedClaimer) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	acquired, err := c.inner.Acquire(ctx, key, ttl)
	c.opDuration.RecordDuration(ctx, time.Since(start), telemetry.AttrClaimOp.String("acquire"))
	if err == nil && !acquired {
		c.contention.Inc(ctx)
	}
	return acquired, err
}

func (c *instrumentedClaimer) Release(ctx context.Context, key string) error {
	start := time.Now()
	err := c.inner.Release(ctx, key)
	c.opDuration.RecordDuration(ctx, time.Since(start), telemetry.AttrClaimOp.String("release"))
	return err
}

func (c *instrumentedClaimer) Close() error {
	return c.inner.Close()
}

var _ shared.BatchClaimer = (*instrumentedClaimer)(nil)
